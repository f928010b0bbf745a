package identity

import (
	"context"
	"errors"
)

// SecurityQuestions returns the three stored questions for the account
// matching identifier (username first, then email). Only the question text is
// returned; answer hashes never leave the engine.
func (e *Engine) SecurityQuestions(ctx context.Context, identifier string) ([3]string, error) {
	var questions [3]string
	if e == nil || e.store == nil {
		return questions, ErrEngineNotReady
	}
	if identifier == "" {
		return questions, ErrAccountNotFound
	}

	account, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return questions, ErrAccountNotFound
		}
		return questions, storeFailure(err)
	}

	for i, q := range account.SecurityQuestions {
		questions[i] = q.Question
	}
	return questions, nil
}

// CheckSecurityAnswers verifies all three answers against the account's
// stored hashes. Every answer is checked even after a mismatch, so the
// response time does not reveal which answer was wrong. The result is a
// single pass/fail; there is no per-answer feedback.
func (e *Engine) CheckSecurityAnswers(ctx context.Context, accountID string, answers [3]string) (bool, error) {
	if e == nil || e.store == nil || e.hasher == nil {
		return false, ErrEngineNotReady
	}

	account, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, ErrAccountNotFound
		}
		return false, storeFailure(err)
	}

	all := true
	for i, q := range account.SecurityQuestions {
		if !e.hasher.VerifyAnswer(answers[i], q.AnswerHash) {
			all = false
		}
	}
	return all, nil
}
