package mail

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds SMTP transport configuration, parsed from environment
// variables.
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
}

// SMTPConfigFromEnv parses an [SMTPConfig] from environment variables.
func SMTPConfigFromEnv() (SMTPConfig, error) {
	cfg, err := env.ParseAs[SMTPConfig]()
	if err != nil {
		return SMTPConfig{}, fmt.Errorf("parse SMTP environment variables: %w", err)
	}
	return cfg, nil
}

func (c SMTPConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("missing SMTP_HOST")
	}
	if c.Port == 0 {
		return fmt.Errorf("missing SMTP_PORT")
	}
	if c.From == "" {
		return fmt.Errorf("missing SMTP_FROM")
	}
	return nil
}

// SMTPDispatcher delivers messages over SMTP. It satisfies the engine's
// EmailDispatcher interface.
type SMTPDispatcher struct {
	config SMTPConfig
	dialer *gomail.Dialer
	logger zerolog.Logger
}

// NewSMTPDispatcher validates cfg and returns a dispatcher. The connection is
// established per send; no dial happens here.
func NewSMTPDispatcher(cfg SMTPConfig, logger zerolog.Logger) (*SMTPDispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &SMTPDispatcher{
		config: cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}, nil
}

// Send delivers one message. gomail has no context plumbing, so delivery runs
// in a goroutine and ctx cancellation abandons the wait, not the dial.
func (d *SMTPDispatcher) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("no recipient specified")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", d.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	if htmlBody != "" {
		msg.SetBody("text/html", htmlBody)
		if textBody != "" {
			msg.AddAlternative("text/plain", textBody)
		}
	} else {
		msg.SetBody("text/plain", textBody)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			d.logger.Error().Err(err).Str("subject", subject).Msg("smtp delivery failed")
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
