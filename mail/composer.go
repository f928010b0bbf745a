// Package mail composes and delivers the transactional email the identity
// engine sends: verification links and password-reset links.
package mail

import (
	"fmt"
	"net/url"
)

// Message is a composed email, ready for any dispatcher.
type Message struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// Composer renders verification and reset messages. Links are built as
// baseURL+path?token=<token>; the token is base64url and needs no escaping,
// but it is escaped anyway so a different token format cannot break the link.
type Composer struct {
	appName          string
	baseURL          string
	verificationPath string
	resetPath        string
}

// NewComposer creates a Composer. baseURL is the application origin without a
// trailing slash; both paths must begin with "/".
func NewComposer(appName, baseURL, verificationPath, resetPath string) *Composer {
	return &Composer{
		appName:          appName,
		baseURL:          baseURL,
		verificationPath: verificationPath,
		resetPath:        resetPath,
	}
}

// VerificationMessage composes the email sent after registration or a
// verification restart.
func (c *Composer) VerificationMessage(username, token string) Message {
	link := c.link(c.verificationPath, token)
	return Message{
		Subject: fmt.Sprintf("Confirm your %s email address", c.appName),
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nConfirm your email address to finish setting up your %s account:\n\n%s\n\nThe link expires after a limited time. If you did not create this account, ignore this message.\n",
			username, c.appName, link,
		),
		HTMLBody: fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<h2>Welcome to %[1]s, %[2]s!</h2>
	<p>Confirm your email address to finish setting up your account:</p>
	<p><a href="%[3]s" style="display: inline-block; padding: 10px 20px; background-color: #d35400; color: #fff; text-decoration: none; border-radius: 4px;">Confirm email</a></p>
	<p>Or paste this link into your browser:</p>
	<p><a href="%[3]s">%[3]s</a></p>
	<p style="color: #777; font-size: 12px;">The link expires after a limited time. If you did not create this account, ignore this message.</p>
</body>
</html>`, c.appName, username, link),
	}
}

// ResetMessage composes the email sent when a password reset is requested.
func (c *Composer) ResetMessage(username, token string) Message {
	link := c.link(c.resetPath, token)
	return Message{
		Subject: fmt.Sprintf("Reset your %s password", c.appName),
		TextBody: fmt.Sprintf(
			"Hi %s,\n\nA password reset was requested for your %s account. Use this link to choose a new password:\n\n%s\n\nThe link expires after a limited time and works once. If you did not request a reset, ignore this message; your password is unchanged.\n",
			username, c.appName, link,
		),
		HTMLBody: fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<h2>Password reset</h2>
	<p>Hi %[2]s, a password reset was requested for your %[1]s account.</p>
	<p><a href="%[3]s" style="display: inline-block; padding: 10px 20px; background-color: #d35400; color: #fff; text-decoration: none; border-radius: 4px;">Choose a new password</a></p>
	<p>Or paste this link into your browser:</p>
	<p><a href="%[3]s">%[3]s</a></p>
	<p style="color: #777; font-size: 12px;">The link expires after a limited time and works once. If you did not request a reset, ignore this message; your password is unchanged.</p>
</body>
</html>`, c.appName, username, link),
	}
}

func (c *Composer) link(path, token string) string {
	return c.baseURL + path + "?token=" + url.QueryEscape(token)
}
