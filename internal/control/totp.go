package control

import (
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// StepUpChecker validates the optional totp field the two priority-20
// commands (force-backfill, clear-cache) carry, checking a caller-supplied
// code against an operator-provisioned secret.
type StepUpChecker struct {
	secret string
}

// NewStepUpChecker builds a checker bound to secret. An empty secret
// disables step-up auth entirely: Require always returns nil.
func NewStepUpChecker(secret string) *StepUpChecker {
	return &StepUpChecker{secret: secret}
}

// Enabled reports whether step-up auth is configured.
func (c *StepUpChecker) Enabled() bool {
	return c.secret != ""
}

// Require validates code against the configured secret. When step-up auth
// is disabled (no secret configured) it always succeeds.
func (c *StepUpChecker) Require(code string) error {
	if c.secret == "" {
		return nil
	}
	if code == "" {
		return ErrStepUpRequired
	}
	ok, err := totp.ValidateCustom(code, c.secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return ErrStepUpRequired
	}
	if !ok {
		return ErrStepUpRequired
	}
	return nil
}
