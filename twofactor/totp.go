package twofactor

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	signin "github.com/goliatone/go-signin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ProviderTOTP is the registration name of the authenticator app provider.
const ProviderTOTP = "totp"

// SecretSource returns the per-provider secret of a user.
type SecretSource interface {
	TwoFactorSecret(ctx context.Context, user signin.UserIdentity, provider string) (string, error)
}

// TOTPProvider verifies RFC 6238 codes from an authenticator app.
type TOTPProvider struct {
	secrets SecretSource
	name    string
	skew    uint
	now     func() time.Time
}

// NewTOTPProvider returns a provider reading secrets stored under ProviderTOTP.
func NewTOTPProvider(secrets SecretSource) *TOTPProvider {
	return &TOTPProvider{
		secrets: secrets,
		name:    ProviderTOTP,
		skew:    1,
		now:     time.Now,
	}
}

// WithClock overrides time.Now.
func (p *TOTPProvider) WithClock(now func() time.Time) *TOTPProvider {
	if now != nil {
		p.now = now
	}
	return p
}

func (p *TOTPProvider) Verify(ctx context.Context, user signin.UserIdentity, code string) (bool, error) {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	if code == "" {
		return false, nil
	}

	secret, err := p.secrets.TwoFactorSecret(ctx, user, p.name)
	if err != nil {
		if signin.IsNotFound(err) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read totp secret")
	}

	ok, err := totp.ValidateCustom(code, secret, p.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      p.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		// malformed codes are wrong codes
		if goerrors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to validate totp code")
	}
	return ok, nil
}

// NewTOTPKey generates a secret for accountName. The key URL can be
// rendered as a QR code for enrollment.
func NewTOTPKey(issuer, accountName string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate totp key")
	}
	return key, nil
}

// GenerateTOTPCode returns the code for secret at t.
func GenerateTOTPCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCode(secret, t)
}
