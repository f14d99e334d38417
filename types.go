package signin

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// UserIdentity is the capability set the sign-in flow needs from a
// principal record. Back-office users and members both implement it.
type UserIdentity interface {
	GetKey() string
	GetUserName() string
	GetNormalizedUserName() string
	GetPasswordHash() string
	GetSecurityStamp() string
	GetAccessFailedCount() int
	GetLockoutEnd() *time.Time
	IsTwoFactorEnabled() bool
	GetRoles() []string
	// RequiresApproval reports whether the account is blocked until an
	// administrator approves it, independent of any lockout timestamp.
	RequiresApproval() bool

	SetPasswordHash(hash string)
	SetSecurityStamp(stamp string)
	SetAccessFailedCount(count int)
	SetLockoutEnd(end *time.Time)
	SetLastLoginAt(at time.Time)
}

// UserRecordStore persists identity attributes for one user type.
// AccessFailed and ResetAccessFailedCount must be atomic at the store.
type UserRecordStore[U UserIdentity] interface {
	FindByName(ctx context.Context, name string) (U, error)
	FindByID(ctx context.Context, id string) (U, error)
	IsLockedOut(ctx context.Context, user U) (bool, error)
	AccessFailed(ctx context.Context, user U) (int, error)
	ResetAccessFailedCount(ctx context.Context, user U) error
	SetLockoutEnd(ctx context.Context, user U, end *time.Time) error
	Update(ctx context.Context, user U) error
	// RecordLogin writes only the last login time, leaving credentials
	// and stamps as they are in storage.
	RecordLogin(ctx context.Context, user U, at time.Time) error
	GetTwoFactorProviders(ctx context.Context, user U) ([]string, error)
	GetSecurityStamp(ctx context.Context, user U) (string, error)
}

// ExternalLoginStore resolves users linked to an external login provider.
type ExternalLoginStore[U UserIdentity] interface {
	FindByLogin(ctx context.Context, provider, providerKey string) (U, error)
}

// RecoveryCodeStore redeems single use two-factor recovery codes.
type RecoveryCodeStore[U UserIdentity] interface {
	RedeemRecoveryCode(ctx context.Context, user U, code string) (bool, error)
}

// CredentialVerifier checks a password for a resolved user.
type CredentialVerifier[U UserIdentity] interface {
	Verify(ctx context.Context, user U, password string) (bool, error)
}

// TimingEqualizer burns the same work a real verification would when no
// user could be resolved.
type TimingEqualizer interface {
	Equalize(ctx context.Context, password string)
}

// PasswordHasher produces storable password hashes.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// TwoFactorProvider verifies codes for a single provider (totp, sms, email...).
type TwoFactorProvider interface {
	Verify(ctx context.Context, user UserIdentity, code string) (bool, error)
}

// TwoFactorCodeGenerator is implemented by providers that deliver codes
// out of band.
type TwoFactorCodeGenerator interface {
	Generate(ctx context.Context, user UserIdentity) error
}

// ChallengeLedger records consumed two-factor challenges so a pending
// challenge can only be redeemed once.
type ChallengeLedger interface {
	Consume(ctx context.Context, id string, until time.Time) (bool, error)
	IsConsumed(ctx context.Context, id string) (bool, error)
}

type defLogger struct{}

// DefaultLogger returns the stdout logger used when none is configured.
func DefaultLogger() Logger {
	return defLogger{}
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SIGNIN "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SIGNIN "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SIGNIN "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SIGNIN "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
