package signin

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return NewBcryptHasher().HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// BcryptHasher implements PasswordHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using the default cost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: defaultHashCost()}
}

func (h *BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	cost := h.Cost
	if cost == 0 {
		cost = defaultHashCost()
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(out), err
}

// BcryptVerifier checks passwords against bcrypt hashes. It doubles as a
// TimingEqualizer by comparing against a throwaway hash of the same cost.
type BcryptVerifier[U UserIdentity] struct {
	cost      int
	once      sync.Once
	dummyHash []byte
}

// NewBcryptVerifier returns a verifier whose equalizer hash uses cost,
// or the default cost when cost is zero.
func NewBcryptVerifier[U UserIdentity](cost int) *BcryptVerifier[U] {
	if cost == 0 {
		cost = defaultHashCost()
	}
	return &BcryptVerifier[U]{cost: cost}
}

func (v *BcryptVerifier[U]) Verify(ctx context.Context, user U, password string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	hash := user.GetPasswordHash()
	if hash == "" || password == "" {
		v.Equalize(ctx, password)
		return false, nil
	}

	err := ComparePasswordAndHash(password, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

func (v *BcryptVerifier[U]) Equalize(_ context.Context, password string) {
	v.once.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), v.cost)
		if err == nil {
			v.dummyHash = h
		}
	})
	if v.dummyHash == nil {
		return
	}
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(password))
}

// PasswordCheckResult is the answer of a custom PasswordChecker.
type PasswordCheckResult int

const (
	PasswordCheckInvalid PasswordCheckResult = iota
	PasswordCheckValid
	// PasswordCheckFallback defers to the default verifier.
	PasswordCheckFallback
)

// PasswordChecker is a deployment specific credential check, for example
// against a directory server.
type PasswordChecker[U UserIdentity] interface {
	CheckPassword(ctx context.Context, user U, password string) (PasswordCheckResult, error)
}

// PasswordCheckerFunc adapts a function to PasswordChecker.
type PasswordCheckerFunc[U UserIdentity] func(ctx context.Context, user U, password string) (PasswordCheckResult, error)

func (f PasswordCheckerFunc[U]) CheckPassword(ctx context.Context, user U, password string) (PasswordCheckResult, error) {
	return f(ctx, user, password)
}

// FallbackVerifier consults Checker first and falls back to Default when
// the checker defers.
type FallbackVerifier[U UserIdentity] struct {
	Checker PasswordChecker[U]
	Default CredentialVerifier[U]
}

func (v *FallbackVerifier[U]) Verify(ctx context.Context, user U, password string) (bool, error) {
	if v.Checker == nil {
		return v.Default.Verify(ctx, user, password)
	}

	res, err := v.Checker.CheckPassword(ctx, user, password)
	if err != nil {
		return false, err
	}

	switch res {
	case PasswordCheckValid:
		return true, nil
	case PasswordCheckFallback:
		return v.Default.Verify(ctx, user, password)
	default:
		return false, nil
	}
}

func (v *FallbackVerifier[U]) Equalize(ctx context.Context, password string) {
	if eq, ok := v.Default.(TimingEqualizer); ok {
		eq.Equalize(ctx, password)
	}
}
