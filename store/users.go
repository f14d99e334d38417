package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	signin "github.com/goliatone/go-signin"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record is a user type the bun store can persist.
type Record interface {
	signin.UserIdentity
	GetID() uuid.UUID
	SetID(id uuid.UUID)
	SetUpdatedAt(at time.Time)
}

// Users implements signin.UserRecordStore, signin.ExternalLoginStore and
// signin.RecoveryCodeStore on bun.
type Users[U Record] struct {
	repo      repository.Repository[U]
	db        *bun.DB
	newRecord func() U
	now       func() time.Time
}

var (
	_ signin.UserRecordStore[*signin.BackOfficeUser]    = (*Users[*signin.BackOfficeUser])(nil)
	_ signin.ExternalLoginStore[*signin.BackOfficeUser] = (*Users[*signin.BackOfficeUser])(nil)
	_ signin.RecoveryCodeStore[*signin.BackOfficeUser]  = (*Users[*signin.BackOfficeUser])(nil)
	_ signin.UserRecordStore[*signin.MemberUser]        = (*Users[*signin.MemberUser])(nil)
)

type UsersOption[U Record] func(*Users[U])

// WithClock overrides time.Now.
func WithClock[U Record](now func() time.Time) UsersOption[U] {
	return func(u *Users[U]) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUsers returns a store for records created by newRecord.
func NewUsers[U Record](db *bun.DB, newRecord func() U, opts ...UsersOption[U]) *Users[U] {
	repo := repository.NewRepository[U](db, repository.ModelHandlers[U]{
		NewRecord: newRecord,
		GetID: func(u U) uuid.UUID {
			return u.GetID()
		},
		SetID: func(u U, id uuid.UUID) {
			u.SetID(id)
		},
	})

	users := &Users[U]{
		repo:      repo,
		db:        db,
		newRecord: newRecord,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(users)
		}
	}
	return users
}

// NewBackOfficeUsers returns the back-office user store.
func NewBackOfficeUsers(db *bun.DB, opts ...UsersOption[*signin.BackOfficeUser]) *Users[*signin.BackOfficeUser] {
	return NewUsers(db, func() *signin.BackOfficeUser { return &signin.BackOfficeUser{} }, opts...)
}

// NewMembers returns the member store.
func NewMembers(db *bun.DB, opts ...UsersOption[*signin.MemberUser]) *Users[*signin.MemberUser] {
	return NewUsers(db, func() *signin.MemberUser { return &signin.MemberUser{} }, opts...)
}

// Create inserts a new user.
func (s *Users[U]) Create(ctx context.Context, user U) (U, error) {
	if user.GetID() == uuid.Nil {
		user.SetID(uuid.New())
	}
	return s.repo.Create(ctx, user)
}

func (s *Users[U]) FindByName(ctx context.Context, name string) (U, error) {
	var zero U
	normalized := signin.NormalizeUserName(name)
	if normalized == "" {
		return zero, signin.ErrUserNotFound
	}

	record := s.newRecord()
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.normalized_user_name = ?", normalized).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return zero, notFound(err)
	}
	return record, nil
}

func (s *Users[U]) FindByID(ctx context.Context, id string) (U, error) {
	var zero U
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return zero, signin.ErrUserNotFound
	}

	record, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return zero, notFound(err)
	}
	return record, nil
}

// IsLockedOut is true while the lockout end is in the future or the
// account still requires approval.
func (s *Users[U]) IsLockedOut(_ context.Context, user U) (bool, error) {
	if user.RequiresApproval() {
		return true, nil
	}
	return signin.IsLockoutActive(user.GetLockoutEnd(), s.now()), nil
}

// AccessFailed increments the failed count in one statement and returns
// the stored value.
func (s *Users[U]) AccessFailed(ctx context.Context, user U) (int, error) {
	var count int
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(s.newRecord()).
			Set("access_failed_count = access_failed_count + 1").
			Where("id = ?", user.GetID()).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := expectRow(res); err != nil {
			return err
		}

		return tx.NewSelect().
			Model(s.newRecord()).
			Column("access_failed_count").
			Where("?TableAlias.id = ?", user.GetID()).
			Scan(ctx, &count)
	})
	if err != nil {
		return 0, err
	}

	user.SetAccessFailedCount(count)
	return count, nil
}

func (s *Users[U]) ResetAccessFailedCount(ctx context.Context, user U) error {
	res, err := s.db.NewUpdate().
		Model(s.newRecord()).
		Set("access_failed_count = 0").
		Where("id = ?", user.GetID()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	user.SetAccessFailedCount(0)
	return nil
}

// SetLockoutEnd locks the account until end. A nil or past end unlocks it
// and resets the failed count.
func (s *Users[U]) SetLockoutEnd(ctx context.Context, user U, end *time.Time) error {
	q := s.db.NewUpdate().
		Model(s.newRecord()).
		Where("id = ?", user.GetID())

	unlock := end == nil || !end.After(s.now())
	if unlock {
		q = q.Set("lockout_end = NULL").Set("access_failed_count = 0")
	} else {
		q = q.Set("lockout_end = ?", end.UTC())
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}

	if unlock {
		user.SetLockoutEnd(nil)
		user.SetAccessFailedCount(0)
		return nil
	}
	user.SetLockoutEnd(end)
	return nil
}

// Update persists profile columns. Counter and lockout columns are only
// written by the atomic operations above.
func (s *Users[U]) Update(ctx context.Context, user U) error {
	user.SetUpdatedAt(s.now())
	res, err := s.db.NewUpdate().
		Model(user).
		WherePK().
		ExcludeColumn("access_failed_count", "lockout_end", "created_at").
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// RecordLogin sets last_login_at without rewriting the rest of the row.
func (s *Users[U]) RecordLogin(ctx context.Context, user U, at time.Time) error {
	now := s.now()
	res, err := s.db.NewUpdate().
		Model(s.newRecord()).
		Set("last_login_at = ?", at.UTC()).
		Set("updated_at = ?", now.UTC()).
		Where("id = ?", user.GetID()).
		Exec(ctx)
	if err != nil {
		return err
	}
	if err := expectRow(res); err != nil {
		return err
	}
	user.SetLastLoginAt(at)
	user.SetUpdatedAt(now)
	return nil
}

func (s *Users[U]) GetTwoFactorProviders(ctx context.Context, user U) ([]string, error) {
	var names []string
	err := s.db.NewSelect().
		Model((*TwoFactorLogin)(nil)).
		Column("provider_name").
		Where("?TableAlias.user_key = ?", user.GetKey()).
		Order("provider_name ASC").
		Scan(ctx, &names)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return names, nil
}

// GetSecurityStamp reads the stored stamp so rotations by other requests
// are observed.
func (s *Users[U]) GetSecurityStamp(ctx context.Context, user U) (string, error) {
	var stamp string
	err := s.db.NewSelect().
		Model(s.newRecord()).
		Column("security_stamp").
		Where("?TableAlias.id = ?", user.GetID()).
		Scan(ctx, &stamp)
	if err != nil {
		return "", notFound(err)
	}
	return stamp, nil
}

// EnableTwoFactorProvider registers provider for user with an optional secret.
func (s *Users[U]) EnableTwoFactorProvider(ctx context.Context, user U, provider, secret string) error {
	login := &TwoFactorLogin{
		ID:           uuid.New(),
		UserKey:      user.GetKey(),
		ProviderName: provider,
		Secret:       secret,
	}
	_, err := s.db.NewInsert().
		Model(login).
		On("CONFLICT (user_key, provider_name) DO UPDATE").
		Set("secret = EXCLUDED.secret").
		Exec(ctx)
	return err
}

// DisableTwoFactorProvider removes provider for user.
func (s *Users[U]) DisableTwoFactorProvider(ctx context.Context, user U, provider string) error {
	_, err := s.db.NewDelete().
		Model((*TwoFactorLogin)(nil)).
		Where("user_key = ?", user.GetKey()).
		Where("provider_name = ?", provider).
		Exec(ctx)
	return err
}

// TwoFactorSecret returns the secret stored for provider.
func (s *Users[U]) TwoFactorSecret(ctx context.Context, user signin.UserIdentity, provider string) (string, error) {
	login := &TwoFactorLogin{}
	err := s.db.NewSelect().
		Model(login).
		Where("?TableAlias.user_key = ?", user.GetKey()).
		Where("?TableAlias.provider_name = ?", provider).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return "", notFound(err)
	}
	return login.Secret, nil
}

// AddLogin links user to an external provider account.
func (s *Users[U]) AddLogin(ctx context.Context, user U, provider, providerKey, displayName string) error {
	_, err := s.db.NewInsert().
		Model(&ExternalLogin{
			ID:            uuid.New(),
			UserKey:       user.GetKey(),
			LoginProvider: provider,
			ProviderKey:   providerKey,
			DisplayName:   displayName,
		}).
		Exec(ctx)
	return err
}

func (s *Users[U]) FindByLogin(ctx context.Context, provider, providerKey string) (U, error) {
	var zero U
	login := &ExternalLogin{}
	err := s.db.NewSelect().
		Model(login).
		Where("?TableAlias.login_provider = ?", provider).
		Where("?TableAlias.provider_key = ?", providerKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return zero, notFound(err)
	}
	return s.FindByID(ctx, login.UserKey)
}

// GenerateRecoveryCodes replaces the user's recovery codes with n new ones
// and returns them in clear text. Only hashes are stored.
func (s *Users[U]) GenerateRecoveryCodes(ctx context.Context, user U, n int) ([]string, error) {
	codes := make([]string, 0, n)
	records := make([]*RecoveryCode, 0, n)
	for i := 0; i < n; i++ {
		code, err := newRecoveryCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
		records = append(records, &RecoveryCode{
			ID:       uuid.New(),
			UserKey:  user.GetKey(),
			CodeHash: hashRecoveryCode(code),
		})
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*RecoveryCode)(nil)).
			Where("user_key = ?", user.GetKey()).
			Exec(ctx); err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		_, err := tx.NewInsert().Model(&records).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// RedeemRecoveryCode marks a matching unused code as redeemed. The
// conditional update makes each code usable once.
func (s *Users[U]) RedeemRecoveryCode(ctx context.Context, user U, code string) (bool, error) {
	code = normalizeRecoveryCode(code)
	if code == "" {
		return false, nil
	}

	res, err := s.db.NewUpdate().
		Model((*RecoveryCode)(nil)).
		Set("redeemed_at = ?", s.now().UTC()).
		Where("user_key = ?", user.GetKey()).
		Where("code_hash = ?", hashRecoveryCode(code)).
		Where("redeemed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountRecoveryCodes returns how many unused codes user has left.
func (s *Users[U]) CountRecoveryCodes(ctx context.Context, user U) (int, error) {
	return s.db.NewSelect().
		Model((*RecoveryCode)(nil)).
		Where("?TableAlias.user_key = ?", user.GetKey()).
		Where("?TableAlias.redeemed_at IS NULL").
		Count(ctx)
}

func newRecoveryCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	h := hex.EncodeToString(buf)
	return fmt.Sprintf("%s-%s", h[:5], h[5:]), nil
}

func normalizeRecoveryCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), " ", ""))
}

func hashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(normalizeRecoveryCode(code)))
	return hex.EncodeToString(sum[:])
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
		return signin.ErrUserNotFound
	}
	return err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return signin.ErrUserNotFound
	}
	return nil
}
