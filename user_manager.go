package signin

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Actor identifies who performs an administrative change.
type Actor struct {
	UserID    string
	IPAddress string
}

// UserManager performs password and lockout changes on a user record and
// emits the matching notifications.
type UserManager[U UserIdentity] struct {
	store    UserRecordStore[U]
	verifier CredentialVerifier[U]
	hasher   PasswordHasher
	sink     NotificationSink
	logger   Logger
	now      func() time.Time
}

// NewUserManager returns a manager. Only the sink, logger and clock options apply.
func NewUserManager[U UserIdentity](store UserRecordStore[U], verifier CredentialVerifier[U], hasher PasswordHasher, opts ...Option) *UserManager[U] {
	o := &coordinatorOptions{
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	return &UserManager[U]{
		store:    store,
		verifier: verifier,
		hasher:   hasher,
		sink:     normalizeNotificationSink(o.sink),
		logger:   o.logger,
		now:      o.now,
	}
}

// ChangePassword replaces the password after checking the current one.
func (m *UserManager[U]) ChangePassword(ctx context.Context, actor Actor, user U, current, next string) error {
	mustUser(user)

	ok, err := m.verifier.Verify(ctx, user, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMismatchedHashAndPassword
	}
	return m.setPassword(ctx, actor, user, next)
}

// ResetPassword replaces the password without checking the current one.
func (m *UserManager[U]) ResetPassword(ctx context.Context, actor Actor, user U, next string) error {
	mustUser(user)
	return m.setPassword(ctx, actor, user, next)
}

func (m *UserManager[U]) setPassword(ctx context.Context, actor Actor, user U, next string) error {
	hash, err := m.hasher.HashPassword(next)
	if err != nil {
		return err
	}

	user.SetPasswordHash(hash)
	user.SetSecurityStamp(NewSecurityStamp())
	if tracker, ok := any(user).(PasswordChangeTracker); ok {
		tracker.SetPasswordChangedAt(m.now())
	}

	if err := m.store.Update(ctx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
	}

	m.logger.Info("password changed for user %s by %s", user.GetUserName(), actor.UserID)
	m.notify(ctx, actor, EventPasswordChanged, user)
	return nil
}

// Lock sets the lockout end of user to until.
func (m *UserManager[U]) Lock(ctx context.Context, actor Actor, user U, until time.Time) error {
	mustUser(user)

	if err := m.store.SetLockoutEnd(ctx, user, &until); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to lock user")
	}
	if !until.After(m.now()) {
		m.notify(ctx, actor, EventAccountUnlocked, user)
		return nil
	}
	m.notify(ctx, actor, EventAccountLocked, user)
	return nil
}

// Unlock clears the lockout end, which also resets the failed count.
func (m *UserManager[U]) Unlock(ctx context.Context, actor Actor, user U) error {
	mustUser(user)

	if err := m.store.SetLockoutEnd(ctx, user, nil); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unlock user")
	}
	m.notify(ctx, actor, EventAccountUnlocked, user)
	return nil
}

// UpdateSecurityStamp rotates the stamp, invalidating existing sessions
// and remembered clients.
func (m *UserManager[U]) UpdateSecurityStamp(ctx context.Context, user U) error {
	mustUser(user)

	user.SetSecurityStamp(NewSecurityStamp())
	if err := m.store.Update(ctx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update security stamp")
	}
	return nil
}

func (m *UserManager[U]) notify(ctx context.Context, actor Actor, event EventType, user U) {
	performing := actor.UserID
	if performing == "" {
		performing = user.GetKey()
	}
	emit(ctx, m.sink, m.logger, Notification{
		Type:             event,
		IPAddress:        actor.IPAddress,
		PerformingUserID: performing,
		AffectedUserID:   user.GetKey(),
		AffectedUserName: user.GetUserName(),
		OccurredAt:       m.now(),
	})
}
