package signin_test

import (
	"context"
	"errors"
	"testing"
	"time"

	signin "github.com/goliatone/go-signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) session(t *testing.T, scheme string) *signin.AuthenticateResult {
	t.Helper()
	res, err := h.transport.Authenticate(h.ctx, scheme)
	require.NoError(t, err)
	return res
}

func TestNewCoordinator_RejectsInvalidSchemes(t *testing.T) {
	store := newMemoryStore[*signin.BackOfficeUser](time.Now)
	verifier := signin.NewBcryptVerifier[*signin.BackOfficeUser](4)

	_, err := signin.NewCoordinator(store, verifier, signin.SchemeSet{
		Primary:           "a",
		External:          "b",
		TwoFactor:         "a",
		TwoFactorRemember: "c",
	}, testOptions())
	assert.ErrorIs(t, err, signin.ErrInvalidSchemeSet)

	_, err = signin.NewCoordinator(store, verifier, signin.SchemeSet{Primary: "a"}, testOptions())
	assert.ErrorIs(t, err, signin.ErrInvalidSchemeSet)

	assert.False(t, signin.BackOfficeSchemes.Overlaps(signin.MemberSchemes))
}

func TestPasswordSignIn_UnknownUser(t *testing.T) {
	tests := []struct {
		name     string
		username string
		expected string
	}{
		{name: "named user", username: "ghost", expected: "ghost"},
		{name: "blank user", username: "   ", expected: signin.UnknownUserName},
		{name: "empty user", username: "", expected: signin.UnknownUserName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, tt.username, "secret", false, true)
			require.NoError(t, err)
			assert.Equal(t, signin.OutcomeFailed, outcome)
			assert.Equal(t, signin.RejectionMessage, outcome.RejectionMessage())

			events := h.sink.all()
			require.Len(t, events, 1)
			assert.Equal(t, signin.EventLoginFailed, events[0].Type)
			assert.Equal(t, tt.expected, events[0].AffectedUserName)
			assert.Empty(t, events[0].AffectedUserID)
			assert.Equal(t, "203.0.113.9", events[0].IPAddress)

			assert.Empty(t, h.transport.Schemes())
		})
	}
}

func TestPasswordSignIn_Success(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "Editor", "correct horse"))
	user.AccessFailedCount = 2

	outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "correct horse", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeSuccess, outcome)
	assert.Equal(t, 0, user.AccessFailedCount)
	require.NotNil(t, user.LastLoginAt)
	assert.True(t, user.LastLoginAt.Equal(h.clock.Now()))

	res := h.session(t, signin.BackOfficeSchemes.Primary)
	require.True(t, res.Succeeded())
	assert.Equal(t, user.GetKey(), res.Principal.FindFirstValue(signin.ClaimNameIdentifier))
	assert.Equal(t, "Editor", res.Principal.FindFirstValue(signin.ClaimName))
	assert.Equal(t, user.SecurityStamp, res.Principal.FindFirstValue(signin.ClaimSecurityStamp))
	assert.Equal(t, signin.AMRPassword, res.Principal.FindFirstValue(signin.ClaimAMR))
	assert.True(t, res.Principal.HasClaim(signin.ClaimRole, signin.RoleEditor))
	assert.False(t, res.Properties.IsPersistent)
	assert.Equal(t, h.clock.Now().Add(testOptions().SessionTTL), res.Properties.ExpiresAt)
	assert.True(t, h.coord.IsSignedIn(res.Principal))

	events := h.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, signin.EventLoginSuccess, events[0].Type)
	assert.Equal(t, user.GetKey(), events[0].AffectedUserID)
	assert.Equal(t, user.GetKey(), events[0].PerformingUserID)
	assert.Equal(t, signin.BackOfficeSchemes.Primary, events[0].Scheme)
}

func TestPasswordSignIn_PersistentSession(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))

	outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", true, false)
	require.NoError(t, err)
	require.Equal(t, signin.OutcomeSuccess, outcome)

	res := h.session(t, signin.BackOfficeSchemes.Primary)
	assert.True(t, res.Properties.IsPersistent)
	assert.Equal(t, h.clock.Now().Add(testOptions().PersistentSessionTTL), res.Properties.ExpiresAt)
}

func TestPasswordSignIn_WritesStoreThenSessionThenNotification(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))

	_, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"store:reset",
		"store:record_login",
		"transport:signin:" + signin.BackOfficeSchemes.Primary,
		"notify:" + string(signin.EventLoginSuccess),
	}, h.trace.all())
}

func TestPasswordSignIn_LockoutProgression(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))

	for i := 1; i <= 2; i++ {
		outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "wrong", false, true)
		require.NoError(t, err)
		assert.Equal(t, signin.OutcomeFailed, outcome)
		assert.Equal(t, i, user.AccessFailedCount)
		assert.Nil(t, user.LockoutEnd)
	}

	outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "wrong", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeLockedOut, outcome)
	assert.Equal(t, signin.RejectionMessage, outcome.RejectionMessage())
	require.NotNil(t, user.LockoutEnd)
	assert.Equal(t, h.clock.Now().Add(testOptions().LockoutDuration), *user.LockoutEnd)

	locked := h.sink.ofType(signin.EventAccountLocked)
	require.Len(t, locked, 1)
	assert.Equal(t, user.GetKey(), locked[0].AffectedUserID)
	assert.Len(t, h.sink.ofType(signin.EventLoginFailed), 2)

	// correct password while locked
	outcome, err = h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeLockedOut, outcome)
	assert.Equal(t, 3, user.AccessFailedCount)
	assert.Empty(t, h.transport.Schemes())

	h.clock.Advance(testOptions().LockoutDuration + time.Second)

	outcome, err = h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeSuccess, outcome)
	assert.Equal(t, 0, user.AccessFailedCount)
}

func TestPasswordSignIn_FailureAfterExpiredLockoutRelocks(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))

	for i := 0; i < 3; i++ {
		_, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "wrong", false, true)
		require.NoError(t, err)
	}
	h.clock.Advance(testOptions().LockoutDuration + time.Second)

	outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "wrong", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeLockedOut, outcome)
	assert.Equal(t, 4, user.AccessFailedCount)
}

func TestPasswordSignIn_WithoutLockoutOnFailure(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))

	for i := 0; i < 5; i++ {
		outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "wrong", false, false)
		require.NoError(t, err)
		assert.Equal(t, signin.OutcomeFailed, outcome)
	}
	assert.Equal(t, 0, user.AccessFailedCount)
	assert.Nil(t, user.LockoutEnd)
}

func TestPasswordSignIn_UnapprovedUserIsLockedOut(t *testing.T) {
	h := newHarness(t)
	user := newBackOfficeUser(t, "pending", "pw")
	user.IsApproved = false
	h.store.add(user)

	outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "pending", "pw", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeLockedOut, outcome)
	assert.Equal(t, 0, user.AccessFailedCount)
}

func TestPasswordSignIn_StoreFailurePropagates(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))
	h.store.updateErr = errors.New("connection reset")

	_, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.Error(t, err)
	assert.Empty(t, h.transport.Schemes())
	assert.Empty(t, h.sink.all())
}

func TestPasswordSignIn_SinkFailureKeepsOutcome(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))
	h.sink.err = errors.New("audit store down")

	outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeSuccess, outcome)
}

func TestPasswordSignIn_PerformingUser(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))

	req := h.req
	req.PerformingUserID = "admin-1"
	_, err := h.coord.PasswordSignIn(h.ctx, req, "editor", "pw", false, true)
	require.NoError(t, err)

	events := h.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, "admin-1", events[0].PerformingUserID)
}

func TestPasswordSignIn_NoTransport(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))

	_, err := h.coord.PasswordSignIn(h.ctx, signin.Request{}, "editor", "pw", false, true)
	assert.ErrorIs(t, err, signin.ErrNoTransport)
}

func TestPasswordSignInUser_PanicsOnNilUser(t *testing.T) {
	h := newHarness(t)
	assert.Panics(t, func() {
		_, _ = h.coord.PasswordSignInUser(h.ctx, h.req, nil, "pw", false, true)
	})
}

func TestCheckPasswordSignIn(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))
	user.AccessFailedCount = 1

	outcome, err := h.coord.CheckPasswordSignIn(h.ctx, user, "wrong", true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeFailed, outcome)
	assert.Equal(t, 2, user.AccessFailedCount)

	outcome, err = h.coord.CheckPasswordSignIn(h.ctx, user, "pw", true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeSuccess, outcome)
	assert.Equal(t, 0, user.AccessFailedCount)

	assert.Empty(t, h.transport.Schemes(), "no session is issued")
	assert.Empty(t, h.sink.all(), "no notification is emitted")
}

func TestCheckPasswordSignIn_KeepsCounterWhenTwoFactorPending(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))
	user.TwoFactorEnabled = true
	user.AccessFailedCount = 1
	h.store.enableProvider(user, "sms")

	outcome, err := h.coord.CheckPasswordSignIn(h.ctx, user, "pw", true)
	require.NoError(t, err)
	assert.Equal(t, signin.OutcomeSuccess, outcome)
	assert.Equal(t, 1, user.AccessFailedCount)
}

func TestSignOut_Idempotent(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))

	_, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)
	h.sink.reset()

	h.coord.SignOut(h.ctx, h.req)
	h.coord.SignOut(h.ctx, h.req)

	assert.Empty(t, h.transport.Schemes())
	logouts := h.sink.ofType(signin.EventLogoutSuccess)
	require.Len(t, logouts, 1)
	assert.Equal(t, user.GetKey(), logouts[0].AffectedUserID)
	assert.Len(t, h.sink.all(), 1)

	assert.NotPanics(t, func() { h.coord.SignOut(h.ctx, signin.Request{}) })
}

func TestSignOut_KeepsRememberedClient(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))

	require.NoError(t, h.coord.RememberTwoFactorClient(h.ctx, h.req, user))
	h.coord.SignOut(h.ctx, h.req)

	assert.Equal(t, []string{signin.BackOfficeSchemes.TwoFactorRemember}, h.transport.Schemes())
}

func TestIsSignedIn(t *testing.T) {
	h := newHarness(t)

	primary := signin.NewPrincipal(signin.NewClaimsIdentity(signin.BackOfficeSchemes.Primary))
	pending := signin.NewPrincipal(signin.NewClaimsIdentity(signin.BackOfficeSchemes.TwoFactor))
	member := signin.NewPrincipal(signin.NewClaimsIdentity(signin.MemberSchemes.Primary))

	assert.True(t, h.coord.IsSignedIn(primary))
	assert.False(t, h.coord.IsSignedIn(pending))
	assert.False(t, h.coord.IsSignedIn(member))
	assert.Panics(t, func() { h.coord.IsSignedIn(nil) })
}

func TestValidatePrincipal(t *testing.T) {
	h := newHarness(t)
	user := h.store.add(newBackOfficeUser(t, "editor", "pw"))

	got, ok, err := h.coord.ValidatePrincipal(h.ctx, h.req)
	require.NoError(t, err)
	assert.False(t, ok, "no session")
	assert.Nil(t, got)

	_, err = h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)

	got, ok, err = h.coord.ValidatePrincipal(h.ctx, h.req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, user, got)

	h.store.rotateStamp(user)

	got, ok, err = h.coord.ValidatePrincipal(h.ctx, h.req)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Nil(t, h.session(t, signin.BackOfficeSchemes.Primary))
}

func TestValidatePrincipal_ExpiredSession(t *testing.T) {
	h := newHarness(t)
	h.store.add(newBackOfficeUser(t, "editor", "pw"))

	_, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
	require.NoError(t, err)

	h.clock.Advance(testOptions().SessionTTL + time.Second)

	_, ok, err := h.coord.ValidatePrincipal(h.ctx, h.req)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimsDecorator(t *testing.T) {
	t.Run("adds claims", func(t *testing.T) {
		h := newHarness(t, signin.WithClaimsDecorator(signin.ClaimsDecoratorFunc(
			func(_ context.Context, user signin.UserIdentity, identity *signin.ClaimsIdentity) error {
				identity.AddClaim(signin.Claim{Type: "tenant", Value: "acme"})
				return nil
			},
		)))
		h.store.add(newBackOfficeUser(t, "editor", "pw"))

		outcome, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
		require.NoError(t, err)
		require.Equal(t, signin.OutcomeSuccess, outcome)
		assert.Equal(t, "acme", h.session(t, signin.BackOfficeSchemes.Primary).Principal.FindFirstValue("tenant"))
	})

	t.Run("rejects protected claim changes", func(t *testing.T) {
		h := newHarness(t, signin.WithClaimsDecorator(signin.ClaimsDecoratorFunc(
			func(_ context.Context, _ signin.UserIdentity, identity *signin.ClaimsIdentity) error {
				identity.AddClaim(signin.Claim{Type: signin.ClaimAMR, Value: signin.AMRMultiFactor})
				return nil
			},
		)))
		h.store.add(newBackOfficeUser(t, "editor", "pw"))

		_, err := h.coord.PasswordSignIn(h.ctx, h.req, "editor", "pw", false, true)
		assert.ErrorIs(t, err, signin.ErrProtectedClaimMutation)
		assert.Nil(t, h.session(t, signin.BackOfficeSchemes.Primary))
	})
}
