package signin

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Option configures a Coordinator.
type Option func(*coordinatorOptions)

type coordinatorOptions struct {
	sink      NotificationSink
	logger    Logger
	now       func() time.Time
	providers map[string]TwoFactorProvider
	ledger    ChallengeLedger
	decorator ClaimsDecorator
	equalizer TimingEqualizer
}

// WithNotificationSink sets the sink that receives audit notifications.
func WithNotificationSink(sink NotificationSink) Option {
	return func(o *coordinatorOptions) {
		o.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(o *coordinatorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *coordinatorOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTwoFactorProvider registers a named two-factor provider.
func WithTwoFactorProvider(name string, provider TwoFactorProvider) Option {
	return func(o *coordinatorOptions) {
		name = strings.TrimSpace(name)
		if name == "" || provider == nil {
			return
		}
		if o.providers == nil {
			o.providers = map[string]TwoFactorProvider{}
		}
		o.providers[name] = provider
	}
}

// WithChallengeLedger sets the ledger used to consume two-factor challenges.
func WithChallengeLedger(ledger ChallengeLedger) Option {
	return func(o *coordinatorOptions) {
		if ledger != nil {
			o.ledger = ledger
		}
	}
}

// WithClaimsDecorator sets a decorator that may append claims to new sessions.
func WithClaimsDecorator(decorator ClaimsDecorator) Option {
	return func(o *coordinatorOptions) {
		o.decorator = decorator
	}
}

// WithTimingEqualizer sets the work done when a user name does not resolve.
func WithTimingEqualizer(equalizer TimingEqualizer) Option {
	return func(o *coordinatorOptions) {
		o.equalizer = equalizer
	}
}

// Coordinator drives password, two-factor and session issuance for one
// user type under its own set of scheme names.
type Coordinator[U UserIdentity] struct {
	store     UserRecordStore[U]
	verifier  CredentialVerifier[U]
	schemes   SchemeSet
	cfg       Config
	lockout   LockoutOptions
	sink      NotificationSink
	logger    Logger
	now       func() time.Time
	providers map[string]TwoFactorProvider
	ledger    ChallengeLedger
	decorator ClaimsDecorator
	equalizer TimingEqualizer
}

// NewCoordinator returns a coordinator for user type U.
func NewCoordinator[U UserIdentity](
	store UserRecordStore[U],
	verifier CredentialVerifier[U],
	schemes SchemeSet,
	cfg Config,
	opts ...Option,
) (*Coordinator[U], error) {
	if store == nil || verifier == nil || cfg == nil {
		return nil, goerrors.New("store, verifier and config are required", goerrors.CategoryInternal)
	}
	if err := schemes.Validate(); err != nil {
		return nil, err
	}

	o := &coordinatorOptions{
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.ledger == nil {
		o.ledger = NewMemoryLedger(o.now)
	}
	if o.equalizer == nil {
		if eq, ok := verifier.(TimingEqualizer); ok {
			o.equalizer = eq
		}
	}

	return &Coordinator[U]{
		store:     store,
		verifier:  verifier,
		schemes:   schemes,
		cfg:       cfg,
		lockout:   cfg.GetLockoutOptions(),
		sink:      normalizeNotificationSink(o.sink),
		logger:    o.logger,
		now:       o.now,
		providers: o.providers,
		ledger:    o.ledger,
		decorator: normalizeClaimsDecorator(o.decorator),
		equalizer: o.equalizer,
	}, nil
}

// Schemes returns the scheme names this coordinator owns.
func (c *Coordinator[U]) Schemes() SchemeSet {
	return c.schemes
}

// PasswordSignIn resolves username and attempts a password sign-in.
// An unknown user name is reported exactly like a wrong password.
func (c *Coordinator[U]) PasswordSignIn(ctx context.Context, req Request, username, password string, isPersistent, lockoutOnFailure bool) (Outcome, error) {
	user, err := c.store.FindByName(ctx, username)
	if err != nil {
		if !IsNotFound(err) {
			return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up user")
		}
		if c.equalizer != nil {
			c.equalizer.Equalize(ctx, password)
		}
		var zero U
		return c.handleSignIn(ctx, req, zero, username, OutcomeFailed)
	}

	return c.PasswordSignInUser(ctx, req, user, password, isPersistent, lockoutOnFailure)
}

// PasswordSignInUser attempts a password sign-in for a resolved user.
func (c *Coordinator[U]) PasswordSignInUser(ctx context.Context, req Request, user U, password string, isPersistent, lockoutOnFailure bool) (Outcome, error) {
	mustUser(user)

	outcome, err := c.checkPassword(ctx, user, password, lockoutOnFailure)
	if err != nil {
		return OutcomeFailed, err
	}

	if outcome == OutcomeSuccess {
		outcome, err = c.signInOrTwoFactor(ctx, req, user, isPersistent, "", false)
		if err != nil {
			return OutcomeFailed, err
		}
	}

	return c.handleSignIn(ctx, req, user, user.GetUserName(), outcome)
}

// CheckPasswordSignIn verifies the password and lockout state without
// issuing a session.
func (c *Coordinator[U]) CheckPasswordSignIn(ctx context.Context, user U, password string, lockoutOnFailure bool) (Outcome, error) {
	mustUser(user)

	outcome, err := c.checkPassword(ctx, user, password, lockoutOnFailure)
	if err != nil || outcome != OutcomeSuccess {
		return outcome, err
	}

	required, err := c.isTwoFactorEnabled(ctx, user)
	if err != nil {
		return OutcomeFailed, err
	}
	if !required {
		if err := c.store.ResetAccessFailedCount(ctx, user); err != nil {
			return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset access failed count")
		}
	}
	return OutcomeSuccess, nil
}

// SignInOrTwoFactor issues either a two-factor challenge or a full session
// for a user whose first factor already succeeded.
func (c *Coordinator[U]) SignInOrTwoFactor(ctx context.Context, req Request, user U, isPersistent bool, externalProvider string, bypassTwoFactor bool) (Outcome, error) {
	mustUser(user)

	outcome, err := c.signInOrTwoFactor(ctx, req, user, isPersistent, externalProvider, bypassTwoFactor)
	if err != nil {
		return OutcomeFailed, err
	}
	return c.handleSignIn(ctx, req, user, user.GetUserName(), outcome)
}

// SignOut clears the primary, external and pending two-factor sessions.
// It is idempotent and never fails: transport errors are logged.
func (c *Coordinator[U]) SignOut(ctx context.Context, req Request) {
	tr, err := req.transport()
	if err != nil {
		c.logger.Warn("sign out skipped: %v", err)
		return
	}

	var userID, userName string
	if res, err := tr.Authenticate(ctx, c.schemes.Primary); err != nil {
		c.logger.Warn("sign out could not read %s session: %v", c.schemes.Primary, err)
	} else if res.Succeeded() {
		userID = res.Principal.FindFirstValue(ClaimNameIdentifier)
		userName = res.Principal.FindFirstValue(ClaimName)
	}

	for _, scheme := range []string{c.schemes.Primary, c.schemes.External, c.schemes.TwoFactor} {
		if err := tr.SignOut(ctx, scheme); err != nil {
			c.logger.Warn("sign out of %s failed: %v", scheme, err)
		}
	}

	if userID != "" {
		c.logger.Info("User: %s logged out from IP address %s", userName, req.IPAddress)
		c.notify(ctx, req, EventLogoutSuccess, userID, userName)
	}
}

// IsSignedIn reports whether principal carries an identity issued under
// the primary scheme. It panics on a nil principal.
func (c *Coordinator[U]) IsSignedIn(principal *Principal) bool {
	if principal == nil {
		panic("signin: IsSignedIn called with nil principal")
	}
	return principal.HasAuthenticationType(c.schemes.Primary)
}

// RefreshSignIn re-issues the primary session for user, keeping the
// authentication method claims and persistence of the current session.
func (c *Coordinator[U]) RefreshSignIn(ctx context.Context, req Request, user U) error {
	mustUser(user)

	tr, err := req.transport()
	if err != nil {
		return err
	}

	res, err := tr.Authenticate(ctx, c.schemes.Primary)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read primary session")
	}

	var preserved []Claim
	isPersistent := false
	if res.Succeeded() && res.Principal.FindFirstValue(ClaimNameIdentifier) == user.GetKey() {
		isPersistent = res.Properties.IsPersistent
		if claim, ok := res.Principal.FindFirst(ClaimAuthenticationMethod); ok {
			preserved = append(preserved, claim)
		}
		if claim, ok := res.Principal.FindFirst(ClaimAMR); ok {
			preserved = append(preserved, claim)
		}
	}

	return c.signInWithClaims(ctx, tr, user, isPersistent, preserved...)
}

// ValidatePrincipal checks the primary session against the stored
// security stamp. A stale session is signed out and reported invalid;
// a valid one is refreshed.
func (c *Coordinator[U]) ValidatePrincipal(ctx context.Context, req Request) (U, bool, error) {
	var zero U

	tr, err := req.transport()
	if err != nil {
		return zero, false, err
	}

	res, err := tr.Authenticate(ctx, c.schemes.Primary)
	if err != nil {
		return zero, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read primary session")
	}
	if !res.Succeeded() {
		return zero, false, nil
	}

	user, err := c.store.FindByID(ctx, res.Principal.FindFirstValue(ClaimNameIdentifier))
	if err != nil {
		if IsNotFound(err) {
			c.SignOut(ctx, req)
			return zero, false, nil
		}
		return zero, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session user")
	}

	stamp, err := c.store.GetSecurityStamp(ctx, user)
	if err != nil {
		return zero, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read security stamp")
	}
	if res.Principal.FindFirstValue(ClaimSecurityStamp) != stamp {
		c.logger.Info("security stamp changed for user %s, rejecting session", user.GetUserName())
		c.SignOut(ctx, req)
		return zero, false, nil
	}

	if err := c.RefreshSignIn(ctx, req, user); err != nil {
		return zero, false, err
	}
	return user, true, nil
}

func (c *Coordinator[U]) checkPassword(ctx context.Context, user U, password string, lockoutOnFailure bool) (Outcome, error) {
	locked, err := c.store.IsLockedOut(ctx, user)
	if err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read lockout state")
	}
	if locked {
		return OutcomeLockedOut, nil
	}

	ok, err := c.verifier.Verify(ctx, user, password)
	if err != nil {
		return OutcomeFailed, err
	}
	if ok {
		return OutcomeSuccess, nil
	}

	if lockoutOnFailure {
		return c.accessFailed(ctx, user)
	}
	return OutcomeFailed, nil
}

// accessFailed records a failed attempt and, when lockout is enabled,
// locks the account once the counter reaches the configured maximum.
func (c *Coordinator[U]) accessFailed(ctx context.Context, user U) (Outcome, error) {
	count, err := c.store.AccessFailed(ctx, user)
	if err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record failed access")
	}
	if !c.lockout.ReachedThreshold(count) {
		return OutcomeFailed, nil
	}

	end := c.lockout.LockoutEnd(c.now())
	if err := c.store.SetLockoutEnd(ctx, user, &end); err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set lockout end")
	}
	c.logger.Info("user %s locked out until %s after %d failed attempts", user.GetUserName(), end.Format(time.RFC3339), count)
	return OutcomeLockedOut, nil
}

func (c *Coordinator[U]) signInOrTwoFactor(ctx context.Context, req Request, user U, isPersistent bool, externalProvider string, bypassTwoFactor bool) (Outcome, error) {
	tr, err := req.transport()
	if err != nil {
		return OutcomeFailed, err
	}

	if !bypassTwoFactor {
		required, err := c.isTwoFactorEnabled(ctx, user)
		if err != nil {
			return OutcomeFailed, err
		}
		if required {
			remembered, err := c.isClientRemembered(ctx, tr, user)
			if err != nil {
				return OutcomeFailed, err
			}
			if !remembered {
				if err := c.storeTwoFactorInfo(ctx, tr, user.GetKey(), externalProvider); err != nil {
					return OutcomeFailed, err
				}
				return OutcomeTwoFactorRequired, nil
			}
		}
	}

	if err := c.recordSuccess(ctx, user); err != nil {
		return OutcomeFailed, err
	}

	if externalProvider != "" {
		if err := tr.SignOut(ctx, c.schemes.External); err != nil {
			return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear external session")
		}
		err = c.signInWithClaims(ctx, tr, user, isPersistent,
			Claim{Type: ClaimAMR, Value: externalProvider},
			Claim{Type: ClaimAuthenticationMethod, Value: externalProvider},
		)
	} else {
		err = c.signInWithClaims(ctx, tr, user, isPersistent, Claim{Type: ClaimAMR, Value: AMRPassword})
	}
	if err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSuccess, nil
}

// recordSuccess resets the failure counter and stamps the last login.
func (c *Coordinator[U]) recordSuccess(ctx context.Context, user U) error {
	if err := c.store.ResetAccessFailedCount(ctx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset access failed count")
	}
	if err := c.store.RecordLogin(ctx, user, c.now()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record last login")
	}
	return nil
}

func (c *Coordinator[U]) isTwoFactorEnabled(ctx context.Context, user U) (bool, error) {
	if len(c.providers) == 0 || !user.IsTwoFactorEnabled() {
		return false, nil
	}
	providers, err := c.validTwoFactorProviders(ctx, user)
	if err != nil {
		return false, err
	}
	return len(providers) > 0, nil
}

// validTwoFactorProviders returns the user's providers that are registered
// on this coordinator.
func (c *Coordinator[U]) validTwoFactorProviders(ctx context.Context, user U) ([]string, error) {
	names, err := c.store.GetTwoFactorProviders(ctx, user)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list two-factor providers")
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := c.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (c *Coordinator[U]) identityClaims(user U) *ClaimsIdentity {
	identity := NewClaimsIdentity(c.schemes.Primary,
		Claim{Type: ClaimNameIdentifier, Value: user.GetKey()},
		Claim{Type: ClaimName, Value: user.GetUserName()},
		Claim{Type: ClaimSecurityStamp, Value: user.GetSecurityStamp()},
	)
	for _, role := range user.GetRoles() {
		identity.AddClaim(Claim{Type: ClaimRole, Value: role})
	}
	return identity
}

func (c *Coordinator[U]) signInWithClaims(ctx context.Context, tr SessionTransport, user U, isPersistent bool, additional ...Claim) error {
	identity := c.identityClaims(user)
	for _, claim := range additional {
		identity.AddClaim(claim)
	}

	snap := captureProtectedClaims(identity)
	if err := c.decorator.Decorate(ctx, user, identity); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "claims decorator failed")
	}
	if err := snap.validate(identity); err != nil {
		return err
	}

	ttl := c.cfg.GetSessionTTL()
	if isPersistent {
		ttl = c.cfg.GetPersistentSessionTTL()
	}
	now := c.now()
	props := SessionProperties{
		IsPersistent: isPersistent,
		IssuedAt:     now,
		ExpiresAt:    now.Add(ttl),
	}

	if err := tr.SignIn(ctx, c.schemes.Primary, NewPrincipal(identity), props); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write primary session")
	}
	return nil
}

// handleSignIn logs the outcome and emits the matching notification once
// all store and transport writes are done.
func (c *Coordinator[U]) handleSignIn(ctx context.Context, req Request, user U, username string, outcome Outcome) (Outcome, error) {
	if strings.TrimSpace(username) == "" {
		username = UnknownUserName
	}

	var userID string
	if !isNil(user) {
		userID = user.GetKey()
	}

	if !outcome.Known() {
		c.logger.Error("unrecognized sign-in outcome %d for username %s, treating as failed", int(outcome), username)
		outcome = OutcomeFailed
	}

	switch outcome {
	case OutcomeSuccess:
		c.logger.Info("User: %s logged in from IP address %s", username, req.IPAddress)
		c.notify(ctx, req, EventLoginSuccess, userID, username)
	case OutcomeLockedOut:
		c.logger.Info("Login attempt failed for username %s from IP address %s, the user is locked", username, req.IPAddress)
		c.notify(ctx, req, EventAccountLocked, userID, username)
	case OutcomeTwoFactorRequired:
		c.logger.Info("Login attempt requires verification for username %s from IP address %s", username, req.IPAddress)
		c.notify(ctx, req, EventLoginRequiresVerification, userID, username)
	default:
		c.logger.Info("Login attempt failed for username %s from IP address %s", username, req.IPAddress)
		c.notify(ctx, req, EventLoginFailed, userID, username)
	}

	return outcome, nil
}

func (c *Coordinator[U]) notify(ctx context.Context, req Request, event EventType, userID, userName string) {
	performing := req.PerformingUserID
	if performing == "" {
		performing = userID
	}

	n := Notification{
		Type:             event,
		IPAddress:        req.IPAddress,
		PerformingUserID: performing,
		AffectedUserID:   userID,
		AffectedUserName: userName,
		Scheme:           c.schemes.Primary,
		OccurredAt:       c.now(),
	}
	emit(ctx, c.sink, c.logger, n)
}

func mustUser[U UserIdentity](user U) {
	if isNil(user) {
		panic(fmt.Sprintf("signin: nil %T user", user))
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
