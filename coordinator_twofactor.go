package signin

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type twoFactorInfo[U UserIdentity] struct {
	user          U
	loginProvider string
	challengeID   string
	expiresAt     time.Time
}

// TwoFactorSignIn completes a pending two-factor challenge with code from
// the named provider.
func (c *Coordinator[U]) TwoFactorSignIn(ctx context.Context, req Request, provider, code string, isPersistent, rememberClient bool) (Outcome, error) {
	tr, err := req.transport()
	if err != nil {
		return OutcomeFailed, err
	}

	info, err := c.retrieveTwoFactorInfo(ctx, tr)
	if err != nil {
		return OutcomeFailed, err
	}
	if info == nil {
		var zero U
		return c.handleSignIn(ctx, req, zero, "", OutcomeFailed)
	}
	user := info.user

	used, err := c.challengeUsed(ctx, info)
	if err != nil {
		return OutcomeFailed, err
	}
	if used {
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeFailed)
	}

	p, ok := c.providers[provider]
	if !ok {
		c.logger.Warn("two-factor provider %q is not registered", provider)
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeFailed)
	}

	locked, err := c.store.IsLockedOut(ctx, user)
	if err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read lockout state")
	}
	if locked {
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeLockedOut)
	}

	valid, err := p.Verify(ctx, user, code)
	if err != nil {
		return OutcomeFailed, err
	}
	if !valid {
		// a wrong code counts against the shared failed-attempt counter
		if _, err := c.accessFailed(ctx, user); err != nil {
			return OutcomeFailed, err
		}
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeFailed)
	}

	outcome, err := c.completeTwoFactor(ctx, tr, info, isPersistent, rememberClient)
	if err != nil {
		return OutcomeFailed, err
	}
	return c.handleSignIn(ctx, req, user, user.GetUserName(), outcome)
}

// TwoFactorRecoveryCodeSignIn completes a pending challenge by redeeming a
// single use recovery code. Wrong codes do not count against lockout, and
// codes are never redeemed for a used challenge or a locked out account.
func (c *Coordinator[U]) TwoFactorRecoveryCodeSignIn(ctx context.Context, req Request, code string) (Outcome, error) {
	codes, ok := c.store.(RecoveryCodeStore[U])
	if !ok {
		return OutcomeFailed, ErrNotSupported
	}

	tr, err := req.transport()
	if err != nil {
		return OutcomeFailed, err
	}

	info, err := c.retrieveTwoFactorInfo(ctx, tr)
	if err != nil {
		return OutcomeFailed, err
	}
	if info == nil {
		var zero U
		return c.handleSignIn(ctx, req, zero, "", OutcomeFailed)
	}
	user := info.user

	used, err := c.challengeUsed(ctx, info)
	if err != nil {
		return OutcomeFailed, err
	}
	if used {
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeFailed)
	}

	locked, err := c.store.IsLockedOut(ctx, user)
	if err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read lockout state")
	}
	if locked {
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeLockedOut)
	}

	redeemed, err := codes.RedeemRecoveryCode(ctx, user, code)
	if err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to redeem recovery code")
	}
	if !redeemed {
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeFailed)
	}

	outcome, err := c.completeTwoFactor(ctx, tr, info, false, false)
	if err != nil {
		return OutcomeFailed, err
	}
	return c.handleSignIn(ctx, req, user, user.GetUserName(), outcome)
}

// completeTwoFactor consumes the challenge, records the success and issues
// the primary session with amr=mfa.
func (c *Coordinator[U]) completeTwoFactor(ctx context.Context, tr SessionTransport, info *twoFactorInfo[U], isPersistent, rememberClient bool) (Outcome, error) {
	user := info.user

	if info.challengeID != "" {
		fresh, err := c.ledger.Consume(ctx, info.challengeID, info.expiresAt)
		if err != nil {
			return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume two-factor challenge")
		}
		if !fresh {
			c.logger.Warn("two-factor challenge %s for user %s was already used", info.challengeID, user.GetUserName())
			return OutcomeFailed, nil
		}
	}

	if err := c.recordSuccess(ctx, user); err != nil {
		return OutcomeFailed, err
	}

	if rememberClient {
		if err := c.rememberClient(ctx, tr, user); err != nil {
			return OutcomeFailed, err
		}
	}

	claims := []Claim{{Type: ClaimAMR, Value: AMRMultiFactor}}
	if info.loginProvider != "" {
		if err := tr.SignOut(ctx, c.schemes.External); err != nil {
			return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear external session")
		}
		claims = append(claims, Claim{Type: ClaimAuthenticationMethod, Value: info.loginProvider})
	}

	if err := tr.SignOut(ctx, c.schemes.TwoFactor); err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear two-factor session")
	}

	if err := c.signInWithClaims(ctx, tr, user, isPersistent, claims...); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeSuccess, nil
}

// GetTwoFactorAuthenticationUser returns the user of the pending challenge.
func (c *Coordinator[U]) GetTwoFactorAuthenticationUser(ctx context.Context, req Request) (U, error) {
	var zero U

	tr, err := req.transport()
	if err != nil {
		return zero, err
	}

	info, err := c.retrieveTwoFactorInfo(ctx, tr)
	if err != nil {
		return zero, err
	}
	if info == nil {
		return zero, ErrUserNotFound
	}
	return info.user, nil
}

// GetValidTwoFactorProviders lists the registered providers enabled for user.
func (c *Coordinator[U]) GetValidTwoFactorProviders(ctx context.Context, user U) ([]string, error) {
	mustUser(user)
	return c.validTwoFactorProviders(ctx, user)
}

// SendTwoFactorCode asks provider to generate and deliver a code to the
// user of the pending challenge.
func (c *Coordinator[U]) SendTwoFactorCode(ctx context.Context, req Request, provider string) error {
	user, err := c.GetTwoFactorAuthenticationUser(ctx, req)
	if err != nil {
		return err
	}

	p, ok := c.providers[provider]
	if !ok {
		return annotate(ErrProviderNotFound, map[string]any{"provider": provider})
	}

	gen, ok := p.(TwoFactorCodeGenerator)
	if !ok {
		return ErrNotSupported
	}

	if err := gen.Generate(ctx, user); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send two-factor code")
	}
	return nil
}

// IsTwoFactorClientRemembered reports whether the request carries a
// remember-client token for user bound to the current security stamp.
func (c *Coordinator[U]) IsTwoFactorClientRemembered(ctx context.Context, req Request, user U) (bool, error) {
	mustUser(user)
	tr, err := req.transport()
	if err != nil {
		return false, err
	}
	return c.isClientRemembered(ctx, tr, user)
}

// RememberTwoFactorClient issues a remember-client token for user.
func (c *Coordinator[U]) RememberTwoFactorClient(ctx context.Context, req Request, user U) error {
	mustUser(user)
	tr, err := req.transport()
	if err != nil {
		return err
	}
	return c.rememberClient(ctx, tr, user)
}

// ForgetTwoFactorClient clears the remember-client token.
func (c *Coordinator[U]) ForgetTwoFactorClient(ctx context.Context, req Request) error {
	tr, err := req.transport()
	if err != nil {
		return err
	}
	if err := tr.SignOut(ctx, c.schemes.TwoFactorRemember); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear remember-client session")
	}
	return nil
}

// challengeUsed reports whether the pending challenge was already redeemed.
func (c *Coordinator[U]) challengeUsed(ctx context.Context, info *twoFactorInfo[U]) (bool, error) {
	if info.challengeID == "" {
		return false, nil
	}
	used, err := c.ledger.IsConsumed(ctx, info.challengeID)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read two-factor challenge")
	}
	if used {
		c.logger.Warn("two-factor challenge %s for user %s was already used", info.challengeID, info.user.GetUserName())
	}
	return used, nil
}

func (c *Coordinator[U]) storeTwoFactorInfo(ctx context.Context, tr SessionTransport, userID, loginProvider string) error {
	identity := NewClaimsIdentity(c.schemes.TwoFactor, Claim{Type: ClaimName, Value: userID})
	if loginProvider != "" {
		identity.AddClaim(Claim{Type: ClaimAuthenticationMethod, Value: loginProvider})
	}

	now := c.now()
	props := SessionProperties{
		IssuedAt:  now,
		ExpiresAt: now.Add(c.cfg.GetTwoFactorTTL()),
	}
	if err := tr.SignIn(ctx, c.schemes.TwoFactor, NewPrincipal(identity), props); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write two-factor session")
	}
	return nil
}

// retrieveTwoFactorInfo returns nil when there is no pending challenge or
// its user no longer resolves.
func (c *Coordinator[U]) retrieveTwoFactorInfo(ctx context.Context, tr SessionTransport) (*twoFactorInfo[U], error) {
	res, err := tr.Authenticate(ctx, c.schemes.TwoFactor)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read two-factor session")
	}
	if !res.Succeeded() {
		return nil, nil
	}

	userID := res.Principal.FindFirstValue(ClaimName)
	if userID == "" {
		return nil, nil
	}

	user, err := c.store.FindByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load two-factor user")
	}

	return &twoFactorInfo[U]{
		user:          user,
		loginProvider: res.Principal.FindFirstValue(ClaimAuthenticationMethod),
		challengeID:   res.ID,
		expiresAt:     res.Properties.ExpiresAt,
	}, nil
}

func (c *Coordinator[U]) rememberClient(ctx context.Context, tr SessionTransport, user U) error {
	stamp, err := c.store.GetSecurityStamp(ctx, user)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read security stamp")
	}

	identity := NewClaimsIdentity(c.schemes.TwoFactorRemember,
		Claim{Type: ClaimName, Value: user.GetKey()},
		Claim{Type: ClaimSecurityStamp, Value: stamp},
	)

	now := c.now()
	props := SessionProperties{
		IsPersistent: true,
		IssuedAt:     now,
		ExpiresAt:    now.Add(c.cfg.GetRememberClientTTL()),
	}
	if err := tr.SignIn(ctx, c.schemes.TwoFactorRemember, NewPrincipal(identity), props); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write remember-client session")
	}
	return nil
}

func (c *Coordinator[U]) isClientRemembered(ctx context.Context, tr SessionTransport, user U) (bool, error) {
	res, err := tr.Authenticate(ctx, c.schemes.TwoFactorRemember)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read remember-client session")
	}
	if !res.Succeeded() || res.Principal.FindFirstValue(ClaimName) != user.GetKey() {
		return false, nil
	}

	stamp, err := c.store.GetSecurityStamp(ctx, user)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read security stamp")
	}

	claim, ok := res.Principal.FindFirst(ClaimSecurityStamp)
	return ok && claim.Value == stamp, nil
}
