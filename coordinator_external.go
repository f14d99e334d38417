package signin

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ExternalLoginInfo describes a login completed at an external provider.
type ExternalLoginInfo struct {
	LoginProvider       string
	ProviderKey         string
	ProviderDisplayName string
	Principal           *Principal
}

// StoreExternalLogin keeps info under the external scheme until the
// callback resolves it. xsrf, when set, must be presented on retrieval.
func (c *Coordinator[U]) StoreExternalLogin(ctx context.Context, req Request, info ExternalLoginInfo, xsrf string) error {
	if strings.TrimSpace(info.LoginProvider) == "" || strings.TrimSpace(info.ProviderKey) == "" {
		return goerrors.New("external login requires provider and key", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	tr, err := req.transport()
	if err != nil {
		return err
	}

	principal := info.Principal
	if principal == nil {
		principal = NewPrincipal(NewClaimsIdentity(c.schemes.External,
			Claim{Type: ClaimNameIdentifier, Value: info.ProviderKey},
		))
	}

	now := c.now()
	props := SessionProperties{
		IssuedAt:  now,
		ExpiresAt: now.Add(c.cfg.GetExternalTTL()),
	}
	props.SetItem(ItemLoginProvider, info.LoginProvider)
	props.SetItem(ItemProviderKey, info.ProviderKey)
	if info.ProviderDisplayName != "" {
		props.SetItem(ItemProviderDisplayName, info.ProviderDisplayName)
	}
	if xsrf != "" {
		props.SetItem(ItemXsrf, xsrf)
	}

	if err := tr.SignIn(ctx, c.schemes.External, principal, props); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write external session")
	}
	return nil
}

// GetExternalLoginInfo reads the pending external login. It returns nil
// when none is present or the xsrf marker does not match.
func (c *Coordinator[U]) GetExternalLoginInfo(ctx context.Context, req Request, expectedXsrf string) (*ExternalLoginInfo, error) {
	tr, err := req.transport()
	if err != nil {
		return nil, err
	}

	res, err := tr.Authenticate(ctx, c.schemes.External)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read external session")
	}
	if !res.Succeeded() {
		return nil, nil
	}

	props := res.Properties
	if expectedXsrf != "" && props.Item(ItemXsrf) != expectedXsrf {
		c.logger.Warn("external login xsrf marker mismatch")
		return nil, nil
	}

	provider := props.Item(ItemLoginProvider)
	key := props.Item(ItemProviderKey)
	if provider == "" || key == "" {
		return nil, nil
	}

	return &ExternalLoginInfo{
		LoginProvider:       provider,
		ProviderKey:         key,
		ProviderDisplayName: props.Item(ItemProviderDisplayName),
		Principal:           res.Principal,
	}, nil
}

// ExternalLoginSignIn signs in the user linked to info. Logins that are
// not linked to a user fail; accounts are never linked automatically.
func (c *Coordinator[U]) ExternalLoginSignIn(ctx context.Context, req Request, info *ExternalLoginInfo, isPersistent, bypassTwoFactor bool) (Outcome, error) {
	if info == nil {
		panic("signin: ExternalLoginSignIn called with nil login info")
	}

	logins, ok := c.store.(ExternalLoginStore[U])
	if !ok {
		return OutcomeFailed, ErrNotSupported
	}

	user, err := logins.FindByLogin(ctx, info.LoginProvider, info.ProviderKey)
	if err != nil {
		if !IsNotFound(err) {
			return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up external login")
		}
		c.logger.Info("no user linked to %s login %s", info.LoginProvider, info.ProviderKey)
		var zero U
		return c.handleSignIn(ctx, req, zero, "", OutcomeFailed)
	}

	locked, err := c.store.IsLockedOut(ctx, user)
	if err != nil {
		return OutcomeFailed, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read lockout state")
	}
	if locked {
		return c.handleSignIn(ctx, req, user, user.GetUserName(), OutcomeLockedOut)
	}

	outcome, err := c.signInOrTwoFactor(ctx, req, user, isPersistent, info.LoginProvider, bypassTwoFactor)
	if err != nil {
		return OutcomeFailed, err
	}
	return c.handleSignIn(ctx, req, user, user.GetUserName(), outcome)
}
