package signin

import "context"

// NewBackOfficeSignInManager returns a coordinator for back-office users
// under the back-office schemes.
func NewBackOfficeSignInManager(store UserRecordStore[*BackOfficeUser], verifier CredentialVerifier[*BackOfficeUser], cfg Config, opts ...Option) (*Coordinator[*BackOfficeUser], error) {
	return NewCoordinator(store, verifier, BackOfficeSchemes, cfg, opts...)
}

// MemberSignInManager signs in members. Two-factor and external logins
// are not available for members and report ErrNotSupported.
type MemberSignInManager struct {
	*Coordinator[*MemberUser]
}

// NewMemberSignInManager returns a manager under the member schemes.
// Two-factor providers passed in opts are ignored.
func NewMemberSignInManager(store UserRecordStore[*MemberUser], verifier CredentialVerifier[*MemberUser], cfg Config, opts ...Option) (*MemberSignInManager, error) {
	c, err := NewCoordinator(store, verifier, MemberSchemes, cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.providers = nil
	return &MemberSignInManager{Coordinator: c}, nil
}

// SignInOrTwoFactor issues a member session. Members have no external
// logins, so a non-empty externalProvider is rejected.
func (m *MemberSignInManager) SignInOrTwoFactor(ctx context.Context, req Request, user *MemberUser, isPersistent bool, externalProvider string, bypassTwoFactor bool) (Outcome, error) {
	if externalProvider != "" {
		return OutcomeFailed, ErrNotSupported
	}
	return m.Coordinator.SignInOrTwoFactor(ctx, req, user, isPersistent, "", bypassTwoFactor)
}

func (m *MemberSignInManager) TwoFactorSignIn(context.Context, Request, string, string, bool, bool) (Outcome, error) {
	return OutcomeFailed, ErrNotSupported
}

func (m *MemberSignInManager) TwoFactorRecoveryCodeSignIn(context.Context, Request, string) (Outcome, error) {
	return OutcomeFailed, ErrNotSupported
}

func (m *MemberSignInManager) GetTwoFactorAuthenticationUser(context.Context, Request) (*MemberUser, error) {
	return nil, ErrNotSupported
}

func (m *MemberSignInManager) GetValidTwoFactorProviders(context.Context, *MemberUser) ([]string, error) {
	return nil, ErrNotSupported
}

func (m *MemberSignInManager) SendTwoFactorCode(context.Context, Request, string) error {
	return ErrNotSupported
}

func (m *MemberSignInManager) IsTwoFactorClientRemembered(context.Context, Request, *MemberUser) (bool, error) {
	return false, ErrNotSupported
}

func (m *MemberSignInManager) RememberTwoFactorClient(context.Context, Request, *MemberUser) error {
	return ErrNotSupported
}

func (m *MemberSignInManager) ForgetTwoFactorClient(context.Context, Request) error {
	return ErrNotSupported
}

func (m *MemberSignInManager) StoreExternalLogin(context.Context, Request, ExternalLoginInfo, string) error {
	return ErrNotSupported
}

func (m *MemberSignInManager) GetExternalLoginInfo(context.Context, Request, string) (*ExternalLoginInfo, error) {
	return nil, ErrNotSupported
}

func (m *MemberSignInManager) ExternalLoginSignIn(context.Context, Request, *ExternalLoginInfo, bool, bool) (Outcome, error) {
	return OutcomeFailed, ErrNotSupported
}
