package signin

import "context"

// ClaimsDecorator can append claims to a principal before a primary session
// is issued. Implementations must not remove or rewrite the identity claims
// (sub, name, security_stamp) or the authentication method claims.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, user UserIdentity, identity *ClaimsIdentity) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, user UserIdentity, identity *ClaimsIdentity) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, user UserIdentity, identity *ClaimsIdentity) error {
	if f == nil {
		return nil
	}
	return f(ctx, user, identity)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, UserIdentity, *ClaimsIdentity) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}

var protectedClaimTypes = map[string]struct{}{
	ClaimNameIdentifier:       {},
	ClaimName:                 {},
	ClaimSecurityStamp:        {},
	ClaimAMR:                  {},
	ClaimAuthenticationMethod: {},
}

type claimsSnapshot struct {
	protected []Claim
}

func captureProtectedClaims(identity *ClaimsIdentity) claimsSnapshot {
	snap := claimsSnapshot{}
	for _, c := range identity.Claims {
		if _, ok := protectedClaimTypes[c.Type]; ok {
			snap.protected = append(snap.protected, c)
		}
	}
	return snap
}

func (s claimsSnapshot) validate(identity *ClaimsIdentity) error {
	var current []Claim
	for _, c := range identity.Claims {
		if _, ok := protectedClaimTypes[c.Type]; ok {
			current = append(current, c)
		}
	}

	if len(current) != len(s.protected) {
		return ErrProtectedClaimMutation
	}
	for i := range current {
		if current[i] != s.protected[i] {
			return ErrProtectedClaimMutation
		}
	}
	return nil
}
