package signin

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SchemeClaims is the payload of a scheme token. The audience is always the
// scheme name the token was minted for.
type SchemeClaims struct {
	jwt.RegisteredClaims
	Persistent bool              `json:"persistent,omitempty"`
	Identities []*ClaimsIdentity `json:"identities"`
	Items      map[string]string `json:"items,omitempty"`
}

// TokenService signs and validates scheme tokens with HS256.
type TokenService struct {
	signingKey []byte
	issuer     string
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the clock used for issue time and expiry checks.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Sign mints a token for scheme carrying principal and props.
// A zero props.ExpiresAt is rejected: scheme tokens always expire.
func (ts *TokenService) Sign(scheme string, principal *Principal, props SessionProperties) (string, error) {
	if principal == nil {
		return "", errors.New("principal must not be nil", errors.CategoryInternal)
	}
	if props.ExpiresAt.IsZero() {
		return "", errors.New("scheme token requires an expiration", errors.CategoryInternal).
			WithMetadata(map[string]any{"scheme": scheme})
	}

	issuedAt := props.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = ts.now()
	}

	claims := &SchemeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Audience:  jwt.ClaimStrings{scheme},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(props.ExpiresAt),
		},
		Persistent: props.IsPersistent,
		Identities: principal.Identities,
		Items:      props.Items,
	}
	if identity := principal.Identity(); identity != nil {
		if c, ok := identity.FindFirst(ClaimNameIdentifier); ok {
			claims.Subject = c.Value
		} else if c, ok := identity.FindFirst(ClaimName); ok {
			claims.Subject = c.Value
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign scheme token")
	}
	return signed, nil
}

// Validate parses a token minted for scheme and returns the session it
// carries. Tokens minted for any other scheme fail audience validation.
func (ts *TokenService) Validate(scheme, tokenString string) (*AuthenticateResult, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithAudience(scheme),
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SchemeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, annotate(ErrInvalidToken, map[string]any{
			"scheme": scheme,
			"reason": err.Error(),
		})
	}

	claims, ok := token.Claims.(*SchemeClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	result := &AuthenticateResult{
		ID:        claims.ID,
		Scheme:    scheme,
		Principal: NewPrincipal(claims.Identities...),
		Properties: SessionProperties{
			IsPersistent: claims.Persistent,
			Items:        claims.Items,
		},
	}
	if claims.IssuedAt != nil {
		result.Properties.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.Properties.ExpiresAt = claims.ExpiresAt.Time
	}
	return result, nil
}
