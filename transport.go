package signin

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// ItemLoginProvider holds the external provider of an external session.
	ItemLoginProvider = "login_provider"
	// ItemProviderKey holds the user key at the external provider.
	ItemProviderKey = "provider_key"
	// ItemProviderDisplayName holds the display name of the external provider.
	ItemProviderDisplayName = "provider_display_name"
	// ItemXsrf holds the anti forgery marker of an external session.
	ItemXsrf = "xsrf"
)

// SessionProperties describes how a scheme session is persisted.
type SessionProperties struct {
	IsPersistent bool
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Items        map[string]string
}

// Item returns the named item or "".
func (p SessionProperties) Item(key string) string {
	if p.Items == nil {
		return ""
	}
	return p.Items[key]
}

// SetItem stores a named item.
func (p *SessionProperties) SetItem(key, value string) {
	if p.Items == nil {
		p.Items = map[string]string{}
	}
	p.Items[key] = value
}

// AuthenticateResult is a scheme session read back from a transport.
type AuthenticateResult struct {
	ID         string
	Scheme     string
	Principal  *Principal
	Properties SessionProperties
}

// Succeeded reports whether a principal was found.
func (r *AuthenticateResult) Succeeded() bool {
	return r != nil && r.Principal != nil
}

// SessionTransport stores one session per scheme for the current request.
// Authenticate returns a nil result when the scheme has no valid session.
type SessionTransport interface {
	SignIn(ctx context.Context, scheme string, principal *Principal, props SessionProperties) error
	SignOut(ctx context.Context, scheme string) error
	Authenticate(ctx context.Context, scheme string) (*AuthenticateResult, error)
}

// Request carries the per call collaborators of a sign-in operation.
type Request struct {
	Transport        SessionTransport
	IPAddress        string
	PerformingUserID string
}

func (r Request) transport() (SessionTransport, error) {
	if r.Transport == nil {
		return nil, ErrNoTransport
	}
	return r.Transport, nil
}

// CookieOptions controls the attributes of scheme cookies.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite string
}

// CookieOptionsFromConfig reads cookie attributes from cfg.
func CookieOptionsFromConfig(cfg Config) CookieOptions {
	return CookieOptions{
		Path:     cfg.GetCookiePath(),
		Domain:   cfg.GetCookieDomain(),
		Secure:   cfg.GetCookieSecure(),
		SameSite: cfg.GetCookieSameSite(),
	}
}

// CookieSpec is a framework neutral cookie write. A zero Expires makes a
// session cookie.
type CookieSpec struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  time.Time
	HTTPOnly bool
	Secure   bool
	SameSite string
}

// CookieJar reads and writes cookies on the current HTTP exchange.
type CookieJar interface {
	Get(name string) string
	Set(cookie CookieSpec)
}

// CookieTransport stores every scheme session as a signed token in a
// cookie named after the scheme.
type CookieTransport struct {
	jar     CookieJar
	tokens  *TokenService
	options CookieOptions
	logger  Logger
	now     func() time.Time
}

// NewCookieTransport returns a transport bound to one request's jar.
func NewCookieTransport(jar CookieJar, tokens *TokenService, options CookieOptions) *CookieTransport {
	if options.Path == "" {
		options.Path = "/"
	}
	if options.SameSite == "" {
		options.SameSite = "Lax"
	}
	return &CookieTransport{
		jar:     jar,
		tokens:  tokens,
		options: options,
		logger:  defLogger{},
		now:     time.Now,
	}
}

// WithLogger sets the logger used for rejected cookies.
func (t *CookieTransport) WithLogger(logger Logger) *CookieTransport {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithClock overrides the clock used for cookie deletion.
func (t *CookieTransport) WithClock(now func() time.Time) *CookieTransport {
	if now != nil {
		t.now = now
	}
	return t
}

// CookieName returns the cookie name used for scheme.
func CookieName(scheme string) string {
	return "signin." + scheme
}

func (t *CookieTransport) SignIn(ctx context.Context, scheme string, principal *Principal, props SessionProperties) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := t.tokens.Sign(scheme, principal, props)
	if err != nil {
		return err
	}

	cookie := t.cookie(scheme, value)
	if props.IsPersistent {
		cookie.Expires = props.ExpiresAt
	}
	t.jar.Set(cookie)
	return nil
}

func (t *CookieTransport) SignOut(ctx context.Context, scheme string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cookie := t.cookie(scheme, "")
	cookie.Expires = t.now().Add(-time.Hour * (24 * 365))
	t.jar.Set(cookie)
	return nil
}

func (t *CookieTransport) Authenticate(ctx context.Context, scheme string) (*AuthenticateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value := t.jar.Get(CookieName(scheme))
	if value == "" {
		return nil, nil
	}

	result, err := t.tokens.Validate(scheme, value)
	if err != nil {
		t.logger.Debug("rejected %s cookie: %v", scheme, err)
		return nil, nil
	}
	return result, nil
}

func (t *CookieTransport) cookie(scheme, value string) CookieSpec {
	return CookieSpec{
		Name:     CookieName(scheme),
		Value:    value,
		Path:     t.options.Path,
		Domain:   t.options.Domain,
		HTTPOnly: true,
		Secure:   t.options.Secure,
		SameSite: t.options.SameSite,
	}
}

// MemoryTransport keeps scheme sessions in memory. It is safe for
// concurrent use and useful for non HTTP callers and tests.
type MemoryTransport struct {
	mu       sync.RWMutex
	sessions map[string]*AuthenticateResult
	now      func() time.Time
}

// NewMemoryTransport returns an empty transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		sessions: map[string]*AuthenticateResult{},
		now:      time.Now,
	}
}

// WithClock overrides the clock used to expire sessions.
func (m *MemoryTransport) WithClock(now func() time.Time) *MemoryTransport {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MemoryTransport) SignIn(ctx context.Context, scheme string, principal *Principal, props SessionProperties) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if principal == nil {
		return errors.New("principal must not be nil", errors.CategoryInternal)
	}
	if props.IssuedAt.IsZero() {
		props.IssuedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[scheme] = &AuthenticateResult{
		ID:         uuid.NewString(),
		Scheme:     scheme,
		Principal:  principal,
		Properties: props,
	}
	return nil
}

func (m *MemoryTransport) SignOut(ctx context.Context, scheme string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, scheme)
	return nil
}

func (m *MemoryTransport) Authenticate(ctx context.Context, scheme string) (*AuthenticateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result, ok := m.sessions[scheme]
	if !ok {
		return nil, nil
	}
	if !result.Properties.ExpiresAt.IsZero() && !m.now().Before(result.Properties.ExpiresAt) {
		return nil, nil
	}
	return result, nil
}

// Schemes returns the schemes that currently hold a session.
func (m *MemoryTransport) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.sessions))
	for scheme := range m.sessions {
		out = append(out, scheme)
	}
	return out
}
