package signin_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	signin "github.com/goliatone/go-signin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// trace records the order of store writes, transport writes and
// notifications across fakes.
type trace struct {
	mu      sync.Mutex
	entries []string
}

func (t *trace) add(format string, args ...any) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, fmt.Sprintf(format, args...))
}

func (t *trace) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.entries...)
}

type memoryStore[U signin.UserIdentity] struct {
	mu        sync.Mutex
	users     map[string]U
	stamps    map[string]string
	providers map[string][]string
	logins    map[string]string
	recovery  map[string]map[string]bool
	now       func() time.Time
	trace     *trace
	updateErr error
}

func newMemoryStore[U signin.UserIdentity](now func() time.Time) *memoryStore[U] {
	return &memoryStore[U]{
		users:     map[string]U{},
		stamps:    map[string]string{},
		providers: map[string][]string{},
		logins:    map[string]string{},
		recovery:  map[string]map[string]bool{},
		now:       now,
	}
}

func (s *memoryStore[U]) add(user U) U {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.GetKey()] = user
	s.stamps[user.GetKey()] = user.GetSecurityStamp()
	return user
}

func (s *memoryStore[U]) enableProvider(user U, provider string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[user.GetKey()] = append(s.providers[user.GetKey()], provider)
}

func (s *memoryStore[U]) addLogin(user U, provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins[provider+"/"+key] = user.GetKey()
}

func (s *memoryStore[U]) addRecoveryCode(user U, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recovery[user.GetKey()] == nil {
		s.recovery[user.GetKey()] = map[string]bool{}
	}
	s.recovery[user.GetKey()][code] = false
}

// rotateStamp changes the stored stamp without touching the loaded user,
// the way another process would.
func (s *memoryStore[U]) rotateStamp(user U) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stamps[user.GetKey()] = signin.NewSecurityStamp()
}

func (s *memoryStore[U]) FindByName(_ context.Context, name string) (U, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	normalized := signin.NormalizeUserName(name)
	for _, u := range s.users {
		if u.GetNormalizedUserName() == normalized {
			return u, nil
		}
	}
	var zero U
	return zero, signin.ErrUserNotFound
}

func (s *memoryStore[U]) FindByID(_ context.Context, id string) (U, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	var zero U
	return zero, signin.ErrUserNotFound
}

func (s *memoryStore[U]) IsLockedOut(_ context.Context, user U) (bool, error) {
	if user.RequiresApproval() {
		return true, nil
	}
	return signin.IsLockoutActive(user.GetLockoutEnd(), s.now()), nil
}

func (s *memoryStore[U]) AccessFailed(_ context.Context, user U) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := user.GetAccessFailedCount() + 1
	user.SetAccessFailedCount(count)
	s.trace.add("store:access_failed")
	return count, nil
}

func (s *memoryStore[U]) ResetAccessFailedCount(_ context.Context, user U) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.SetAccessFailedCount(0)
	s.trace.add("store:reset")
	return nil
}

func (s *memoryStore[U]) SetLockoutEnd(_ context.Context, user U, end *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if end == nil || !end.After(s.now()) {
		user.SetLockoutEnd(nil)
		user.SetAccessFailedCount(0)
	} else {
		user.SetLockoutEnd(end)
	}
	s.trace.add("store:lockout")
	return nil
}

func (s *memoryStore[U]) Update(_ context.Context, user U) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.stamps[user.GetKey()] = user.GetSecurityStamp()
	s.trace.add("store:update")
	return nil
}

func (s *memoryStore[U]) RecordLogin(_ context.Context, user U, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	user.SetLastLoginAt(at)
	s.trace.add("store:record_login")
	return nil
}

func (s *memoryStore[U]) GetTwoFactorProviders(_ context.Context, user U) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.providers[user.GetKey()]...), nil
}

func (s *memoryStore[U]) GetSecurityStamp(_ context.Context, user U) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stamp, ok := s.stamps[user.GetKey()]
	if !ok {
		return "", signin.ErrUserNotFound
	}
	return stamp, nil
}

func (s *memoryStore[U]) FindByLogin(_ context.Context, provider, providerKey string) (U, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.logins[provider+"/"+providerKey]; ok {
		return s.users[id], nil
	}
	var zero U
	return zero, signin.ErrUserNotFound
}

func (s *memoryStore[U]) RedeemRecoveryCode(_ context.Context, user U, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.recovery[user.GetKey()]
	used, ok := codes[code]
	if !ok || used {
		return false, nil
	}
	codes[code] = true
	return true, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []signin.Notification
	trace  *trace
	err    error
}

func (s *recordingSink) Emit(_ context.Context, n signin.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, n)
	s.trace.add("notify:%s", n.Type)
	return s.err
}

func (s *recordingSink) all() []signin.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]signin.Notification(nil), s.events...)
}

func (s *recordingSink) ofType(t signin.EventType) []signin.Notification {
	var out []signin.Notification
	for _, n := range s.all() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// tracingTransport records scheme writes on top of a MemoryTransport.
type tracingTransport struct {
	*signin.MemoryTransport
	trace *trace
}

func (t *tracingTransport) SignIn(ctx context.Context, scheme string, p *signin.Principal, props signin.SessionProperties) error {
	t.trace.add("transport:signin:%s", scheme)
	return t.MemoryTransport.SignIn(ctx, scheme, p, props)
}

func (t *tracingTransport) SignOut(ctx context.Context, scheme string) error {
	t.trace.add("transport:signout:%s", scheme)
	return t.MemoryTransport.SignOut(ctx, scheme)
}

// mapJar is a CookieJar backed by a map, standing in for a browser.
type mapJar struct {
	mu      sync.Mutex
	cookies map[string]signin.CookieSpec
}

func newMapJar() *mapJar {
	return &mapJar{cookies: map[string]signin.CookieSpec{}}
}

func (j *mapJar) Get(name string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cookies[name].Value
}

func (j *mapJar) Set(c signin.CookieSpec) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if c.Value == "" {
		delete(j.cookies, c.Name)
		return
	}
	j.cookies[c.Name] = c
}

func (j *mapJar) spec(name string) (signin.CookieSpec, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	return c, ok
}

type codeProvider struct {
	code      string
	generated int
}

func (p *codeProvider) Verify(_ context.Context, _ signin.UserIdentity, code string) (bool, error) {
	return code != "" && code == p.code, nil
}

func (p *codeProvider) Generate(_ context.Context, _ signin.UserIdentity) error {
	p.generated++
	return nil
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	lines  []string
}

func (l *recordingLogger) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf(format, args...)
	l.lines = append(l.lines, level+" "+line)
	if level == "ERROR" {
		l.errors = append(l.errors, line)
	}
}

func (l *recordingLogger) Debug(format string, args ...any) { l.log("DEBUG", format, args...) }
func (l *recordingLogger) Info(format string, args ...any)  { l.log("INFO", format, args...) }
func (l *recordingLogger) Warn(format string, args ...any)  { l.log("WARN", format, args...) }
func (l *recordingLogger) Error(format string, args ...any) { l.log("ERROR", format, args...) }

func testOptions() signin.Options {
	opts := signin.DefaultOptions()
	opts.SigningKey = testSigningKey
	opts.MaxFailedAccessAttempts = 3
	return opts
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(out)
}

func newBackOfficeUser(t *testing.T, name, password string) *signin.BackOfficeUser {
	t.Helper()
	u := &signin.BackOfficeUser{IsApproved: true}
	u.ID = uuid.New()
	u.SetUserName(name)
	u.Email = name + "@example.com"
	u.PasswordHash = hashPassword(t, password)
	u.SecurityStamp = signin.NewSecurityStamp()
	u.Roles = []string{signin.RoleEditor}
	return u
}

type harness struct {
	ctx       context.Context
	clock     *fakeClock
	store     *memoryStore[*signin.BackOfficeUser]
	sink      *recordingSink
	logger    *recordingLogger
	trace     *trace
	transport *tracingTransport
	provider  *codeProvider
	coord     *signin.Coordinator[*signin.BackOfficeUser]
	req       signin.Request
}

func newHarness(t *testing.T, extra ...signin.Option) *harness {
	t.Helper()

	h := &harness{
		ctx:      context.Background(),
		clock:    newFakeClock(),
		logger:   &recordingLogger{},
		trace:    &trace{},
		provider: &codeProvider{code: "123456"},
	}
	h.store = newMemoryStore[*signin.BackOfficeUser](h.clock.Now)
	h.store.trace = h.trace
	h.sink = &recordingSink{trace: h.trace}
	h.transport = &tracingTransport{
		MemoryTransport: signin.NewMemoryTransport().WithClock(h.clock.Now),
		trace:           h.trace,
	}

	opts := []signin.Option{
		signin.WithClock(h.clock.Now),
		signin.WithNotificationSink(h.sink),
		signin.WithLogger(h.logger),
		signin.WithTwoFactorProvider("sms", h.provider),
	}
	opts = append(opts, extra...)

	coord, err := signin.NewBackOfficeSignInManager(
		h.store,
		signin.NewBcryptVerifier[*signin.BackOfficeUser](bcrypt.MinCost),
		testOptions(),
		opts...,
	)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.coord = coord
	h.req = signin.Request{Transport: h.transport, IPAddress: "203.0.113.9"}
	return h
}

// browser returns a request whose transport persists across calls, the way
// cookies do between HTTP requests.
func (h *harness) browser() (signin.Request, *mapJar) {
	jar := newMapJar()
	tokens := signin.NewTokenService([]byte(testSigningKey), testOptions().Issuer, nil).WithClock(h.clock.Now)
	tr := signin.NewCookieTransport(jar, tokens, signin.CookieOptionsFromConfig(testOptions())).WithClock(h.clock.Now)
	return signin.Request{Transport: tr, IPAddress: "198.51.100.4"}, jar
}
