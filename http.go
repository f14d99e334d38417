package signin

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ErrUnauthenticated is returned by protected routes without a valid session.
var ErrUnauthenticated = errors.New("authentication required", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("UNAUTHENTICATED")

// RouteSessions binds a coordinator to go-router requests, carrying scheme
// sessions in cookies.
type RouteSessions[U UserIdentity] struct {
	coordinator  *Coordinator[U]
	tokens       *TokenService
	cookies      CookieOptions
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewRouteSessions returns route helpers for coordinator.
func NewRouteSessions[U UserIdentity](coordinator *Coordinator[U], tokens *TokenService, cfg Config) *RouteSessions[U] {
	s := &RouteSessions[U]{
		coordinator: coordinator,
		tokens:      tokens,
		cookies:     CookieOptionsFromConfig(cfg),
		Logger:      defLogger{},
	}
	s.ErrorHandler = s.defaultErrHandler
	return s
}

// Request builds the sign-in request for ctx: a cookie transport plus the
// client address.
func (s *RouteSessions[U]) Request(ctx router.Context) Request {
	tr := NewCookieTransport(NewRouterCookieJar(ctx), s.tokens, s.cookies).WithLogger(s.Logger)
	return Request{
		Transport: tr,
		IPAddress: ClientIP(ctx),
	}
}

// Login runs a password sign-in for ctx.
func (s *RouteSessions[U]) Login(ctx router.Context, username, password string, isPersistent bool) (Outcome, error) {
	return s.coordinator.PasswordSignIn(ctx.Context(), s.Request(ctx), username, password, isPersistent, true)
}

// Logout clears every scheme session of ctx.
func (s *RouteSessions[U]) Logout(ctx router.Context) {
	s.coordinator.SignOut(ctx.Context(), s.Request(ctx))
}

// ProtectedRoute validates the primary session and stores the user in the
// request context and router locals. When optional is true requests without
// a valid session continue anonymously.
func (s *RouteSessions[U]) ProtectedRoute(optional bool) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			req := s.Request(ctx)
			user, ok, err := s.coordinator.ValidatePrincipal(ctx.Context(), req)
			if err != nil {
				return s.ErrorHandler(ctx, err)
			}
			if !ok {
				if optional {
					return next(ctx)
				}
				return s.ErrorHandler(ctx, ErrUnauthenticated)
			}

			c := WithUser(ctx.Context(), user)
			if res, err := req.Transport.Authenticate(ctx.Context(), s.coordinator.Schemes().Primary); err == nil && res.Succeeded() {
				c = WithPrincipal(c, res.Principal)
			}
			ctx.SetContext(c)
			ctx.Locals(LocalsUserKey, user)
			return next(ctx)
		}
	}
}

func (s *RouteSessions[U]) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	s.Logger.Info(
		"sign-in middleware error: %s category=%s details=%s",
		richErr.Message, richErr.Category, print.MaybePrettyJSON(richErr.Metadata),
	)

	code := richErr.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	return c.JSON(code, map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

// ClientIP returns the first forwarded address or the peer address of ctx.
func ClientIP(ctx router.Context) string {
	if fwd := ctx.Header("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(ctx.Header("X-Real-Ip")); ip != "" {
		return ip
	}
	if p, ok := ctx.(interface{ IP() string }); ok {
		return p.IP()
	}
	return ""
}
