package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	signin "github.com/goliatone/go-signin"
	"github.com/redis/go-redis/v9"
)

const (
	// ProviderSMS delivers codes by text message.
	ProviderSMS = "sms"
	// ProviderEmail delivers codes by email.
	ProviderEmail = "email"
)

// ErrCodeThrottled is returned when a code is requested again before the
// resend interval elapsed.
var ErrCodeThrottled = goerrors.New("two-factor code requested too soon", goerrors.CategoryRateLimit).
	WithTextCode("CODE_THROTTLED")

// Sender delivers a code to a destination (phone number, email address).
type Sender interface {
	Send(ctx context.Context, destination, code string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, destination, code string) error

func (f SenderFunc) Send(ctx context.Context, destination, code string) error {
	return f(ctx, destination, code)
}

// DestinationFunc resolves where a user's codes are delivered.
type DestinationFunc func(ctx context.Context, user signin.UserIdentity) (string, error)

// CodeOptions configures a CodeProvider.
type CodeOptions struct {
	Name           string
	Digits         int
	TTL            time.Duration
	MaxAttempts    int
	ResendInterval time.Duration
}

// DefaultCodeOptions returns six digit codes valid for five minutes.
func DefaultCodeOptions(name string) CodeOptions {
	return CodeOptions{
		Name:           name,
		Digits:         6,
		TTL:            5 * time.Minute,
		MaxAttempts:    5,
		ResendInterval: 30 * time.Second,
	}
}

// CodeProvider generates one time codes, keeps them in redis and delivers
// them through a Sender.
type CodeProvider struct {
	client      redis.UniversalClient
	sender      Sender
	destination DestinationFunc
	opts        CodeOptions
	logger      signin.Logger
}

// NewCodeProvider returns a provider. Zero option values fall back to
// DefaultCodeOptions.
func NewCodeProvider(client redis.UniversalClient, sender Sender, destination DestinationFunc, opts CodeOptions) *CodeProvider {
	def := DefaultCodeOptions(opts.Name)
	if opts.Digits <= 0 {
		opts.Digits = def.Digits
	}
	if opts.TTL <= 0 {
		opts.TTL = def.TTL
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.ResendInterval < 0 {
		opts.ResendInterval = 0
	}
	return &CodeProvider{
		client:      client,
		sender:      sender,
		destination: destination,
		opts:        opts,
		logger:      noopLogger{},
	}
}

// WithLogger sets the logger.
func (p *CodeProvider) WithLogger(logger signin.Logger) *CodeProvider {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Generate creates a new code for user and sends it.
func (p *CodeProvider) Generate(ctx context.Context, user signin.UserIdentity) error {
	key := user.GetKey()

	if p.opts.ResendInterval > 0 {
		ok, err := p.client.SetNX(ctx, p.throttleKey(key), 1, p.opts.ResendInterval).Result()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check code throttle")
		}
		if !ok {
			return ErrCodeThrottled
		}
	}

	destination, err := p.destination(ctx, user)
	if err != nil {
		return err
	}

	code, err := randomDigits(p.opts.Digits)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate code")
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, p.codeKey(key), code, p.opts.TTL)
	pipe.Del(ctx, p.attemptsKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store code")
	}

	if err := p.sender.Send(ctx, destination, code); err != nil {
		p.client.Del(ctx, p.codeKey(key))
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send code")
	}

	p.logger.Debug("two-factor code sent via %s for user %s", p.opts.Name, key)
	return nil
}

// Verify checks code against the stored one. A code is removed once it
// verifies or after MaxAttempts wrong guesses.
func (p *CodeProvider) Verify(ctx context.Context, user signin.UserIdentity, code string) (bool, error) {
	key := user.GetKey()
	code = strings.TrimSpace(code)

	stored, err := p.client.Get(ctx, p.codeKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read code")
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) == 1 {
		p.client.Del(ctx, p.codeKey(key), p.attemptsKey(key))
		return true, nil
	}

	attempts, err := p.client.Incr(ctx, p.attemptsKey(key)).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count attempts")
	}
	if attempts == 1 {
		p.client.Expire(ctx, p.attemptsKey(key), p.opts.TTL)
	}
	if attempts >= int64(p.opts.MaxAttempts) {
		p.logger.Warn("two-factor code for user %s discarded after %d attempts", key, attempts)
		p.client.Del(ctx, p.codeKey(key), p.attemptsKey(key))
	}
	return false, nil
}

func (p *CodeProvider) codeKey(userKey string) string {
	return fmt.Sprintf("signin:2fa:%s:code:%s", p.opts.Name, userKey)
}

func (p *CodeProvider) attemptsKey(userKey string) string {
	return fmt.Sprintf("signin:2fa:%s:attempts:%s", p.opts.Name, userKey)
}

func (p *CodeProvider) throttleKey(userKey string) string {
	return fmt.Sprintf("signin:2fa:%s:throttle:%s", p.opts.Name, userKey)
}

func randomDigits(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
