package signin

import (
	"io"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

// Config exposes the settings a coordinator and its transports need.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetSessionTTL() time.Duration
	GetPersistentSessionTTL() time.Duration
	GetTwoFactorTTL() time.Duration
	GetRememberClientTTL() time.Duration
	GetExternalTTL() time.Duration
	GetLockoutOptions() LockoutOptions
	GetCookiePath() string
	GetCookieDomain() string
	GetCookieSecure() bool
	GetCookieSameSite() string
}

// Options is the default Config implementation, loadable from YAML.
type Options struct {
	SigningKey              string        `json:"signing_key" yaml:"signing_key"`
	Issuer                  string        `json:"issuer" yaml:"issuer"`
	SessionTTL              time.Duration `json:"session_ttl" yaml:"session_ttl"`
	PersistentSessionTTL    time.Duration `json:"persistent_session_ttl" yaml:"persistent_session_ttl"`
	TwoFactorTTL            time.Duration `json:"two_factor_ttl" yaml:"two_factor_ttl"`
	RememberClientTTL       time.Duration `json:"remember_client_ttl" yaml:"remember_client_ttl"`
	ExternalTTL             time.Duration `json:"external_ttl" yaml:"external_ttl"`
	MaxFailedAccessAttempts int           `json:"max_failed_access_attempts" yaml:"max_failed_access_attempts"`
	LockoutDuration         time.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	LockoutEnabled          bool          `json:"lockout_enabled" yaml:"lockout_enabled"`
	CookiePath              string        `json:"cookie_path" yaml:"cookie_path"`
	CookieDomain            string        `json:"cookie_domain" yaml:"cookie_domain"`
	CookieSecure            bool          `json:"cookie_secure" yaml:"cookie_secure"`
	CookieSameSite          string        `json:"cookie_same_site" yaml:"cookie_same_site"`
}

// DefaultOptions returns the settings used when a key is not configured.
// The signing key is left empty and must always be provided.
func DefaultOptions() Options {
	return Options{
		Issuer:                  "go-signin",
		SessionTTL:              20 * time.Minute,
		PersistentSessionTTL:    14 * 24 * time.Hour,
		TwoFactorTTL:            5 * time.Minute,
		RememberClientTTL:       30 * 24 * time.Hour,
		ExternalTTL:             5 * time.Minute,
		MaxFailedAccessAttempts: 5,
		LockoutDuration:         5 * time.Minute,
		LockoutEnabled:          true,
		CookiePath:              "/",
		CookieSecure:            true,
		CookieSameSite:          "Lax",
	}
}

// LoadOptions decodes YAML from r over DefaultOptions and validates the result.
func LoadOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.NewDecoder(r).Decode(&opts); err != nil && err != io.EOF {
		return opts, errors.Wrap(err, errors.CategoryBadInput, "failed to decode sign-in options")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate checks every setting.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&o.SessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.PersistentSessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.TwoFactorTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.RememberClientTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.ExternalTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.MaxFailedAccessAttempts, validation.Required, validation.Min(1)),
		validation.Field(&o.LockoutDuration, validation.Required, validation.Min(time.Second)),
		validation.Field(&o.CookieSameSite, validation.In("Lax", "Strict", "None")),
	)
	if err != nil {
		return annotate(ErrInvalidConfig, map[string]any{
			"validation": err.Error(),
		})
	}
	return nil
}

func (o Options) GetSigningKey() string                  { return o.SigningKey }
func (o Options) GetIssuer() string                      { return o.Issuer }
func (o Options) GetSessionTTL() time.Duration           { return o.SessionTTL }
func (o Options) GetPersistentSessionTTL() time.Duration { return o.PersistentSessionTTL }
func (o Options) GetTwoFactorTTL() time.Duration         { return o.TwoFactorTTL }
func (o Options) GetRememberClientTTL() time.Duration    { return o.RememberClientTTL }
func (o Options) GetExternalTTL() time.Duration          { return o.ExternalTTL }
func (o Options) GetCookiePath() string                  { return o.CookiePath }
func (o Options) GetCookieDomain() string                { return o.CookieDomain }
func (o Options) GetCookieSecure() bool                  { return o.CookieSecure }
func (o Options) GetCookieSameSite() string              { return o.CookieSameSite }

func (o Options) GetLockoutOptions() LockoutOptions {
	return LockoutOptions{
		MaxFailedAccessAttempts: o.MaxFailedAccessAttempts,
		LockoutDuration:         o.LockoutDuration,
		Enabled:                 o.LockoutEnabled,
	}
}
