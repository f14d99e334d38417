package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TwoFactorLogin enables a two-factor provider for a user, with the
// provider secret when it needs one.
type TwoFactorLogin struct {
	bun.BaseModel `bun:"table:two_factor_logins,alias:tfl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserKey       string     `bun:"user_key,notnull" json:"user_key,omitempty"`
	ProviderName  string     `bun:"provider_name,notnull" json:"provider_name,omitempty"`
	Secret        string     `bun:"secret" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// ExternalLogin links a user to an account at an external provider.
type ExternalLogin struct {
	bun.BaseModel `bun:"table:external_logins,alias:exl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserKey       string     `bun:"user_key,notnull" json:"user_key,omitempty"`
	LoginProvider string     `bun:"login_provider,notnull" json:"login_provider,omitempty"`
	ProviderKey   string     `bun:"provider_key,notnull" json:"provider_key,omitempty"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// RecoveryCode is a single use two-factor recovery code, stored hashed.
type RecoveryCode struct {
	bun.BaseModel `bun:"table:recovery_codes,alias:rco"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserKey       string     `bun:"user_key,notnull" json:"user_key,omitempty"`
	CodeHash      string     `bun:"code_hash,notnull" json:"-"`
	RedeemedAt    *time.Time `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
