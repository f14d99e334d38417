package signin

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// RoleAdmin is the back-office administrator role
	RoleAdmin = "admin"
	// RoleEditor is the back-office editor role
	RoleEditor = "editor"
	// RoleMember is the default member role
	RoleMember = "member"
)

// IdentityRecord holds the columns shared by every user type.
type IdentityRecord struct {
	ID                 uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserName           string     `bun:"user_name,notnull" json:"user_name,omitempty"`
	NormalizedUserName string     `bun:"normalized_user_name,notnull,unique" json:"normalized_user_name,omitempty"`
	Email              string     `bun:"email" json:"email,omitempty"`
	Phone              string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash       string     `bun:"password_hash" json:"-"`
	SecurityStamp      string     `bun:"security_stamp" json:"-"`
	AccessFailedCount  int        `bun:"access_failed_count,notnull,default:0" json:"access_failed_count"`
	LockoutEnd         *time.Time `bun:"lockout_end,nullzero" json:"lockout_end,omitempty"`
	TwoFactorEnabled   bool       `bun:"two_factor_enabled,notnull,default:false" json:"two_factor_enabled"`
	Roles              []string   `bun:"roles" json:"roles,omitempty"`
	LastLoginAt        *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt          *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NormalizeUserName is the canonical form used for case insensitive lookups.
func NormalizeUserName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

func (r *IdentityRecord) GetKey() string {
	if r.ID == uuid.Nil {
		return ""
	}
	return r.ID.String()
}

func (r *IdentityRecord) GetID() uuid.UUID          { return r.ID }
func (r *IdentityRecord) SetID(id uuid.UUID)        { r.ID = id }
func (r *IdentityRecord) SetUpdatedAt(at time.Time) { r.UpdatedAt = &at }

func (r *IdentityRecord) GetUserName() string           { return r.UserName }
func (r *IdentityRecord) GetNormalizedUserName() string { return r.NormalizedUserName }
func (r *IdentityRecord) GetPasswordHash() string       { return r.PasswordHash }
func (r *IdentityRecord) GetSecurityStamp() string      { return r.SecurityStamp }
func (r *IdentityRecord) GetAccessFailedCount() int     { return r.AccessFailedCount }
func (r *IdentityRecord) GetLockoutEnd() *time.Time     { return r.LockoutEnd }
func (r *IdentityRecord) IsTwoFactorEnabled() bool      { return r.TwoFactorEnabled }
func (r *IdentityRecord) GetRoles() []string            { return r.Roles }
func (r *IdentityRecord) GetEmail() string              { return r.Email }
func (r *IdentityRecord) GetPhone() string              { return r.Phone }

func (r *IdentityRecord) SetPasswordHash(hash string)    { r.PasswordHash = hash }
func (r *IdentityRecord) SetSecurityStamp(stamp string)  { r.SecurityStamp = stamp }
func (r *IdentityRecord) SetAccessFailedCount(count int) { r.AccessFailedCount = count }

func (r *IdentityRecord) SetLockoutEnd(end *time.Time) {
	if end == nil {
		r.LockoutEnd = nil
		return
	}
	t := *end
	r.LockoutEnd = &t
}

func (r *IdentityRecord) SetLastLoginAt(at time.Time) {
	r.LastLoginAt = &at
}

// SetUserName sets both the display and the normalized user name.
func (r *IdentityRecord) SetUserName(name string) {
	r.UserName = strings.TrimSpace(name)
	r.NormalizedUserName = NormalizeUserName(name)
}

// BackOfficeUser is an editor or administrator of the back office.
type BackOfficeUser struct {
	bun.BaseModel `bun:"table:backoffice_users,alias:bou"`
	IdentityRecord
	IsApproved           bool       `bun:"is_approved,notnull,default:false" json:"is_approved"`
	LastPasswordChangeAt *time.Time `bun:"last_password_change_at,nullzero" json:"last_password_change_at,omitempty"`
}

// RequiresApproval is true until an administrator approves the account.
func (u *BackOfficeUser) RequiresApproval() bool {
	return !u.IsApproved
}

// SetPasswordChangedAt records the time of the last password change.
func (u *BackOfficeUser) SetPasswordChangedAt(at time.Time) {
	u.LastPasswordChangeAt = &at
}

// MemberUser is a front-end member.
type MemberUser struct {
	bun.BaseModel `bun:"table:members,alias:mbr"`
	IdentityRecord
	MemberTypeAlias string `bun:"member_type_alias" json:"member_type_alias,omitempty"`
}

// RequiresApproval is always false for members.
func (u *MemberUser) RequiresApproval() bool {
	return false
}

// PasswordChangeTracker is implemented by user types that record password changes.
type PasswordChangeTracker interface {
	SetPasswordChangedAt(at time.Time)
}

// NewSecurityStamp returns a fresh invalidation marker.
func NewSecurityStamp() string {
	return uuid.NewString()
}
