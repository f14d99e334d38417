package signin

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

type ProvisionUserMessage struct {
	UserName         string   `json:"user_name"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone"`
	Password         string   `json:"password"`
	Roles            []string `json:"roles"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
	Approved         bool     `json:"approved"`
	MemberTypeAlias  string   `json:"member_type_alias"`
	UseHashid        bool
}

func (e ProvisionUserMessage) Type() string { return "user.provision" }

// UserCreator persists a new user.
type UserCreator[U UserIdentity] interface {
	Create(ctx context.Context, user U) (U, error)
}

// UserBuilder turns the shared identity columns into a concrete user type.
type UserBuilder[U UserIdentity] func(record IdentityRecord, msg ProvisionUserMessage) U

// BuildBackOfficeUser is the UserBuilder for back-office users.
func BuildBackOfficeUser(record IdentityRecord, msg ProvisionUserMessage) *BackOfficeUser {
	return &BackOfficeUser{IdentityRecord: record, IsApproved: msg.Approved}
}

// BuildMemberUser is the UserBuilder for members.
func BuildMemberUser(record IdentityRecord, msg ProvisionUserMessage) *MemberUser {
	return &MemberUser{IdentityRecord: record, MemberTypeAlias: msg.MemberTypeAlias}
}

// ProvisionUserHandler creates users with a hashed password and a fresh
// security stamp.
type ProvisionUserHandler[U UserIdentity] struct {
	creator UserCreator[U]
	hasher  PasswordHasher
	build   UserBuilder[U]
}

// NewProvisionUserHandler returns a handler. hasher defaults to bcrypt.
func NewProvisionUserHandler[U UserIdentity](creator UserCreator[U], hasher PasswordHasher, build UserBuilder[U]) *ProvisionUserHandler[U] {
	if hasher == nil {
		hasher = NewBcryptHasher()
	}
	return &ProvisionUserHandler[U]{creator: creator, hasher: hasher, build: build}
}

func (h *ProvisionUserHandler[U]) Execute(ctx context.Context, event ProvisionUserMessage) error {
	_, err := h.Provision(ctx, event)
	return err
}

// Provision creates the user and returns it.
func (h *ProvisionUserHandler[U]) Provision(ctx context.Context, event ProvisionUserMessage) (U, error) {
	var zero U
	select {
	case <-ctx.Done():
		return zero, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user provisioning",
		)
	default:
		return h.provision(ctx, event)
	}
}

func (h *ProvisionUserHandler[U]) provision(ctx context.Context, event ProvisionUserMessage) (U, error) {
	var zero U
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	name := getUsername(event.UserName, event.Email)
	if name == "" {
		return zero, goerrors.New("user name or email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return zero, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	record := IdentityRecord{
		ID:               uuid.New(),
		Email:            event.Email,
		Phone:            event.Phone,
		PasswordHash:     hash,
		SecurityStamp:    NewSecurityStamp(),
		TwoFactorEnabled: event.TwoFactorEnabled,
		Roles:            event.Roles,
	}
	record.SetUserName(name)
	if event.UseHashid {
		if id, err := hashid.NewUUID(strings.ToLower(name)); err == nil {
			record.ID = id
		}
	}

	user, err := h.creator.Create(ctx, h.build(record, event))
	if err != nil {
		return zero, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
	}
	return user, nil
}

func getUsername(username, email string) string {
	if username = strings.TrimSpace(username); username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
