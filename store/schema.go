package store

import (
	"context"

	signin "github.com/goliatone/go-signin"
	"github.com/uptrace/bun"
)

var models = []any{
	(*signin.BackOfficeUser)(nil),
	(*signin.MemberUser)(nil),
	(*TwoFactorLogin)(nil),
	(*ExternalLogin)(nil),
	(*RecoveryCode)(nil),
}

type index struct {
	model   any
	name    string
	columns []string
	unique  bool
}

var indexes = []index{
	{(*TwoFactorLogin)(nil), "two_factor_logins_user_provider_idx", []string{"user_key", "provider_name"}, true},
	{(*ExternalLogin)(nil), "external_logins_provider_key_idx", []string{"login_provider", "provider_key"}, true},
	{(*RecoveryCode)(nil), "recovery_codes_user_idx", []string{"user_key"}, false},
}

// CreateSchema creates every table and index the stores use.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		q := db.NewCreateIndex().Model(idx.model).Index(idx.name).Column(idx.columns...).IfNotExists()
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}
