package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// PersistenceConfig implements persistence.Config for the sign-in stores.
type PersistenceConfig struct {
	Debug       bool          `yaml:"debug"`
	Driver      string        `yaml:"driver"`
	DSN         string        `yaml:"dsn"`
	Database    string        `yaml:"database"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
}

func (c PersistenceConfig) GetDebug() bool { return c.Debug }

func (c PersistenceConfig) GetDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return c.Driver
}

func (c PersistenceConfig) GetServer() string   { return c.DSN }
func (c PersistenceConfig) GetDatabase() string { return c.Database }

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string { return "" }

// Bootstrap opens a persistence client over sqlDB with every store model
// registered, creates the schema and loads the fixtures configured by opts,
// e.g. persistence.WithFS and persistence.WithTrucateTables.
func Bootstrap(ctx context.Context, cfg persistence.Config, sqlDB *sql.DB, dialect schema.Dialect, opts ...persistence.FixtureOption) (*bun.DB, error) {
	persistence.RegisterModel(models...)

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		return nil, err
	}

	db, ok := client.DB().(*bun.DB)
	if !ok {
		return nil, fmt.Errorf("persistence client returned %T, want *bun.DB", client.DB())
	}

	if err := CreateSchema(ctx, db); err != nil {
		return nil, err
	}

	client.GetFixtures().AddOptions(opts...)
	if err := client.Seed(ctx); err != nil {
		return nil, err
	}
	return db, nil
}
