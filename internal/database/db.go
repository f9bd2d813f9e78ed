package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"diglet/internal/config"
	"diglet/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// DSN builds a postgres:// URL for the profile.
func DSN(p models.ConnectionProfile, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Addr(),
		Path:     "/" + p.DBName,
		RawQuery: url.Values{"sslmode": {sslmode}}.Encode(),
	}
	return u.String()
}

// New connects to the PostGIS database described by the profile and returns a
// Bun DB handle. A diagnostic session owns exactly one connection.
func New(ctx context.Context, p models.ConnectionProfile, cfg *config.Config) (*bun.DB, error) {
	connector := pgdriver.NewConnector(
		pgdriver.WithDSN(DSN(p, cfg.SSLMode)),
		pgdriver.WithDialTimeout(15*time.Second),
		pgdriver.WithReadTimeout(cfg.StatementTimeout+10*time.Second),
		pgdriver.WithWriteTimeout(30*time.Second),
		pgdriver.WithApplicationName("diglet"),
	)

	sqldb := sql.OpenDB(connector)
	db := bun.NewDB(sqldb, pgdialect.New())

	// one logical operation owns the connection at a time
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	if cfg.BunDebug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, models.NewOpError(models.ConnectionError, "connect", p.String(), err)
	}

	timeout := fmt.Sprintf("SET statement_timeout = '%dms'", cfg.StatementTimeout.Milliseconds())
	if _, err := db.ExecContext(pingCtx, timeout); err != nil {
		_ = db.Close()
		return nil, models.NewOpError(models.ConnectionError, "configure session", p.String(), err)
	}

	return db, nil
}
