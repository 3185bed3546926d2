package database

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/config"
)

// CreateConnectionString turns libpq keyword/value pairs into a connection string.
// Keys are sorted so that the result is stable.
func CreateConnectionString(values map[string]string) string {
	// https://www.postgresql.org/docs/10/libpq-connect.html#id-1.7.3.8.3.5
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	replacer := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"='"+replacer.Replace(values[k])+"'")
	}
	return strings.Join(parts, " ")
}

func OpenPgxPool(ctx context.Context, config config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.PoolMaxConns > 0 {
		poolConfig.MaxConns = config.PoolMaxConns
	}
	if config.PoolMinConns > 0 {
		poolConfig.MinConns = config.PoolMinConns
	}
	if config.PoolMaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.PoolMaxConnLifetime
	}
	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}

// OpenSqlDb opens a database/sql handle through lib/pq, used by the goqu-based read side.
func OpenSqlDb(config config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", CreateConnectionString(config.Connection))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if config.PoolMaxConns > 0 {
		db.SetMaxOpenConns(int(config.PoolMaxConns))
	}
	if config.PoolMaxConnLifetime > 0 {
		db.SetConnMaxLifetime(config.PoolMaxConnLifetime)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.WithStack(err)
	}
	return db, nil
}
