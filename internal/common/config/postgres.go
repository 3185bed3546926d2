package config

import "time"

type PostgresConfig struct {
	PoolMaxConns        int32
	PoolMinConns        int32
	PoolMaxConnLifetime time.Duration
	// libpq keyword/value pairs, e.g. host, port, user, password, dbname, sslmode
	Connection map[string]string
}
