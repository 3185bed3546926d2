package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"

	"github.com/G-Research/jobstate/internal/common/util"
)

// TestConnectionString points at the postgres instance used by tests.
const TestConnectionString = "host=localhost port=5432 user=postgres password=psw sslmode=disable"

// WithTestDb spins up a Postgres database for testing
//
//	migrations: perform the list of migrations before entering the action callback
//	action: callback for client code; it receives both a pgx pool and a database/sql handle
//	        connected to the same freshly created database
//
// The database is dropped once action returns.
func WithTestDb(migrations []Migration, action func(db *pgxpool.Pool, sqlDb *sql.DB) error) error {
	ctx := context.Background()

	// Connect and create a dedicated database for the test
	dbName := "test_" + util.NewULID()
	db, err := pgx.Connect(ctx, TestConnectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		// disconnect all db user before cleanup
		_, err = db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			fmt.Println("Failed to disconnect users")
		}

		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			fmt.Println("Failed to drop database")
		}
	}()

	// Connect again: this time to the database we just created.  This is the database we use for tests
	testDbPool, err := pgxpool.Connect(ctx, TestConnectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer testDbPool.Close()

	sqlDb, err := sql.Open("postgres", TestConnectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}
	defer sqlDb.Close()

	err = UpdateDatabase(ctx, testDbPool, migrations)
	if err != nil {
		return errors.WithStack(err)
	}

	return action(testDbPool, sqlDb)
}
