package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConnectionString(t *testing.T) {
	s := CreateConnectionString(map[string]string{
		"host":     "localhost",
		"password": `it's\secret`,
		"dbname":   "jobstate",
	})
	assert.Equal(t, `dbname='jobstate' host='localhost' password='it\'s\\secret'`, s)
}

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_second.sql": {Data: []byte("CREATE TABLE b (x int);")},
		"migrations/001_first.sql":  {Data: []byte("CREATE TABLE a (x int);")},
		"migrations/README.md":      {Data: []byte("ignored")},
	}
	migrations, err := ReadMigrations(fsys, "migrations")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, NewMigration(1, "001_first.sql", "CREATE TABLE a (x int);"), migrations[0])
	assert.Equal(t, NewMigration(2, "002_second.sql", "CREATE TABLE b (x int);"), migrations[1])
}

func TestReadMigrations_BadName(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/first.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := ReadMigrations(fsys, "migrations")
	assert.Error(t, err)
}
