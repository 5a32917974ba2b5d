package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMySQLDSNDefaults(t *testing.T) {
	dsn, err := mysqlDSN(Config{User: "coach", Name: "coachsync"})
	require.NoError(t, err)
	require.Equal(t, "coach@tcp(127.0.0.1:3306)/coachsync?charset=utf8mb4&loc=UTC&parseTime=True", dsn)
}

func TestMySQLDSNWithCredentialsAndOptions(t *testing.T) {
	dsn, err := mysqlDSN(Config{
		User:     "coach",
		Password: "secret",
		Host:     "db.internal",
		Port:     3307,
		Name:     "coachsync",
		Options:  map[string]string{"tls": "preferred"},
	})
	require.NoError(t, err)
	require.Equal(t, "coach:secret@tcp(db.internal:3307)/coachsync?charset=utf8mb4&loc=UTC&parseTime=True&tls=preferred", dsn)
}

func TestMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := mysqlDSN(Config{Name: "coachsync"})
	require.Error(t, err)

	_, err = mysqlDSN(Config{User: "coach"})
	require.Error(t, err)
}

func TestMySQLDSNOverrideWins(t *testing.T) {
	dsn, err := mysqlDSN(Config{DSN: "coach@tcp(10.0.0.1:3306)/override"})
	require.NoError(t, err)
	require.Equal(t, "coach@tcp(10.0.0.1:3306)/override", dsn)
}

func TestPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "coach", Name: "coachsync"})
	require.NoError(t, err)
	require.Equal(t, "host=localhost port=5432 user=coach dbname=coachsync sslmode=disable", dsn)
}
