package store

import (
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

func TestMySQLDSN(t *testing.T) {
	dsn, err := MySQLDSN(MySQLOptions{
		Host:     "db.internal",
		User:     "kaizen",
		Password: "s3cret",
		Database: "licensing",
	})
	require.NoError(t, err)

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.internal:3306", cfg.Addr)
	require.Equal(t, "kaizen", cfg.User)
	require.Equal(t, "licensing", cfg.DBName)
	require.True(t, cfg.ParseTime)
	require.Equal(t, time.UTC, cfg.Loc)
	require.Equal(t, 10*time.Second, cfg.Timeout)
	require.Equal(t, 20*time.Second, cfg.ReadTimeout)
	require.Empty(t, cfg.TLSConfig)
}

func TestMySQLDSNRequiresHost(t *testing.T) {
	_, err := MySQLDSN(MySQLOptions{})
	require.Error(t, err)
}

func TestMySQLDSNWithTLS(t *testing.T) {
	dsn, err := MySQLDSN(MySQLOptions{
		Host: "db.internal",
		Port: 3307,
		TLS:  TLSOptions{Enabled: true, CAPath: filepath.Join(t.TempDir(), "absent.pem"), RejectUnauthorized: true},
	})
	require.Error(t, err, "an explicitly configured CA path must exist")
	require.Empty(t, dsn)

	dsn, err = MySQLDSN(MySQLOptions{
		Host: "db.internal",
		Port: 3307,
		TLS:  TLSOptions{Enabled: true, RejectUnauthorized: true},
	})
	require.NoError(t, err)
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.internal:3307", cfg.Addr)
	require.Equal(t, tlsConfigName, cfg.TLSConfig)
}

func TestTLSOptionsConfig(t *testing.T) {
	tc, err := TLSOptions{RejectUnauthorized: false, CAPath: "", CABase64: ""}.config("db")
	require.NoError(t, err)
	require.True(t, tc.InsecureSkipVerify)
	require.Equal(t, "db", tc.ServerName)
	require.Nil(t, tc.RootCAs)

	_, err = TLSOptions{CABase64: "!!!"}.config("db")
	require.Error(t, err)

	_, err = TLSOptions{CABase64: base64.StdEncoding.EncodeToString([]byte("not a pem"))}.config("db")
	require.ErrorContains(t, err, "no certificates")
}
