package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kaizenpbi/kaizen/internal/model"
)

// setupMySQL starts a throwaway MySQL server and returns a migrated store
// connected to it. Docker is required, so the test only runs when
// KAIZEN_INTEGRATION=1.
func setupMySQL(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("KAIZEN_INTEGRATION") != "1" {
		t.Skip("set KAIZEN_INTEGRATION=1 to run MySQL integration tests")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mysql:8.4",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "kaizen",
			"MYSQL_USER":          "kaizen",
			"MYSQL_PASSWORD":      "kaizen",
		},
		WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").
			WithStartupTimeout(2 * time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)

	dsn, err := MySQLDSN(MySQLOptions{
		Host:     host,
		Port:     port.Int(),
		User:     "kaizen",
		Password: "kaizen",
		Database: "kaizen",
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DSN = dsn
	s, err := Open(ctx, cfg)
	require.NoError(t, err, fmt.Sprintf("connect %s:%s", host, port.Port()))
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate())
	return s
}

func TestMySQLLockoutAccounting(t *testing.T) {
	s := setupMySQL(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 1; i <= 3; i++ {
		st, err := s.RecordLogin(ctx, failure("ACME", "ip", base), testPolicy)
		require.NoError(t, err)
		require.Equal(t, i, st.Failures)
	}
	until, err := s.LockedUntil(ctx, "ACME", "ip")
	require.NoError(t, err)
	require.WithinDuration(t, base.Add(testPolicy.Duration), until, 0)

	st, err := s.RecordLogin(ctx, failure("ACME", "ip", base.Add(testPolicy.Window+time.Minute)), testPolicy)
	require.NoError(t, err)
	require.Equal(t, 1, st.Failures)
	require.True(t, st.LockedUntil.IsZero())
}

func TestMySQLReserveAttemptSerializes(t *testing.T) {
	s := setupMySQL(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const n = 20
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.ReserveAttempt(ctx, "ACME", "ip", now, testPolicy)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(testPolicy.Threshold), granted.Load())
}

func TestMySQLLicenseAndReports(t *testing.T) {
	s := setupMySQL(t)
	ctx := context.Background()

	require.NoError(t, s.CreateClient(ctx, &model.Client{Prefix: "ACME", Name: "Acme"}))
	l := &model.License{ClientPrefix: "ACME", Hash: "h"}
	require.NoError(t, s.CreateLicense(ctx, l))
	require.NotZero(t, l.ID)

	r := &model.Report{ClientPrefix: "ACME", Code: "HOME", Name: "Home", EmbedURL: "https://x", IsDefault: true, IsActive: true}
	require.NoError(t, s.CreateReport(ctx, r))
	require.NoError(t, s.GrantReport(ctx, l.ID, r.ID))
	require.NoError(t, s.GrantReport(ctx, l.ID, r.ID))

	reports, err := s.ListGrantedReports(ctx, l.ID, "ACME")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	require.True(t, reports[0].IsDefault)

	flipped, err := s.ExpireLicense(ctx, l.ID)
	require.NoError(t, err)
	require.True(t, flipped)
	flipped, err = s.ExpireLicense(ctx, l.ID)
	require.NoError(t, err)
	require.False(t, flipped)
}
