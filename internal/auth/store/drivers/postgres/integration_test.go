//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/internal/auth/store/storetest"
)

var testDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "stocktake",
			"POSTGRES_PASSWORD": "stocktake",
			"POSTGRES_DB":       "stocktake",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	testDSN = fmt.Sprintf("postgres://stocktake:stocktake@%s:%s/stocktake?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

// reset drops every row so each conformance subtest starts clean.
func reset(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(),
		`TRUNCATE users, refresh_tokens, password_reset_tokens, two_factor_secrets CASCADE`)
	require.NoError(t, err)
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := Open(ctx, testDSN)
		require.NoError(t, err)
		require.NoError(t, s.ApplyMigrations(ctx))
		reset(t, s)
		return s
	})
}
