//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dbdeploy/dbdeploy/internal/database"
)

const (
	postgresImage = "postgres:16-alpine"
	testDB        = "dbdeploy_test"
	testUser      = "dbdeploy"
	testPassword  = "dbdeploy"
)

// SetupPostgresDSN starts a PostgreSQL 16 container and returns its connection string.
// The container is terminated when the test completes.
func SetupPostgresDSN(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return "postgres://" + testUser + ":" + testPassword + "@" + host + ":" + port.Port() + "/" + testDB + "?sslmode=disable"
}

// SetupGateway starts a container and opens it through the named driver.
func SetupGateway(t *testing.T, driver string) database.Gateway {
	t.Helper()

	gw, err := database.Open(context.Background(), database.Options{
		Driver: driver,
		URL:    SetupPostgresDSN(t),
	})
	require.NoError(t, err)

	t.Cleanup(gw.Close)

	return gw
}

// WriteScripts writes name -> content pairs into a fresh directory and returns it.
func WriteScripts(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	return dir
}
