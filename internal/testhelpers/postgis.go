// Package testhelpers starts the PostGIS container used by integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"diglet/internal/models"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostGISImage is the database image the integration tests run against.
const PostGISImage = "postgis/postgis:16-3.4"

// TestDB is a running PostGIS container.
type TestDB struct {
	Container testcontainers.Container
	Profile   models.ConnectionProfile
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a PostGIS container shared by every test in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostGISImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "diglet_test",
			"POSTGRES_USER":     "diglet",
			"POSTGRES_PASSWORD": "test_password",
		},
		// the entrypoint restarts the server once after running init scripts
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	portNum, err := strconv.Atoi(port.Port())
	if err != nil {
		return nil, fmt.Errorf("failed to parse container port: %w", err)
	}

	return &TestDB{
		Container: container,
		Profile: models.ConnectionProfile{
			Host:     host,
			Port:     portNum,
			DBName:   "diglet_test",
			User:     "diglet",
			Password: "test_password",
		},
	}, nil
}
