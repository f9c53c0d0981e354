package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dom/werewolf/internal/api"
	"github.com/dom/werewolf/internal/api/handlers"
	"github.com/dom/werewolf/internal/config"
	"github.com/dom/werewolf/internal/repository"
	repoPostgres "github.com/dom/werewolf/internal/repository/postgres"
	repoRedis "github.com/dom/werewolf/internal/repository/redis"
	"github.com/dom/werewolf/internal/service"
	"github.com/dom/werewolf/internal/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a migrated
// connection.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:15-alpine",
		tcPostgres.WithDatabase("test_werewolf"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	if err := repoPostgres.Migrate(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		tdb.Container.Terminate(context.Background())
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	for _, table := range []string{"room_states", "room_locks"} {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// NewRedis starts an in-process Redis and returns a connected client.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb, err := repoRedis.NewClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("failed to connect to miniredis: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	return mr, rdb
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		HTTPAddr:             ":0",
		Environment:          "test",
		CORSOrigins:          []string{"*"},
		Version:              "test",
		CommitSHA:            "test",
		StoreBackend:         config.BackendRedis,
		RoomTTL:              time.Hour,
		LockTTL:              5 * time.Second,
		LockWait:             2 * time.Second,
		HeartbeatInterval:    time.Hour, // Tests drive heartbeats themselves
		HeartbeatTimeout:     time.Hour,
		PresenceTTL:          30 * time.Second,
		DefaultPhaseDuration: 60,
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server   *httptest.Server
	Redis    *miniredis.Miniredis
	Repos    *repository.Repositories
	Services *service.Services
	Hub      *websocket.Hub
	Config   *config.Config
}

// NewTestServer creates a complete test server backed by miniredis.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	cfg := TestConfig()
	logger := zap.NewNop()
	mr, rdb := NewRedis(t)

	repos := repoRedis.NewRepositories(rdb, repository.Options{
		RoomTTL:     cfg.RoomTTL,
		LockTTL:     cfg.LockTTL,
		LockWait:    cfg.LockWait,
		PresenceTTL: cfg.PresenceTTL,
	}, logger)

	broadcaster := websocket.NewBroadcaster(repos.Bus, repos.Presence, logger)
	hub := websocket.NewHub(repos, broadcaster, websocket.HubConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	services := service.NewServices(repos, broadcaster, cfg, logger)
	router := api.NewRouter(services, hub, map[string]handlers.Pinger{"store": repos.Games}, cfg, logger)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:   server,
		Redis:    mr,
		Repos:    repos,
		Services: services,
		Hub:      hub,
		Config:   cfg,
	}

	t.Cleanup(func() {
		server.Close()
		cancel()
		hub.Stop()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api%s", ts.Server.URL, path)
}

// WebSocketURL returns the socket URL for a player in a room
func (ts *TestServer) WebSocketURL(roomID, playerID string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/ws/%s/%s", wsURL, roomID, playerID)
}
