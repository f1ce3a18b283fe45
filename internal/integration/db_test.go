//go:build integration

// Package integration runs the pipeline against a real Postgres. It uses the
// server named by ETL_TEST_DB_* (or DB_*) when set and otherwise starts a
// throwaway container. Run with: go test -tags integration ./internal/integration/...
package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"jobs-etl/internal/config"
	"jobs-etl/internal/database"
	dbpostgres "jobs-etl/internal/database/postgres"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	serverOnce sync.Once
	serverCfg  config.DatabaseConfig
	serverSkip string
	container  *pgmodule.PostgresContainer
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = container.Terminate(context.Background())
	}
	os.Exit(code)
}

func stringsOrDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(def)
}

func envServer() (config.DatabaseConfig, bool) {
	cfg := config.DatabaseConfig{
		DBHost:     stringsOrDefault(os.Getenv("ETL_TEST_DB_HOST"), os.Getenv("DB_HOST")),
		DBPort:     stringsOrDefault(os.Getenv("ETL_TEST_DB_PORT"), os.Getenv("DB_PORT")),
		DBName:     stringsOrDefault(os.Getenv("ETL_TEST_DB_NAME"), os.Getenv("DB_NAME")),
		DBUser:     stringsOrDefault(os.Getenv("ETL_TEST_DB_USER"), os.Getenv("DB_USER")),
		DBPassword: stringsOrDefault(os.Getenv("ETL_TEST_DB_PASSWORD"), os.Getenv("DB_PASSWORD")),
		DBSSLMode:  stringsOrDefault(os.Getenv("ETL_TEST_DB_SSL_MODE"), os.Getenv("DB_SSL_MODE")),
	}
	if cfg.DBHost == "" || cfg.DBPort == "" || cfg.DBName == "" || cfg.DBUser == "" {
		return config.DatabaseConfig{}, false
	}
	if cfg.DBSSLMode == "" {
		cfg.DBSSLMode = "disable"
	}
	return cfg, true
}

func startContainer(ctx context.Context) (config.DatabaseConfig, error) {
	c, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("etl"),
		pgmodule.WithUsername("etl"),
		pgmodule.WithPassword("etl"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return config.DatabaseConfig{}, err
	}
	container = c

	host, err := c.Host(ctx)
	if err != nil {
		return config.DatabaseConfig{}, err
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return config.DatabaseConfig{}, err
	}
	return config.DatabaseConfig{
		DBHost:     host,
		DBPort:     port.Port(),
		DBName:     "etl",
		DBUser:     "etl",
		DBPassword: "etl",
		DBSSLMode:  "disable",
	}, nil
}

func server(t *testing.T) config.DatabaseConfig {
	t.Helper()
	serverOnce.Do(func() {
		if cfg, ok := envServer(); ok {
			serverCfg = cfg
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		cfg, err := startContainer(ctx)
		if err != nil {
			serverSkip = fmt.Sprintf("no ETL_TEST_DB_* env and no container runtime: %v", err)
			return
		}
		serverCfg = cfg
	})
	if serverSkip != "" {
		t.Skip(serverSkip)
	}
	return serverCfg
}

// freshDatabase creates an empty database for one test and drops it afterwards.
func freshDatabase(t *testing.T, ctx context.Context) (config.DatabaseConfig, database.DB) {
	t.Helper()
	admin := server(t)

	adminDB, err := dbpostgres.Connect(ctx, admin)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}
	name := "etl_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	if _, err := adminDB.Exec(ctx, "CREATE DATABASE "+name); err != nil {
		_ = adminDB.Close()
		t.Fatalf("create database: %v", err)
	}

	cfg := admin
	cfg.DBName = name
	db, err := dbpostgres.Connect(ctx, cfg)
	if err != nil {
		_ = adminDB.Close()
		t.Fatalf("connect %s: %v", name, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		dropCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := adminDB.Exec(dropCtx, "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)"); err != nil {
			t.Logf("drop database %s: %v", name, err)
		}
		_ = adminDB.Close()
	})
	return cfg, db
}

func sp(s string) *string { return &s }
