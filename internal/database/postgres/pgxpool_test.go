package postgres

import (
	"context"
	"errors"
	"testing"

	"jobs-etl/internal/config"
)

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DatabaseConfig
		want string
	}{
		{
			name: "with password",
			cfg:  config.DatabaseConfig{DBHost: "db", DBPort: "5432", DBName: "jobs", DBUser: "etl", DBPassword: "p@ss word", DBSSLMode: "disable"},
			want: "postgres://etl:p%40ss%20word@db:5432/jobs?sslmode=disable",
		},
		{
			name: "without password or sslmode",
			cfg:  config.DatabaseConfig{DBHost: " db ", DBPort: "6543", DBName: "jobs", DBUser: "etl"},
			want: "postgres://etl@db:6543/jobs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DSN(tt.cfg); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestNilPool(t *testing.T) {
	var p *Pool
	if err := p.Ping(context.Background()); !errors.Is(err, errNilDB) {
		t.Fatalf("expected errNilDB, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("expected nil close, got %v", err)
	}
}
