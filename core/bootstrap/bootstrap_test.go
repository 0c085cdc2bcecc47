package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/orderbot/core/config"
)

func noopLogger(*coreconfig.Config) error { return nil }

func TestRunWithoutDatabase(t *testing.T) {
	called := false
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noopLogger,
		Connect: func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			called = true
			return nil, errors.New("unexpected")
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called {
		t.Fatal("connect must not run without a database host")
	}
	if res.DB != nil || res.Archive != nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if err := res.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if _, err := Run(context.Background(), Options{LoggerInit: noopLogger}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunLoggerFailure(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: func(*coreconfig.Config) error { return boom },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped logger error, got %v", err)
	}
}

func TestRunConnectFailure(t *testing.T) {
	boom := errors.New("connection refused")
	migrated := false
	cfg := &coreconfig.Config{Database: coreconfig.DatabaseConfig{Host: "db"}}
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noopLogger,
		Connect: func(_ context.Context, got coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			if got.Host != "db" {
				t.Errorf("unexpected host %q", got.Host)
			}
			return nil, boom
		},
		Migrate: func(context.Context, coreconfig.DatabaseConfig) error {
			migrated = true
			return nil
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped connect error, got %v", err)
	}
	if migrated {
		t.Fatal("migrations must not run after a failed connect")
	}
}
