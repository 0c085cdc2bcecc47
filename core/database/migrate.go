package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	coreconfig "github.com/m3rciful/orderbot/core/config"
	"github.com/m3rciful/orderbot/core/logger"
)

const readyTimeout = 30 * time.Second

// migrationSet is the list of up migrations found in one directory, sorted
// by file name.
type migrationSet struct {
	dir   string
	files []string
}

func loadMigrations(dir string) (migrationSet, error) {
	if dir == "" {
		dir = "migrations"
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return migrationSet{}, fmt.Errorf("migrations directory: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return migrationSet{}, fmt.Errorf("migrations directory: %w", err)
	}
	set := migrationSet{dir: abs}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			set.files = append(set.files, e.Name())
		}
	}
	slices.Sort(set.files)
	return set, nil
}

func (s migrationSet) sourceURL() string {
	return "file://" + filepath.ToSlash(s.dir)
}

// between lists the files with from < version <= to.
func (s migrationSet) between(from, to uint64) []string {
	var out []string
	for _, name := range s.files {
		if v := migrationVersion(name); v > from && v <= to {
			out = append(out, name)
		}
	}
	return out
}

// migrationVersion reads the numeric prefix of "0001_name.up.sql".
func migrationVersion(name string) uint64 {
	prefix, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(prefix, 10, 64)
	return v
}

func filesAttrs(files []string) []slog.Attr {
	attrs := []slog.Attr{slog.Int("files_total", len(files))}
	if preview, truncated := logger.SummarizeStrings(files, 6); preview != "" {
		attrs = append(attrs, slog.String("files_preview", preview), slog.Bool("files_truncated", truncated))
	}
	return attrs
}

// RunMigrations waits for Postgres and applies every pending up migration
// from cfg.MigrationsDir.
func RunMigrations(ctx context.Context, cfg coreconfig.DatabaseConfig) error {
	fail := func(cause string, err error) error {
		logger.Error(ctx, "db.migrate", "db.migrate",
			slog.String("status", "fail"),
			slog.String("cause", cause),
			slog.String("err", err.Error()),
		)
		return err
	}

	dsn := DSN(cfg)
	if err := WaitForPostgres(ctx, dsn, readyTimeout); err != nil {
		return fail("not_ready", fmt.Errorf("database not ready: %w", err))
	}
	set, err := loadMigrations(cfg.MigrationsDir)
	if err != nil {
		return fail("resolve", err)
	}
	logger.Debug(ctx, "db.migrate", "resolve", append(filesAttrs(set.files), slog.String("path", set.dir))...)

	m, err := migrate.New(set.sourceURL(), dsn)
	if err != nil {
		return fail("init", fmt.Errorf("init migrations: %w", err))
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	took := time.Since(start)
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fail("apply", fmt.Errorf("apply migrations: %w", upErr))
	}

	to, _, _ := m.Version()
	applied := set.between(uint64(from), uint64(to))
	status := "ok"
	if len(applied) == 0 {
		status = "skip"
	} else {
		logger.Debug(ctx, "db.migrate", "apply", filesAttrs(applied)...)
	}
	logger.Info(ctx, "db.migrate", "summary",
		slog.String("status", status),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", took),
	)
	return nil
}
