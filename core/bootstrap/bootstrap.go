package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/orderbot/core/config"
	coredatabase "github.com/m3rciful/orderbot/core/database"
	"github.com/m3rciful/orderbot/core/logger"
	"github.com/m3rciful/orderbot/core/telegram/dispatch"
)

// Options control the bootstrap pipeline. Nil funcs fall back to the
// package defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, coreconfig.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
// DB and Archive are nil when no archive database is configured.
type Result struct {
	DB      *sqlx.DB
	Archive dispatch.Archive
}

// Close releases the database connection, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and, when configured, the order archive.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	dbCfg := opts.Config.Database
	if !dbCfg.Enabled() {
		logger.Info(ctx, "db", "archive.disabled", slog.String("status", "skip"))
		return &Result{}, nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	store, err := coredatabase.NewOrderStore(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &Result{DB: db, Archive: store}, nil
}
