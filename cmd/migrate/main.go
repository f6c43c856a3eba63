package main

import (
	"database/sql"
	"errors"
	"flag"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/lib/pq"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/logger"
	"github.com/smallbiznis/recoverly/internal/migration"
	"github.com/smallbiznis/recoverly/pkg/db"
	"go.uber.org/zap"
)

func main() {
	var (
		command   = flag.String("command", "up", "Migration command (up, down, force, version)")
		version   = flag.Int("version", 1, "Target version for force")
		logLevel  = flag.String("log-level", "info", "Log level")
		logFormat = flag.String("log-format", "console", "Log format (json, console)")
	)
	flag.Parse()

	log, err := logger.New(*logLevel, *logFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	if cfg.DBType != config.DBTypePostgres {
		log.Fatal("sql migrations only target postgres; other databases migrate from models at startup",
			zap.String("db_type", cfg.DBType),
		)
	}

	conn, err := sql.Open("postgres", db.PostgresDSN(cfg))
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	m, err := migration.NewMigrator(conn)
	if err != nil {
		log.Fatal("failed to create migrator", zap.Error(err))
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.Warn("failed to close migrator", zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch *command {
	case "up":
		log.Info("applying migrations")
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("failed to apply migrations", zap.Error(err))
		}
		log.Info("migrations applied")
	case "down":
		log.Info("reverting migrations")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatal("failed to revert migrations", zap.Error(err))
		}
		log.Info("migrations reverted")
	case "force":
		log.Info("forcing migration version", zap.Int("version", *version))
		if err := m.Force(*version); err != nil {
			log.Fatal("failed to force migration version", zap.Error(err))
		}
	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			log.Fatal("failed to read migration version", zap.Error(err))
		}
		log.Info("migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
	default:
		log.Fatal("unknown command", zap.String("command", *command))
	}
}
