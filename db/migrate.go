// Package db embeds the SQL migrations and applies them with golang-migrate.
package db

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies every pending up migration. An up-to-date schema is not an error.
func Migrate(dbURL string, logger zerolog.Logger) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, driverURL(dbURL))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("close migrator")
		}
	}()
	m.Log = migrateLogger{logger: logger.With().Str("component", "migrate").Logger()}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema up to date")
	return nil
}

// driverURL rewrites a libpq-style URL to the scheme registered by the pgx/v5 driver.
func driverURL(dbURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dbURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(dbURL, prefix)
		}
	}
	return dbURL
}

type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(strings.TrimSpace(format), v...)
}

func (l migrateLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
