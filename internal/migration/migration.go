package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"gorm.io/gorm"
)

// NewMigrator returns a golang-migrate instance over the embedded postgres migrations.
// Closing it closes db as well.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

// RunMigrations applies every pending postgres migration.
func RunMigrations(db *sql.DB) error {
	migrator, err := NewMigrator(db)
	if err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&storefrontdomain.Tenant{},
		&storefrontdomain.Connection{},
		&cartdomain.Cart{},
		&reminderdomain.Template{},
		&reminderdomain.Settings{},
	}
}

// AutoMigrate creates the schema from the gorm models. Used for sqlite, mysql and tests.
func AutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
