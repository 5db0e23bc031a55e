package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	pkgdb "github.com/invoicekits/invoicekits/pkg/db"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&companydomain.Company{},
		&accountdomain.Account{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&invoicedomain.LateFeeLog{},
		&invoicedomain.ReminderLog{},
		&batchdomain.Batch{},
		&apikeydomain.APIKey{},
	}
}

// Run applies the versioned SQL migrations on postgres. Other dialects are
// development setups and get the schema from the gorm models instead.
func Run(conn *gorm.DB, dbType string) error {
	if dbType != "" && dbType != pkgdb.TypePostgres {
		return conn.AutoMigrate(Models()...)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	migrator, err := newMigrator(db)
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

// Version reports the applied migration version.
func Version(db *sql.DB) (uint, bool, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
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
