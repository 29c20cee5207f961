package postgres

import (
	"embed"
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationSource returns the embedded migrations as a golang-migrate source.
func MigrationSource() (source.Driver, error) {
	return iofs.New(migrationFS, "migrations")
}

// Migrator applies the embedded schema migrations. Each call opens and closes
// its own migrate instance so the application pool is never closed under it.
type Migrator struct {
	dsn    string
	logger logging.Logger
	// open is swapped in tests.
	open func(dsn string) (migrator, error)
}

// migrator is the subset of *migrate.Migrate used here.
type migrator interface {
	Up() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(v int) error
	Close() (error, error)
}

func NewMigrator(dsn string, log logging.Logger) *Migrator {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Migrator{dsn: dsn, logger: log, open: openMigrate}
}

func openMigrate(dsn string) (migrator, error) {
	src, err := MigrationSource()
	if err != nil {
		return nil, err
	}
	mg, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, err
	}
	return mg, nil
}

func (m *Migrator) with(fn func(migrator) error) error {
	mg, err := m.open(m.dsn)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	defer func() {
		if srcErr, dbErr := mg.Close(); srcErr != nil || dbErr != nil {
			m.logger.Warn("failed to close migrate instance",
				logging.Any("source_error", srcErr), logging.Any("database_error", dbErr))
		}
	}()
	return fn(mg)
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	return m.with(func(mg migrator) error {
		if err := mg.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
			version, dirty, _ := mg.Version()
			return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to run migrations (version %d, dirty %t)", version, dirty)
		}
		version, dirty, err := mg.Version()
		if err != nil && !stderrors.Is(err, migrate.ErrNilVersion) {
			m.logger.Warn("failed to read migration version", logging.Err(err))
		}
		m.logger.Info("database migrations applied",
			logging.Int64("version", int64(version)), logging.Bool("dirty", dirty))
		return nil
	})
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.NewValidationError("invalid rollback", []errors.FieldViolation{
			{Field: "steps", Message: "must be greater than 0"},
		})
	}
	return m.with(func(mg migrator) error {
		if err := mg.Steps(-steps); err != nil {
			if stderrors.Is(err, migrate.ErrNoChange) {
				return nil
			}
			return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to roll back %d migrations", steps)
		}
		m.logger.Info("database migrations rolled back", logging.Int("steps", steps))
		return nil
	})
}

// Status reports the applied version and whether the last migration failed
// half way. A fresh database reports version 0.
func (m *Migrator) Status() (version uint, dirty bool, err error) {
	err = m.with(func(mg migrator) error {
		var verr error
		version, dirty, verr = mg.Version()
		if verr != nil && !stderrors.Is(verr, migrate.ErrNilVersion) {
			return errors.Wrap(verr, errors.ErrCodeDatabaseError, "failed to read migration version")
		}
		return nil
	})
	return version, dirty, err
}

// Force sets the recorded version without running migrations, clearing the
// dirty flag after a manual repair.
func (m *Migrator) Force(version int) error {
	return m.with(func(mg migrator) error {
		if err := mg.Force(version); err != nil {
			return errors.Wrapf(err, errors.ErrCodeDatabaseError, "failed to force version %d", version)
		}
		m.logger.Warn("migration version forced", logging.Int("version", version))
		return nil
	})
}
