package postgres

import (
	"embed"
	stderrors "errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/kgeval/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/kgeval/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationStatus is the applied schema version.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

func (s MigrationStatus) String() string {
	if s.Dirty {
		return fmt.Sprintf("version %d (dirty)", s.Version)
	}
	return fmt.Sprintf("version %d", s.Version)
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m      *migrate.Migrate
	src    source.Driver
	logger logging.Logger
}

// NewMigrator binds the embedded migrations to conn.
func NewMigrator(conn *Connection, log logging.Logger) (*Migrator, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open embedded migrations")
	}
	drv, err := migratepg.WithInstance(conn.DB(), &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return &Migrator{m: m, src: src, logger: log}, nil
}

// Up applies every pending migration.  No pending migrations is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations")
	}
	st, err := mg.Status()
	if err != nil {
		return err
	}
	mg.logger.Info("Database migrations completed",
		logging.Int64("version", int64(st.Version)),
		logging.Bool("dirty", st.Dirty),
	)
	return nil
}

// Down rolls back steps migrations.
func (mg *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.New(errors.ErrCodeValidation, "steps must be greater than 0").WithDetailf("got %d", steps)
	}
	if err := mg.m.Steps(-steps); err != nil {
		if stderrors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.ErrCodeConflict, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations").WithDetailf("%d step(s)", steps)
	}
	return nil
}

// Status reports the applied version; an empty database is version 0.
func (mg *Migrator) Status() (MigrationStatus, error) {
	v, dirty, err := mg.m.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return MigrationStatus{Version: v, Dirty: dirty}, nil
}

// Close releases the migration source only.  migrate.Migrate.Close would
// also close the shared *sql.DB, which belongs to the Connection.
func (mg *Migrator) Close() error {
	return mg.src.Close()
}
