package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	sqlassets "github.com/infofluencer/infofluencer/database"
)

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m      *migrate.Migrate
	logger *zap.Logger
}

type migrationLogger struct {
	sugar *zap.SugaredLogger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.sugar.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l migrationLogger) Verbose() bool { return false }

// NewMigrator opens a migrate instance over the embedded migrations.
// databaseURL uses the postgres:// or postgresql:// scheme.
func NewMigrator(databaseURL string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := iofs.New(sqlassets.Migrations, sqlassets.MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrationURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrationLogger{sugar: logger.Sugar()}

	return &Migrator{m: m, logger: logger}, nil
}

func migrationURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

// Up applies all pending migrations. No pending migrations is not an error.
func (m *Migrator) Up() error {
	return m.handle("up", m.m.Up())
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	return m.handle("down", m.m.Steps(-1))
}

// Version reports the applied version; 0 when nothing is applied.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (m *Migrator) handle(op string, err error) error {
	if err == nil {
		version, _, _ := m.Version()
		m.logger.Info("migrations applied", zap.String("direction", op), zap.Uint("version", version))
		return nil
	}
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("no new migrations to apply", zap.String("direction", op))
		return nil
	}
	version, dirty, _ := m.Version()
	m.logger.Error("migration failed", zap.String("direction", op), zap.Uint("version", version), zap.Bool("dirty", dirty), zap.Error(err))
	return fmt.Errorf("migrate %s: %w", op, err)
}

// Close releases the source and database handles.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
