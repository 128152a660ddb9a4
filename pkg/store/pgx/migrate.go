package pgx

import (
	"errors"

	"github.com/OFFIS-RIT/clarifier/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending schema migrations from sourceURL (for
// example "file://migrations") to the database. Running against an up-to-date
// schema is a no-op.
func RunMigrations(sourceURL string, databaseURL string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Store][Migrate] Schema already up to date")
			return nil
		}
		return err
	}

	logger.Debug("[Store][Migrate] Schema migrations applied")
	return nil
}
