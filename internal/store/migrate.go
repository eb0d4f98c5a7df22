package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies all pending SQL migrations from dir against the
// database at connStr. A database already at the latest version is not an
// error.
func RunMigrations(connStr, dir string) error {
	m, err := migrate.New("file://"+dir, "pgx5://"+stripScheme(connStr))
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// stripScheme drops a postgres:// or postgresql:// prefix so the URL can be
// rebuilt with the pgx5 driver scheme.
func stripScheme(connStr string) string {
	for _, scheme := range []string{"postgres://", "postgresql://", "pgx5://"} {
		if len(connStr) > len(scheme) && connStr[:len(scheme)] == scheme {
			return connStr[len(scheme):]
		}
	}
	return connStr
}
