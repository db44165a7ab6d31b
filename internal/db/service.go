package db

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"

	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/pkg/logger"
)

// Open connects to Postgres using the injected config and verifies the
// connection. Callers own the returned handle; there is no package-level
// singleton.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, &errors.DatabaseError{Operation: "open connection", Err: err}
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, &errors.DatabaseError{Operation: "ping database", Err: err}
	}

	return conn, nil
}

// RunMigrations applies all pending migrations from the configured source.
func RunMigrations(conn *sql.DB, sourceURL string) error {
	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return &errors.DatabaseError{Operation: "create postgres driver", Err: err}
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return &errors.DatabaseError{Operation: "create migrate instance", Err: err}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return &errors.DatabaseError{Operation: "apply migrations", Err: err}
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation (23505).
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation reports whether err is a Postgres foreign key
// violation (23503), i.e. a referenced user does not exist.
func IsForeignKeyViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23503"
	}
	return false
}
