package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrator applies the SQL files under migrations/ to the history database.
type Migrator struct {
	m schemaMigrator
}

type schemaMigrator interface {
	Up() error
	Version() (uint, bool, error)
	Close() (error, error)
}

var newSchemaMigrator = func(sourceURL, databaseURL string) (schemaMigrator, error) {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func NewMigrator(databaseURL, migrationsPath string) (*Migrator, error) {
	source := migrationsPath
	if !strings.Contains(source, "://") {
		source = "file://" + source
	}
	m, err := newSchemaMigrator(source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("setting up migrations: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies pending migrations. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (mg *Migrator) Version() (uint, bool, error) {
	return mg.m.Version()
}

func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}
