// Package automigrate applies pending database migrations on startup
// when AUTO_MIGRATE is enabled, so single-binary deployments do not
// need a separate migrate step.
package automigrate

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Enabled reports whether startup migrations were requested.
func Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("AUTO_MIGRATE"))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Run applies all pending up migrations from the given directory
// against databaseURL.
func Run(databaseURL, migrationsDir string) error {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return errors.New("database URL is required for auto-migration")
	}

	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return fmt.Errorf("resolve migrations dir: %w", err)
	}

	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			log.Printf("warning: migration source close error: %v", sourceErr)
		}
		if dbErr != nil {
			log.Printf("warning: migration db close error: %v", dbErr)
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Printf("Migrations up to date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	log.Printf("Migrations applied")
	return nil
}
