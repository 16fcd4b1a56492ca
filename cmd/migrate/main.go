// Command migrate manages the Postgres schema for the auto-reply
// service. It wraps golang-migrate with the small set of operations the
// project actually uses.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	// Imported for its .env auto-loading so DATABASE_URL picks up local
	// development settings.
	_ "github.com/hivechat/autoreply/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		usage()
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	switch command {
	case "up":
		return step(args, 1)
	case "down":
		return step(args, -1)
	case "version":
		return showVersion()
	case "force":
		return force(args)
	case "create":
		return create(args)
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s <command> [args]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprint(os.Stderr, `commands:
  up [n]        apply all migrations, or the next n
  down [n]      roll back all migrations, or the last n
  version       print the current schema version
  force <ver>   set the schema version without running migrations
  create <name> write a timestamped up/down migration pair

environment:
  DATABASE_URL    Postgres connection string (required except for create)
  MIGRATIONS_DIR  migration directory, default ./migrations
`)
}

// step applies n migrations in the given direction; with no count it
// goes all the way.
func step(args []string, direction int) error {
	m, err := open()
	if err != nil {
		return err
	}
	defer closeQuietly(m)

	if len(args) == 0 {
		if direction > 0 {
			err = m.Up()
		} else {
			err = m.Down()
		}
	} else {
		n, parseErr := strconv.Atoi(args[0])
		if parseErr != nil || n <= 0 {
			return fmt.Errorf("step count must be a positive integer, got %q", args[0])
		}
		err = m.Steps(direction * n)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("schema already up to date")
		return nil
	}
	return err
}

func showVersion() error {
	m, err := open()
	if err != nil {
		return err
	}
	defer closeQuietly(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Println("no migrations applied")
		return nil
	}
	if err != nil {
		return err
	}
	if dirty {
		fmt.Printf("%d (dirty)\n", version)
	} else {
		fmt.Println(version)
	}
	return nil
}

func force(args []string) error {
	if len(args) == 0 {
		return errors.New("force requires a version number")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	m, err := open()
	if err != nil {
		return err
	}
	defer closeQuietly(m)

	if err := m.Force(version); err != nil {
		return err
	}
	fmt.Printf("forced schema version to %d\n", version)
	return nil
}

func create(args []string) error {
	if len(args) == 0 {
		return errors.New("create requires a migration name")
	}

	name := slugify(args[0])
	if name == "" {
		return errors.New("migration name needs at least one alphanumeric character")
	}

	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("20060102150405")
	for _, suffix := range []string{"up", "down"} {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.%s.sql", stamp, name, suffix))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return err
		}
		fmt.Fprintf(f, "-- %s %s\n", name, suffix)
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Println("created", path)
	}
	return nil
}

func open() (*migrate.Migrate, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	dir, err := migrationsDir()
	if err != nil {
		return nil, err
	}
	return migrate.New("file://"+dir, databaseURL)
}

func migrationsDir() (string, error) {
	dir := strings.TrimSpace(os.Getenv("MIGRATIONS_DIR"))
	if dir == "" {
		dir = "migrations"
	}
	return filepath.Abs(dir)
}

// slugify reduces a human name to lowercase snake_case.
func slugify(name string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '_'
		default:
			return -1
		}
	}, name)
	return strings.Trim(mapped, "_")
}

func closeQuietly(m *migrate.Migrate) {
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		fmt.Fprintf(os.Stderr, "close: source=%v db=%v\n", srcErr, dbErr)
	}
}
