package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/fitpulse/backend/internal/infrastructure/config"
	"github.com/fitpulse/backend/internal/infrastructure/logger"
	"github.com/fitpulse/backend/internal/infrastructure/migration"
	"github.com/fitpulse/backend/migrations"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const usage = `FitPulse schema migrations

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations
  down                  Roll back all migrations
  step <n>              Apply n migrations, negative n rolls back
  version               Show the applied version
  force <version>       Mark version as applied (dirty schema recovery)
  create <name> [desc]  Scaffold an up/down file pair
  list                  List migration files

Flags:
`

func main() {
	dir := flag.String("path", "", "migrations directory (embedded set when empty, ./migrations for create and list)")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "\nDatabase settings come from config.toml and FITPULSE_DATABASE_* variables.")
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(config.LogConfig{Level: *level, Format: "console", Output: "stdout"}, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(args, *dir, log); err != nil {
		log.Fatal("Migration command failed", zap.String("command", args[0]), zap.Error(err))
	}
}

func run(args []string, dir string, log *zap.Logger) error {
	cmd, rest := args[0], args[1:]

	// create and list only touch the source tree
	switch cmd {
	case "create":
		if len(rest) == 0 {
			return fmt.Errorf("usage: migrate create <name> [description]")
		}
		desc := ""
		if len(rest) > 1 {
			desc = rest[1]
		}
		mf, err := migration.CreateMigration(localDir(dir), rest[0], desc)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath))
		return nil
	case "list":
		names, err := migration.ListMigrations(localDir(dir))
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println("  -", name)
		}
		return nil
	}

	m, closeDB, err := openMigrator(dir, log)
	if err != nil {
		return err
	}
	defer closeDB()
	defer func() { _ = m.Close() }()

	switch cmd {
	case "up":
		return m.Up()
	case "down":
		return m.Down()
	case "step":
		n, err := intArg(rest, "step <n>")
		if err != nil {
			return err
		}
		return m.Steps(n)
	case "force":
		v, err := intArg(rest, "force <version>")
		if err != nil {
			return err
		}
		return m.Force(v)
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		log.Info("Applied schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func openMigrator(dir string, log *zap.Logger) (*migration.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, nil, fmt.Errorf("driver %q uses auto-migrate, migrations target postgres", cfg.Database.Driver)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	src := migration.Embedded(migrations.FS)
	if dir != "" {
		src = migration.Dir(dir)
	}
	m, err := migration.New(db, src, log)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return m, func() { _ = db.Close() }, nil
}

func intArg(rest []string, form string) (int, error) {
	if len(rest) == 0 {
		return 0, fmt.Errorf("usage: migrate %s", form)
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", rest[0])
	}
	return n, nil
}

func localDir(dir string) string {
	if dir == "" {
		return "migrations"
	}
	return dir
}
