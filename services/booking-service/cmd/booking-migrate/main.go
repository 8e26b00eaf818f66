package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/servicebay/servicebay/libs/config"
	"github.com/servicebay/servicebay/libs/db"
	"github.com/servicebay/servicebay/libs/runtime"
	"github.com/servicebay/servicebay/services/booking-service/migrations"
)

const usage = `usage: booking-migrate [up | down <steps> | force <version> | version]`

func main() {
	table := flag.String("table", "booking_schema_migrations", "migrations version table")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fatal(err)
	}
	logger := runtime.NewLogger("booking-migrate")

	databaseURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		fatal(err)
	}

	args := flag.Args()
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	m, err := db.NewMigrator(databaseURL, migrations.FS, ".", *table)
	if err != nil {
		fatal(err)
	}
	defer func() { _ = m.Close() }()

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			if steps, err = strconv.Atoi(args[1]); err != nil {
				fatal(fmt.Errorf("invalid steps: %w", err))
			}
		}
		err = m.Down(steps)
	case "force":
		if len(args) < 2 {
			fatal(fmt.Errorf("force requires a version\n%s", usage))
		}
		version, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			fatal(fmt.Errorf("invalid version: %w", convErr))
		}
		err = m.Force(version)
	case "version":
	default:
		fatal(fmt.Errorf("unknown command %q\n%s", cmd, usage))
	}
	if err != nil {
		logger.Error("migration failed", "command", cmd, "err", err)
		os.Exit(1)
	}

	version, dirty, ok, err := m.Version()
	if err != nil {
		logger.Error("read migration version failed", "err", err)
		os.Exit(1)
	}
	if !ok {
		logger.Info("no migrations applied", "command", cmd)
		return
	}
	logger.Info("migrations complete", "command", cmd, "version", version, "dirty", dirty)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
