package main

import (
	"flag"
	"fmt"
	"os"

	"ms-booking/internal/config"
	"ms-booking/internal/database/migrations"
	"ms-booking/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up, down or to")
	version := flag.Uint("version", 0, "target version when direction is 'to'")
	dsn := flag.String("dsn", "", "Postgres DSN (defaults to POSTGRES_DSN)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		fmt.Println(".env file not found, using environment variables")
	}

	log := logger.NewLogger("booking-migrate")
	defer log.Close()

	target := *dsn
	if target == "" {
		target = config.Load().Database.DSN
	}

	runner := migrations.NewRunner(target, log)
	defer func() {
		if err := runner.Close(); err != nil {
			log.Error("MIGRATE", err.Error())
		}
	}()

	var err error
	switch *direction {
	case "up":
		err = runner.Up()
	case "down":
		err = runner.Down()
	case "to":
		err = runner.To(*version)
	default:
		fmt.Fprintf(os.Stderr, "unknown direction %q\n", *direction)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}
	log.Info("MIGRATE", fmt.Sprintf("Migration %s completed", *direction))
}
