// Command migrate applies the SQL migrations with goose.
//
//	migrate up | down | status | version
package main

import (
	"database/sql"
	"flag"
	"fmt"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose"

	"server/internal/infra"
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("migrate: DATABASE_URL is required")
	}

	command := flag.Arg(0)
	if command == "" {
		command = "up"
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database failed")
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		logger.Fatal().Err(err).Msg("migrate: set dialect failed")
	}

	args := flag.Args()
	if len(args) > 1 {
		args = args[1:]
	} else {
		args = nil
	}
	if err := goose.Run(command, db, cfg.MigrationsDir, args...); err != nil {
		logger.Fatal().Err(err).Msg(fmt.Sprintf("migrate: goose %s failed", command))
	}
}
