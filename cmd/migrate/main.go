package main

import (
	"flag"

	"github.com/avirag26/scholaro-api/internal/config"
	"github.com/avirag26/scholaro-api/internal/db"
	"github.com/avirag26/scholaro-api/internal/obs"
)

func main() {
	steps := flag.Int("steps", 1, "migrations to roll back with down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "migrate").Logger()

	switch cmd := flag.Arg(0); cmd {
	case "", "up":
		err = db.Up(cfg.DatabaseURL, logger)
	case "down":
		err = db.Down(cfg.DatabaseURL, *steps, logger)
	default:
		logger.Fatal().Str("command", cmd).Msg("usage: migrate [up|down] [-steps n]")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
}
