// engagic-import loads the city seed file (CSV or JSON) into the database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/engagic/engagic/pkg/cities"
	"github.com/engagic/engagic/pkg/config"
	"github.com/engagic/engagic/pkg/database"
	"github.com/engagic/engagic/pkg/store"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file (optional)")
	seedPath := flag.String("seed", "", "Path to the city seed file (.csv or .json)")
	flag.Parse()

	if *seedPath == "" {
		slog.Error("Missing required -seed flag")
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil {
		slog.Info("No .env file loaded, using process environment", "path", *envFile)
	}

	// the importer needs the database only; a placeholder key keeps the
	// shared config validation happy without touching the LLM
	if os.Getenv("LLM_API_KEY") == "" {
		_ = os.Setenv("LLM_API_KEY", "unused-by-importer")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	if err != nil {
		slog.Error("Database initialisation failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	imported, err := cities.Import(ctx, db, store.NewCityRepo(), *seedPath)
	if err != nil {
		slog.Error("Seed import failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Seed import complete", "cities", imported)
}
