// Command seedrules creates or updates pricing rules from a YAML rule pack.
// Usage: go run ./cmd/seedrules [-file rules.yaml]
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jlongo78/joe-ritchey-machining/internal/config"
	"github.com/jlongo78/joe-ritchey-machining/internal/infra"
	"github.com/jlongo78/joe-ritchey-machining/internal/repository"
	"github.com/jlongo78/joe-ritchey-machining/internal/service"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	file := flag.String("file", cfg.RulesFile, "YAML rule pack")
	dryRun := flag.Bool("dry-run", false, "validate the pack without writing")
	flag.Parse()

	rules, err := service.LoadRulePack(*file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("invalid rule pack")
	}
	log.Info().Int("rules", len(rules)).Str("file", *file).Msg("rule pack is valid")
	if *dryRun {
		return
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	created, updated, err := service.SeedRules(ctx, repository.NewStore(db), rules)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to seed rules")
	}
	log.Info().Int("created", created).Int("updated", updated).Msg("rules seeded")
}
