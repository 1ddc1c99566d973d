package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/jeffnash/cot-proxy/internal/api"
	"github.com/jeffnash/cot-proxy/internal/config"
	"github.com/jeffnash/cot-proxy/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	// Populate the environment from .env when present; real environment
	// variables keep precedence.
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	logging.Setup(cfg.Debug, cfg.LogFile)
	log.Infof("configured %d model profiles, target %s", len(cfg.Profiles), cfg.TargetBaseURL)

	store := config.NewStore(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, store); err != nil && ctx.Err() == nil {
				log.Errorf("config watcher stopped: %v", err)
			}
		}()
	}

	if err := api.New(store).Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
