package main

import (
	"context"

	"github.com/joho/godotenv"

	"chatdb/internal/app"
	"chatdb/pkg/config"
	"chatdb/pkg/logger"
	"chatdb/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	fl := config.ParseFlags()
	cfg, sources, err := config.LoadEffective(fl)
	if err != nil {
		shutdown.Abort("failed to load config", err, "", 0)
	}

	logger.Init(cfg.Logging.Level)
	defer logger.Sync()

	a, err := app.New(cfg, sources, version)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Storage.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("runtime failure", err, cfg.Storage.DBPath, 0)
	}
	logger.Info("shutdown_complete")
}
