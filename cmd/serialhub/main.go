// Command serialhub serves a menu session on every configured serial line.
//
// The configuration file is read from HUB_CONFIG (default serialhub.yaml);
// HUB_LOG_LEVEL sets the log level and HUB_LOG_FORMAT=console switches the
// stderr log from JSON to console lines.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-serialhub/config"
	"github.com/arloliu/go-serialhub/hub"
	"github.com/arloliu/go-serialhub/logger"
)

func main() {
	level, err := logger.ParseLevel(os.Getenv("HUB_LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}

	log := logger.NewSlog(level, false)
	logger.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("serialhub failed", "error", err)
		os.Exit(1)
	}
}

func run(log logger.Logger) error {
	path := config.Path()

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	ports, err := cfg.PortConfigs()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := hub.New(ctx, cfg.SessionEnv(log), ports, cfg.HubOptions()...)
	if err != nil {
		return err
	}

	log.Info("configuration loaded", "path", path, "lines", len(ports), "directory", len(cfg.Directory))

	if err := h.Start(); err != nil {
		h.Stop()
		return err
	}

	<-ctx.Done()
	log.Info("exit signal received")
	h.Stop()

	return nil
}
