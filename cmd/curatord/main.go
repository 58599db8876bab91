package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"curator/internal/canonicalize"
	"curator/internal/catalog"
	"curator/internal/config"
	"curator/internal/daemon"
	"curator/internal/logging"
	"curator/internal/provider"
	"curator/internal/workflow"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := catalog.Open(cfg)
	if err != nil {
		logger.Error("open catalog store", logging.Error(err))
		return
	}

	client, err := provider.NewFromConfig(cfg.Provider)
	if err != nil {
		logger.Error("create provider client", logging.Error(err))
		_ = store.Close()
		return
	}

	orchestrator := canonicalize.New(store, client, logger)
	retryInterval := time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second
	manager := workflow.NewManager(store, orchestrator, cfg.Workflow.Workers, cfg.Workflow.QueueDepth, retryInterval, logger)

	d, err := daemon.New(cfg, store, manager, client, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("curatord shutting down")
}
