package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barcollector/config"
	"barcollector/internal/kite/collector"
	"barcollector/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// run collector
	c, err := collector.Start(cfg, log)
	if err != nil {
		log.Fatal("collector failed to start", zap.Error(err))
	}

	// flush open bars on SIGINT/SIGTERM
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", zap.String("signal", s.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}
