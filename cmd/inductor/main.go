package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/inductor/internal/app"
	"github.com/seantiz/inductor/internal/config"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	code := app.Run(context.Background(), app.Options{
		Config:    cfg,
		Logger:    logger,
		Redis:     rdb,
		Executors: app.CommandExecutors(cfg, logger),
	}, signals)

	rdb.Close()
	os.Exit(code)
}
