package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/networg/constructsafe/internal/api"
	"github.com/networg/constructsafe/internal/config"
	"github.com/networg/constructsafe/internal/database"
	"github.com/networg/constructsafe/internal/flowclient"
	"github.com/networg/constructsafe/internal/queue"
	"github.com/networg/constructsafe/internal/repository"
	"github.com/networg/constructsafe/internal/s3storage"
	"github.com/networg/constructsafe/internal/service"
	"github.com/networg/constructsafe/internal/ticket"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}
	repo := repository.New(pool)

	objects, err := s3storage.New(cfg)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		log.Fatalf("ensure buckets: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()
	tasks := queue.NewClient(asynqClient)

	records := service.NewRecords(repo, ticket.NewGenerator(repo), tasks)
	flow := flowclient.New(cfg.ReportFlowURL)

	srv := api.New(cfg, records, repo, objects, tasks, flow)
	if err := srv.Run(ctx); err != nil {
		log.Printf("server stopped: %v", err)
		os.Exit(1)
	}
}
