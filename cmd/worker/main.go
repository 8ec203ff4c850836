package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"voucherDesk/internal/config"
	"voucherDesk/internal/database"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/metrics"
	"voucherDesk/internal/pdf"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
	"voucherDesk/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Println("database connection ready for worker")

	catalog, err := layout.LoadCatalog(cfg.Layout.CatalogPath)
	if err != nil {
		log.Fatalf("load layout catalog: %v", err)
	}
	node, err := snowflake.NewNode(cfg.Layout.SnowflakeNode)
	if err != nil {
		log.Fatalf("init snowflake node: %v", err)
	}
	// worker 只回写缩略图，不再投递新的缩略图任务。
	templateService := templates.NewService(db, node, catalog, nil, logger)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	redisAddr := cfg.Redis.Addr()
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
	})

	prints := worker.NewPrintClient(cfg.API.InternalBaseURL, cfg.API.InternalSecret)
	renderer := pdf.NewGenerator(logger)

	previewHandler := worker.NewTemplatePreviewHandler(prints, renderer, storageClient, templateService, redisClient, logger)
	renderHandler := worker.NewVoucherRenderHandler(prints, renderer, storageClient, redisClient, logger)

	mux := asynq.NewServeMux()
	mux.Use(metrics.AsynqMetricsMiddleware())
	mux.Handle(tasks.TypeTemplatePreview, previewHandler)
	mux.Handle(tasks.TypeVoucherRender, renderHandler)

	logger.Info("worker service started", slog.String("redis_addr", redisAddr))
	if err := server.Run(mux); err != nil {
		logger.Error("worker server stopped", slog.Any("error", err))
	}
}
