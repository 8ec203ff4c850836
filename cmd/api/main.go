package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"voucherDesk/internal/api"
	"voucherDesk/internal/config"
	"voucherDesk/internal/database"
	"voucherDesk/internal/editor"
	"voucherDesk/internal/layout"
	"voucherDesk/internal/printtoken"
	"voucherDesk/internal/storage"
	"voucherDesk/internal/tasks"
	"voucherDesk/internal/templates"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	log.Printf("api bootstrapped with db host=%s port=%d db=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	log.Printf("database connection ready")

	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	log.Printf("database migrated")

	catalog, err := layout.LoadCatalog(cfg.Layout.CatalogPath)
	if err != nil {
		log.Fatalf("load layout catalog: %v", err)
	}

	node, err := snowflake.NewNode(cfg.Layout.SnowflakeNode)
	if err != nil {
		log.Fatalf("init snowflake node: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error("close redis client failed", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr()})
	defer asynqClient.Close()
	enqueuer := tasks.NewEnqueuer(asynqClient)

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	log.Printf("storage client ready, bucket=%s", cfg.MinIO.Bucket)

	tokens, err := printtoken.NewService(cfg.Print.TokenSecret, cfg.Print.TokenTTL)
	if err != nil {
		log.Fatalf("init print token service: %v", err)
	}

	templateService := templates.NewService(db, node, catalog, enqueuer, logger)

	var sessionStore editor.Store
	switch strings.ToLower(cfg.Editor.SessionStore) {
	case "memory":
		sessionStore = editor.NewMemoryStore(cfg.Editor.SessionTTL)
	default:
		sessionStore = editor.NewRedisStore(redisClient, cfg.Editor.SessionTTL)
	}
	manager := editor.NewManager(sessionStore, templateService, catalog, logger)

	var scanner api.VirusScanner
	if cfg.ClamAV.Address != "" {
		scanner = api.NewClamdScanner(cfg.ClamAV.Address)
	}
	assetHandler := api.NewAssetHandler(db, storageClient, scanner, redisClient, node)

	handlers, err := api.NewHandlers(api.Deps{
		Templates:      templateService,
		Catalog:        catalog,
		Renders:        enqueuer,
		Storage:        storageClient,
		Tokens:         tokens,
		Editor:         manager,
		Assets:         assetHandler,
		Redis:          redisClient,
		PublicBaseURL:  cfg.API.PublicBaseURL,
		AllowedOrigins: cfg.API.Origins(),
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("init handlers: %v", err)
	}

	router := api.NewRouter(logger)
	api.RegisterRoutes(router, handlers, cfg.API.InternalSecret)

	address := fmt.Sprintf(":%d", cfg.API.Port)
	log.Printf("api listening on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatalf("failed to start api server: %v", err)
	}
}
