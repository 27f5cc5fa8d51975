package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kirimart/internal/adapter/api"
	"kirimart/internal/adapter/api/handler"
	apimiddleware "kirimart/internal/adapter/api/middleware"
	"kirimart/internal/adapter/api/router"
	"kirimart/internal/adapter/repository"
	"kirimart/internal/infrastructure/cache"
	"kirimart/internal/infrastructure/kafka"
	"kirimart/internal/infrastructure/websocket"
	"kirimart/internal/usecase"
	"kirimart/pkg/config"
	"kirimart/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.MongoDB)

	chatRepo := repository.NewMongoChatRepository(db)
	messageRepo := repository.NewMongoMessageRepository(db)

	stagingCache := cache.NewStagingCache(cfg.RedisURL, cfg.StagingTTL)
	defer stagingCache.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer writer.Close()
	publisher := kafka.NewPublisher(writer, stagingCache)
	publisher.StartDrain(ctx, cfg.RetryDrainInterval)

	messageUseCase := usecase.NewMessageUseCase(messageRepo, chatRepo, stagingCache, publisher)
	chatUseCase := usecase.NewChatUseCase(chatRepo, messageUseCase)

	wsManager, err := websocket.NewManager(messageUseCase)
	if err != nil {
		log.Fatalf("Failed to construct gateway: %v", err)
	}

	// The consumer runs in-process so committed messages fan out to the
	// connections this instance owns. Cross-instance broadcast is not
	// implemented; run one api instance or shard clients by instance.
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	consumer := kafka.NewConsumer(reader, messageRepo, chatRepo, stagingCache, wsManager)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			logger.Error("consumer stopped: %v", err)
		}
	}()
	defer consumer.Close()

	authMiddleware := apimiddleware.NewAuthMiddleware()

	chatHandler := handler.NewChatHandler(chatUseCase)
	messageHandler := handler.NewMessageHandler(messageUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)
	healthHandler := handler.NewHealthHandler(stagingCache)

	e := echo.New()

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.Validator = api.NewValidator()

	router.SetupHealthRouter(e, healthHandler)
	router.SetupChatRouter(e, chatHandler, authMiddleware)
	router.SetupMessageRouter(e, messageHandler, authMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server...")
		_ = e.Shutdown(context.Background())
	}()

	logger.Info("Starting server on port %s...", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		logger.Info("Server stopped: %v", err)
	}
}
