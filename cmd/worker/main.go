package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kirimart/internal/adapter/repository"
	"kirimart/internal/infrastructure/cache"
	"kirimart/internal/infrastructure/kafka"
	"kirimart/pkg/config"
	"kirimart/pkg/logger"
)

// Standalone durable-event consumer. Persists messages from the event log
// without gateway fan-out; meant for scaling persistence independently of
// the socket server.
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

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	consumer := kafka.NewConsumer(reader, messageRepo, chatRepo, stagingCache, nil)
	defer consumer.Close()

	logger.Info("Starting persistence worker (topic %s, group %s)...", cfg.KafkaTopic, cfg.KafkaGroupID)
	if err := consumer.Run(ctx); err != nil {
		logger.Error("Worker stopped: %v", err)
	}
}
