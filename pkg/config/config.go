package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	Environment string

	MongoURI string
	MongoDB  string

	RedisURL   string
	StagingTTL time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// RetryDrainInterval controls the background drain of the failed-publish
	// queue. Zero disables the drain loop; failed events then wait for
	// manual intervention.
	RetryDrainInterval time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:            getEnv("MONGO_DB", "kirimart"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		StagingTTL:         getEnvAsDuration("STAGING_TTL", 10*time.Minute),
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "chat-messages"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "chat-persistence"),
		RetryDrainInterval: getEnvAsDuration("RETRY_DRAIN_INTERVAL", 0),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
