package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ReplicateSettings holds everything needed to talk to the training and
// generation provider.
type ReplicateSettings struct {
	APIKey         string
	Owner          string
	TrainerModel   string
	TrainerVersion string
	WebhookURL     string
}

// MinIOSettings holds blob-store connection details.
type MinIOSettings struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Config holds all configuration for the backend.
type Config struct {
	DatabaseURL string
	Replicate   ReplicateSettings
	MinIO       MinIOSettings
	KafkaBroker string
	NotifyTopic string
	OpenAIKey   string
	OpenAIModel string

	// Database
	DB *gorm.DB
}

// New builds configuration from the environment and opens the database.
func New(databaseURL string) (*Config, error) {
	cfg := &Config{
		DatabaseURL: databaseURL,
		Replicate: ReplicateSettings{
			APIKey:         os.Getenv("REPLICATE_API_KEY"),
			Owner:          os.Getenv("REPLICATE_OWNER"),
			TrainerModel:   getEnvOrDefault("REPLICATE_TRAINER_MODEL", "ostris/flux-dev-lora-trainer"),
			TrainerVersion: os.Getenv("REPLICATE_TRAINER_VERSION"),
			WebhookURL:     os.Getenv("REPLICATE_WEBHOOK_URL"),
		},
		MinIO: MinIOSettings{
			Endpoint:  getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    getEnvBool("MINIO_USE_SSL"),
			Bucket:    getEnvOrDefault("MINIO_BUCKET", "avatar-data"),
		},
		KafkaBroker: getEnvOrDefault("KAFKA_BROKER", "localhost:9092"),
		NotifyTopic: getEnvOrDefault("NOTIFY_TOPIC", "user-notifications"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
	}

	if cfg.Replicate.APIKey == "" {
		return nil, fmt.Errorf("REPLICATE_API_KEY is not configured")
	}
	if cfg.Replicate.Owner == "" {
		return nil, fmt.Errorf("REPLICATE_OWNER is not configured")
	}

	if err := cfg.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	log.Println("Configuration initialized successfully")
	return cfg, nil
}

// initDatabase opens the connection pool and migrates the job tables.
func (c *Config) initDatabase() error {
	db, err := gorm.Open(postgres.Open(c.DatabaseURL), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&TrainingJob{}, &GenerationJob{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	c.DB = db
	log.Println("Database initialized successfully")
	return nil
}

// Close closes all connections.
func (c *Config) Close() {
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
