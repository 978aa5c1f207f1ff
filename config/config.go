package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string

	// AWS
	AWSRegion        string
	ArtifactBucket   string
	DispatchQueueURL string
	SageMakerRoleARN string
	TrainingImage    string
	InstanceType     string

	// Cancel-while-queued poll budget
	CancelPollInterval time.Duration
	CancelPollTimeout  time.Duration

	// Background loops
	FinalizeSweepInterval time.Duration
	MetricsFanOut         int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		DatabaseURL:           getEnv("DATABASE_URL", "postgres://localhost/rl_orchestrator?sslmode=disable"),
		ServerPort:            getEnv("SERVER_PORT", "8080"),
		AWSRegion:             getEnv("AWS_REGION", "us-east-1"),
		ArtifactBucket:        getEnv("ARTIFACT_BUCKET", "rl-orchestrator-artifacts"),
		DispatchQueueURL:      getEnv("DISPATCH_QUEUE_URL", ""),
		SageMakerRoleARN:      getEnv("SAGEMAKER_ROLE_ARN", ""),
		TrainingImage:         getEnv("TRAINING_IMAGE", ""),
		InstanceType:          getEnv("TRAINING_INSTANCE_TYPE", "ml.c5.2xlarge"),
		CancelPollInterval:    getDuration("CANCEL_POLL_INTERVAL", 5*time.Second),
		CancelPollTimeout:     getDuration("CANCEL_POLL_TIMEOUT", 2*time.Minute),
		FinalizeSweepInterval: getDuration("FINALIZE_SWEEP_INTERVAL", 30*time.Second),
		MetricsFanOut:         getInt("METRICS_FANOUT", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
