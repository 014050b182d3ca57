package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Face verification
	FaceAPIURL        string
	RSAPrivateKeyPath string
	RSAPublicKeyPath  string

	// Liveness tuning
	LivenessTimeoutSecs int
	CaptureBurstSize    int
	CaptureIntervalMs   int

	// Storage
	StoragePath string

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8000"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),

		FaceAPIURL:        mustGetEnv("FACE_API_URL"),
		RSAPrivateKeyPath: getEnvOrDefault("RSA_PRIVATE_KEY_PATH", "private.pem"),
		RSAPublicKeyPath:  getEnvOrDefault("RSA_PUBLIC_KEY_PATH", "public.pem"),

		LivenessTimeoutSecs: getEnvAsIntOrDefault("LIVENESS_TIMEOUT_SECONDS", 15),
		CaptureBurstSize:    getEnvAsIntOrDefault("CAPTURE_BURST_SIZE", 5),
		CaptureIntervalMs:   getEnvAsIntOrDefault("CAPTURE_INTERVAL_MS", 400),

		StoragePath: getEnvOrDefault("STORAGE_PATH", "./uploads"),
		SMTPHost:    getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:    getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:    getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:    getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:    getEnvOrDefault("SMTP_FROM", "noreply@nexus.app"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
