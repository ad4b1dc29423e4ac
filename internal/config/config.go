package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"learnforge/internal/core"
	"learnforge/internal/store"
)

// Storage backends accepted in STORAGE_BACKEND.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMinIO  = "minio"
	BackendMemory = "memory"
)

type Config struct {
	HTTPPort string
	LogLevel string

	StorageBackend string
	DataDir        string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	AIBaseURL      string
	AIAPIKey       string
	AIModel        string
	OutputLanguage string
	AITimeout      time.Duration

	SettingsFile string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}
	AppConfig = FromEnv()
}

// FromEnv reads the configuration from the process environment.
func FromEnv() Config {
	return Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", BackendFile)),
		DataDir:        getEnv("DATA_DIR", "./data"),
		DatabaseURL:    getEnv("DATABASE_URL", "learnforge.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinIOBucket:    getEnv("MINIO_BUCKET", "learnforge"),
		MinIOUseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		AIBaseURL:      getEnv("AI_BASE_URL", "http://localhost:3052/v1"),
		AIAPIKey:       getEnv("AI_API_KEY", ""),
		AIModel:        getEnv("AI_MODEL", "gemini-2.5-flash"),
		OutputLanguage: getEnv("OUTPUT_LANGUAGE", "Traditional Chinese"),
		AITimeout:      time.Duration(getEnvAsInt("AI_TIMEOUT_SECONDS", 120)) * time.Second,
		SettingsFile:   getEnv("SETTINGS_FILE", ""),
	}
}

// DefaultSettings builds the settings a newly registered user starts with.
// Values from SettingsFile, when set, replace the environment defaults one
// field at a time; blank fields in the file are ignored.
func (c Config) DefaultSettings() (store.AppSettings, error) {
	ai := func(basePrompt string) store.AIConfig {
		return store.AIConfig{
			BaseURL:    c.AIBaseURL,
			APIKey:     c.AIAPIKey,
			Model:      c.AIModel,
			BasePrompt: basePrompt,
		}
	}
	settings := store.AppSettings{
		Language:     c.OutputLanguage,
		GenerationAI: ai(core.DefaultGenerateBasePrompt),
		TipsAI:       ai(core.DefaultTipsBasePrompt),
		ChatAI:       ai(core.DefaultChatBasePrompt),
	}
	if c.SettingsFile == "" {
		return settings, nil
	}

	data, err := os.ReadFile(c.SettingsFile)
	if err != nil {
		return settings, fmt.Errorf("read settings file: %w", err)
	}
	var file store.AppSettings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return settings, fmt.Errorf("parse settings file: %w", err)
	}
	overlay(&settings.Language, file.Language)
	overlayAI(&settings.GenerationAI, file.GenerationAI)
	overlayAI(&settings.TipsAI, file.TipsAI)
	overlayAI(&settings.ChatAI, file.ChatAI)
	return settings, nil
}

// SeedData is what the store needs to register a new user.
func (c Config) SeedData() (store.SeedData, error) {
	settings, err := c.DefaultSettings()
	if err != nil {
		return store.SeedData{}, err
	}
	return store.SeedData{
		Settings:    settings,
		Categories:  []store.Category{},
		ChatHistory: []store.ChatMessage{},
	}, nil
}

func overlayAI(dst *store.AIConfig, src store.AIConfig) {
	overlay(&dst.BaseURL, src.BaseURL)
	overlay(&dst.APIKey, src.APIKey)
	overlay(&dst.Model, src.Model)
	overlay(&dst.BasePrompt, src.BasePrompt)
}

func overlay(dst *string, src string) {
	if strings.TrimSpace(src) != "" {
		*dst = src
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
