package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppName     string
	Environment string
	Port        string
	Debug       bool
	LogLevel    string
	CORSOrigins []string
	OpenAI      OpenAIConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Upload      UploadConfig
	RateLimit   RateLimitConfig
}

type OpenAIConfig struct {
	APIKey     string
	Model      string
	TitleModel string
}

type MongoConfig struct {
	URI    string
	DBName string
}

type RedisConfig struct {
	URL string
}

type UploadConfig struct {
	MaxFileSizeMB     int
	AllowedExtensions []string
}

type RateLimitConfig struct {
	PerMinute int
	// DailyTokenBudget is read from the environment but not enforced
	// anywhere yet.
	DailyTokenBudget int
}

func Load() *Config {
	return &Config{
		AppName:     getEnv("APP_NAME", "Conversa AI"),
		Environment: getEnv("ENV", "development"),
		Port:        getEnv("PORT", "8000"),
		Debug:       getEnvBool("DEBUG", false),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getEnvList("CORS_ORIGINS", "http://localhost:3000"),
		OpenAI: OpenAIConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			Model:      getEnv("OPENAI_MODEL", "gpt-4o"),
			TitleModel: getEnv("OPENAI_TITLE_MODEL", "gpt-4o-mini"),
		},
		Mongo: MongoConfig{
			URI:    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getEnv("MONGODB_DB_NAME", "fullstack_ai_chat"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Upload: UploadConfig{
			MaxFileSizeMB:     getEnvInt("MAX_FILE_SIZE_MB", 10),
			AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", "pdf,docx,xlsx,png,jpg,jpeg,webp"),
		},
		RateLimit: RateLimitConfig{
			PerMinute:        getEnvInt("RATE_LIMIT_PER_MINUTE", 20),
			DailyTokenBudget: getEnvInt("DAILY_TOKEN_BUDGET", 100000),
		},
	}
}

// MaxFileSizeBytes is the per-file upload limit in bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.Upload.MaxFileSizeMB) * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
