package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	LLMProvider string
	LLMModel    string

	ExtractorURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	UIRedirectURL      string

	StripeSecretKey            string
	StripeWebhookSecret        string
	StarterMonthlyPriceID      string
	StarterYearlyPriceID       string
	ProfessionalMonthlyPriceID string
	ProfessionalYearlyPriceID  string

	WorkerConcurrency int
	WorkerPollEvery   time.Duration
	JobLeaseDuration  time.Duration
	JobTimeout        time.Duration
	StuckJobThreshold time.Duration
	SweepEvery        time.Duration
	CleanupMaxAgeDays int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		LLMProvider: getEnv("LLM_PROVIDER", "openai"),
		LLMModel:    getEnv("LLM_MODEL", ""),

		ExtractorURL: getEnv("EXTRACTOR_URL", ""),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		UIRedirectURL:      getEnv("UI_REDIRECT_URL", ""),

		StripeSecretKey:            getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:        getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StarterMonthlyPriceID:      getEnv("STRIPE_PRICE_STARTER_MONTHLY", ""),
		StarterYearlyPriceID:       getEnv("STRIPE_PRICE_STARTER_YEARLY", ""),
		ProfessionalMonthlyPriceID: getEnv("STRIPE_PRICE_PROFESSIONAL_MONTHLY", ""),
		ProfessionalYearlyPriceID:  getEnv("STRIPE_PRICE_PROFESSIONAL_YEARLY", ""),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollEvery:   getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		JobLeaseDuration:  getEnvDuration("JOB_LEASE_DURATION", 15*time.Minute),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", 10*time.Minute),
		StuckJobThreshold: getEnvDuration("STUCK_JOB_THRESHOLD", 15*time.Minute),
		SweepEvery:        getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		CleanupMaxAgeDays: getEnvInt("CLEANUP_MAX_AGE_DAYS", 30),
	}
}

func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Printf("config: load %s: %v", path, err)
		}
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s invalid int: %v", key, err)
		return def
	}
	return val
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config: %s invalid duration: %v", key, err)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
