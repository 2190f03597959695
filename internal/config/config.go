package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Port string

	// Record store (PocketBase) service account.
	PocketBaseURL      string
	PocketBaseEmail    string
	PocketBasePassword string
	StoreTimeout       time.Duration

	// Dashboard session credentials.
	AuthUsername     string
	AuthPasswordHash string
	JWTSecret        string
	SkipAuth         bool

	// Speech synthesis.
	TTSProvider  string
	AWSRegion    string
	OpenAIKey    string
	SynthTimeout time.Duration
}

// Load loads configuration from environment variables.
// Credentials for the record store and the session signer are required:
// without them the service refuses to start rather than running with
// authentication disabled.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		PocketBaseURL:      getEnv("POCKETBASE_URL", "http://127.0.0.1:8090"),
		PocketBaseEmail:    os.Getenv("POCKETBASE_ADMIN_EMAIL"),
		PocketBasePassword: os.Getenv("POCKETBASE_ADMIN_PASSWORD"),
		StoreTimeout:       getDurationEnv("STORE_TIMEOUT_SECONDS", 30*time.Second),
		AuthUsername:       os.Getenv("AUTH_USERNAME"),
		AuthPasswordHash:   os.Getenv("AUTH_PASSWORD_HASH"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SkipAuth:           os.Getenv("SKIP_AUTH") == "true",
		TTSProvider:        getEnv("TTS_PROVIDER", "polly"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		SynthTimeout:       getDurationEnv("SYNTH_TIMEOUT_SECONDS", 120*time.Second),
	}

	if cfg.PocketBaseEmail == "" || cfg.PocketBasePassword == "" {
		return nil, fmt.Errorf("POCKETBASE_ADMIN_EMAIL and POCKETBASE_ADMIN_PASSWORD are required")
	}

	if cfg.AuthUsername == "" {
		return nil, fmt.Errorf("AUTH_USERNAME is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// AUTH_PASSWORD_HASH holds a bcrypt hash. As a convenience a plain
	// AUTH_PASSWORD is accepted and hashed at startup.
	if cfg.AuthPasswordHash == "" {
		plain := os.Getenv("AUTH_PASSWORD")
		if plain == "" {
			return nil, fmt.Errorf("AUTH_PASSWORD_HASH or AUTH_PASSWORD is required")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash AUTH_PASSWORD: %w", err)
		}
		cfg.AuthPasswordHash = string(hash)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
