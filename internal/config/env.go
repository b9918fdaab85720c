package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ApplyEnv loads a .env file from the working directory when present and overlays
// environment variables on cfg. Variables already set take precedence over .env values.
func ApplyEnv(cfg *Config) {
	_ = godotenv.Load()

	setString(&cfg.Store.DSN, "KIOKU_STORE_DSN")
	setString(&cfg.Embedding.Provider, "KIOKU_EMBEDDING_PROVIDER")
	setString(&cfg.Embedding.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&cfg.Embedding.APIKey, "AZURE_OPENAI_API_KEY")
	setString(&cfg.Embedding.Deployment, "AZURE_OPENAI_EMBEDDING_DEPLOYMENT")
	setString(&cfg.Embedding.APIVersion, "AZURE_OPENAI_API_VERSION")
	setString(&cfg.Embedding.Endpoint, "KIOKU_EMBEDDING_ENDPOINT")
	setString(&cfg.Embedding.APIKey, "KIOKU_EMBEDDING_API_KEY")
	setString(&cfg.Embedding.Model, "KIOKU_EMBEDDING_MODEL")
	setInt(&cfg.Embedding.Dimensions, "KIOKU_EMBEDDING_DIMENSIONS")
	setInt(&cfg.Server.Port, "KIOKU_PORT")
	setString(&cfg.Server.Host, "KIOKU_HOST")
	if v := os.Getenv("KIOKU_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
