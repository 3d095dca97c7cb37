package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress        string
	AnthropicKey       string
	AnthropicModelID   string
	OpenAIKey          string
	SupabaseURL        string
	SupabaseServiceKey string
	JWTSecret          string
	UseMemoryStore     bool
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file loaded")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	if anthropicKey == "" {
		logrus.Warn("ANTHROPIC_API_KEY not set - coaching feedback will not work")
	}
	anthropicModel := os.Getenv("ANTHROPIC_MODEL_ID")
	if anthropicModel == "" {
		anthropicModel = "claude-sonnet-4-20250514"
	}

	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		logrus.Warn("OPENAI_API_KEY not set - audio transcription will not work")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	useMemory := os.Getenv("USE_MEMORY_STORE") == "true"
	if !useMemory && (supabaseURL == "" || supabaseKey == "") {
		logrus.Warn("SUPABASE_URL / SUPABASE_SERVICE_ROLE_KEY not set - falling back to in-memory store")
		useMemory = true
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logrus.Warn("JWT_SECRET not set - all authenticated requests will be rejected")
	}

	logrus.WithField("addr", addr).Info("config loaded")
	return Config{
		HTTPAddress:        addr,
		AnthropicKey:       anthropicKey,
		AnthropicModelID:   anthropicModel,
		OpenAIKey:          openAIKey,
		SupabaseURL:        supabaseURL,
		SupabaseServiceKey: supabaseKey,
		JWTSecret:          jwtSecret,
		UseMemoryStore:     useMemory,
	}
}
