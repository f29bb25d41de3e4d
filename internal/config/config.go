package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Ai       AIConfig
	Chat     ChatConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	KnowledgeTopic     string
	JWTSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host         string
	Port         int
	Email        string
	Password     string
	SenderName   string
	SupportInbox string
}

type AIConfig struct {
	EmbeddingProvider string // "ollama" or "jina"
	JinaAPIKey        string
	OllamaBaseURL     string
	OllamaModel       string
	LLMProvider       string // "ollama"
	LLMModel          string // e.g. "llama3", "qwen2.5"
}

type ChatConfig struct {
	MaxRetrievalAttempts    int
	RetrievalTopK           int
	MaxSnippetTurns         int
	TicketLockoutPermanent  bool
	LLMTimeoutSeconds       int
	RetrievalTimeoutSeconds int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			KnowledgeTopic:     getEnv("KNOWLEDGE_UPDATED_TOPIC_NAME", "KNOWLEDGE_UPDATED"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:         getEnv("SMTP_HOST", ""),
			Port:         getEnvAsInt("SMTP_PORT", 587),
			Email:        getEnv("SMTP_EMAIL", ""),
			Password:     getEnv("SMTP_PASSWORD", ""),
			SenderName:   getEnv("SMTP_SENDER_NAME", "SupportDesk"),
			SupportInbox: getEnv("SMTP_SUPPORT_INBOX", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			JinaAPIKey:        getEnv("JINA_API_KEY", ""),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
		},
		Chat: ChatConfig{
			MaxRetrievalAttempts:    getEnvAsInt("CHAT_MAX_RETRIEVAL_ATTEMPTS", 5),
			RetrievalTopK:           getEnvAsInt("CHAT_RETRIEVAL_TOP_K", 5),
			MaxSnippetTurns:         getEnvAsInt("CHAT_MAX_SNIPPET_TURNS", 15),
			TicketLockoutPermanent:  getEnvAsBool("CHAT_TICKET_LOCKOUT_PERMANENT", true),
			LLMTimeoutSeconds:       getEnvAsInt("CHAT_LLM_TIMEOUT_SECONDS", 60),
			RetrievalTimeoutSeconds: getEnvAsInt("CHAT_RETRIEVAL_TIMEOUT_SECONDS", 10),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
