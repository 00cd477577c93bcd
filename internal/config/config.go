package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	GeminiAPIKey   string
	HTTPPort       string
	LogLevel       string
	LogFormat      string
	ChatModel      string
	EmbeddingModel string

	UploadDir      string
	MaxUploadBytes int64

	ChunkSize    int
	ChunkOverlap int
	RAGTopK      int

	AnalysisConcurrency int
	ExtractionAttempts  int

	LoadTimeout  time.Duration
	LLMTimeout   time.Duration
	EmbedTimeout time.Duration

	SessionCapacity int
	SessionTTL      time.Duration

	VectorBackend string
	SQLiteDSN     string
}

var AppConfig Config

// LoadConfig reads .env (if present) and the process environment into AppConfig.
func LoadConfig() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := Config{
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-1.5-flash-latest"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),

		UploadDir:      getEnv("UPLOAD_DIR", filepath.Join(os.TempDir(), "resume-uploads")),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 32)) << 20,

		ChunkSize:    getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvAsInt("CHUNK_OVERLAP", 100),
		RAGTopK:      getEnvAsInt("RAG_TOP_K", 4),

		AnalysisConcurrency: getEnvAsInt("ANALYSIS_CONCURRENCY", 4),
		ExtractionAttempts:  getEnvAsInt("EXTRACTION_ATTEMPTS", 1),

		LoadTimeout:  getEnvAsDuration("LOAD_TIMEOUT", 30*time.Second),
		LLMTimeout:   getEnvAsDuration("LLM_TIMEOUT", 60*time.Second),
		EmbedTimeout: getEnvAsDuration("EMBED_TIMEOUT", 30*time.Second),

		SessionCapacity: getEnvAsInt("SESSION_CAPACITY", 1000),
		SessionTTL:      getEnvAsDuration("SESSION_TTL", 12*time.Hour),

		VectorBackend: strings.ToLower(getEnv("VECTOR_BACKEND", BackendMemory)),
		SQLiteDSN:     getEnv("SQLITE_DSN", "file:sessions?mode=memory&cache=shared"),
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	AppConfig = cfg
	return nil
}

// Validate checks the settings the pipeline cannot run without.
func (c Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY environment variable is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap*2 >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE/2), got %d", c.ChunkOverlap)
	}
	if c.RAGTopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAGTopK)
	}
	if c.AnalysisConcurrency <= 0 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY must be positive, got %d", c.AnalysisConcurrency)
	}
	if c.ExtractionAttempts <= 0 {
		return fmt.Errorf("EXTRACTION_ATTEMPTS must be positive, got %d", c.ExtractionAttempts)
	}
	if c.SessionCapacity < 0 {
		return fmt.Errorf("SESSION_CAPACITY must not be negative, got %d", c.SessionCapacity)
	}
	switch c.VectorBackend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}
	return nil
}

// Debug reports whether verbose logging was requested.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "DEBUG")
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
