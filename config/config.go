// Package config provides configuration for the bot.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Capabilities are the agent's tool capability flags. All default to true,
// matching the fully-equipped agent configuration.
type Capabilities struct {
	Calculator          bool
	WebSearch           bool
	FileTools           bool
	FinanceTools        bool
	DataAnalyst         bool
	PythonAssistant     bool
	ResearchAssistant   bool
	InvestmentAssistant bool
	Crawler             bool
}

// ContainerConfig describes the pgvector container the supervisor manages.
type ContainerConfig struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	DBName        string
	DBUser        string
	DBPassword    string
}

// DSN returns the Postgres connection string for the supervised container.
func (c ContainerConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@localhost:%d/%s",
		c.DBUser, c.DBPassword, c.HostPort, c.DBName)
}

// Config holds the bot configuration.
type Config struct {
	// Server settings
	HTTPPort  int
	AccessKey string // empty means requests are accepted without a key

	// Model settings
	ModelID        string
	EmbeddingModel string
	LLMBaseURL     string
	LLMAPIKey      string
	LLMTimeout     time.Duration

	// Agent settings
	Capabilities  Capabilities
	FileWorkdir   string
	MaxToolRounds int

	// Store settings
	StoreBackend string // sqlite | redis
	SQLiteDSN    string
	RedisAddr    string

	// Supervised pgvector container
	SupervisorDisabled bool
	Container          ContainerConfig
	ReadyTimeout       time.Duration

	// Vector memory
	MemoryEnabled bool
	MemoryTopK    int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and, when present, a
// poegate.yaml file in the working directory.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("http_port", 8080)
	v.SetDefault("access_key", "")

	v.SetDefault("model_id", "gpt-4o-mini")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("llm_base_url", "https://api.openai.com")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_timeout_ms", 300000)

	v.SetDefault("capabilities.calculator", true)
	v.SetDefault("capabilities.web_search", true)
	v.SetDefault("capabilities.file_tools", true)
	v.SetDefault("capabilities.finance_tools", true)
	v.SetDefault("capabilities.data_analyst", true)
	v.SetDefault("capabilities.python_assistant", true)
	v.SetDefault("capabilities.research_assistant", true)
	v.SetDefault("capabilities.investment_assistant", true)
	v.SetDefault("capabilities.crawler", true)
	v.SetDefault("file_workdir", "workdir")
	v.SetDefault("max_tool_rounds", 8)

	v.SetDefault("store_backend", "sqlite")
	v.SetDefault("sqlite_dsn", "file:poegate.db?cache=shared&mode=rwc")
	v.SetDefault("redis_addr", "localhost:6379")

	v.SetDefault("supervisor_disabled", false)
	v.SetDefault("container.name", "pgvector")
	v.SetDefault("container.image", "phidata/pgvector:16")
	v.SetDefault("container.host_port", 5532)
	v.SetDefault("container.container_port", 5432)
	v.SetDefault("container.db_name", "ai")
	v.SetDefault("container.db_user", "ai")
	v.SetDefault("container.db_password", "ai")
	v.SetDefault("ready_timeout_ms", 60000)

	v.SetDefault("memory_enabled", true)
	v.SetDefault("memory_top_k", 5)

	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("POEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("poegate")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		HTTPPort:  v.GetInt("http_port"),
		AccessKey: v.GetString("access_key"),

		ModelID:        v.GetString("model_id"),
		EmbeddingModel: v.GetString("embedding_model"),
		LLMBaseURL:     v.GetString("llm_base_url"),
		LLMAPIKey:      v.GetString("llm_api_key"),
		LLMTimeout:     time.Duration(v.GetInt("llm_timeout_ms")) * time.Millisecond,

		Capabilities: Capabilities{
			Calculator:          v.GetBool("capabilities.calculator"),
			WebSearch:           v.GetBool("capabilities.web_search"),
			FileTools:           v.GetBool("capabilities.file_tools"),
			FinanceTools:        v.GetBool("capabilities.finance_tools"),
			DataAnalyst:         v.GetBool("capabilities.data_analyst"),
			PythonAssistant:     v.GetBool("capabilities.python_assistant"),
			ResearchAssistant:   v.GetBool("capabilities.research_assistant"),
			InvestmentAssistant: v.GetBool("capabilities.investment_assistant"),
			Crawler:             v.GetBool("capabilities.crawler"),
		},
		FileWorkdir:   v.GetString("file_workdir"),
		MaxToolRounds: v.GetInt("max_tool_rounds"),

		StoreBackend: v.GetString("store_backend"),
		SQLiteDSN:    v.GetString("sqlite_dsn"),
		RedisAddr:    v.GetString("redis_addr"),

		SupervisorDisabled: v.GetBool("supervisor_disabled"),
		Container: ContainerConfig{
			Name:          v.GetString("container.name"),
			Image:         v.GetString("container.image"),
			HostPort:      v.GetInt("container.host_port"),
			ContainerPort: v.GetInt("container.container_port"),
			DBName:        v.GetString("container.db_name"),
			DBUser:        v.GetString("container.db_user"),
			DBPassword:    v.GetString("container.db_password"),
		},
		ReadyTimeout: time.Duration(v.GetInt("ready_timeout_ms")) * time.Millisecond,

		MemoryEnabled: v.GetBool("memory_enabled"),
		MemoryTopK:    v.GetInt("memory_top_k"),

		LogLevel: v.GetString("log_level"),
	}

	return cfg, nil
}
