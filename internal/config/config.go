package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultSystemPrompt = "You are an F1 chatbot. Provide accurate and engaging responses about Formula 1."

// Config contains all runtime settings for the pitwall chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	LLMMode         string
	LLMAPIKey       string
	LLMBaseURL      string
	LLMHTTPURL      string
	LLMModel        string
	LLMMaxTokens    int
	LLMTemperature  float64
	LLMSystemPrompt string
	LLMTimeout      time.Duration

	ChampionsURL          string
	ChampionSeason        string
	ChampionTableSelector string
	ChampionSeasonColumn  int
	ChampionNameColumn    int
	ScrapeTimeout         time.Duration
	ChampionCacheTTL      time.Duration

	IntentRulesFile string

	DatabaseURL        string
	MongoDatabase      string
	MemoryHistoryLimit int
	MemoryRedactPII    bool
	PersistTimeout     time.Duration

	NewsSourcesFile     string
	NewsRefreshInterval time.Duration
	NewsLimit           int

	NATSURL     string
	NATSSubject string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "pitwall"),
		AllowAnyOrigin:   false,
		LLMMode:          envOrDefault("LLM_MODE", "auto"),
		LLMAPIKey:        stringsTrimSpace("ANTHROPIC_API_KEY"),
		LLMBaseURL:       envOrDefault("LLM_BASE_URL", "https://api.anthropic.com"),
		LLMHTTPURL:       stringsTrimSpace("LLM_HTTP_URL"),
		LLMModel:         envOrDefault("LLM_MODEL", "claude-3-5-sonnet-20241022"),
		LLMMaxTokens:     500,
		LLMTemperature:   0.7,
		LLMSystemPrompt:  envOrDefault("LLM_SYSTEM_PROMPT", defaultSystemPrompt),
		LLMTimeout:       10 * time.Second,
		ChampionsURL: envOrDefault("CHAMPIONS_URL",
			"https://en.wikipedia.org/wiki/List_of_Formula_One_World_Drivers%27_Champions"),
		// Empty selects the last data row of the table.
		ChampionSeason:        stringsTrimSpace("CHAMPION_SEASON"),
		ChampionTableSelector: envOrDefault("CHAMPION_TABLE_SELECTOR", "table.wikitable"),
		ChampionSeasonColumn:  0,
		ChampionNameColumn:    1,
		ScrapeTimeout:         8 * time.Second,
		ChampionCacheTTL:      time.Hour,
		IntentRulesFile:       stringsTrimSpace("INTENT_RULES_FILE"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		MongoDatabase:         envOrDefault("MONGO_DATABASE", "pitwall"),
		MemoryHistoryLimit:    5,
		MemoryRedactPII:       true,
		PersistTimeout:        5 * time.Second,
		NewsSourcesFile:       stringsTrimSpace("NEWS_SOURCES_FILE"),
		NewsRefreshInterval:   15 * time.Minute,
		NewsLimit:             10,
		NATSURL:               stringsTrimSpace("NATS_URL"),
		NATSSubject:           envOrDefault("NATS_SUBJECT", "pitwall.news"),
		ShutdownTimeout:       15 * time.Second,
	}
	if cfg.LLMAPIKey == "" {
		// Older deployments still export the key under its previous name.
		cfg.LLMAPIKey = stringsTrimSpace("CLAUDE_API_KEY")
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ChampionSeasonColumn, err = intFromEnv("CHAMPION_SEASON_COLUMN", cfg.ChampionSeasonColumn)
	if err != nil {
		return Config{}, err
	}
	cfg.ChampionNameColumn, err = intFromEnv("CHAMPION_NAME_COLUMN", cfg.ChampionNameColumn)
	if err != nil {
		return Config{}, err
	}
	cfg.ScrapeTimeout, err = durationFromEnv("SCRAPE_TIMEOUT", cfg.ScrapeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ChampionCacheTTL, err = durationFromEnv("CHAMPION_CACHE_TTL", cfg.ChampionCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryHistoryLimit, err = intFromEnv("MEMORY_HISTORY_LIMIT", cfg.MemoryHistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRedactPII, err = boolFromEnv("MEMORY_REDACT_PII", cfg.MemoryRedactPII)
	if err != nil {
		return Config{}, err
	}
	cfg.PersistTimeout, err = durationFromEnv("PERSIST_TIMEOUT", cfg.PersistTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.NewsRefreshInterval, err = durationFromEnv("NEWS_REFRESH_INTERVAL", cfg.NewsRefreshInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.NewsLimit, err = intFromEnv("NEWS_LIMIT", cfg.NewsLimit)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive")
	}
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("SCRAPE_TIMEOUT must be positive")
	}
	if c.PersistTimeout <= 0 {
		return fmt.Errorf("PERSIST_TIMEOUT must be positive")
	}
	if c.ChampionCacheTTL < 0 {
		return fmt.Errorf("CHAMPION_CACHE_TTL must be >= 0")
	}
	if c.NewsRefreshInterval < 0 {
		return fmt.Errorf("NEWS_REFRESH_INTERVAL must be >= 0")
	}
	if c.LLMMaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 1 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 1]")
	}
	if c.MemoryHistoryLimit < 1 || c.MemoryHistoryLimit > 50 {
		return fmt.Errorf("MEMORY_HISTORY_LIMIT must be within [1, 50]")
	}
	if c.NewsLimit <= 0 {
		return fmt.Errorf("NEWS_LIMIT must be positive")
	}
	if c.ChampionSeasonColumn < 0 || c.ChampionNameColumn < 0 {
		return fmt.Errorf("CHAMPION_SEASON_COLUMN and CHAMPION_NAME_COLUMN must be >= 0")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
