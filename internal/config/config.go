package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Model providers accepted by MODEL_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	AI       AIConfig
	Geocode  GeocodeConfig
	Chart    ChartConfig
	Session  SessionConfig
	LogLevel string
}

// Load 从环境变量加载配置。缺失必需的凭证时返回错误。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	geocode, err := loadGeocodeConfig()
	if err != nil {
		return nil, err
	}

	chart, err := loadChartConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:   server,
		AI:       ai,
		Geocode:  geocode,
		Chart:    chart,
		Session:  session,
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing required value at once.
func (c *Config) Validate() error {
	var missing []string
	if !c.AI.Enabled() {
		switch c.AI.Provider {
		case ProviderArk:
			missing = append(missing, "ARK_API_KEY (or ARK_ACCESS_KEY+ARK_SECRET_KEY) and ARK_MODEL")
		default:
			missing = append(missing, "GEMINI_API_KEY")
		}
	}
	if c.Geocode.APIKey == "" {
		missing = append(missing, "OPENCAGE_API_KEY")
	}
	if c.Chart.ClientID == "" {
		missing = append(missing, "ASTROLOGY_CLIENT_ID")
	}
	if c.Chart.ClientSecret == "" {
		missing = append(missing, "ASTROLOGY_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr             string
	MetricsNamespace string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	namespace := getEnvOrDefault("METRICS_NAMESPACE", "astrochat")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return ServerConfig{Addr: port, MetricsNamespace: namespace}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, MetricsNamespace: namespace}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	Timeout         time.Duration
}

// Enabled 表示所选提供方是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderArk:
		return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	default:
		return false
	}
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, errors.New("ark credentials or model missing, provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	temperature := float32(c.Temperature)
	topP := float32(c.TopP)
	maxTokens := c.MaxOutputTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("MODEL_PROVIDER", ProviderGemini))
	if provider != ProviderGemini && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid MODEL_PROVIDER value %q", provider)
	}

	temperature, err := parseFloatEnv("MODEL_TEMPERATURE", 0.7)
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseFloatEnv("MODEL_TOP_P", 0.95)
	if err != nil {
		return AIConfig{}, err
	}

	topK, err := parseIntEnv("MODEL_TOP_K", 40)
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseIntEnv("MODEL_MAX_OUTPUT_TOKENS", 1000)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("MODEL_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:        provider,
		GeminiAPIKey:    strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		APIKey:          strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:       strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:       strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:           strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:         getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:          getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:     temperature,
		TopP:            topP,
		TopK:            topK,
		MaxOutputTokens: maxTokens,
		Timeout:         timeout,
	}, nil
}

// GeocodeConfig 描述 OpenCage 地理编码配置。
type GeocodeConfig struct {
	APIKey      string
	BaseURL     string
	CountryCode string
	Limit       int
}

func loadGeocodeConfig() (GeocodeConfig, error) {
	limit, err := parseIntEnv("GEOCODE_RESULT_LIMIT", 5)
	if err != nil {
		return GeocodeConfig{}, err
	}

	countryCode := "us"
	if raw, ok := os.LookupEnv("GEOCODE_COUNTRY_CODE"); ok {
		countryCode = strings.TrimSpace(raw)
	}

	return GeocodeConfig{
		APIKey:      strings.TrimSpace(os.Getenv("OPENCAGE_API_KEY")),
		BaseURL:     getEnvOrDefault("OPENCAGE_BASE_URL", "https://api.opencagedata.com/geocode/v1/json"),
		CountryCode: countryCode,
		Limit:       limit,
	}, nil
}

// ChartConfig 描述 Prokerala 星盘服务配置。
type ChartConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Ayanamsa     int
}

func loadChartConfig() (ChartConfig, error) {
	ayanamsa, err := parseIntEnv("ASTROLOGY_AYANAMSA", 1)
	if err != nil {
		return ChartConfig{}, err
	}

	return ChartConfig{
		ClientID:     strings.TrimSpace(os.Getenv("ASTROLOGY_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("ASTROLOGY_CLIENT_SECRET")),
		BaseURL:      strings.TrimRight(getEnvOrDefault("ASTROLOGY_BASE_URL", "https://api.prokerala.com"), "/"),
		Ayanamsa:     ayanamsa,
	}, nil
}

// SessionConfig 描述会话存储与清理配置。
type SessionConfig struct {
	HistoryCeiling int
	Retention      time.Duration
	ReapInterval   time.Duration
	DatabaseURL    string
}

func loadSessionConfig() (SessionConfig, error) {
	ceiling, err := parseIntEnv("SESSION_HISTORY_CEILING", 22)
	if err != nil {
		return SessionConfig{}, err
	}
	if ceiling < 4 {
		// 两条引导消息之外至少保留一问一答。
		ceiling = 4
	}

	retention, err := parseDurationEnv("SESSION_RETENTION", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	interval, err := parseDurationEnv("SESSION_REAP_INTERVAL", time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{
		HistoryCeiling: ceiling,
		Retention:      retention,
		ReapInterval:   interval,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
