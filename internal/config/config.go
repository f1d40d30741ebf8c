package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"itinera/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig          `yaml:"app"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Backup        BackupConfig       `yaml:"backup"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	API           APIConfig          `yaml:"api"`
	Generator     GeneratorConfig    `yaml:"generator"`
	Document      DocumentConfig     `yaml:"document"`
	Drafts        DraftsConfig       `yaml:"drafts"`
	Notifications NotificationConfig `yaml:"notifications"`
	Exports       ExportConfig       `yaml:"exports"`
	Google        GoogleConfig       `yaml:"google"`
	Worker        WorkerConfig       `yaml:"worker"`
}

type APIConfig struct {
	Enabled       bool               `yaml:"enabled"`
	PublicBaseURL string             `yaml:"public_base_url"`
	HTTP          APIHTTPConfig      `yaml:"http"`
	GRPC          APIGRPCConfig      `yaml:"grpc"`
	RateLimit     APIRateLimitConfig `yaml:"rate_limit"`
	CORS          APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // cron spec, e.g. "0 3 * * *" or "@every 24h"
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GeneratorConfig struct {
	ContentFile string `yaml:"content_file"`
}

type DocumentConfig struct {
	ImageTimeoutSeconds int    `yaml:"image_timeout_seconds"`
	MaxImageBytes       int64  `yaml:"max_image_bytes"`
	RasterizerURL       string `yaml:"rasterizer_url"`
}

type DraftsConfig struct {
	TTLSeconds           int `yaml:"ttl_seconds"`
	CommentLimit         int `yaml:"comment_limit"`
	CommentWindowSeconds int `yaml:"comment_window_seconds"`
}

type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Email    EmailConfig    `yaml:"email"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type GoogleConfig struct {
	GoogleCredentialsFile  string `yaml:"credentials_file"`
	ItinerariesSpreadSheet string `yaml:"itineraries_spreadsheet_id"`
}

type WorkerConfig struct {
	MaxRetries          int `yaml:"max_retries"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int `yaml:"max_delay_seconds"`
}

// Load reads the YAML config at configPath. Variables from an optional .env
// file and the environment are expanded before parsing.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Подстановка переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if err := validPort("api.http.port", c.API.HTTP.Port); err != nil {
		return err
	}
	if err := validPort("api.grpc.port", c.API.GRPC.Port); err != nil {
		return err
	}
	if c.API.PublicBaseURL != "" {
		if _, err := url.ParseRequestURI(c.API.PublicBaseURL); err != nil {
			return fmt.Errorf("api.public_base_url is invalid: %w", err)
		}
	}
	if c.Document.RasterizerURL != "" {
		if _, err := url.ParseRequestURI(c.Document.RasterizerURL); err != nil {
			return fmt.Errorf("document.rasterizer_url is invalid: %w", err)
		}
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		return errors.New("backup.storage_path is required when backups are enabled")
	}
	if c.Notifications.Telegram.BotToken != "" && c.Notifications.Telegram.ChatID == 0 {
		return errors.New("notifications.telegram.chat_id is required with a bot token")
	}
	if c.Notifications.Email.Host != "" && len(c.Notifications.Email.To) == 0 {
		return errors.New("notifications.email.to must list at least one recipient")
	}
	return nil
}

func validPort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "itinera"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.PublicBaseURL == "" {
		c.API.PublicBaseURL = fmt.Sprintf("http://localhost:%d", c.API.HTTP.Port)
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@every 24h"
	}
	if c.Document.ImageTimeoutSeconds == 0 {
		c.Document.ImageTimeoutSeconds = 5
	}
	if c.Document.MaxImageBytes == 0 {
		c.Document.MaxImageBytes = 5 << 20
	}
	if c.Drafts.TTLSeconds == 0 {
		c.Drafts.TTLSeconds = models.DefaultDraftTTL
	}
	if c.Drafts.CommentLimit == 0 {
		c.Drafts.CommentLimit = models.CommentRateLimit
	}
	if c.Drafts.CommentWindowSeconds == 0 {
		c.Drafts.CommentWindowSeconds = models.CommentRateWindow
	}
	if c.Notifications.Email.Port == 0 {
		c.Notifications.Email.Port = 587
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.InitialDelaySeconds == 0 {
		c.Worker.InitialDelaySeconds = 2
	}
	if c.Worker.MaxDelaySeconds == 0 {
		c.Worker.MaxDelaySeconds = 60
	}
}
