package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CONFIG_PATH is not set.
const DefaultPath = "configs/tracker.yaml"

// Config holds all application configuration.
type Config struct {
	Portfolio struct {
		File      string `yaml:"file"`
		OutputDir string `yaml:"output_dir"`
	} `yaml:"portfolio"`
	PriceSource struct {
		SymbolMap map[string]string `yaml:"symbol_map"`
		CacheTTL  time.Duration     `yaml:"cache_ttl"`
		NoTargets bool              `yaml:"no_targets"`
	} `yaml:"price_source"`
	Schedule struct {
		UpdateCron string `yaml:"update_cron"`
		ReportCron string `yaml:"report_cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int64  `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads a .env file if present, then the YAML config at path, then
// applies environment variable overrides and defaults. A missing config
// file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] load .env: %v", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORTFOLIO_FILE"); v != "" {
		c.Portfolio.File = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.Portfolio.OutputDir = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("CRON_UPDATE"); v != "" {
		c.Schedule.UpdateCron = v
	}
	if v := os.Getenv("CRON_REPORT"); v != "" {
		c.Schedule.ReportCron = v
	}
	if os.Getenv("RUN_ON_START") == "true" {
		c.Schedule.RunOnStart = true
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

func (c *Config) applyDefaults() {
	if c.Portfolio.File == "" {
		c.Portfolio.File = "conf/portfolio.yaml"
	}
	if c.PriceSource.CacheTTL == 0 {
		c.PriceSource.CacheTTL = 10 * time.Minute
	}
	if c.Schedule.UpdateCron == "" {
		c.Schedule.UpdateCron = "0 30 22 * * 1-5"
	}
	if c.Schedule.ReportCron == "" {
		c.Schedule.ReportCron = "0 0 8 * * 6"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/portfolio_tracker.db"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "portfolio-events"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
}

// TelegramEnabled reports whether both bot credentials are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks the fields every command relies on. Telegram, Redis and
// Kafka stay optional.
func (c *Config) Validate() error {
	if c.Portfolio.File == "" {
		return fmt.Errorf("portfolio.file is required")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.PriceSource.CacheTTL < 0 {
		return fmt.Errorf("price_source.cache_ttl must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"schedule.update_cron": c.Schedule.UpdateCron,
		"schedule.report_cron": c.Schedule.ReportCron,
	} {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
