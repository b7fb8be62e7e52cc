package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	telegramTokenENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	apiKeyENV         = "EXCHANGE_API_KEY"
	apiSecretENV      = "EXCHANGE_API_SECRET"
	passphraseENV     = "EXCHANGE_PASSPHRASE"
)

type ExchangeConfig struct {
	RestURL    string `yaml:"rest_url"`
	WsPublic   string `yaml:"ws_public"`
	WsPrivate  string `yaml:"ws_private"`
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`
	AccountID  string `yaml:"account_id"`
}

type PaperConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Balances map[string]float64 `yaml:"balances"` // currency -> initial free balance
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type JaegerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	DB       string         `yaml:"db_dsn"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Paper    PaperConfig    `yaml:"paper"`
	Telegram TelegramConfig `yaml:"telegram"`
	Jaeger   JaegerConfig   `yaml:"jaeger"`

	// Instruments the feed subscribes to and the strategy loop walks.
	Instruments []string `yaml:"instruments"`

	// How long a cached price/balance is trusted before the gateway
	// revalidates through REST.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	ReportInterval time.Duration `yaml:"report_interval"`

	// Strategy defaults
	EMAShort         int     `yaml:"ema_short"`
	EMALong          int     `yaml:"ema_long"`
	RSIPeriod        int     `yaml:"rsi_period"`
	RSIOverbought    float64 `yaml:"rsi_overbought"`
	RSIOversold      float64 `yaml:"rsi_oversold"`
	TradeQuantity    float64 `yaml:"trade_quantity"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		CacheTTL:       durationFromEnv("CACHE_TTL", "60s"),
		PollInterval:   durationFromEnv("POLL_INTERVAL", "15s"),
		ReportInterval: durationFromEnv("REPORT_INTERVAL", "1h"),

		EMAShort:         intFromEnv("EMA_SHORT", 9),
		EMALong:          intFromEnv("EMA_LONG", 21),
		RSIPeriod:        intFromEnv("RSI_PERIOD", 14),
		RSIOverbought:    floatFromEnv("RSI_OVERBOUGHT", 70),
		RSIOversold:      floatFromEnv("RSI_OVERSOLD", 30),
		TradeQuantity:    floatFromEnv("TRADE_QUANTITY", 0.1),
		MaxOpenPositions: intFromEnv("MAX_OPEN_POSITIONS", 10),
	}
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if token := os.Getenv(telegramTokenENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if v := os.Getenv(apiKeyENV); v != "" {
		config.Exchange.APIKey = v
	}
	if v := os.Getenv(apiSecretENV); v != "" {
		config.Exchange.APISecret = v
	}
	if v := os.Getenv(passphraseENV); v != "" {
		config.Exchange.Passphrase = v
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// HasCredentials reports whether the live write path can be enabled.
func (c *Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}

// validate rejects only unrecoverable configurations: everything else
// degrades at runtime.
func (c *Config) validate() error {
	if !c.Paper.Enabled && !c.HasCredentials() {
		return fmt.Errorf("no exchange credentials and paper mode disabled: nothing to trade against")
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument is required")
	}
	return nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
