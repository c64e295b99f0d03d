package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL = "https://mainnet.zklighter.elliot.ai"
	DefaultChainID = 304
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	REST      RESTConfig      `yaml:"rest"`
	WS        WSConfig        `yaml:"ws"`
	Signer    SignerConfig    `yaml:"signer"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Orders    OrdersConfig    `yaml:"orders"`
	State     StateConfig     `yaml:"state"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Account   AccountConfig   `yaml:"-"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type RESTConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
	RetryWait time.Duration `yaml:"retry_wait"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	Markets        []string      `yaml:"markets"`
	MaxBookAge     time.Duration `yaml:"max_book_age"`
}

type SignerConfig struct {
	APIKeyIndex int           `yaml:"api_key_index"`
	ChainID     int           `yaml:"chain_id"`
	AuthExpiry  time.Duration `yaml:"auth_expiry"`
}

type BootstrapConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	NewAccountSettle time.Duration `yaml:"new_account_settle"`
	ProvisionTimeout time.Duration `yaml:"provision_timeout"`
	MaxAttempts      int           `yaml:"max_attempts"`
}

type OrdersConfig struct {
	DefaultTIF string   `yaml:"default_tif"`
	Slippage   *float64 `yaml:"slippage"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

// AccountConfig holds credentials. It is never read from the YAML file.
type AccountConfig struct {
	L1Address  string
	PrivateKey string
}

func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 5
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 14
		}
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = DefaultBaseURL
	}
	cfg.REST.BaseURL = strings.TrimRight(cfg.REST.BaseURL, "/")
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.REST.Retries == 0 {
		cfg.REST.Retries = 2
	}
	if cfg.REST.RetryWait == 0 {
		cfg.REST.RetryWait = 200 * time.Millisecond
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = deriveWSURL(cfg.REST.BaseURL)
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.WS.MaxBookAge == 0 {
		cfg.WS.MaxBookAge = 5 * time.Second
	}
	if cfg.Signer.ChainID == 0 {
		cfg.Signer.ChainID = DefaultChainID
	}
	if cfg.Signer.AuthExpiry == 0 {
		cfg.Signer.AuthExpiry = 10 * time.Minute
	}
	if cfg.Bootstrap.PollInterval == 0 {
		cfg.Bootstrap.PollInterval = time.Second
	}
	if cfg.Bootstrap.NewAccountSettle == 0 {
		cfg.Bootstrap.NewAccountSettle = 5 * time.Second
	}
	if cfg.Orders.DefaultTIF == "" {
		cfg.Orders.DefaultTIF = "GTC"
	}
	cfg.Orders.DefaultTIF = strings.ToUpper(strings.TrimSpace(cfg.Orders.DefaultTIF))
	if cfg.Orders.Slippage == nil {
		slippage := 0.03
		cfg.Orders.Slippage = &slippage
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/lighter.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := false
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9002"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
	if cfg.Timescale.QueueSize == 0 {
		cfg.Timescale.QueueSize = 256
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LIGHTER_KEY")); v != "" {
		cfg.Account.L1Address = v
	}
	if v := strings.TrimSpace(os.Getenv("LIGHTER_SECRET")); v != "" {
		cfg.Account.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LIGHTER_TELEGRAM_TOKEN")); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("LIGHTER_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("LIGHTER_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
}

func validate(cfg *Config) error {
	if _, err := url.ParseRequestURI(cfg.REST.BaseURL); err != nil {
		return fmt.Errorf("rest.base_url: %w", err)
	}
	if cfg.REST.Timeout < 0 {
		return errors.New("rest.timeout must be >= 0")
	}
	if cfg.REST.Retries < 0 {
		return errors.New("rest.retries must be >= 0")
	}
	if cfg.Signer.APIKeyIndex < 0 || cfg.Signer.APIKeyIndex > 255 {
		return errors.New("signer.api_key_index must be in [0,255]")
	}
	if cfg.Bootstrap.PollInterval < 0 || cfg.Bootstrap.NewAccountSettle < 0 {
		return errors.New("bootstrap intervals must be >= 0")
	}
	if cfg.Bootstrap.ProvisionTimeout < 0 {
		return errors.New("bootstrap.provision_timeout must be >= 0")
	}
	if cfg.Bootstrap.MaxAttempts < 0 {
		return errors.New("bootstrap.max_attempts must be >= 0")
	}
	switch cfg.Orders.DefaultTIF {
	case "GTC", "IOC", "ALO":
	default:
		return fmt.Errorf("orders.default_tif %q must be one of GTC, IOC, ALO", cfg.Orders.DefaultTIF)
	}
	if s := cfg.Orders.SlippageValue(); s < 0 || s >= 1 {
		return errors.New("orders.slippage must be in [0,1)")
	}
	if cfg.WS.MaxBookAge < 0 {
		return errors.New("ws.max_book_age must be >= 0")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

func (o OrdersConfig) SlippageValue() float64 {
	if o.Slippage == nil {
		return 0
	}
	return *o.Slippage
}

// SlippageDecimal returns the configured market order slippage.
func (o OrdersConfig) SlippageDecimal() decimal.Decimal {
	return decimal.NewFromFloat(o.SlippageValue())
}

func deriveWSURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	u.Path = "/stream"
	return u.String()
}
