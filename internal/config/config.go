package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingCredentials = errors.New("missing portal credentials")

type Config struct {
	Portal      PortalConfig
	Credentials Credentials
	Scraper     ScraperConfig
	Browser     BrowserConfig
	Output      OutputConfig
	Assets      AssetsConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Status      StatusConfig
	Logging     LoggingConfig
}

type PortalConfig struct {
	BaseURL   string
	LoginPath string
	// PriceListPaths are tried in order when menu navigation fails.
	PriceListPaths []string
}

type Credentials struct {
	AccountID string
	Username  string
	Password  string
}

type ScraperConfig struct {
	MaxPages       int
	SettleDelay    time.Duration
	ContentTimeout time.Duration
	LocatorTimeout time.Duration
	LoginTimeout   time.Duration
	RunTimeout     time.Duration
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type OutputConfig struct {
	Dir string
}

type AssetsConfig struct {
	Enabled bool
	Workers int
	Timeout time.Duration
	RateMin time.Duration
	RateMax time.Duration
	Retries int
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type StatusConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Portal: PortalConfig{
			BaseURL:        strings.TrimRight(getEnvOrDefault("PORTAL_BASE_URL", "https://bayi.gencerteknik.com.tr"), "/"),
			LoginPath:      getEnvOrDefault("PORTAL_LOGIN_PATH", "/Login.asp"),
			PriceListPaths: getStringSliceOrDefault("PORTAL_PRICE_LIST_PATHS", []string{"/FiyatListesi.asp", "/?page=fiyat-listesi"}),
		},
		Credentials: Credentials{
			AccountID: strings.TrimSpace(os.Getenv("GENCER_MUSTERI")),
			Username:  strings.TrimSpace(os.Getenv("GENCER_KULLANICI")),
			Password:  strings.TrimSpace(os.Getenv("GENCER_SIFRE")),
		},
		Scraper: ScraperConfig{
			MaxPages:       getIntOrDefault("SCRAPER_MAX_PAGES", 149),
			SettleDelay:    getDurationOrDefault("SCRAPER_SETTLE_DELAY", 7*time.Second),
			ContentTimeout: getDurationOrDefault("SCRAPER_CONTENT_TIMEOUT", 20*time.Second),
			LocatorTimeout: getDurationOrDefault("SCRAPER_LOCATOR_TIMEOUT", 12*time.Second),
			LoginTimeout:   getDurationOrDefault("SCRAPER_LOGIN_TIMEOUT", 30*time.Second),
			RunTimeout:     getDurationOrDefault("RUN_TIMEOUT", 3*time.Hour),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 40*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1366),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "tr-TR,tr;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Istanbul"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "tr-TR"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("OUTPUT_DIR", "."),
		},
		Assets: AssetsConfig{
			Enabled: getBoolOrDefault("ASSETS_ENABLED", true),
			Workers: getIntOrDefault("ASSETS_WORKERS", 1),
			Timeout: getDurationOrDefault("ASSETS_TIMEOUT", 20*time.Second),
			RateMin: getDurationOrDefault("ASSETS_RATE_MIN", 0),
			RateMax: getDurationOrDefault("ASSETS_RATE_MAX", 0),
			Retries: getIntOrDefault("ASSETS_RETRIES", 2),
		},
		Database: DatabaseConfig{
			URL:      getEnvOrDefault("DATABASE_URL", ""),
			MaxConns: int32(getIntOrDefault("DATABASE_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:price_list"),
		},
		Status: StatusConfig{
			Addr:            getEnvOrDefault("STATUS_ADDR", ""),
			ShutdownTimeout: getDurationOrDefault("STATUS_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("PORTAL_BASE_URL must not be empty")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT must be positive")
	}

	if c.Assets.Workers < 1 {
		return fmt.Errorf("ASSETS_WORKERS must be at least 1")
	}

	if c.Assets.Retries < 0 {
		return fmt.Errorf("ASSETS_RETRIES cannot be negative")
	}

	if c.Assets.RateMin > c.Assets.RateMax {
		return fmt.Errorf("ASSETS_RATE_MIN cannot be greater than ASSETS_RATE_MAX")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}

	return nil
}

// LoginURL is the absolute address of the login form.
func (c *Config) LoginURL() string {
	return c.Portal.BaseURL + "/" + strings.TrimLeft(c.Portal.LoginPath, "/")
}

// PriceListURLs are the direct price list addresses in fallback order.
func (c *Config) PriceListURLs() []string {
	urls := make([]string, 0, len(c.Portal.PriceListPaths))
	for _, p := range c.Portal.PriceListPaths {
		urls = append(urls, c.Portal.BaseURL+"/"+strings.TrimLeft(strings.TrimSpace(p), "/"))
	}
	return urls
}

// Validate reports every missing credential at once.
func (c Credentials) Validate() error {
	var missing []string
	if c.AccountID == "" {
		missing = append(missing, "GENCER_MUSTERI")
	}
	if c.Username == "" {
		missing = append(missing, "GENCER_KULLANICI")
	}
	if c.Password == "" {
		missing = append(missing, "GENCER_SIFRE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
