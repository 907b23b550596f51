package pricewatch

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/MihanikMike/ecommerce-price-tracker-sub002/pricewatch/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log     LogConfig         `toml:"log"`
	DB      database.DBConfig `toml:"db"`
	Monitor MonitorConfig     `toml:"monitor"`
	Scraper ScraperConfig     `toml:"scraper"`
}

// Duration decodes TOML strings like "15m" or "2.5s". time.Duration has no
// TextUnmarshaler, so the decoder rejects it without this wrapper.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type MonitorConfig struct {
	CheckInterval        Duration `toml:"check_interval"`
	MaxConcurrent        int      `toml:"max_concurrent"`
	SitePerCap           int      `toml:"site_per_cap"`
	ScrapeTimeout        Duration `toml:"scrape_timeout"`
	CycleTimeout         Duration `toml:"cycle_timeout"`
	SignificantChangePct float64  `toml:"significant_change_pct"`
	MetricsAddr          string   `toml:"metrics_addr"`
}

type ScraperConfig struct {
	UserAgent      string                 `toml:"user_agent"`
	Headless       bool                   `toml:"headless"`
	AllowedDomains []string               `toml:"allowed_domains"`
	Delays         map[string]DelayConfig `toml:"delays"`
}

// DelayConfig bounds the randomized inter-request delay for one site.
type DelayConfig struct {
	Min Duration `toml:"min"`
	Max Duration `toml:"max"`
}

func (c *Config) applyDefaults() {
	if c.Monitor.CheckInterval <= 0 {
		c.Monitor.CheckInterval = Duration(15 * time.Minute)
	}
	if c.Monitor.MaxConcurrent <= 0 {
		c.Monitor.MaxConcurrent = 3
	}
	if c.Monitor.SitePerCap <= 0 {
		c.Monitor.SitePerCap = 1
	}
	if c.Monitor.ScrapeTimeout <= 0 {
		c.Monitor.ScrapeTimeout = Duration(30 * time.Second)
	}
	if c.Monitor.CycleTimeout <= 0 {
		c.Monitor.CycleTimeout = 10 * c.Monitor.ScrapeTimeout * Duration(c.Monitor.MaxConcurrent)
	}
	if c.Monitor.SignificantChangePct <= 0 {
		c.Monitor.SignificantChangePct = 2.0
	}
	if len(c.Scraper.AllowedDomains) == 0 {
		c.Scraper.AllowedDomains = []string{"amazon.com", "burton.com", "target.com", "walmart.com"}
	}
	if c.Scraper.Delays == nil {
		c.Scraper.Delays = map[string]DelayConfig{}
	}
	if _, ok := c.Scraper.Delays["amazon"]; !ok {
		c.Scraper.Delays["amazon"] = DelayConfig{Min: Duration(1200 * time.Millisecond), Max: Duration(2500 * time.Millisecond)}
	}
	if _, ok := c.Scraper.Delays["default"]; !ok {
		c.Scraper.Delays["default"] = DelayConfig{Min: Duration(time.Second), Max: Duration(2 * time.Second)}
	}
}
