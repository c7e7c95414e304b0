// Package config loads and validates catalog scraper configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultBaseURL is the keyword search over all books, sorted by popularity.
// The page index is appended to it.
const DefaultBaseURL = "https://catalog.midcolumbialibraries.org/polaris/search/searchresults.aspx" +
	"?ctx=1.1033.0.0.6&type=Keyword&term=*&by=ISBN&sort=MP&limit=TOM=bks&query=&page="

var elementID = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-:.]*$`)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Export    ExportConfig    `mapstructure:"export"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the headless Chrome session.
type BrowserConfig struct {
	Headless            bool   `mapstructure:"headless"`
	NoSandbox           bool   `mapstructure:"no_sandbox"`
	UserAgent           string `mapstructure:"user_agent"`
	ExecPath            string `mapstructure:"exec_path"`
	ImplicitWaitSeconds int    `mapstructure:"implicit_wait_seconds"`
}

// FetcherConfig governs pagination and waits.
type FetcherConfig struct {
	BaseURL                   string  `mapstructure:"base_url"`
	OutputPath                string  `mapstructure:"output_path"`
	StartPage                 int     `mapstructure:"start_page"`
	TotalPages                int     `mapstructure:"total_pages"`
	ResultsPerPage            string  `mapstructure:"results_per_page"`
	DropdownID                string  `mapstructure:"dropdown_id"`
	ContainerID               string  `mapstructure:"container_id"`
	SetupWaitSeconds          int     `mapstructure:"setup_wait_seconds"`
	PerPageSettingWaitSeconds int     `mapstructure:"per_page_setting_wait_seconds"`
	PageWaitSeconds           int     `mapstructure:"page_wait_seconds"`
	RequestsPerSecond         float64 `mapstructure:"requests_per_second"`
	DeriveTotalPages          bool    `mapstructure:"derive_total_pages"`
	ResultCountSelector       string  `mapstructure:"result_count_selector"`
}

// ExtractorConfig sets the extraction input and output.
type ExtractorConfig struct {
	InputPath   string `mapstructure:"input_path"`
	OutputPath  string `mapstructure:"output_path"`
	ContainerID string `mapstructure:"container_id"`
}

// ExportConfig selects where the extracted file is copied after a run.
type ExportConfig struct {
	Provider    string `mapstructure:"provider"`
	LocalDir    string `mapstructure:"local_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// DatabaseConfig controls the optional Postgres record sink.
type DatabaseConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Export providers.
const (
	ExportNone  = "none"
	ExportLocal = "local"
	ExportGCS   = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.implicit_wait_seconds", 30)
	v.SetDefault("fetcher.base_url", DefaultBaseURL)
	v.SetDefault("fetcher.output_path", "midcolumbialibraries.txt")
	v.SetDefault("fetcher.start_page", 0)
	v.SetDefault("fetcher.total_pages", 3050)
	v.SetDefault("fetcher.results_per_page", "100")
	v.SetDefault("fetcher.dropdown_id", "dropdownResultsPerPageTop")
	v.SetDefault("fetcher.container_id", "searchResultsDIV")
	v.SetDefault("fetcher.setup_wait_seconds", 30)
	v.SetDefault("fetcher.per_page_setting_wait_seconds", 20)
	v.SetDefault("fetcher.page_wait_seconds", 45)
	v.SetDefault("fetcher.requests_per_second", 0)
	v.SetDefault("fetcher.derive_total_pages", false)
	v.SetDefault("fetcher.result_count_selector", "#searchResultsCount")
	v.SetDefault("extractor.input_path", "midcolumbialibraries.txt")
	v.SetDefault("extractor.output_path", "midcolumbia_books.jsonl")
	v.SetDefault("extractor.container_id", "searchResultsDIV")
	v.SetDefault("export.provider", ExportNone)
	v.SetDefault("export.local_dir", "exports")
	v.SetDefault("export.gcs_bucket", "")
	v.SetDefault("export.prefix", "books")
	v.SetDefault("export.content_type", "application/x-ndjson")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "books")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Browser.ImplicitWaitSeconds <= 0 {
		return fmt.Errorf("browser.implicit_wait_seconds must be > 0")
	}
	if c.Fetcher.BaseURL == "" {
		return fmt.Errorf("fetcher.base_url must be set")
	}
	if c.Fetcher.OutputPath == "" {
		return fmt.Errorf("fetcher.output_path must be set")
	}
	if c.Fetcher.StartPage < 0 {
		return fmt.Errorf("fetcher.start_page must be >= 0")
	}
	if c.Fetcher.TotalPages <= 0 {
		return fmt.Errorf("fetcher.total_pages must be > 0")
	}
	if c.Fetcher.ResultsPerPage == "" {
		return fmt.Errorf("fetcher.results_per_page must be set")
	}
	for _, id := range []struct{ key, value string }{
		{"fetcher.dropdown_id", c.Fetcher.DropdownID},
		{"fetcher.container_id", c.Fetcher.ContainerID},
		{"extractor.container_id", c.Extractor.ContainerID},
	} {
		if !elementID.MatchString(id.value) {
			return fmt.Errorf("%s %q is not a valid element id", id.key, id.value)
		}
	}
	if c.Fetcher.SetupWaitSeconds <= 0 || c.Fetcher.PerPageSettingWaitSeconds <= 0 || c.Fetcher.PageWaitSeconds <= 0 {
		return fmt.Errorf("fetcher wait timeouts must be > 0")
	}
	if c.Fetcher.RequestsPerSecond < 0 {
		return fmt.Errorf("fetcher.requests_per_second must be >= 0")
	}
	if c.Extractor.InputPath == "" || c.Extractor.OutputPath == "" {
		return fmt.Errorf("extractor input and output paths must be set")
	}
	switch c.Export.Provider {
	case "", ExportNone:
	case ExportLocal:
		if c.Export.LocalDir == "" {
			return fmt.Errorf("export.local_dir must be set when export.provider is local")
		}
	case ExportGCS:
		if c.Export.GCSBucket == "" {
			return fmt.Errorf("export.gcs_bucket must be set when export.provider is gcs")
		}
	default:
		return fmt.Errorf("export.provider %q is not one of none, local, gcs", c.Export.Provider)
	}
	return nil
}

// ImplicitWait is the bound applied to browser actions without their own timeout.
func (c Config) ImplicitWait() time.Duration {
	return seconds(c.Browser.ImplicitWaitSeconds)
}

// SetupWait bounds the wait for the results-per-page dropdown.
func (c Config) SetupWait() time.Duration {
	return seconds(c.Fetcher.SetupWaitSeconds)
}

// PerPageSettingWait bounds the re-render after changing results per page.
func (c Config) PerPageSettingWait() time.Duration {
	return seconds(c.Fetcher.PerPageSettingWaitSeconds)
}

// PageWait bounds the wait for each page's results container.
func (c Config) PageWait() time.Duration {
	return seconds(c.Fetcher.PageWaitSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
