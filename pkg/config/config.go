package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LocationConfig names one place to poll weather for.
type LocationConfig struct {
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// WindowConfig is one (max requests, duration) counting window.
type WindowConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// PolicyConfig is one endpoint class with all its simultaneously
// enforced windows (burst plus optional sustained).
type PolicyConfig struct {
	ID      string         `yaml:"id"`
	Windows []WindowConfig `yaml:"windows"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Ingest struct {
		Backend      string        `yaml:"backend"` // clickhouse or kafka
		PollInterval time.Duration `yaml:"poll_interval"`
		CycleTimeout time.Duration `yaml:"cycle_timeout"`
		MaxRetries   int           `yaml:"max_retries"`
		BackoffMin   time.Duration `yaml:"backoff_min"`
		BackoffMax   time.Duration `yaml:"backoff_max"`
		FailFast     bool          `yaml:"fail_fast"` // reject instead of waiting on admission
	} `yaml:"ingest"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		WeatherTopic string        `yaml:"weather_topic"`
		MarketTopic  string        `yaml:"market_topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		BatchSize    int           `yaml:"batch_size"`
		BatchBytes   int           `yaml:"batch_bytes"`
		Linger       time.Duration `yaml:"linger"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
	} `yaml:"kafka"`
	Weather struct {
		Locations   []LocationConfig `yaml:"locations"`
		OpenMeteo   ProviderConfig   `yaml:"openmeteo"`
		OpenWeather ProviderConfig   `yaml:"openweather"`
		WeatherAPI  ProviderConfig   `yaml:"weatherapi"`
	} `yaml:"weather"`
	Polymarket struct {
		Enabled        bool          `yaml:"enabled"`
		BaseURL        string        `yaml:"base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Markets        []string      `yaml:"markets"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		Stream         bool          `yaml:"stream"`
	} `yaml:"polymarket"`
	RateLimit struct {
		Policies []PolicyConfig `yaml:"policies"`
	} `yaml:"rate_limit"`
	Analysis struct {
		GridStep        time.Duration `yaml:"grid_step"`
		MaxGapSteps     int           `yaml:"max_gap_steps"`
		MinSamples      int           `yaml:"min_samples"`
		MaxLag          int           `yaml:"max_lag"`
		GrangerMaxOrder int           `yaml:"granger_max_order"`
		// Lag order selection for the causality test; only "aic" is implemented.
		OrderSelection  string  `yaml:"order_selection"`
		ADFAlpha        float64 `yaml:"adf_alpha"`
		SampleSizeFloor int     `yaml:"sample_size_floor"`
	} `yaml:"analysis"`
	Cache struct {
		Capacity int           `yaml:"capacity"`
		TTL      time.Duration `yaml:"ttl"`
		Redis    struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// ProviderConfig configures one weather source.
type ProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("OPENWEATHER_API_KEY"); v != "" {
		c.Weather.OpenWeather.APIKey = v
	}
	if v := os.Getenv("WEATHERAPI_API_KEY"); v != "" {
		c.Weather.WeatherAPI.APIKey = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Ingest.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("POLYMARKET_MARKETS"); v != "" {
		c.Polymarket.Markets = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Ingest.PollInterval <= 0 {
		c.Ingest.PollInterval = 5 * time.Minute
	}
	if c.Ingest.CycleTimeout <= 0 {
		c.Ingest.CycleTimeout = 2 * time.Minute
	}
	if c.Ingest.MaxRetries <= 0 {
		c.Ingest.MaxRetries = 3
	}
	if c.Ingest.BackoffMin <= 0 {
		c.Ingest.BackoffMin = 500 * time.Millisecond
	}
	if c.Ingest.BackoffMax <= 0 {
		c.Ingest.BackoffMax = 10 * time.Second
	}
	if c.Analysis.GridStep <= 0 {
		c.Analysis.GridStep = 15 * time.Minute
	}
	if c.Analysis.MaxGapSteps <= 0 {
		c.Analysis.MaxGapSteps = 2
	}
	if c.Analysis.MinSamples <= 0 {
		c.Analysis.MinSamples = 30
	}
	if c.Analysis.MaxLag <= 0 {
		c.Analysis.MaxLag = 24
	}
	if c.Analysis.GrangerMaxOrder <= 0 {
		c.Analysis.GrangerMaxOrder = 6
	}
	if c.Analysis.OrderSelection == "" {
		c.Analysis.OrderSelection = "aic"
	}
	if c.Analysis.ADFAlpha <= 0 {
		c.Analysis.ADFAlpha = 0.05
	}
	if c.Analysis.SampleSizeFloor <= 0 {
		c.Analysis.SampleSizeFloor = 30
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = 512
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 10 * time.Minute
	}
	if len(c.RateLimit.Policies) == 0 {
		c.RateLimit.Policies = DefaultPolicies()
	}
}

// DefaultPolicies returns the built-in per-endpoint admission budget.
func DefaultPolicies() []PolicyConfig {
	return []PolicyConfig{
		{ID: "order_book", Windows: []WindowConfig{{MaxRequests: 50, Window: 10 * time.Second}}},
		{ID: "price", Windows: []WindowConfig{{MaxRequests: 100, Window: 10 * time.Second}}},
		{ID: "market_listing", Windows: []WindowConfig{{MaxRequests: 50, Window: 10 * time.Second}}},
		{ID: "order_placement", Windows: []WindowConfig{
			{MaxRequests: 500, Window: 10 * time.Second},
			{MaxRequests: 3000, Window: 600 * time.Second},
		}},
		{ID: "weather", Windows: []WindowConfig{{MaxRequests: 50, Window: 60 * time.Second}}},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Ingest.Backend != "clickhouse" && c.Ingest.Backend != "kafka" {
		return fmt.Errorf("ingest.backend must be 'clickhouse' or 'kafka', got '%s'", c.Ingest.Backend)
	}
	if c.Ingest.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required for kafka backend")
	}
	hasWeather := c.Weather.OpenMeteo.Enabled || c.Weather.OpenWeather.Enabled || c.Weather.WeatherAPI.Enabled
	if hasWeather && len(c.Weather.Locations) == 0 {
		return fmt.Errorf("weather.locations cannot be empty when a weather provider is enabled")
	}
	if c.Weather.OpenWeather.Enabled && c.Weather.OpenWeather.APIKey == "" {
		return fmt.Errorf("weather.openweather.api_key is required")
	}
	if c.Weather.WeatherAPI.Enabled && c.Weather.WeatherAPI.APIKey == "" {
		return fmt.Errorf("weather.weatherapi.api_key is required")
	}
	if c.Polymarket.Enabled && len(c.Polymarket.Markets) == 0 {
		return fmt.Errorf("polymarket.markets cannot be empty when enabled")
	}
	for _, p := range c.RateLimit.Policies {
		if p.ID == "" {
			return fmt.Errorf("rate_limit policy without id")
		}
		if len(p.Windows) == 0 {
			return fmt.Errorf("rate_limit policy %s has no windows", p.ID)
		}
		for _, w := range p.Windows {
			if w.MaxRequests <= 0 || w.Window <= 0 {
				return fmt.Errorf("rate_limit policy %s has invalid window", p.ID)
			}
		}
	}
	return nil
}
