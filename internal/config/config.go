package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Data        DataConfig        `yaml:"data" mapstructure:"data"`
	DataService DataServiceConfig `yaml:"dataservice" mapstructure:"dataservice"`
	Render      RenderConfig      `yaml:"render" mapstructure:"render"`
	Dashboard   DashboardConfig   `yaml:"dashboard" mapstructure:"dashboard"`
	Export      ExportConfig      `yaml:"export" mapstructure:"export"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the demographic dataset backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DataConfig points at the ACS spreadsheet used by import.
type DataConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
}

// DataServiceConfig configures the client for the ZIP data service.
type DataServiceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MapLimit    int     `yaml:"map_limit" mapstructure:"map_limit"`
}

// RenderConfig configures progressive marker placement.
type RenderConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	PauseMs   int `yaml:"pause_ms" mapstructure:"pause_ms"`
}

// DashboardConfig holds dashboard defaults.
type DashboardConfig struct {
	PageSize  int     `yaml:"page_size" mapstructure:"page_size"`
	PerCapita float64 `yaml:"per_capita" mapstructure:"per_capita"`
}

// ExportConfig configures report output.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	Title     string `yaml:"title" mapstructure:"title"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back
// to config.yaml in the working directory; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MARKETMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "marketmap.db")
	v.SetDefault("data.path", "ACSData/WorkingFile_ZipDemographicData_ACS_2023.xlsx")
	v.SetDefault("dataservice.base_url", "http://localhost:8080/api")
	v.SetDefault("dataservice.timeout_secs", 30)
	v.SetDefault("dataservice.max_attempts", 3)
	v.SetDefault("dataservice.rate_per_sec", 10.0)
	v.SetDefault("dataservice.map_limit", 1000)
	v.SetDefault("render.batch_size", 5)
	v.SetDefault("render.pause_ms", 100)
	v.SetDefault("dashboard.page_size", 50)
	v.SetDefault("dashboard.per_capita", 100.0)
	v.SetDefault("export.output_dir", ".")
	v.SetDefault("export.title", "Market Opportunity Report")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode is one of
// "serve", "import", "export" or "coverage".
func (c *Config) Validate(mode string) error {
	var errs []string

	storeChecks := func() {
		switch c.Store.Driver {
		case "sqlite", "postgres":
		default:
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case "serve":
		storeChecks()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Render.BatchSize <= 0 {
			errs = append(errs, "render.batch_size must be > 0")
		}
		if c.Render.PauseMs < 0 {
			errs = append(errs, "render.pause_ms must be >= 0")
		}
		if c.Dashboard.PageSize <= 0 {
			errs = append(errs, "dashboard.page_size must be > 0")
		}
	case "import":
		storeChecks()
		if c.Data.Path == "" {
			errs = append(errs, "data.path is required")
		}
	case "export", "coverage":
		if c.DataService.BaseURL == "" {
			errs = append(errs, "dataservice.base_url is required")
		}
		if c.DataService.MaxAttempts < 1 {
			errs = append(errs, "dataservice.max_attempts must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
