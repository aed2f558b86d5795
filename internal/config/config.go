package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Company  CompanyConfig  `mapstructure:"company"`
	Importer ImporterConfig `mapstructure:"importer"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Export   ExportConfig   `mapstructure:"export"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
	CORSOrigins   []string      `mapstructure:"cors_origins"`
	// MetricsEnabled serves Prometheus metrics on /metrics
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// CompanyConfig identifies the carrier on exports
type CompanyConfig struct {
	Name string `mapstructure:"name"`
}

// ImporterConfig tunes spreadsheet header detection
type ImporterConfig struct {
	HeaderScanRows int                 `mapstructure:"header_scan_rows"`
	ExtraAliases   map[string][]string `mapstructure:"extra_aliases"`
}

// SyncConfig controls load synchronisation
type SyncConfig struct {
	// Interval of the background sync; 0 disables it
	Interval time.Duration `mapstructure:"interval"`
	// Statuses of loads that produce placeholders
	Statuses []string `mapstructure:"statuses"`
}

// ExportConfig controls where generated documents are written
type ExportConfig struct {
	Dir       string            `mapstructure:"dir"`
	Templates map[string]string `mapstructure:"templates"`
}

// Load reads an optional .env file, then the config file (when configPath
// is not empty), then AUDIT_* environment variables.
func Load(configPath string) (*Config, error) {
	return LoadWithEnv(configPath, ".env")
}

// LoadWithEnv is Load with an explicit dotenv file. A missing dotenv file
// is ignored; variables already set in the environment win.
func LoadWithEnv(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("AUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_size", 20<<20)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.metrics_enabled", true)

	// Database defaults
	v.SetDefault("database.path", "data/invoice_audit.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("company.name", "")

	v.SetDefault("importer.header_scan_rows", 10)

	// Sync defaults
	v.SetDefault("sync.interval", 0)
	v.SetDefault("sync.statuses", []string{"DELIVERED", "PAID"})

	// Export defaults
	v.SetDefault("export.dir", "exports")
}

// bindEnvVars binds the short variable names used in deployment .env files
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"database.path": "DATABASE_PATH",
		"company.name":  "COMPANY_NAME",
		"export.dir":    "EXPORT_DIR",
		"logger.level":  "LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, "AUDIT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return err
		}
	}
	return nil
}

var validLoadStatuses = map[string]bool{
	"BOOKED":     true,
	"DISPATCHED": true,
	"IN_TRANSIT": true,
	"DELIVERED":  true,
	"PAID":       true,
	"CANCELLED":  true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadSize <= 0 {
		return fmt.Errorf("server.max_upload_size must be positive")
	}

	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}
	if len(c.Sync.Statuses) == 0 {
		return fmt.Errorf("sync.statuses must name at least one load status")
	}
	for i, s := range c.Sync.Statuses {
		s = strings.ToUpper(strings.TrimSpace(s))
		if !validLoadStatuses[s] {
			return fmt.Errorf("sync.statuses: unknown load status %q", c.Sync.Statuses[i])
		}
		c.Sync.Statuses[i] = s
	}

	if strings.TrimSpace(c.Export.Dir) == "" {
		return fmt.Errorf("export.dir is required")
	}

	return nil
}

// EnsureDirs creates the directories the database and exports live in
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{dirOf(c.Database.Path), c.Export.Dir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func dirOf(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return ""
	}
	return filepath.Dir(path)
}
