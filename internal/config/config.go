package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/HadassahLevi/tiktax/internal/dedup"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/tax"
)

// Config holds all application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Tax         TaxConfig         `mapstructure:"tax"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Categories  []entity.Category `mapstructure:"categories"`
	Logger      LoggerConfig      `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RecognitionConfig holds recognition collaborator configuration
type RecognitionConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds filesystem locations for images and the
// post-approval archive. ArchiveDir empty disables archival.
type StorageConfig struct {
	ImageDir   string `mapstructure:"image_dir"`
	ArchiveDir string `mapstructure:"archive_dir"`
}

// TaxConfig holds the VAT parameters used by validation
type TaxConfig struct {
	VATRate   float64 `mapstructure:"vat_rate"`
	Tolerance float64 `mapstructure:"tolerance"`
}

// DedupConfig holds duplicate-detector tuning
type DedupConfig struct {
	Weights   dedup.Weights `mapstructure:"weights"`
	Threshold float64       `mapstructure:"threshold"`
}

// StatsConfig holds aggregation configuration
type StatsConfig struct {
	RecentLimit int `mapstructure:"recent_limit"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Categories) == 0 {
		cfg.Categories = entity.SeedCategories()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("database.path", "data/tiktax.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	viper.SetDefault("storage.image_dir", "data/images")
	viper.SetDefault("storage.archive_dir", "data/archive")

	viper.SetDefault("recognition.model", "gpt-4o")
	viper.SetDefault("recognition.temperature", 0.1)
	viper.SetDefault("recognition.max_tokens", 1500)
	viper.SetDefault("recognition.timeout", 60*time.Second)

	viper.SetDefault("tax.vat_rate", tax.DefaultVATRate)
	viper.SetDefault("tax.tolerance", tax.DefaultTolerance)

	defaults := dedup.DefaultWeights()
	viper.SetDefault("dedup.weights.business_id", defaults.BusinessID)
	viper.SetDefault("dedup.weights.date", defaults.Date)
	viper.SetDefault("dedup.weights.amount", defaults.Amount)
	viper.SetDefault("dedup.weights.invoice_number", defaults.InvoiceNumber)
	viper.SetDefault("dedup.threshold", dedup.DefaultThreshold)

	viper.SetDefault("stats.recent_limit", 10)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

func bindEnvVars() {
	viper.BindEnv("recognition.api_key", "OPENAI_API_KEY")
	viper.BindEnv("database.path", "TIKTAX_DB_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Recognition.APIKey == "" {
		return fmt.Errorf("recognition.api_key is required")
	}
	if c.Storage.ImageDir == "" {
		return fmt.Errorf("storage.image_dir is required")
	}
	if c.Tax.VATRate <= 0 || c.Tax.VATRate >= 1 {
		return fmt.Errorf("tax.vat_rate must be in (0, 1), got %v", c.Tax.VATRate)
	}
	if c.Tax.Tolerance < 0 {
		return fmt.Errorf("tax.tolerance must be non-negative, got %v", c.Tax.Tolerance)
	}
	if err := c.Dedup.Weights.Validate(); err != nil {
		return err
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0, 1], got %v", c.Dedup.Threshold)
	}
	if c.Stats.RecentLimit <= 0 {
		return fmt.Errorf("stats.recent_limit must be positive, got %d", c.Stats.RecentLimit)
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("category with empty id")
		}
		if seen[cat.ID] {
			return fmt.Errorf("duplicate category id %q", cat.ID)
		}
		seen[cat.ID] = true
	}
	return nil
}
