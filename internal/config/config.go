package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // the sales exports are in Vietnamese local time

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SALESVIZ"

// Config holds application configuration
type Config struct {
	// Server settings
	ListenAddr      string        `envconfig:"LISTEN_ADDR" validate:"required"`
	Debug           bool          `envconfig:"DEBUG"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`

	// Data
	DataDirectory string `envconfig:"DATA_DIR" validate:"required"`
	// DataFile selects one export in DataDirectory; empty picks the newest.
	DataFile string `envconfig:"DATA_FILE"`
	// Password unlocks an encrypted data directory at startup.
	Password string `envconfig:"PASSWORD" json:"-"`

	// Parsing
	DateOrder string `envconfig:"DATE_ORDER" validate:"oneof=dmy mdy"`
	TimeZone  string `envconfig:"TIME_ZONE" validate:"required,timezone"`

	// Charts
	TopN     int     `envconfig:"TOP_N" validate:"gte=0"`
	BinWidth float64 `envconfig:"BIN_WIDTH" validate:"gt=0"`
	Workers  int     `envconfig:"WORKERS" validate:"gte=0"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `envconfig:"LOG_FORMAT" validate:"oneof=json text"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Config{
		ListenAddr:      ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		DataDirectory:   filepath.Join(wd, "data"),
		DateOrder:       "dmy",
		TimeZone:        "Asia/Ho_Chi_Minh",
		TopN:            20,
		BinWidth:        50000,
		Workers:         4,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load reads SALESVIZ_* environment variables over the defaults,
// validates the result and makes sure the data directory exists.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ensureDirectories()
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
}

// Location returns the configured time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DataFilePath returns the absolute path of DataFile, or "" when unset.
func (c *Config) DataFilePath() string {
	if c.DataFile == "" {
		return ""
	}
	if filepath.IsAbs(c.DataFile) {
		return c.DataFile
	}
	return filepath.Join(c.DataDirectory, c.DataFile)
}

// ensureDirectories creates required directories if they don't exist
func (c *Config) ensureDirectories() {
	if err := os.MkdirAll(c.DataDirectory, 0755); err != nil {
		slog.Warn("could not create directory", "dir", c.DataDirectory, "error", err)
	}
}
