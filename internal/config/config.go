// Package config provides layered configuration loading for CeroPOS.
// It merges struct defaults with CEROPOS_-prefixed environment variables
// and validates the result, so the rest of the application reads one
// resolved Config and never consults the environment again.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the environment variables, e.g. CEROPOS_DATA_DIR.
const envPrefix = "CEROPOS_"

// Config holds the resolved runtime configuration. Paths other than DataDir
// are relative to DataDir.
type Config struct {
	DataDir       string        `koanf:"data_dir" validate:"required,safepath"`
	DatabaseFile  string        `koanf:"database_file" validate:"required,safepath"`
	ImagesDir     string        `koanf:"images_dir" validate:"required,safepath"`
	BackupDir     string        `koanf:"backup_dir" validate:"required,safepath"`
	CheckInterval time.Duration `koanf:"check_interval" validate:"gt=0"`
	LogLevel      string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat     string        `koanf:"log_format" validate:"oneof=text json"`
}

// DefaultAppConfig is the base layer every load starts from.
var DefaultAppConfig = Config{
	DataDir:       "./data",
	DatabaseFile:  "ceropos.db",
	ImagesDir:     "images",
	BackupDir:     "backups",
	CheckInterval: time.Hour,
	LogLevel:      "info",
	LogFormat:     "text",
}

// DatabasePath returns the SQLite file path under the data directory.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, c.DatabaseFile) }

// ImagesPath returns the product image directory under the data directory.
func (c *Config) ImagesPath() string { return filepath.Join(c.DataDir, c.ImagesDir) }

// BackupPath returns the automatic backup directory under the data directory.
func (c *Config) BackupPath() string { return filepath.Join(c.DataDir, c.BackupDir) }

// Load resolves configuration: defaults, then environment overrides, then
// validation. It returns all problems wrapped into one error.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// CEROPOS_DATA_DIR -> data_dir; keys are flat, underscores survive.
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate runs struct-tag validation with the safepath rule registered.
func validate(cfg *Config) error {
	v := validator.New()
	if err := v.RegisterValidation("safepath", func(fl validator.FieldLevel) bool {
		return isSafePath(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// isSafePath rejects empty, root, bare-dot, and any path containing a
// parent-directory element. Both relative and absolute directories are
// otherwise allowed.
func isSafePath(p string) bool {
	if p == "" {
		return false
	}
	clean := filepath.Clean(p)
	if clean == "." || clean == string(filepath.Separator) {
		return false
	}
	for _, part := range strings.Split(clean, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}
	return true
}
