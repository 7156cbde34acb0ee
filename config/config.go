package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/reporting"
	"github.com/pifworks/pif-pipeline/validation"
)

// Config holds all configuration for the PIF pipeline.
// Values come from an optional YAML file; environment variables always
// override the file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Validation ValidationConfig `yaml:"validation"`
	Reporting  ReportingConfig  `yaml:"reporting"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" env:"PIF_PORT" env-default:"8080"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// Path is the SQLite file. ":memory:" keeps everything in memory.
	Path string `yaml:"path" env:"PIF_DB_PATH" env-default:"pif.db"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"PIF_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"PIF_LOG_FORMAT" env-default:"console"` // console or json
}

// ValidationConfig configures the conditional validation rules.
type ValidationConfig struct {
	DateLayout        string `yaml:"date_layout" env:"PIF_DATE_LAYOUT" env-default:"2006-01-02"`
	RevisedISDTrigger string `yaml:"revised_isd_trigger" env:"PIF_REVISED_ISD_TRIGGER" env-default:"Funding/Scope/Schedule Change"`
	LCMIssueTrigger   string `yaml:"lcm_issue_trigger" env:"PIF_LCM_ISSUE_TRIGGER" env-default:"Compliance"`

	// WarningRules lists rules reported as non-blocking warnings.
	WarningRules []string `yaml:"warning_rules" env:"PIF_WARNING_RULES" env-separator:","`
}

// ReportingConfig optionally pins the reporting period. When Year is zero
// the period is read from the database.
type ReportingConfig struct {
	Year  int `yaml:"year" env:"PIF_REPORTING_YEAR"`
	Month int `yaml:"month" env:"PIF_REPORTING_MONTH"`
}

// Load reads the YAML file at path with environment overrides. A missing
// file is not an error: environment and defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		} else {
			path = ""
		}
	}
	if path == "" {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := validation.New(c.ValidationOptions()); err != nil {
		return err
	}
	if c.Reporting.Year != 0 || c.Reporting.Month != 0 {
		if err := c.fixedPeriod().Validate(); err != nil {
			return fmt.Errorf("reporting: %w", err)
		}
	}
	return nil
}

// ValidationOptions maps the validation section onto engine options.
func (c *Config) ValidationOptions() validation.Options {
	opts := validation.Options{
		DateLayout:        c.Validation.DateLayout,
		RevisedISDTrigger: c.Validation.RevisedISDTrigger,
		LCMIssueTrigger:   c.Validation.LCMIssueTrigger,
	}
	for _, r := range c.Validation.WarningRules {
		if r = strings.TrimSpace(r); r != "" {
			opts.WarningRules = append(opts.WarningRules, validation.Rule(r))
		}
	}
	return opts
}

// PeriodProvider returns the fixed period when one is configured, nil
// otherwise.
func (c *Config) PeriodProvider() reporting.PeriodProvider {
	if c.Reporting.Year == 0 && c.Reporting.Month == 0 {
		return nil
	}
	return reporting.FixedPeriod(c.fixedPeriod())
}

func (c *Config) fixedPeriod() pif.ReportingPeriod {
	return pif.ReportingPeriod{Year: c.Reporting.Year, Month: c.Reporting.Month}
}
