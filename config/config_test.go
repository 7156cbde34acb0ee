package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pifworks/pif-pipeline/pif"
	"github.com/pifworks/pif-pipeline/reporting"
	"github.com/pifworks/pif-pipeline/validation"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pif.db", cfg.Database.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Nil(t, cfg.PeriodProvider())

	opts := cfg.ValidationOptions()
	assert.Equal(t, validation.DefaultOptions().DateLayout, opts.DateLayout)
	assert.Equal(t, validation.DefaultOptions().RevisedISDTrigger, opts.RevisedISDTrigger)
	assert.Equal(t, validation.DefaultOptions().LCMIssueTrigger, opts.LCMIssueTrigger)
	assert.Empty(t, opts.WarningRules)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	// GIVEN: A file setting port, database and a fixed period
	path := writeConfig(t, `
server:
  port: 9090
database:
  path: /var/lib/pif/pif.db
log:
  format: json
validation:
  warning_rules: [justification_required]
reporting:
  year: 2025
  month: 3
`)

	// AND: The environment overriding the port
	t.Setenv("PIF_PORT", "7070")

	// WHEN: Loading
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: Env wins, file fills the rest
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/var/lib/pif/pif.db", cfg.Database.Path)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []validation.Rule{validation.RuleJustificationRequired}, cfg.ValidationOptions().WarningRules)
	assert.Equal(t, reporting.FixedPeriod(pif.ReportingPeriod{Year: 2025, Month: 3}), cfg.PeriodProvider())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"hard rule as warning", "validation:\n  warning_rules: [site_match]\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"month out of range", "reporting:\n  year: 2025\n  month: 13\n"},
		{"month without year", "reporting:\n  month: 4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
