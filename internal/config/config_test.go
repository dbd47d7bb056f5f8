package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOverride() *Override {
	endpoint := "https://reports.example.com/api/v1/slow-queries"
	key := "secret-key"
	project := "proj-1"
	return &Override{
		APIEndpoint: &endpoint,
		APIKey:      &key,
		ProjectID:   &project,
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(validOverride())
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.ThresholdMs)
	assert.Equal(t, 20, cfg.MaxStack)
	assert.Equal(t, 5000, cfg.MaxQuery)
	assert.Equal(t, 5000, cfg.TimeoutMs)
	assert.True(t, cfg.CaptureStack)
	assert.True(t, cfg.EnableDev)
	assert.False(t, cfg.EnableProd)
	assert.False(t, cfg.ExecutionPlanEnabled)
	assert.Equal(t, 1, cfg.QueueConcurrency)
	assert.Equal(t, 0, cfg.QueueIntervalCap)
	assert.Equal(t, "backend", cfg.ContextType)
	assert.Equal(t, "development", cfg.Environment)
}

func TestLoadEnvironmentBeatsDefault(t *testing.T) {
	t.Setenv("QR_THRESHOLD_MS", "1200")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load(validOverride())
	require.NoError(t, err)

	assert.Equal(t, 1200, cfg.ThresholdMs)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoadOverrideBeatsEnvironment(t *testing.T) {
	t.Setenv("QR_THRESHOLD_MS", "1200")

	threshold := 2500
	o := validOverride()
	o.ThresholdMs = &threshold

	cfg, err := Load(o)
	require.NoError(t, err)
	assert.Equal(t, 2500, cfg.ThresholdMs)
}

func TestLoadNilOverride(t *testing.T) {
	t.Setenv("QR_API_ENDPOINT", "https://reports.example.com")
	t.Setenv("QR_API_KEY", "k")
	t.Setenv("QR_PROJECT_ID", "p")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestValidateNamesMissingField(t *testing.T) {
	o := validOverride()
	empty := ""
	o.APIKey = &empty

	cfg, err := Load(o)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIKey")
}

func TestValidateRejectsNonPositiveBounds(t *testing.T) {
	o := validOverride()
	zero := 0
	o.ThresholdMs = &zero

	cfg, err := Load(o)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ThresholdMs")
}

func TestValidateRejectsBadURL(t *testing.T) {
	o := validOverride()
	bad := "not a url"
	o.APIEndpoint = &bad

	cfg, err := Load(o)
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APIEndpoint")
}
