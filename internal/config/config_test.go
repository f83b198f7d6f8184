package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfigCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	config, err := ReadConfig(path)
	require.True(t, errors.Is(err, ErrConfigCreated))
	assert.Equal(t, Default(), config)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	again, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, config, again)
}

func TestReadConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data, _ := json.Marshal(map[string]any{
		"server": map[string]any{"port": 6000, "mode": "reactor", "read_timeout": "2m"},
		"auth":   map[string]any{"backend": "memory"},
	})
	require.NoError(t, os.WriteFile(path, data, 0644))
	t.Setenv("STOMP_PORT", "6100")
	t.Setenv("STOMP_DEBUG_MODE", "true")

	config, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6100, config.Server.Port)
	assert.Equal(t, ModeReactor, config.Server.Mode)
	assert.True(t, config.DebugMode)
	assert.Equal(t, 2*time.Minute, Duration(config.Server.ReadTimeout))
	assert.Equal(t, "stomp", config.Database.Database, "fields absent from the file keep their defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }},
		{"mode", func(c *Config) { c.Server.Mode = "threads" }},
		{"backend", func(c *Config) { c.Auth.Backend = "ldap" }},
		{"duration", func(c *Config) { c.Server.ReadTimeout = "soon" }},
		{"workers", func(c *Config) { c.Server.Workers = -1 }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestReadConfigLeavesValidationToCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"mode":"threads"}}`), 0644))
	t.Setenv("STOMP_AUTH_BACKEND", "ldap")

	config, err := ReadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "threads", config.Server.Mode)
	assert.Error(t, config.Validate())
}

func TestReadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err := ReadConfig(path)
	assert.Error(t, err)
}
