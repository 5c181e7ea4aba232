// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "rendercore", cfg.Logger().ServiceName)
	assert.Equal(t, 800.0, cfg.Render().ViewportWidth)
	assert.Equal(t, 600.0, cfg.Render().ViewportHeight)
	assert.Equal(t, 1.0, cfg.Render().Zoom)
	assert.Equal(t, 16*time.Millisecond, cfg.Render().FrameInterval)
	assert.True(t, cfg.Render().Compositing)
	assert.False(t, cfg.Render().Accessibility)
	assert.Equal(t, 30*time.Second, cfg.Network().Timeout)
	assert.Equal(t, int64(10<<20), cfg.Network().MaxBodyBytes)
	assert.True(t, cfg.Script().Enabled)
	assert.Equal(t, 5*time.Second, cfg.Script().Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestSetters(t *testing.T) {
	var cfg Interface = NewDefaultConfig()
	cfg.SetRenderViewport(1024, 768)
	cfg.SetRenderZoom(2)
	cfg.SetRenderAccessibility(true)
	cfg.SetRenderCompositing(false)
	cfg.SetScriptEnabled(false)

	assert.Equal(t, 1024.0, cfg.Render().ViewportWidth)
	assert.Equal(t, 768.0, cfg.Render().ViewportHeight)
	assert.Equal(t, 2.0, cfg.Render().Zoom)
	assert.True(t, cfg.Render().Accessibility)
	assert.False(t, cfg.Render().Compositing)
	assert.False(t, cfg.Script().Enabled)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero width", func(c *Config) { c.RenderCfg.ViewportWidth = 0 }, "viewport must have a positive size"},
		{"chrome taller than window", func(c *Config) { c.RenderCfg.ChromeHeight = 600 }, "chrome_height must be between 0 and viewport_height"},
		{"negative zoom", func(c *Config) { c.RenderCfg.Zoom = -1 }, "zoom must be positive"},
		{"zero frame interval", func(c *Config) { c.RenderCfg.FrameInterval = 0 }, "frame_interval must be a positive duration"},
		{"zero network timeout", func(c *Config) { c.NetworkCfg.Timeout = 0 }, "network.timeout must be a positive duration"},
		{"zero body limit", func(c *Config) { c.NetworkCfg.MaxBodyBytes = 0 }, "network.max_body_bytes must be a positive integer"},
		{"zero script timeout", func(c *Config) { c.ScriptCfg.Timeout = 0 }, "script.timeout must be a positive duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("script timeout is ignored when scripts are off", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.ScriptCfg.Enabled = false
		cfg.ScriptCfg.Timeout = 0
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
render:
  viewport_width: 1280
  zoom: 1.5
  frame_interval: 33ms
script:
  enabled: false
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 1280.0, cfg.Render().ViewportWidth)
		assert.Equal(t, 600.0, cfg.Render().ViewportHeight, "defaults fill the gaps")
		assert.Equal(t, 1.5, cfg.Render().Zoom)
		assert.Equal(t, 33*time.Millisecond, cfg.Render().FrameInterval)
		assert.False(t, cfg.Script().Enabled)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("render.zoom", 0)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "zoom must be positive")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("RENDERCORE_RENDER_ZOOM", "3")
		t.Setenv("RENDERCORE_NETWORK_USER_AGENT", "test-agent/1.0")

		v := NewViper()
		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, 3.0, cfg.Render().Zoom)
		assert.Equal(t, "test-agent/1.0", cfg.Network().UserAgent)
	})
}
