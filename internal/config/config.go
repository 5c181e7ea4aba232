// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// RENDERCORE_RENDER_ZOOM.
const EnvPrefix = "RENDERCORE"

// Interface defines the contract for accessing application configuration.
// Commands depend on it so tests can substitute their own values.
type Interface interface {
	Logger() LoggerConfig
	Render() RenderConfig
	Network() NetworkConfig
	Script() ScriptConfig

	// Render Setters
	SetRenderViewport(width, height float64)
	SetRenderZoom(zoom float64)
	SetRenderAccessibility(bool)
	SetRenderCompositing(bool)

	// Script Setters
	SetScriptEnabled(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	RenderCfg  RenderConfig  `mapstructure:"render" yaml:"render"`
	NetworkCfg NetworkConfig `mapstructure:"network" yaml:"network"`
	ScriptCfg  ScriptConfig  `mapstructure:"script" yaml:"script"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Render() RenderConfig   { return c.RenderCfg }
func (c *Config) Network() NetworkConfig { return c.NetworkCfg }
func (c *Config) Script() ScriptConfig   { return c.ScriptCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRenderViewport(width, height float64) {
	c.RenderCfg.ViewportWidth, c.RenderCfg.ViewportHeight = width, height
}
func (c *Config) SetRenderZoom(zoom float64)    { c.RenderCfg.Zoom = zoom }
func (c *Config) SetRenderAccessibility(b bool) { c.RenderCfg.Accessibility = b }
func (c *Config) SetRenderCompositing(b bool)   { c.RenderCfg.Compositing = b }
func (c *Config) SetScriptEnabled(b bool)       { c.ScriptCfg.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// RenderConfig sizes the window and tunes the pipeline.
type RenderConfig struct {
	ViewportWidth  float64       `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight float64       `mapstructure:"viewport_height" yaml:"viewport_height"`
	Zoom           float64       `mapstructure:"zoom" yaml:"zoom"`
	FrameInterval  time.Duration `mapstructure:"frame_interval" yaml:"frame_interval"`
	ChromeHeight   float64       `mapstructure:"chrome_height" yaml:"chrome_height"`
	Compositing    bool          `mapstructure:"compositing" yaml:"compositing"`
	Accessibility  bool          `mapstructure:"accessibility" yaml:"accessibility"`
}

// NetworkConfig configures the HTTP fetcher.
type NetworkConfig struct {
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	IgnoreTLSErrors bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// ScriptConfig configures page scripts.
type ScriptConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "rendercore")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 7)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Render --
	v.SetDefault("render.viewport_width", 800.0)
	v.SetDefault("render.viewport_height", 600.0)
	v.SetDefault("render.zoom", 1.0)
	v.SetDefault("render.frame_interval", "16ms")
	v.SetDefault("render.chrome_height", 40.0)
	v.SetDefault("render.compositing", true)
	v.SetDefault("render.accessibility", false)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.user_agent", "")
	v.SetDefault("network.max_body_bytes", 10<<20)
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Script --
	v.SetDefault("script.enabled", true)
	v.SetDefault("script.timeout", "5s")
}

// NewViper returns a viper instance with defaults set and environment
// overrides bound under EnvPrefix, "." becoming "_".
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.RenderCfg.Validate(); err != nil {
		return fmt.Errorf("render configuration invalid: %w", err)
	}
	if c.NetworkCfg.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.NetworkCfg.MaxBodyBytes <= 0 {
		return fmt.Errorf("network.max_body_bytes must be a positive integer")
	}
	if c.ScriptCfg.Enabled && c.ScriptCfg.Timeout <= 0 {
		return fmt.Errorf("script.timeout must be a positive duration")
	}
	return nil
}

// Validate checks the RenderConfig settings.
func (r *RenderConfig) Validate() error {
	if r.ViewportWidth <= 0 || r.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must have a positive size")
	}
	if r.ChromeHeight < 0 || r.ChromeHeight >= r.ViewportHeight {
		return fmt.Errorf("chrome_height must be between 0 and viewport_height")
	}
	if r.Zoom <= 0 {
		return fmt.Errorf("zoom must be positive")
	}
	if r.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be a positive duration")
	}
	return nil
}
