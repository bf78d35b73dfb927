// Package config provides the configuration layer of quickload.
//
// Job files are nested YAML (or JSON) documents read into a Source. Plugins
// never bind struct tags to the document; each one reads its own keys from a
// Source with a pure Load function that applies defaults and reports missing
// or malformed keys as config errors.
//
// The engine-wide settings live in SystemConfig:
//
//	exec:
//	  page_size: 1024
//	  channel_capacity: 16
//	  max_threads: 4
//	observability:
//	  log_level: info
//	  metrics: true
//
// Example usage:
//
//	src, err := config.LoadFile("job.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sys, err := config.LoadSystemConfig(src)
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/ajitpratap0/quickload/pkg/errors"
	"github.com/ajitpratap0/quickload/pkg/record"
)

// SystemConfig holds the engine settings shared by every transaction.
type SystemConfig struct {
	// Exec settings control page sizing and parallelism
	Exec ExecConfig `yaml:"exec" json:"exec"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ExecConfig contains page and thread settings.
type ExecConfig struct {
	// PageSize is the number of records per sealed page
	PageSize int `yaml:"page_size" json:"page_size"`
	// ChannelCapacity is the number of pages a channel buffers
	ChannelCapacity int `yaml:"channel_capacity" json:"channel_capacity"`
	// MaxThreads limits concurrently running partitions
	MaxThreads int `yaml:"max_threads" json:"max_threads"`
	// ReadBufferSize is the buffer size of file readers in bytes
	ReadBufferSize int `yaml:"read_buffer_size" json:"read_buffer_size"`
	// JoinTimeout bounds how long a scope waits for its producer to exit.
	// Zero waits without limit.
	JoinTimeout time.Duration `yaml:"join_timeout" json:"join_timeout"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat is json or console
	LogFormat string `yaml:"log_format" json:"log_format"`
	// EnableMetrics records Prometheus metrics
	EnableMetrics bool `yaml:"metrics" json:"metrics"`
	// EnableTracing exports spans to stdout
	EnableTracing bool `yaml:"tracing" json:"tracing"`
	// ServiceName is reported on spans
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// DefaultSystemConfig returns the settings used when a job file declares
// none.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		Exec: ExecConfig{
			PageSize:        record.DefaultPageSize,
			ChannelCapacity: 16,
			MaxThreads:      runtime.NumCPU(),
			ReadBufferSize:  64 * 1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			LogFormat:     "console",
			EnableMetrics: true,
			EnableTracing: false,
			ServiceName:   "quickload",
		},
	}
}

// LoadSystemConfig reads the exec and observability sections of src over
// the defaults.
func LoadSystemConfig(src Source) (SystemConfig, error) {
	cfg := DefaultSystemConfig()

	exec, err := src.Sub("exec")
	if err != nil {
		return cfg, err
	}
	if cfg.Exec.PageSize, err = exec.GetInt("page_size", cfg.Exec.PageSize); err != nil {
		return cfg, err
	}
	if cfg.Exec.ChannelCapacity, err = exec.GetInt("channel_capacity", cfg.Exec.ChannelCapacity); err != nil {
		return cfg, err
	}
	if cfg.Exec.MaxThreads, err = exec.GetInt("max_threads", cfg.Exec.MaxThreads); err != nil {
		return cfg, err
	}
	if cfg.Exec.ReadBufferSize, err = exec.GetInt("read_buffer_size", cfg.Exec.ReadBufferSize); err != nil {
		return cfg, err
	}
	if cfg.Exec.JoinTimeout, err = exec.GetDuration("join_timeout", cfg.Exec.JoinTimeout); err != nil {
		return cfg, err
	}

	obs, err := src.Sub("observability")
	if err != nil {
		return cfg, err
	}
	if cfg.Observability.LogLevel, err = obs.GetString("log_level", cfg.Observability.LogLevel); err != nil {
		return cfg, err
	}
	if cfg.Observability.LogFormat, err = obs.GetString("log_format", cfg.Observability.LogFormat); err != nil {
		return cfg, err
	}
	if cfg.Observability.EnableMetrics, err = obs.GetBool("metrics", cfg.Observability.EnableMetrics); err != nil {
		return cfg, err
	}
	if cfg.Observability.EnableTracing, err = obs.GetBool("tracing", cfg.Observability.EnableTracing); err != nil {
		return cfg, err
	}
	if cfg.Observability.ServiceName, err = obs.GetString("service_name", cfg.Observability.ServiceName); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks that values are within acceptable ranges.
func (c SystemConfig) Validate() error {
	if c.Exec.PageSize <= 0 {
		return configError("exec.page_size must be positive")
	}
	if c.Exec.ChannelCapacity <= 0 {
		return configError("exec.channel_capacity must be positive")
	}
	if c.Exec.MaxThreads <= 0 {
		return configError("exec.max_threads must be positive")
	}
	if c.Exec.ReadBufferSize <= 0 {
		return configError("exec.read_buffer_size must be positive")
	}
	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return configError(fmt.Sprintf("observability.log_level %q is not one of debug, info, warn, error",
			c.Observability.LogLevel))
	}
	return nil
}

// GetMaxThreads returns the thread limit, ensuring it's at least 1
func (e ExecConfig) GetMaxThreads() int {
	if e.MaxThreads <= 0 {
		return runtime.NumCPU()
	}
	return e.MaxThreads
}

func configError(msg string) error {
	return errors.New(errors.ErrorTypeConfig, msg)
}
