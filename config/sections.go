package config

import (
	"time"

	"github.com/kbukum/reactive/observability"
	"github.com/kbukum/reactive/pipeline"
)

// SchedulerConfig sizes the shared parallel scheduler.
type SchedulerConfig struct {
	// Name tags the scheduler in logs and metrics.
	Name string `yaml:"name" mapstructure:"name"`
	// Workers is the number of worker goroutines; 0 means one per CPU.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=0,lte=4096"`
}

// ApplyDefaults fills in the scheduler name.
func (c *SchedulerConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "parallel"
	}
}

// PipelineConfig holds the operator defaults applied with pipeline.Configure.
type PipelineConfig struct {
	Prefetch    int `yaml:"prefetch" mapstructure:"prefetch" validate:"gte=1"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency" validate:"gte=1"`
}

// ApplyDefaults uses the built-in operator defaults for unset fields.
func (c *PipelineConfig) ApplyDefaults() {
	d := pipeline.CurrentDefaults()
	if c.Prefetch == 0 {
		c.Prefetch = d.Prefetch
	}
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
}

// Defaults converts the section into pipeline defaults.
func (c *PipelineConfig) Defaults() pipeline.Defaults {
	return pipeline.Defaults{Prefetch: c.Prefetch, Concurrency: c.Concurrency}
}

// TracingConfig controls span export for traced pipelines.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// MetricsConfig controls metric export for metered pipelines and schedulers.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint" validate:"omitempty,hostname_port"`
	Insecure bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

const defaultEndpoint = "localhost:4318"

// ApplyDefaults fills in the collector endpoint and samples everything when
// no rate is set.
func (c *TracingConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1
	}
}

// ApplyDefaults fills in the collector endpoint.
func (c *MetricsConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = defaultEndpoint
	}
}

// TracerConfig builds the exporter configuration for service.
func (c *TracingConfig) TracerConfig(name, version, environment string) observability.TracerConfig {
	cfg := observability.DefaultTracerConfig(name)
	cfg.ServiceVersion = version
	cfg.Environment = environment
	if c.Endpoint != "" {
		cfg.Endpoint = c.Endpoint
	}
	cfg.Insecure = c.Insecure
	cfg.SampleRate = c.SampleRate
	return cfg
}

// MeterConfig builds the exporter configuration for service.
func (c *MetricsConfig) MeterConfig(name, version, environment string) observability.MeterConfig {
	cfg := observability.DefaultMeterConfig(name)
	cfg.ServiceVersion = version
	cfg.Environment = environment
	if c.Endpoint != "" {
		cfg.Endpoint = c.Endpoint
	}
	cfg.Insecure = c.Insecure
	if c.Interval > 0 {
		cfg.Interval = c.Interval
	}
	return cfg
}
