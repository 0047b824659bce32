package config

import (
	"github.com/kbukum/reactive/logger"
	"github.com/kbukum/reactive/validation"
)

// Environments accepted in EngineConfig.Environment.
var Environments = []string{"development", "staging", "production"}

// EngineConfig is the configuration of a process embedding the engine.
// Projects extend it by embedding it in their own config structs.
//
// Example:
//
//	type WorkerConfig struct {
//	    config.EngineConfig `yaml:",inline" mapstructure:",squash"`
//	    Source string `yaml:"source" mapstructure:"source"`
//	}
type EngineConfig struct {
	Name        string `yaml:"name" mapstructure:"name" validate:"required"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logging   logger.Config   `yaml:"logging" mapstructure:"logging"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Tracing   TracingConfig   `yaml:"tracing" mapstructure:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
}

// GetEngineConfig returns the base EngineConfig. When embedded, the method
// is promoted so the embedding struct satisfies bootstrap.Config.
func (c *EngineConfig) GetEngineConfig() *EngineConfig {
	return c
}

// ApplyDefaults fills unset fields. Override this in embedding structs and
// call c.EngineConfig.ApplyDefaults() first.
func (c *EngineConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	if c.Version == "" {
		c.Version = "0.0.0"
	}
	// Propagate the name so logger.Init tags entries with it.
	if c.Logging.ServiceName == "" && c.Name != "" {
		c.Logging.ServiceName = c.Name
	}
	c.Logging.ApplyDefaults()
	c.Scheduler.ApplyDefaults()
	c.Pipeline.ApplyDefaults()
	c.Tracing.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Validate checks every section and reports all problems at once as an
// INVALID_CONFIG error.
func (c *EngineConfig) Validate() error {
	v := validation.New()
	v.Merge("config", validation.Validate(c))
	v.OneOf("environment", c.Environment, Environments)
	v.Merge("logging", c.Logging.Validate())
	return v.Validate()
}
