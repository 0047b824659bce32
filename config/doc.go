// Package config loads and validates the engine configuration.
//
// Values come from a YAML file (<service>.yml or reactive.yml), an optional
// .env file and environment variables, merged with Viper in that order.
// EngineConfig carries the logging, scheduler, pipeline and telemetry
// sections; ApplyDefaults fills gaps and Validate reports every invalid
// key at once.
//
// # Usage
//
//	cfg, err := config.Load("ingest")
//	if err != nil {
//	    return err
//	}
//	pipeline.Configure(cfg.Pipeline.Defaults())
//
// Load binds environment variables prefixed with REACTIVE_, with
// underscores standing for nesting (REACTIVE_SCHEDULER_WORKERS=8).
package config
