// Package validation checks engine configuration before it is applied.
//
// Struct tags are handled by go-playground/validator; rules that span
// several fields are collected with a Validator. Both report failures as
// an errors.AppError with code INVALID_CONFIG whose details list every
// offending field.
//
//	type SchedulerConfig struct {
//	    Workers int `mapstructure:"workers" validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
//	v := validation.New()
//	v.Custom(cfg.Prefetch <= cfg.Concurrency*64, "pipeline.prefetch", "too large for concurrency")
//	err := v.Validate()
package validation
