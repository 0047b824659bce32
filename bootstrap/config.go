package bootstrap

import (
	"github.com/kbukum/reactive/config"
)

// Config is the interface constraint for engine configuration types.
// Any struct that embeds config.EngineConfig (value embedding) satisfies
// it through promoted methods.
//
// Example:
//
//	type WorkerConfig struct {
//	    config.EngineConfig `yaml:",inline" mapstructure:",squash"`
//	    Source string `yaml:"source" mapstructure:"source"`
//	}
//
//	app, err := bootstrap.NewApp[*WorkerConfig](&cfg)
type Config interface {
	GetEngineConfig() *config.EngineConfig
	ApplyDefaults()
	Validate() error
}
