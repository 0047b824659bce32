// Package logger provides structured logging for the reactive engine
// using zerolog.
//
// It supports JSON and console output, level configuration and
// component-scoped loggers. Stream operators log with the field keys
// declared in fields.go so signal traces can be filtered per subscription.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.WithComponent("scheduler")
//	log.Info("worker started", logger.Fields(logger.FieldWorker, 3))
package logger
