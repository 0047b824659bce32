// Package version reports which build of the engine is linked into a
// binary.
//
// The engine version is resolved from the module build info, so hosts
// that depend on the engine get it without extra flags. When building the
// engine's own tools the values can be pinned with -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/reactive/version.Version=1.2.0"
package version
