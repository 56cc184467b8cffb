// Package logging configures zerolog for the storefront client and proxy.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is a textual log level as read from LOG_LEVEL. Besides a plain
// level, LOG_LEVEL may carry per-component overrides, e.g.
// "warn,cache=debug,api-client=info".
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level Level

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr when nil.
	Output io.Writer

	// Service is attached to every line when set.
	Service string

	// ComponentLevels overrides Level for loggers from NewLogger. Entries
	// parsed from Level take precedence.
	ComponentLevels map[string]Level
}

var (
	overridesMu sync.RWMutex
	overrides   map[string]zerolog.Level
)

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup builds the process logger and installs it as zerolog's global logger.
func Setup(cfg Config) zerolog.Logger {
	base, parsed := ParseLevelSpec(string(cfg.Level))

	components := make(map[string]zerolog.Level, len(cfg.ComponentLevels)+len(parsed))
	for name, lvl := range cfg.ComponentLevels {
		components[name] = ParseLevel(string(lvl))
	}
	for name, lvl := range parsed {
		components[name] = lvl
	}

	// The global level is the most verbose one in use; each logger then
	// filters at its own level.
	global := base
	for _, lvl := range components {
		if lvl < global {
			global = lvl
		}
	}
	zerolog.SetGlobalLevel(global)

	overridesMu.Lock()
	overrides = components
	overridesMu.Unlock()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).Level(base).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevelSpec splits a LOG_LEVEL value into the base level and
// per-component overrides. Parts without "=" set the base; the last one wins.
func ParseLevelSpec(spec string) (zerolog.Level, map[string]zerolog.Level) {
	base := zerolog.InfoLevel
	components := make(map[string]zerolog.Level)

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, ok := strings.Cut(part, "=")
		if !ok {
			base = ParseLevel(part)
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			components[name] = ParseLevel(lvl)
		}
	}
	return base, components
}

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger tagged with the given component name, at the
// component's override level when one was configured.
func NewLogger(component string) zerolog.Logger {
	logger := log.With().Str("component", component).Logger()

	overridesMu.RLock()
	lvl, ok := overrides[component]
	overridesMu.RUnlock()
	if ok {
		logger = logger.Level(lvl)
	}
	return logger
}

// Level guidelines:
//
// Debug: cache hits/misses, joined in-flight calls, invalidated keys,
// outbound request composition.
//
// Info: login/logout, proxy startup, session changes.
//
// Warn: storage failures that were swallowed, non-2xx API responses,
// forced navigation after an unauthorized response.
//
// Error: configuration errors, proxy upstream failures.
//
// Common fields: component, method, endpoint, status, duration, cache_key,
// request_id, route.
