package logging

import (
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RunLogger collects the build, configuration, store backends and feature
// flags of a run, then emits a single structured zerolog event summarising
// how the run was configured. The run ID comes from the logger's context.
type RunLogger struct {
	version  string
	variants []string
	stores   map[string]string
	features map[string]bool
	config   map[string]string
}

// NewRunLogger creates an empty RunLogger.
func NewRunLogger() *RunLogger {
	return &RunLogger{
		stores:   make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (r *RunLogger) Version(v string) *RunLogger {
	r.version = v
	return r
}

// Variants records the output suffixes produced by this run.
func (r *RunLogger) Variants(suffixes []string) *RunLogger {
	r.variants = append([]string(nil), suffixes...)
	return r
}

// Store registers an output store backend (e.g. "local", "s3").
func (r *RunLogger) Store(label, description string) *RunLogger {
	r.stores[label] = description
	return r
}

// Feature registers a boolean feature flag (e.g. "crop", "watch").
func (r *RunLogger) Feature(name string, enabled bool) *RunLogger {
	r.features[name] = enabled
	return r
}

// Config registers a non-sensitive configuration key-value pair.
func (r *RunLogger) Config(key, value string) *RunLogger {
	r.config[key] = value
	return r
}

// Log emits a single structured INFO log event with all collected information.
func (r *RunLogger) Log() {
	process := zerolog.Dict().
		Str("go_version", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Str("log_level", os.Getenv(LevelEnv))
	if r.version != "" {
		process = process.Str("version", r.version)
	}

	evt := log.Info().Dict("process", process)

	if len(r.variants) > 0 {
		evt = evt.Str("variants", strings.Join(r.variants, ","))
	}
	if len(r.stores) > 0 {
		evt = evt.Dict("stores", dictFromMap(r.stores))
	}
	if len(r.features) > 0 {
		d := zerolog.Dict()
		for _, k := range sortedKeys(r.features) {
			d = d.Bool(k, r.features[k])
		}
		evt = evt.Dict("features", d)
	}
	if len(r.config) > 0 {
		evt = evt.Dict("config", dictFromMap(r.config))
	}

	evt.Msg("Run configured")
}

// dictFromMap converts a map[string]string into a zerolog.Event (Dict).
func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for _, k := range sortedKeys(m) {
		d = d.Str(k, m[k])
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
