// Package config holds the options that control parallel loop generation
// and loads them from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Schedule is an OpenMP loop scheduling policy.
type Schedule string

// Known scheduling policies. Only ScheduleRuntime is supported by the
// generator; the others are accepted and downgraded with a warning.
const (
	ScheduleRuntime Schedule = "runtime"
	ScheduleStatic  Schedule = "static"
	ScheduleDynamic Schedule = "dynamic"
	ScheduleGuided  Schedule = "guided"
)

// Known reports whether s names a scheduling policy.
func (s Schedule) Known() bool {
	switch s {
	case ScheduleRuntime, ScheduleStatic, ScheduleDynamic, ScheduleGuided:
		return true
	}
	return false
}

// Options configures parallel loop generation.
type Options struct {
	// NumThreads is passed to the runtime's start call. Zero lets the
	// runtime decide.
	NumThreads int32 `yaml:"num_threads"`

	// Schedule is the requested scheduling policy.
	Schedule Schedule `yaml:"schedule"`

	// ChunkSize is the requested chunk size. Zero means the runtime default.
	ChunkSize int64 `yaml:"chunk_size"`

	// Verify checks every generated worker's dominator tree and loop forest
	// against its finished CFG.
	Verify bool `yaml:"verify"`
}

// Default returns the default options.
func Default() Options {
	return Options{
		NumThreads: 0,
		Schedule:   ScheduleRuntime,
		ChunkSize:  0,
		Verify:     true,
	}
}

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Validate rejects options no generation could use. An unsupported but known
// schedule or a non-zero chunk size is valid here.
func (o Options) Validate() error {
	var errs []error
	if o.NumThreads < 0 {
		errs = append(errs, fmt.Errorf("%w: num_threads must be non-negative, got %d", ErrInvalid, o.NumThreads))
	}
	if o.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be non-negative, got %d", ErrInvalid, o.ChunkSize))
	}
	if !o.Schedule.Known() {
		errs = append(errs, fmt.Errorf("%w: unknown schedule %q (want runtime, static, dynamic or guided)", ErrInvalid, o.Schedule))
	}
	return errors.Join(errs...)
}

// Parse decodes YAML on top of the defaults. Unknown fields are rejected.
func Parse(data []byte) (Options, error) {
	opts := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return opts, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Load reads and parses a config file.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read config file: %w", err)
	}
	opts, err := Parse(data)
	if err != nil {
		return Options{}, fmt.Errorf("%s: %w", path, err)
	}
	return opts, nil
}
