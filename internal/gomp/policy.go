package gomp

import (
	"fmt"

	"github.com/roach88/parloop/internal/config"
	"github.com/roach88/parloop/internal/diag"
)

// CheckSchedule downgrades configuration the runtime interface cannot
// express. A scheduling policy other than runtime and a non-zero chunk size
// each produce one warning on sink. The returned options carry the defaults
// in their place; generation always proceeds.
func CheckSchedule(opts config.Options, sink diag.Sink) config.Options {
	if sink == nil {
		sink = diag.Discard
	}
	if opts.Schedule != config.ScheduleRuntime {
		sink.Warn(fmt.Sprintf(
			"the GNU OpenMP backend supports only the %q scheduling policy; ignoring %q",
			config.ScheduleRuntime, opts.Schedule))
		opts.Schedule = config.ScheduleRuntime
	}
	if opts.ChunkSize != 0 {
		sink.Warn(fmt.Sprintf(
			"the GNU OpenMP backend supports only the default chunk size; ignoring %d",
			opts.ChunkSize))
		opts.ChunkSize = 0
	}
	return opts
}
