package kernel

import (
	"runtime"

	"github.com/kestrelos/wasmkernel/extrinsics"
	"github.com/kestrelos/wasmkernel/internal/log"
)

// Config configures a Kernel, mirroring the teacher's Config.Clone /
// OrDefault value-object shape (water's Config is cloned rather than
// mutated once handed to a constructor).
type Config struct {
	// Seed determines the PRNG used for Pid/ThreadId assignment. Zero is
	// a valid, deterministic seed.
	Seed uint64

	// Workers is how many goroutines loop calling extrinsics.Core.Run —
	// the host thread pool of spec §1/§5. Each worker holds one unit of the
	// MaxConcurrentRunBodies semaphore for its whole Core.Run call,
	// including time spent parked waiting for a ready thread or a
	// collaborator follow-up, so at most MaxConcurrentRunBodies workers are
	// inside Core.Run at once and any workers beyond that wait in Acquire.
	// Zero means OrDefault picks 2*runtime.GOMAXPROCS(0).
	Workers int

	// MaxConcurrentRunBodies bounds how many Core.Run calls may be in
	// progress at once, whether executing a process's Wasm body
	// (process.ReadyToRun.Run, §4.1) or parked waiting for work. Zero means
	// OrDefault picks runtime.GOMAXPROCS(0).
	MaxConcurrentRunBodies int

	// Collaborator is the pluggable Extrinsics implementation consulted
	// for non-hardcoded imports (spec §6). Nil is valid: only the three
	// hardcoded "redshirt" extrinsics are then available.
	Collaborator extrinsics.Extrinsics

	// Logger overrides the package-default slog sink. Nil falls back to
	// slog.Default() at every layer.
	Logger *log.Logger

	// ParkerCapacity bounds how many runner goroutines can be parked on
	// the scheduler's single suspension point without blocking. Zero
	// means OrDefault picks 64.
	ParkerCapacity int
}

// Clone returns a shallow copy, matching water's Config.Clone semantics:
// callers are expected to treat a Config as a value type once passed to
// New.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	clone := *c
	return &clone
}

// OrDefault fills in zero-valued fields with defaults and returns the
// (possibly newly allocated) result; it never mutates the receiver.
func (c *Config) OrDefault() *Config {
	conf := c.Clone()
	if conf.Workers <= 0 {
		conf.Workers = 2 * runtime.GOMAXPROCS(0)
	}
	if conf.MaxConcurrentRunBodies <= 0 {
		conf.MaxConcurrentRunBodies = runtime.GOMAXPROCS(0)
	}
	if conf.ParkerCapacity <= 0 {
		conf.ParkerCapacity = 64
	}
	return conf
}
