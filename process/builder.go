package process

import (
	"weak"

	"github.com/kestrelos/wasmkernel/internal/idpool"
	"github.com/kestrelos/wasmkernel/internal/log"
	"github.com/kestrelos/wasmkernel/internal/waker"
	"github.com/kestrelos/wasmkernel/vm"
)

// ExtrinsicRegistration is one (module, field) → token mapping the
// Collection's VM import resolver consults for every process it builds.
type ExtrinsicRegistration struct {
	Module, Field string
	Sig           vm.Signature
	Token         uint64
}

// Builder configures and freezes a Collection, mirroring the teacher's
// WazeroModuleConfigFactory builder shape: configure, then call Build()
// once, after which the extrinsic table is immutable (spec §4.2
// "Builder registers extrinsics ... build() freezes extrinsic tables").
type Builder struct {
	seed        uint64
	extrinsics  []ExtrinsicRegistration
	seen        map[string]struct{}
	logger      *log.Logger
	parkerSlots int
}

// NewBuilder returns a Builder with default seed 0 and a modest waker
// parking capacity suitable for a handful of concurrent runner goroutines.
func NewBuilder() *Builder {
	return &Builder{
		seen:        make(map[string]struct{}),
		parkerSlots: 64,
	}
}

// WithSeed determines the PRNG used for id assignment. Same seed ⇒ same
// id sequence for the same sequence of execute/start_thread/reserve_pid
// calls (spec §4.2, testable property 2).
func (b *Builder) WithSeed(seed uint64) *Builder {
	b.seed = seed
	return b
}

// WithLogger overrides the logger every layer falls back to slog.Default().
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	return b
}

// WithParkerCapacity bounds how many runner goroutines can be parked on
// Collection.Run at once without blocking. Defaults to 64.
func (b *Builder) WithParkerCapacity(n int) *Builder {
	b.parkerSlots = n
	return b
}

// RegisterExtrinsic maps (module, field) to token for every process this
// Collection will build. Duplicates are rejected (spec §4.2).
func (b *Builder) RegisterExtrinsic(module, field string, sig vm.Signature, token uint64) error {
	key := module + "\x00" + field
	if _, dup := b.seen[key]; dup {
		return ErrDuplicateExtrinsic
	}
	b.seen[key] = struct{}{}
	b.extrinsics = append(b.extrinsics, ExtrinsicRegistration{Module: module, Field: field, Sig: sig, Token: token})
	return nil
}

// Build freezes the extrinsic table and returns a ready-to-use Collection.
func (b *Builder) Build() *Collection {
	table := append([]ExtrinsicRegistration(nil), b.extrinsics...)
	return &Collection{
		ids:         idpool.New(b.seed),
		processes:   make(map[Pid]weak.Pointer[Process]),
		interrupted: make(map[ThreadId]*interruptedEntry),
		extrinsics:  table,
		logger:      b.logger,
		wakers:      waker.NewRegistry(b.parkerSlots),
	}
}
