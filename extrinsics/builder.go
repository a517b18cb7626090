package extrinsics

import (
	"github.com/kestrelos/wasmkernel/internal/log"
	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// Hardcoded extrinsic tokens, reserved below firstCollaboratorToken. The
// module name "redshirt" and these three functions are fixed by spec §4.3.
const (
	hardcodedModule = "redshirt"

	tokenNextNotification uint64 = iota
	tokenEmitMessage
	tokenCancelMessage
	firstCollaboratorToken
)

func i32() vm.ValueType { return vm.ValueTypeI32 }
func i64() vm.ValueType { return vm.ValueTypeI64 }

func resultOf(t vm.ValueType) *vm.ValueType { return &t }

var (
	sigNextNotification = vm.Signature{Params: []vm.ValueType{i32(), i32(), i32(), i32(), i64()}, Result: resultOf(i32())}
	sigEmitMessage      = vm.Signature{Params: []vm.ValueType{i32(), i32(), i32(), i64(), i32()}, Result: resultOf(i32())}
	sigCancelMessage    = vm.Signature{Params: []vm.ValueType{i32()}, Result: nil}
)

// Builder configures and freezes a Core, mirroring process.Builder's
// configure-then-Build shape one layer up.
type Builder struct {
	pb           *process.Builder
	collaborator Extrinsics
	extByToken   map[uint64]ExtrinsicId
	logger       *log.Logger
}

// NewBuilder registers the three hardcoded "redshirt" extrinsics and
// returns a Builder ready to accept a collaborator and a seed.
func NewBuilder() *Builder {
	b := &Builder{
		pb:         process.NewBuilder(),
		extByToken: make(map[uint64]ExtrinsicId),
	}
	_ = b.pb.RegisterExtrinsic(hardcodedModule, "next_notification", sigNextNotification, tokenNextNotification)
	_ = b.pb.RegisterExtrinsic(hardcodedModule, "emit_message", sigEmitMessage, tokenEmitMessage)
	_ = b.pb.RegisterExtrinsic(hardcodedModule, "cancel_message", sigCancelMessage, tokenCancelMessage)
	return b
}

// WithSeed mirrors process.Builder.WithSeed.
func (b *Builder) WithSeed(seed uint64) *Builder {
	b.pb.WithSeed(seed)
	return b
}

// WithLogger mirrors process.Builder.WithLogger.
func (b *Builder) WithLogger(logger *log.Logger) *Builder {
	b.logger = logger
	b.pb.WithLogger(logger)
	return b
}

// WithParkerCapacity mirrors process.Builder.WithParkerCapacity.
func (b *Builder) WithParkerCapacity(n int) *Builder {
	b.pb.WithParkerCapacity(n)
	return b
}

// WithCollaborator registers every extrinsic the collaborator supports,
// assigning each a token above the three hardcoded ones (spec §9 "Global
// extrinsic registry").
func (b *Builder) WithCollaborator(c Extrinsics) error {
	b.collaborator = c
	token := firstCollaboratorToken
	for _, se := range c.SupportedExtrinsics() {
		if err := b.pb.RegisterExtrinsic(se.WasmInterface, se.FunctionName, se.Sig, token); err != nil {
			return err
		}
		b.extByToken[token] = se.ID
		token++
	}
	return nil
}

// Build freezes the extrinsic table and returns a ready-to-use Core.
func (b *Builder) Build() *Core {
	return &Core{
		procs:        b.pb.Build(),
		collaborator: b.collaborator,
		extByToken:   b.extByToken,
		logger:       b.logger,
		msgIDs:       newMessageIDAllocator(),
		pending:      make(map[MessageID]struct{}),
		collabCtxs:   make(map[process.ThreadId]collabParked),
	}
}
