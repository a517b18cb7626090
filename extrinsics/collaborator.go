package extrinsics

import (
	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// MemoryAccess is bound to the thread an Extrinsics collaborator is
// currently being asked about (spec §6 "memory supplies read_memory /
// write_memory bound to the current thread").
type MemoryAccess interface {
	ReadMemory(offset, size uint32) ([]byte, error)
	WriteMemory(offset uint32, data []byte) error
}

// ExtrinsicId is an opaque, comparable identifier a collaborator assigns
// to each extrinsic it registers; the core only ever uses it as a map key
// to dispatch NewContext/InjectMessageResponse back to the right handler.
type ExtrinsicId any

// SupportedExtrinsic is one entry of an Extrinsics collaborator's import
// surface, consumed by Builder.WithCollaborator to register it with the
// underlying process.Builder.
type SupportedExtrinsic struct {
	WasmInterface string
	FunctionName  string
	Sig           vm.Signature
	ID            ExtrinsicId
}

// ActionKind classifies the Action a collaborator returns from NewContext
// or InjectMessageResponse.
type ActionKind int

const (
	// ActionResume returns a value (or nothing, for a void extrinsic)
	// directly to the guest; the thread becomes ready immediately.
	ActionResume ActionKind = iota
	// ActionEmitMessage surfaces a ThreadEmitMessage event exactly as if
	// the guest had called the hardcoded emit_message.
	ActionEmitMessage
	// ActionProgramCrash aborts the owning process.
	ActionProgramCrash
)

// Action is the sum type returned by an Extrinsics collaborator (spec §6).
type Action struct {
	Kind ActionKind

	// Set when Kind == ActionResume. Nil means the extrinsic is void.
	ResumeValue *vm.Value

	// Set when Kind == ActionEmitMessage.
	Interface        InterfaceHash
	Payload          []byte
	ResponseExpected bool
}

// Extrinsics is the pluggable collaborator for non-hardcoded imports (spec
// §4.3 "Non-hardcoded extrinsics", §6 "Extrinsics collaborator").
type Extrinsics interface {
	// SupportedExtrinsics lists every (module, function, signature) this
	// collaborator wants routed to it, each tagged with an ExtrinsicId
	// the core will echo back on NewContext.
	SupportedExtrinsics() []SupportedExtrinsic

	// NewContext is invoked the first time a thread is interrupted on
	// extID. It returns an opaque Context the core stores alongside the
	// thread, and the Action to apply immediately.
	NewContext(tid process.ThreadId, extID ExtrinsicId, params []vm.Value, mem MemoryAccess) (Context, Action, error)

	// InjectMessageResponse is invoked when a notification arrives for a
	// thread parked mid-extrinsic (ActionEmitMessage with
	// ResponseExpected, subsequently answered). hasPayload is false for a
	// cancellation/no-payload wakeup.
	InjectMessageResponse(ctx Context, payload []byte, hasPayload bool, mem MemoryAccess) (Action, error)
}

// Context is the opaque per-call state an Extrinsics collaborator threads
// through NewContext and InjectMessageResponse.
type Context any
