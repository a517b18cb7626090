package extrinsics

import (
	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// EventKind classifies the value returned by Core.Run.
type EventKind int

const (
	// EventProcessFinished mirrors process.RunProcessFinished verbatim.
	EventProcessFinished EventKind = iota
	// EventThreadFinished is a non-main thread's ordinary return.
	EventThreadFinished
	// EventProcessAborting mirrors process.StepProcessAborting: the
	// matching EventProcessFinished follows later, once every reference
	// to the process has been released.
	EventProcessAborting
	// EventThreadEmitMessage hands the caller a ThreadEmitMessage to
	// accept or refuse.
	EventThreadEmitMessage
	// EventThreadWaitNotification hands the caller a
	// ThreadWaitNotification to resolve.
	EventThreadWaitNotification
	// EventThreadWaitExtrinsic surfaces a non-hardcoded extrinsic call
	// the pluggable collaborator has not yet been asked about — reserved
	// for collaborators that want to observe the raw interrupt instead
	// of implementing NewContext synchronously. The default flow
	// resolves collaborator extrinsics internally and this Kind is never
	// produced by Core.Run; it exists so embedders extending Extrinsics
	// have a stable Kind to switch on if they intercept at a lower level.
	EventThreadWaitExtrinsic
)

// Event is returned by Core.Run.
type Event struct {
	Kind EventKind

	ProcessFinished ProcessFinishedReport

	Pid process.Pid
	Tid process.ThreadId

	ReturnValue *vm.Value
	UserData    any

	Reason process.AbortReason

	EmitMessage      *ThreadEmitMessage
	WaitNotification *ThreadWaitNotification
}

// ProcessFinishedReport mirrors process.DeathReport at the extrinsics
// layer, named to match the original's CoreRunOutcome::ProgramFinished /
// ProgramCrashed split folded into one Outcome.
type ProcessFinishedReport struct {
	Pid             process.Pid
	ProcessUserData any
	DeadThreads     []process.DeadThread
	Outcome         process.Outcome
}
