package process

import "github.com/kestrelos/wasmkernel/vm"

// RunEventKind classifies the value returned by Collection.Run.
type RunEventKind int

const (
	// RunProcessFinished carries a fully-collected death report: every
	// handle/ThreadAccess/ReadyToRun referencing that process has been
	// released (spec §4.2 "Deferred-destruction protocol").
	RunProcessFinished RunEventKind = iota
	// RunReady hands the caller a ReadyToRun that MUST be run (or
	// explicitly released) — see ReadyToRun's doc comment.
	RunReady
)

// RunEvent is returned by Collection.Run.
type RunEvent struct {
	Kind RunEventKind

	ProcessFinished DeathReport
	Ready           *ReadyToRun
}

// DeathReport is the terminal record of one process's lifetime.
type DeathReport struct {
	Pid             Pid
	ProcessUserData any
	DeadThreads     []DeadThread
	Outcome         Outcome
}

// StepEventKind classifies the value returned by ReadyToRun.Run.
type StepEventKind int

const (
	StepThreadFinished StepEventKind = iota
	StepInterrupted
	StepProcessAborting // main thread ended or trapped; ProcessFinished follows later via Collection.Run
)

// StepEvent is returned by ReadyToRun.Run.
type StepEvent struct {
	Kind StepEventKind

	Pid Pid
	Tid ThreadId

	// Set when Kind == StepThreadFinished.
	ReturnValue *vm.Value
	UserData    any

	// Set when Kind == StepInterrupted.
	ExtrinsicID uint64
	Params      []vm.Value

	// Set when Kind == StepProcessAborting.
	Reason AbortReason
}
