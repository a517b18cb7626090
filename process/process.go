package process

import (
	"sync"
	"sync/atomic"

	"github.com/kestrelos/wasmkernel/vm"
)

// AbortReason names why a process was marked dying, recovered from the
// original's abort-reason taxonomy (SPEC_FULL.md "Abort-reason taxonomy").
type AbortReason int

const (
	AbortReasonMainThreadExit AbortReason = iota // not actually an abort: _start returned normally
	AbortReasonTrap
	AbortReasonExplicit // ProcessHandle.Abort() was called
	AbortReasonMalformedExtrinsic
)

// Outcome is the terminal result of a process: either the return value of
// its main thread, or the reason it was aborted.
type Outcome struct {
	Ok     *vm.Value
	Err    error
	Reason AbortReason
}

// DeadThread is a thread that was still parked (ready or interrupted) when
// its process was marked dying, collected verbatim so its user data is not
// silently lost.
type DeadThread struct {
	ID       ThreadId
	UserData any
}

type dyingMarker struct {
	deadThreads []DeadThread
	outcome     Outcome
}

type readyThread struct {
	tid         ThreadId
	resumeValue *vm.Value
}

// Process is one running Wasm module: its VM, its thread table, and — once
// it starts dying — the already-collected dead threads and final outcome
// (spec §3 "Process" invariants i-iii). Its threads that are ready to
// resume are queued in the owning Collection's run queue; the readyQueue
// field is not used.
//
// Process's fields are unexported and no exported API hands out a
// *Process: every external interaction goes through
// Handle/ReadyToRun/ThreadAccess, which is what makes the
// reference-counted deferred-destruction protocol (spec §9) enforceable —
// there is no way to reach a *Process without going through a path that
// increments its refcount first.
type Process struct {
	pid      Pid
	userData any
	vmInst   *vm.VM

	mu          sync.Mutex
	mainTid     ThreadId
	threadByID  map[ThreadId]*vm.Thread
	readyQueue  []readyThread
	dying       *dyingMarker
	interruptedIDs map[ThreadId]struct{}

	refs int32 // atomic; see Process.retain and Collection.release
}

func newProcess(pid Pid, mainTid ThreadId, userData any, v *vm.VM, mainThread *vm.Thread) *Process {
	return &Process{
		pid:        pid,
		userData:   userData,
		vmInst:     v,
		mainTid:    mainTid,
		threadByID: map[ThreadId]*vm.Thread{mainTid: mainThread},
		interruptedIDs: make(map[ThreadId]struct{}),
	}
}

// Pid returns this process's id.
func (p *Process) Pid() Pid { return p.pid }

// isDying reports whether this process has been marked for destruction.
func (p *Process) isDying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dying != nil
}

func (p *Process) retain() { atomic.AddInt32(&p.refs, 1) }

// releaseLocal decrements the refcount and reports whether it reached
// zero (the caller, always a *Collection method, is responsible for
// finalizing death exactly once when this returns true).
func (p *Process) releaseLocal() bool {
	return atomic.AddInt32(&p.refs, -1) == 0
}
