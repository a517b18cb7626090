package process

import (
	"fmt"

	"github.com/kestrelos/wasmkernel/vm"
)

// ReadyToRun is a single queued thread popped off a Collection's run queue
// by Run. The caller MUST call its Run method exactly once; dropping it
// without doing so leaks the thread forever, so if a runner goroutine
// decides it cannot service this entry right now it must call Release
// instead, which re-queues the thread for the next runner.
type ReadyToRun struct {
	c           *Collection
	proc        *Process
	tid         ThreadId
	resumeValue *vm.Value

	done bool
}

// Pid returns the process this thread belongs to.
func (r *ReadyToRun) Pid() Pid { return r.proc.pid }

// ThreadId returns the thread this entry will resume.
func (r *ReadyToRun) ThreadId() ThreadId { return r.tid }

// Release re-queues this entry without running it, for a runner that
// picked it up speculatively (e.g. to inspect Pid/ThreadId for
// work-stealing) and decided not to service it itself.
func (r *ReadyToRun) Release() {
	if r.done {
		return
	}
	r.done = true
	r.c.pushReady(r.proc, r.tid, r.resumeValue)
}

// Run resumes the thread on the calling goroutine until it next blocks on
// an extrinsic, finishes, or traps, converting the result into a StepEvent
// and updating the owning process's bookkeeping (spec §4.2 "thread
// lifecycle").
func (r *ReadyToRun) Run() (StepEvent, error) {
	if r.done {
		return StepEvent{}, ErrAlreadyConsumed
	}
	r.done = true

	proc := r.proc
	proc.mu.Lock()
	th, ok := proc.threadByID[r.tid]
	proc.mu.Unlock()
	if !ok {
		// The thread was swept into a dead-thread list between being
		// queued and being picked up (process died in the meantime);
		// Collection.Run already filters this case out, so reaching here
		// would be a bookkeeping bug.
		r.c.release(proc)
		return StepEvent{}, ErrRunningOrDead
	}

	outcome, runErr := th.Run(r.resumeValue)
	if runErr != nil && outcome.Kind != vm.ExecErrored {
		// Thread.Run bailed before the guest ran at all — a poisoned VM,
		// an already-finished thread, or (most commonly here) a resume
		// value whose type doesn't match the extrinsic's declared return
		// type. This entry's reference is released and the thread is
		// neither re-queued nor recorded as interrupted.
		r.c.release(proc)
		return StepEvent{}, runErr
	}

	switch outcome.Kind {
	case vm.ExecInterrupted:
		proc.mu.Lock()
		proc.interruptedIDs[r.tid] = struct{}{}
		proc.mu.Unlock()

		r.c.interruptedMu.Lock()
		r.c.interrupted[r.tid] = &interruptedEntry{proc: proc, thread: th}
		r.c.interruptedMu.Unlock()

		return StepEvent{
			Kind:        StepInterrupted,
			Pid:         proc.pid,
			Tid:         r.tid,
			ExtrinsicID: outcome.ID,
			Params:      outcome.Params,
		}, nil

	case vm.ExecFinished:
		proc.mu.Lock()
		delete(proc.threadByID, r.tid)
		isMain := r.tid == proc.mainTid
		proc.mu.Unlock()

		if isMain {
			r.c.markDying(proc, Outcome{Ok: outcome.ReturnValue, Reason: AbortReasonMainThreadExit})
			r.c.release(proc)
			return StepEvent{Kind: StepProcessAborting, Pid: proc.pid, Tid: r.tid, Reason: AbortReasonMainThreadExit}, nil
		}

		r.c.release(proc)
		return StepEvent{
			Kind:        StepThreadFinished,
			Pid:         proc.pid,
			Tid:         r.tid,
			ReturnValue: outcome.ReturnValue,
			UserData:    outcome.UserData,
		}, nil

	case vm.ExecErrored:
		proc.mu.Lock()
		delete(proc.threadByID, r.tid)
		proc.mu.Unlock()

		r.c.markDying(proc, Outcome{Err: runErr, Reason: AbortReasonTrap})
		r.c.release(proc)
		return StepEvent{Kind: StepProcessAborting, Pid: proc.pid, Tid: r.tid, Reason: AbortReasonTrap}, nil

	default:
		r.c.release(proc)
		return StepEvent{}, fmt.Errorf("process: unreachable exec outcome kind")
	}
}
