package process

import (
	"fmt"

	"github.com/kestrelos/wasmkernel/vm"
)

// Handle is a retained reference to a running (or dying) process, obtained
// from Collection.Execute or Collection.ProcessByID. The process is not
// destroyed until every outstanding Handle (and every other kind of
// reference — run-queue entry, interrupted-map entry) has been released
// (spec §4.2 "Deferred-destruction protocol").
type Handle struct {
	c    *Collection
	proc *Process
	pid  Pid

	released bool
}

// Pid returns this process's id.
func (h *Handle) Pid() Pid { return h.pid }

// StartThread spawns a new thread in this process at funcIndex, queues it
// ready to run, and returns its ThreadId. Fails with ErrRunningOrDead if
// the process has already been marked dying.
func (h *Handle) StartThread(funcIndex uint32, params []vm.Value, userData any) (ThreadId, error) {
	if h.proc.isDying() {
		return 0, ErrRunningOrDead
	}

	vmIndex, err := h.proc.vmInst.StartThreadByID(funcIndex, params, userData)
	if err != nil {
		return 0, fmt.Errorf("process: start thread: %w", err)
	}
	th := h.proc.vmInst.Thread(vmIndex)

	tid := ThreadId(h.c.nextID())

	h.proc.mu.Lock()
	if h.proc.dying != nil {
		h.proc.mu.Unlock()
		// Process started dying between the isDying check above and the
		// VM thread actually being created; the new thread has nowhere
		// useful to run, so it is simply never queued and the VM's own
		// poison/teardown will reclaim it.
		return 0, ErrRunningOrDead
	}
	h.proc.threadByID[tid] = th
	h.proc.mu.Unlock()

	h.proc.retain() // the new ready-queue entry
	h.c.pushReady(h.proc, tid, nil)

	return tid, nil
}

// ReadMemory reads from the process's linear memory.
func (h *Handle) ReadMemory(offset, size uint32) ([]byte, error) {
	return h.proc.vmInst.ReadMemory(offset, size)
}

// WriteMemory writes into the process's linear memory.
func (h *Handle) WriteMemory(offset uint32, data []byte) error {
	return h.proc.vmInst.WriteMemory(offset, data)
}

// Abort marks the process dying with AbortReasonExplicit. Idempotent: a
// second call on an already-dying process is a no-op. The process is not
// actually torn down until Collection.Run reports its ProcessFinished
// event, after every reference (including this Handle) is released.
func (h *Handle) Abort() {
	h.c.markDying(h.proc, Outcome{Reason: AbortReasonExplicit})
}

// Release gives up this Handle's reference to the process. Calling it
// twice on the same Handle is a no-op rather than a double-free, since Go
// has no move semantics to statically prevent reuse after release.
func (h *Handle) Release() {
	if h.released {
		return
	}
	h.released = true
	h.c.release(h.proc)
}
