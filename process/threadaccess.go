package process

import (
	"github.com/kestrelos/wasmkernel/vm"
)

// ThreadAccess is exclusive access to one parked (extrinsic-interrupted)
// thread, obtained via Collection.InterruptedThreadByID. Exactly one
// ThreadAccess can exist for a given ThreadId at a time; a second
// concurrent attempt gets ErrAlreadyLocked until this one calls Resume or
// Release (spec §4.3 "extrinsic handlers resume exactly one thread").
type ThreadAccess struct {
	c      *Collection
	proc   *Process
	tid    ThreadId
	thread *vm.Thread

	done bool
}

// Pid returns the owning process's id.
func (a *ThreadAccess) Pid() Pid { return a.proc.pid }

// ThreadId returns the parked thread's id.
func (a *ThreadAccess) ThreadId() ThreadId { return a.tid }

// UserData returns the opaque datum the thread was parked with, without
// consuming it.
func (a *ThreadAccess) UserData() any {
	d := a.thread.TakeUserData()
	a.thread.SetUserData(d)
	return d
}

// ReadMemory reads from the owning process's linear memory.
func (a *ThreadAccess) ReadMemory(offset, size uint32) ([]byte, error) {
	return a.proc.vmInst.ReadMemory(offset, size)
}

// WriteMemory writes into the owning process's linear memory.
func (a *ThreadAccess) WriteMemory(offset uint32, data []byte) error {
	return a.proc.vmInst.WriteMemory(offset, data)
}

// Resume re-queues the parked thread with value as the extrinsic call's
// return value, handing it back to Collection.Run's scheduler. value must
// be nil iff the extrinsic's declared signature is void; Thread.Run
// enforces the exact type match when the thread actually resumes.
func (a *ThreadAccess) Resume(value *vm.Value) error {
	if a.done {
		return ErrAlreadyConsumed
	}
	a.done = true

	a.c.interruptedMu.Lock()
	delete(a.c.interrupted, a.tid)
	a.c.interruptedMu.Unlock()

	a.proc.mu.Lock()
	delete(a.proc.interruptedIDs, a.tid)
	a.proc.mu.Unlock()

	a.c.pushReady(a.proc, a.tid, value)
	return nil
}

// Release gives up exclusive access without resuming the thread, leaving
// it parked so a later InterruptedThreadByID call can pick it up.
//
// If the process started dying while this ThreadAccess was checked out,
// markDying will have found the entry locked and skipped it, leaving the
// interrupted map's reference on this thread unswept; finish that sweep
// here so the process can still reach zero references.
func (a *ThreadAccess) Release() {
	if a.done {
		return
	}
	a.done = true

	a.c.interruptedMu.Lock()
	if entry, ok := a.c.interrupted[a.tid]; ok {
		entry.locked = false
	}
	a.c.interruptedMu.Unlock()

	if !a.proc.isDying() {
		return
	}
	entry, ok := a.c.sweepOneInterrupted(a.tid)
	if !ok {
		return // already swept by a concurrent markDying or Release
	}

	a.proc.mu.Lock()
	if a.proc.dying != nil {
		a.proc.dying.deadThreads = append(a.proc.dying.deadThreads, DeadThread{ID: a.tid, UserData: entry.thread.TakeUserData()})
	}
	delete(a.proc.interruptedIDs, a.tid)
	a.proc.mu.Unlock()

	a.c.release(a.proc)
}
