// Package process owns the collection of running Wasm processes (spec
// §4.2): it assigns Pids and ThreadIds from a shared deterministic pool,
// drives a FIFO run queue over a host goroutine pool, serializes access to
// each process behind a per-process mutex, and defers a process's
// destruction until every outstanding reference (run-queue entry,
// interrupted-thread-map entry, user-held Handle, or in-flight
// ReadyToRun) has been released.
package process

import (
	"context"
	"fmt"
	"sync"
	"weak"

	"github.com/kestrelos/wasmkernel/internal/idpool"
	"github.com/kestrelos/wasmkernel/internal/log"
	"github.com/kestrelos/wasmkernel/internal/waker"
	"github.com/kestrelos/wasmkernel/vm"
)

type interruptedEntry struct {
	proc   *Process
	thread *vm.Thread
	locked bool
}

// Collection multiplexes many processes onto the host. The outside driver
// calls Run in a loop; everything else (Execute, ProcessByID,
// InterruptedThreadByID, and the Handle/ThreadAccess methods they return)
// can be called concurrently from any goroutine.
type Collection struct {
	idsMu sync.Mutex
	ids   *idpool.Pool

	processesMu sync.RWMutex
	processes   map[Pid]weak.Pointer[Process]

	interruptedMu sync.Mutex
	interrupted   map[ThreadId]*interruptedEntry

	// schedMu guards both ready and deathReports together: Run must check
	// both conditions and, if neither holds, register its waker, all under
	// one critical section. Splitting them into separate locks reopens the
	// lost-wakeup window the waker's own contract warns about (see
	// waker.Registry.Park's doc comment) — a finalize() appended between
	// the two checks would NotifyOne before anyone had parked, and that
	// notification is dropped on the floor.
	schedMu      sync.Mutex
	ready        []readyEntry
	deathReports []DeathReport

	extrinsics []ExtrinsicRegistration
	logger     *log.Logger
	wakers     *waker.Registry
}

type readyEntry struct {
	proc        *Process
	tid         ThreadId
	resumeValue *vm.Value
}

func (c *Collection) nextID() uint64 {
	c.idsMu.Lock()
	defer c.idsMu.Unlock()
	return c.ids.Next()
}

// ReservePid allocates a Pid from the shared namespace without creating a
// process for it yet (spec/original "reserve_pid", SPEC_FULL.md
// "Supplemented features" #4) — used by bootstrapping code that needs to
// know its own future pid before the module bytes it will run are ready.
func (c *Collection) ReservePid() Pid {
	return Pid(c.nextID())
}

// resolver builds a vm.ImportResolver from the frozen extrinsic table.
func (c *Collection) resolver() vm.ImportResolver {
	return func(module, field string, sig vm.Signature) (uint64, bool) {
		for _, reg := range c.extrinsics {
			if reg.Module == module && reg.Field == field && reg.Sig.Equal(sig) {
				return reg.Token, true
			}
		}
		return 0, false
	}
}

// Execute allocates a fresh Pid, compiles and instantiates moduleBytes
// against the Collection's extrinsic table, enqueues its main thread ready
// to run, and wakes one parked runner.
func (c *Collection) Execute(ctx context.Context, moduleBytes []byte, processUserData, mainThreadUserData any) (*Handle, ThreadId, error) {
	pid := Pid(c.nextID())
	mainTid := ThreadId(c.nextID())

	vmInst, err := vm.New(ctx, moduleBytes, mainThreadUserData, c.resolver())
	if err != nil {
		return nil, 0, fmt.Errorf("process: execute: %w", err)
	}

	mainThread := vmInst.Thread(0)
	proc := newProcess(pid, mainTid, processUserData, vmInst, mainThread)
	proc.retain() // the ready-queue entry below

	c.processesMu.Lock()
	c.processes[pid] = weak.Make(proc)
	c.processesMu.Unlock()

	c.pushReady(proc, mainTid, nil)

	h := &Handle{c: c, proc: proc, pid: pid}
	proc.retain() // the Handle returned to the caller
	return h, mainTid, nil
}

func (c *Collection) pushReady(proc *Process, tid ThreadId, resumeValue *vm.Value) {
	c.schedMu.Lock()
	c.ready = append(c.ready, readyEntry{proc: proc, tid: tid, resumeValue: resumeValue})
	c.schedMu.Unlock()
	c.wakers.NotifyOne()
}

// lookupStrong resolves a Pid to a strong *Process reference, retaining it
// on behalf of the caller. Returns nil if the process is gone.
func (c *Collection) lookupStrong(pid Pid) *Process {
	c.processesMu.RLock()
	w, ok := c.processes[pid]
	c.processesMu.RUnlock()
	if !ok {
		return nil
	}
	proc := w.Value()
	if proc == nil {
		return nil
	}
	proc.retain()
	return proc
}

// ProcessByID returns a locking Handle on pid. Multiple Handles on the same
// pid may coexist; ProcessFinished for that pid is deferred until all of
// them (and every other outstanding reference) are released.
func (c *Collection) ProcessByID(pid Pid) (*Handle, error) {
	proc := c.lookupStrong(pid)
	if proc == nil || proc.isDying() {
		if proc != nil {
			c.release(proc)
		}
		return nil, ErrRunningOrDead
	}
	return &Handle{c: c, proc: proc, pid: pid}, nil
}

// InterruptedThreadByID returns an exclusive ThreadAccess over a parked
// thread. A second concurrent attempt on the same ThreadId returns
// ErrAlreadyLocked.
func (c *Collection) InterruptedThreadByID(tid ThreadId) (*ThreadAccess, error) {
	c.interruptedMu.Lock()
	entry, ok := c.interrupted[tid]
	if !ok {
		c.interruptedMu.Unlock()
		return nil, ErrRunningOrDead
	}
	if entry.locked {
		c.interruptedMu.Unlock()
		return nil, ErrAlreadyLocked
	}
	entry.locked = true
	c.interruptedMu.Unlock()

	return &ThreadAccess{c: c, proc: entry.proc, tid: tid, thread: entry.thread}, nil
}

// release drops one reference to proc, finalizing its death report if this
// was the last one (spec §4.2 "try_report_process_death").
func (c *Collection) release(proc *Process) {
	if proc.releaseLocal() {
		c.finalize(proc)
	}
}

func (c *Collection) finalize(proc *Process) {
	proc.mu.Lock()
	dying := proc.dying
	proc.mu.Unlock()
	if dying == nil {
		// A process's refcount only reaches zero without a dying marker
		// if the caller dropped every reference before ever running it
		// (e.g. Execute() followed immediately by Abort() racing a
		// concurrent release) — but Abort() always sets dying before
		// releasing, and the ready-queue entry created by Execute always
		// holds a ref until consumed by Run. Reaching here with no dying
		// marker is a contract violation by the embedder.
		return
	}

	c.processesMu.Lock()
	delete(c.processes, proc.pid)
	c.processesMu.Unlock()

	c.schedMu.Lock()
	c.deathReports = append(c.deathReports, DeathReport{
		Pid:             proc.pid,
		ProcessUserData: proc.userData,
		DeadThreads:     dying.deadThreads,
		Outcome:         dying.outcome,
	})
	c.schedMu.Unlock()
	c.wakers.NotifyOne()
}

// sweepOneInterrupted removes tid from the interrupted map and returns its
// entry, but only if it is present and not currently checked out via a
// ThreadAccess. Shared by markDying (sweeping every interrupted thread of a
// newly-dying process) and ThreadAccess.Release (closing the race where a
// process starts dying while one of its threads is checked out: markDying
// skips a locked entry, so whichever of the two calls observes the entry
// unlocked first is the one that actually sweeps it).
func (c *Collection) sweepOneInterrupted(tid ThreadId) (*interruptedEntry, bool) {
	c.interruptedMu.Lock()
	defer c.interruptedMu.Unlock()
	entry, ok := c.interrupted[tid]
	if !ok || entry.locked {
		return nil, false
	}
	delete(c.interrupted, tid)
	return entry, true
}

// markDying sets proc's dying marker (a no-op if already set — spec
// invariant "set at most once") and sweeps every interrupted thread
// belonging to proc into its dead-thread list, releasing the interrupted
// map's reference on each.
func (c *Collection) markDying(proc *Process, outcome Outcome) {
	proc.mu.Lock()
	if proc.dying != nil {
		proc.mu.Unlock()
		return
	}
	proc.dying = &dyingMarker{outcome: outcome}
	ids := make([]ThreadId, 0, len(proc.interruptedIDs))
	for tid := range proc.interruptedIDs {
		ids = append(ids, tid)
	}
	proc.mu.Unlock()

	for _, tid := range ids {
		entry, ok := c.sweepOneInterrupted(tid)
		if !ok {
			continue // currently checked out via ThreadAccess; its Release will sweep it instead
		}

		proc.mu.Lock()
		proc.dying.deadThreads = append(proc.dying.deadThreads, DeadThread{ID: tid, UserData: entry.thread.TakeUserData()})
		delete(proc.interruptedIDs, tid)
		proc.mu.Unlock()

		c.release(proc)
	}
}

// Run is the core scheduler loop (spec §4.2): it returns a queued death
// report if one is pending, otherwise pops a ready thread and hands back a
// ReadyToRun the caller must invoke exactly once. If the ready queue is
// empty, it parks until notified or ctx is cancelled.
func (c *Collection) Run(ctx context.Context) (RunEvent, error) {
	for {
		c.schedMu.Lock()
		if len(c.deathReports) > 0 {
			r := c.deathReports[0]
			c.deathReports = c.deathReports[1:]
			c.schedMu.Unlock()
			return RunEvent{Kind: RunProcessFinished, ProcessFinished: r}, nil
		}

		if len(c.ready) == 0 {
			// Still holding schedMu: this is the recheck waker.Registry.Park
			// requires immediately before parking, covering both queues it
			// could have missed a wakeup for.
			ch := c.wakers.Park()
			c.schedMu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				c.wakers.Cancel(ch)
				return RunEvent{}, ctx.Err()
			}
		}
		entry := c.ready[0]
		c.ready = c.ready[1:]
		c.schedMu.Unlock()

		if entry.proc.isDying() {
			proc := entry.proc
			proc.mu.Lock()
			if th, ok := proc.threadByID[entry.tid]; ok {
				delete(proc.threadByID, entry.tid)
				if proc.dying != nil {
					proc.dying.deadThreads = append(proc.dying.deadThreads, DeadThread{ID: entry.tid, UserData: th.TakeUserData()})
				}
			}
			proc.mu.Unlock()
			c.release(proc)
			continue
		}

		return RunEvent{Kind: RunReady, Ready: &ReadyToRun{
			c: c, proc: entry.proc, tid: entry.tid, resumeValue: entry.resumeValue,
		}}, nil
	}
}
