// Package extrinsics wraps the processes collection and classifies every
// imported-function interrupt into the public event stream described by
// spec §4.3: the three hardcoded "redshirt" syscalls (next_notification,
// emit_message, cancel_message) decode directly into ThreadWaitNotification
// / ThreadEmitMessage handles; anything else is routed through a pluggable
// Extrinsics collaborator.
package extrinsics

import (
	"context"
	"sync"

	"github.com/kestrelos/wasmkernel/internal/log"
	"github.com/kestrelos/wasmkernel/process"
)

// collabParked records what a collaborator-owned thread is waiting on,
// between NewContext parking it and a later InjectMessageResponse.
type collabParked struct {
	extID ExtrinsicId
	ctx   Context
}

// followup is a locally queued re-interrupt that never touches the VM
// (spec §4.3 "the thread is synthetically re-interrupted without touching
// the VM").
type followup struct {
	pid    process.Pid
	tid    process.ThreadId
	access *process.ThreadAccess
	action Action
}

// Core is the extrinsics/IPC layer: one per kernel, built via Builder.
type Core struct {
	procs        *process.Collection
	collaborator Extrinsics
	extByToken   map[uint64]ExtrinsicId
	logger       *log.Logger

	msgIDs *messageIDAllocator

	mu         sync.Mutex
	pending    map[MessageID]struct{}
	collabCtxs map[process.ThreadId]collabParked
	followups  []followup
}

// Execute allocates a new process and enqueues its main thread.
func (c *Core) Execute(ctx context.Context, moduleBytes []byte, processUserData, mainThreadUserData any) (*process.Handle, process.ThreadId, error) {
	return c.procs.Execute(ctx, moduleBytes, processUserData, mainThreadUserData)
}

// ReservePid mirrors process.Collection.ReservePid.
func (c *Core) ReservePid() process.Pid { return c.procs.ReservePid() }

// ProcessByID mirrors process.Collection.ProcessByID.
func (c *Core) ProcessByID(pid process.Pid) (*process.Handle, error) { return c.procs.ProcessByID(pid) }

// AllocateMessageID hands out a fresh process-scoped MessageID, exposed so
// an Extrinsics collaborator emitting its own messages (ActionEmitMessage)
// can mint ids the same way the hardcoded emit_message path does.
func (c *Core) AllocateMessageID(pid process.Pid) MessageID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgIDs.allocate(pid)
}

func (c *Core) trackPendingMessage(id MessageID) {
	c.mu.Lock()
	c.pending[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Core) untrackPendingMessage(id MessageID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

func (c *Core) enqueueFollowup(pid process.Pid, tid process.ThreadId, access *process.ThreadAccess, action Action) {
	c.mu.Lock()
	c.followups = append(c.followups, followup{pid: pid, tid: tid, access: access, action: action})
	c.mu.Unlock()
}

func (c *Core) parkCollaboratorThread(tid process.ThreadId, extID ExtrinsicId, ctx Context) {
	c.mu.Lock()
	c.collabCtxs[tid] = collabParked{extID: extID, ctx: ctx}
	c.mu.Unlock()
}

// abortOnMalformed aborts the owning process and releases access without
// resuming it (spec §4.3 "Malformed extrinsic parameters or OOB memory
// write during delivery → process aborted").
func (c *Core) abortOnMalformed(access *process.ThreadAccess, pid process.Pid) {
	h, err := c.procs.ProcessByID(pid)
	if err == nil {
		h.Abort()
		h.Release()
	}
	access.Release()
}

// DeliverResponse is how the outside driver notifies the core that a
// notification has arrived for a thread parked mid-collaborator-extrinsic
// (spec §4.3 "On notification arrival targeting such a thread, the
// collaborator's inject_message_response decides the next action").
func (c *Core) DeliverResponse(tid process.ThreadId, payload []byte, hasPayload bool) error {
	c.mu.Lock()
	parked, ok := c.collabCtxs[tid]
	if ok {
		delete(c.collabCtxs, tid)
	}
	c.mu.Unlock()
	if !ok {
		return ErrNotPending
	}

	access, err := c.procs.InterruptedThreadByID(tid)
	if err != nil {
		return err
	}

	action, err := c.collaborator.InjectMessageResponse(parked.ctx, payload, hasPayload, access)
	if err != nil {
		access.Release()
		return err
	}
	c.enqueueFollowup(access.Pid(), tid, access, action)
	return nil
}

// Run drives the scheduler forward exactly one publicly-visible step
// (spec §4.3's data-flow paragraph, §5 "Suspension points").
func (c *Core) Run(ctx context.Context) (Event, error) {
	for {
		c.mu.Lock()
		if len(c.followups) > 0 {
			f := c.followups[0]
			c.followups = c.followups[1:]
			c.mu.Unlock()

			ev, handled, err := c.applyAction(f.pid, f.tid, f.access, f.action)
			if err != nil {
				return Event{}, err
			}
			if handled {
				return ev, nil
			}
			continue
		}
		c.mu.Unlock()

		re, err := c.procs.Run(ctx)
		if err != nil {
			return Event{}, err
		}

		switch re.Kind {
		case process.RunProcessFinished:
			return Event{Kind: EventProcessFinished, ProcessFinished: ProcessFinishedReport{
				Pid:             re.ProcessFinished.Pid,
				ProcessUserData: re.ProcessFinished.ProcessUserData,
				DeadThreads:     re.ProcessFinished.DeadThreads,
				Outcome:         re.ProcessFinished.Outcome,
			}}, nil

		case process.RunReady:
			step, err := re.Ready.Run()
			if err != nil {
				return Event{}, err
			}
			ev, handled, err := c.handleStep(step)
			if err != nil {
				return Event{}, err
			}
			if !handled {
				continue
			}
			return ev, nil
		}
	}
}

func (c *Core) handleStep(step process.StepEvent) (Event, bool, error) {
	switch step.Kind {
	case process.StepThreadFinished:
		return Event{Kind: EventThreadFinished, Pid: step.Pid, Tid: step.Tid, ReturnValue: step.ReturnValue, UserData: step.UserData}, true, nil

	case process.StepProcessAborting:
		return Event{Kind: EventProcessAborting, Pid: step.Pid, Tid: step.Tid, Reason: step.Reason}, true, nil

	case process.StepInterrupted:
		return c.handleInterrupt(step)

	default:
		return Event{}, false, nil
	}
}

func (c *Core) handleInterrupt(step process.StepEvent) (Event, bool, error) {
	switch step.ExtrinsicID {
	case tokenNextNotification:
		return c.handleNextNotification(step)
	case tokenEmitMessage:
		return c.handleEmitMessage(step)
	case tokenCancelMessage:
		return c.handleCancelMessage(step)
	default:
		return c.handleCollaboratorInterrupt(step)
	}
}

func (c *Core) handleNextNotification(step process.StepEvent) (Event, bool, error) {
	access, err := c.procs.InterruptedThreadByID(step.Tid)
	if err != nil {
		return Event{}, false, err
	}

	entries, notifIDsPtr, outPtr, outSize, block, err := parseNextNotificationParams(access, step.Params)
	if err != nil {
		c.abortOnMalformed(access, step.Pid)
		return Event{}, false, nil
	}

	return Event{Kind: EventThreadWaitNotification, Pid: step.Pid, Tid: step.Tid, WaitNotification: &ThreadWaitNotification{
		core: c, access: access, pid: step.Pid, tid: step.Tid,
		waitEntries: entries, notifIDsPtr: notifIDsPtr, outPtr: outPtr, outSize: outSize, block: block,
	}}, true, nil
}

func (c *Core) handleEmitMessage(step process.StepEvent) (Event, bool, error) {
	access, err := c.procs.InterruptedThreadByID(step.Tid)
	if err != nil {
		return Event{}, false, err
	}

	iface, payload, needsAnswer, allowDelay, msgIDOut, err := parseEmitMessageParams(step.Pid, access, step.Params)
	if err != nil {
		c.abortOnMalformed(access, step.Pid)
		return Event{}, false, nil
	}

	return Event{Kind: EventThreadEmitMessage, Pid: step.Pid, Tid: step.Tid, EmitMessage: &ThreadEmitMessage{
		core: c, access: access, pid: step.Pid, tid: step.Tid,
		iface: iface, payload: payload, needsAnswer: needsAnswer, allowDelay: allowDelay,
		msgIDOutOffset: msgIDOut, viaHardcodedCall: true,
	}}, true, nil
}

func (c *Core) handleCancelMessage(step process.StepEvent) (Event, bool, error) {
	access, err := c.procs.InterruptedThreadByID(step.Tid)
	if err != nil {
		return Event{}, false, err
	}

	if len(step.Params) != 1 {
		c.abortOnMalformed(access, step.Pid)
		return Event{}, false, nil
	}
	ptr := uint32(step.Params[0].I32())
	raw, err := access.ReadMemory(ptr, 8)
	if err != nil {
		c.abortOnMalformed(access, step.Pid)
		return Event{}, false, nil
	}
	var b [8]byte
	copy(b[:], raw)
	id := ParseMessageID(step.Pid, b)
	c.untrackPendingMessage(id)

	return Event{}, false, access.Resume(nil)
}

func (c *Core) handleCollaboratorInterrupt(step process.StepEvent) (Event, bool, error) {
	extID, ok := c.extByToken[step.ExtrinsicID]
	if !ok || c.collaborator == nil {
		return Event{}, false, ErrUnknownExtrinsic
	}

	access, err := c.procs.InterruptedThreadByID(step.Tid)
	if err != nil {
		return Event{}, false, err
	}

	ctx, action, err := c.collaborator.NewContext(step.Tid, extID, step.Params, access)
	if err != nil {
		c.abortOnMalformed(access, step.Pid)
		return Event{}, false, nil
	}

	return c.applyActionWithContext(step.Pid, step.Tid, access, extID, ctx, action)
}

func (c *Core) applyAction(pid process.Pid, tid process.ThreadId, access *process.ThreadAccess, action Action) (Event, bool, error) {
	return c.applyActionWithContext(pid, tid, access, nil, nil, action)
}

func (c *Core) applyActionWithContext(pid process.Pid, tid process.ThreadId, access *process.ThreadAccess, extID ExtrinsicId, ctx Context, action Action) (Event, bool, error) {
	switch action.Kind {
	case ActionResume:
		defer access.Release()
		return Event{}, false, access.Resume(action.ResumeValue)

	case ActionEmitMessage:
		return Event{Kind: EventThreadEmitMessage, Pid: pid, Tid: tid, EmitMessage: &ThreadEmitMessage{
			core: c, access: access, pid: pid, tid: tid,
			iface: action.Interface, payload: action.Payload, needsAnswer: action.ResponseExpected,
			viaHardcodedCall: false, collabCtx: ctx, collabID: extID,
		}}, true, nil

	case ActionProgramCrash:
		h, err := c.procs.ProcessByID(pid)
		if err == nil {
			h.Abort()
			h.Release()
		}
		access.Release()
		return Event{}, false, nil

	default:
		access.Release()
		return Event{}, false, nil
	}
}
