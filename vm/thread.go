package vm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// execEventKind is the internal event a running goroutine posts back to
// whoever called Thread.Run.
type execEventKind int

const (
	eventFinished execEventKind = iota
	eventInterrupted
	eventErrored
)

type execEvent struct {
	xKind execEventKind

	result *Value
	err    error

	callID     uint64
	params     []Value
	resultType *ValueType
}

// pendingCall records the interrupted import call a parked Thread is
// waiting to be resumed from, including the declared return type Run must
// type-check any injected value against.
type pendingCall struct {
	callID     uint64
	resultType *ValueType
}

// Thread is one execution stack inside a VM: either the main thread
// (index 0, started at _start) or a thread spawned via
// VM.StartThreadByID. Pausing and resuming maps directly onto a goroutine
// blocked on a channel — see the package doc for why no other coroutine
// mechanism is needed.
type Thread struct {
	vm        *VM
	index     int
	funcIndex uint32
	params    []Value

	userData any

	started bool
	done    bool
	pending *pendingCall

	toGuest   chan Value
	fromGuest chan execEvent
}

func newThread(vm *VM, index int, funcIndex uint32, params []Value, userData any) *Thread {
	return &Thread{
		vm:        vm,
		index:     index,
		funcIndex: funcIndex,
		params:    params,
		userData:  userData,
		toGuest:   make(chan Value, 1),
		fromGuest: make(chan execEvent, 1),
	}
}

// Index returns this thread's positional index within its VM.
func (t *Thread) Index() int { return t.index }

// TakeUserData moves the opaque user datum out of the thread record. After
// the call, the zero value is left behind; callers (VM.IntoUserDatas, the
// processes layer's ThreadAccess) are expected to call this at most once
// per logical "ownership transfer".
func (t *Thread) TakeUserData() any {
	d := t.userData
	t.userData = nil
	return d
}

// SetUserData restores a previously taken-out user datum, the mirror image
// of TakeUserData; the processes layer's ThreadAccess.UserData uses the
// pair to read the datum without consuming it (spec §9
// "Temporarily-extracted user data").
func (t *Thread) SetUserData(d any) { t.userData = d }

// Run drives this thread forward until it finishes, traps, or hits the
// next imported call. injected is nil on the first call (the main thread
// and fresh StartThreadByID threads take no injected resume value); on
// every subsequent call it must carry a value whose type matches the
// previously-interrupted import's declared return type, or no value at
// all if that import is declared void.
func (t *Thread) Run(injected *Value) (ExecOutcome, error) {
	if t.vm.IsPoisoned() {
		return ExecOutcome{}, ErrPoisoned
	}
	if t.done {
		return ExecOutcome{}, fmt.Errorf("vm: thread %d already finished", t.index)
	}

	if !t.started {
		t.started = true
		go t.runGoroutine()
	} else {
		if t.pending == nil {
			return ExecOutcome{}, fmt.Errorf("vm: thread %d is not parked on an interrupted call", t.index)
		}
		if (t.pending.resultType == nil) != (injected == nil) {
			return ExecOutcome{}, ErrBadValueTy
		}
		if injected != nil && *t.pending.resultType != injected.Type {
			return ExecOutcome{}, ErrBadValueTy
		}
		var v Value
		if injected != nil {
			v = *injected
		}
		t.pending = nil
		t.toGuest <- v
	}

	ev := <-t.fromGuest

	switch ev.xKind {
	case eventFinished:
		t.done = true
		t.vm.mu.Lock()
		if t.index < len(t.vm.threads) {
			t.vm.threads[t.index] = nil
		}
		if t.index == 0 {
			t.vm.poisoned = true
		}
		t.vm.mu.Unlock()
		return ExecOutcome{Kind: ExecFinished, ReturnValue: ev.result, UserData: t.TakeUserData()}, nil
	case eventInterrupted:
		t.pending = &pendingCall{callID: ev.callID, resultType: ev.resultType}
		return ExecOutcome{Kind: ExecInterrupted, ID: ev.callID, Params: ev.params}, nil
	case eventErrored:
		t.done = true
		t.vm.poison()
		return ExecOutcome{Kind: ExecErrored, Err: ev.err}, &TrapError{Cause: ev.err}
	default:
		panic("vm: unreachable exec event kind")
	}
}

func (t *Thread) runGoroutine() {
	ctx := context.WithValue(t.vm.ctx, threadCtxKey{}, t)

	t.vm.mu.Lock()
	fn := t.vm.funcs[t.funcIndex]
	t.vm.mu.Unlock()

	raw := make([]uint64, len(t.params))
	for i, p := range t.params {
		raw[i] = p.Raw()
	}

	results, err := fn.Call(ctx, raw...)
	if err != nil {
		t.fromGuest <- execEvent{xKind: eventErrored, err: err}
		return
	}

	var resVal *Value
	resultTypes := fn.Definition().ResultTypes()
	if len(resultTypes) == 1 {
		v := valueFromRaw(resultTypes[0], results[0])
		resVal = &v
	}
	t.fromGuest <- execEvent{xKind: eventFinished, result: resVal}
}

// importBridge returns the raw wazero host function invoked whenever the
// guest calls the import that resolved to token. It hands the call back to
// whichever Thread's goroutine is running (recovered from ctx, stashed
// there by runGoroutine) as an Interrupted event, then blocks until Run
// supplies the resume value on that thread's toGuest channel.
func (vm *VM) importBridge(token uint64, sig Signature) func(ctx context.Context, mod api.Module, stack []uint64) {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		th, ok := ctx.Value(threadCtxKey{}).(*Thread)
		if !ok {
			panic("vm: import call observed outside of a thread's goroutine")
		}

		params := make([]Value, len(sig.Params))
		for i, pt := range sig.Params {
			params[i] = valueFromRaw(pt, stack[i])
		}

		th.fromGuest <- execEvent{xKind: eventInterrupted, callID: token, params: params, resultType: sig.Result}

		resume := <-th.toGuest
		if sig.Result != nil {
			stack[0] = resume.Raw()
		}
	}
}
