package process_test

import (
	"context"
	"testing"

	"github.com/kestrelos/wasmkernel/internal/wasmtest"
	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// S1 — smallest module runs to completion through the process layer: one
// StepProcessAborting step followed, once every reference is released, by
// exactly one RunProcessFinished event.
func TestSmallestModuleRunsToCompletion(t *testing.T) {
	ctx := context.Background()
	c := process.NewBuilder().WithSeed(1).Build()

	h, _, err := c.Execute(ctx, wasmtest.Smallest(), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ev.Kind != process.RunReady {
		t.Fatalf("Kind = %v, want RunReady", ev.Kind)
	}

	step, err := ev.Ready.Run()
	if err != nil {
		t.Fatalf("Ready.Run: %v", err)
	}
	if step.Kind != process.StepProcessAborting {
		t.Fatalf("step.Kind = %v, want StepProcessAborting", step.Kind)
	}
	if step.Reason != process.AbortReasonMainThreadExit {
		t.Fatalf("step.Reason = %v, want AbortReasonMainThreadExit", step.Reason)
	}

	// The process can't finalize yet: the Handle returned by Execute is
	// still outstanding.
	h.Release()

	ev, err = c.Run(ctx)
	if err != nil {
		t.Fatalf("Run (after release): %v", err)
	}
	if ev.Kind != process.RunProcessFinished {
		t.Fatalf("Kind = %v, want RunProcessFinished", ev.Kind)
	}
	if ev.ProcessFinished.Outcome.Ok == nil || ev.ProcessFinished.Outcome.Ok.I32() != 5 {
		t.Fatalf("Outcome.Ok = %v, want I32(5)", ev.ProcessFinished.Outcome.Ok)
	}
	if len(ev.ProcessFinished.DeadThreads) != 0 {
		t.Fatalf("DeadThreads = %v, want none", ev.ProcessFinished.DeadThreads)
	}
}

// S3 — extrinsic round-trip through Collection/Handle/ReadyToRun/ThreadAccess.
func TestExtrinsicRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := process.NewBuilder().WithSeed(2)
	i32 := vm.ValueTypeI32
	if err := b.RegisterExtrinsic("foo", "test", vm.Signature{Result: &i32}, 639); err != nil {
		t.Fatalf("RegisterExtrinsic: %v", err)
	}
	c := b.Build()

	h, mainTid, err := c.Execute(ctx, wasmtest.ImportReturn("foo", "test"), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := c.Run(ctx)
	if err != nil || ev.Kind != process.RunReady {
		t.Fatalf("Run = %+v, %v, want RunReady", ev, err)
	}
	step, err := ev.Ready.Run()
	if err != nil {
		t.Fatalf("Ready.Run: %v", err)
	}
	if step.Kind != process.StepInterrupted {
		t.Fatalf("step.Kind = %v, want StepInterrupted", step.Kind)
	}
	if step.ExtrinsicID != 639 {
		t.Fatalf("ExtrinsicID = %d, want 639", step.ExtrinsicID)
	}
	if step.Tid != mainTid {
		t.Fatalf("Tid = %d, want main thread %d", step.Tid, mainTid)
	}

	access, err := c.InterruptedThreadByID(step.Tid)
	if err != nil {
		t.Fatalf("InterruptedThreadByID: %v", err)
	}

	// A second concurrent attempt is rejected until this one resumes/releases.
	if _, err := c.InterruptedThreadByID(step.Tid); err != process.ErrAlreadyLocked {
		t.Fatalf("second InterruptedThreadByID err = %v, want ErrAlreadyLocked", err)
	}

	resume := vm.I32(713)
	if err := access.Resume(&resume); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	ev, err = c.Run(ctx)
	if err != nil || ev.Kind != process.RunReady {
		t.Fatalf("Run (after resume) = %+v, %v, want RunReady", ev, err)
	}
	step, err = ev.Ready.Run()
	if err != nil {
		t.Fatalf("Ready.Run (after resume): %v", err)
	}
	if step.Kind != process.StepProcessAborting {
		t.Fatalf("step.Kind = %v, want StepProcessAborting", step.Kind)
	}

	h.Release()
	ev, err = c.Run(ctx)
	if err != nil || ev.Kind != process.RunProcessFinished {
		t.Fatalf("final Run = %+v, %v, want RunProcessFinished", ev, err)
	}
	if ev.ProcessFinished.Outcome.Ok == nil || ev.ProcessFinished.Outcome.Ok.I32() != 713 {
		t.Fatalf("Outcome.Ok = %v, want I32(713)", ev.ProcessFinished.Outcome.Ok)
	}
}

// S6 — aborting a process while one of its threads is checked out via
// ThreadAccess still yields exactly one ProcessFinished, once both the
// ThreadAccess and the Handle are released (testable properties 6 and 7,
// and the reference-release race between markDying and ThreadAccess.Release).
func TestAbortWhileThreadCheckedOut(t *testing.T) {
	ctx := context.Background()
	b := process.NewBuilder().WithSeed(3)
	i32 := vm.ValueTypeI32
	if err := b.RegisterExtrinsic("foo", "test", vm.Signature{Result: &i32}, 1); err != nil {
		t.Fatalf("RegisterExtrinsic: %v", err)
	}
	c := b.Build()

	h, _, err := c.Execute(ctx, wasmtest.ImportReturn("foo", "test"), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := c.Run(ctx)
	if err != nil || ev.Kind != process.RunReady {
		t.Fatalf("Run = %+v, %v, want RunReady", ev, err)
	}
	step, err := ev.Ready.Run()
	if err != nil || step.Kind != process.StepInterrupted {
		t.Fatalf("Ready.Run = %+v, %v, want StepInterrupted", step, err)
	}

	access, err := c.InterruptedThreadByID(step.Tid)
	if err != nil {
		t.Fatalf("InterruptedThreadByID: %v", err)
	}

	// Abort while access is still checked out: markDying must find the
	// interrupted entry locked and defer the sweep to access.Release.
	h.Abort()

	access.Release()

	// h still holds a reference.
	h.Release()

	ev, err = c.Run(ctx)
	if err != nil {
		t.Fatalf("Run (after abort): %v", err)
	}
	if ev.Kind != process.RunProcessFinished {
		t.Fatalf("Kind = %v, want RunProcessFinished", ev.Kind)
	}
	if ev.ProcessFinished.Outcome.Reason != process.AbortReasonExplicit {
		t.Fatalf("Outcome.Reason = %v, want AbortReasonExplicit", ev.ProcessFinished.Outcome.Reason)
	}
	if len(ev.ProcessFinished.DeadThreads) != 1 {
		t.Fatalf("DeadThreads = %v, want exactly 1 (the aborted, checked-out thread)", ev.ProcessFinished.DeadThreads)
	}
	if ev.ProcessFinished.DeadThreads[0].ID != step.Tid {
		t.Fatalf("DeadThreads[0].ID = %d, want %d", ev.ProcessFinished.DeadThreads[0].ID, step.Tid)
	}
}

// Testable property 2: same seed ⇒ same Pid/ThreadId sequence for the same
// sequence of Execute calls.
func TestIdsAreDeterministicForSameSeed(t *testing.T) {
	ctx := context.Background()
	run := func() (process.Pid, process.ThreadId, process.Pid) {
		c := process.NewBuilder().WithSeed(42).Build()
		h1, tid1, err := c.Execute(ctx, wasmtest.Smallest(), nil, nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		h2, _, err := c.Execute(ctx, wasmtest.Smallest(), nil, nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		defer h1.Release()
		defer h2.Release()
		return h1.Pid(), tid1, h2.Pid()
	}

	pid1a, tid1a, pid2a := run()
	pid1b, tid1b, pid2b := run()

	if pid1a != pid1b || tid1a != tid1b || pid2a != pid2b {
		t.Fatalf("ids diverged across identically-seeded runs: (%d,%d,%d) vs (%d,%d,%d)",
			pid1a, tid1a, pid2a, pid1b, tid1b, pid2b)
	}
}

// Testable property 1 (uniqueness) and "exactly one reference per path":
// two Collections started from different seeds need not collide, but a
// single Collection never reuses a Pid for two live processes.
func TestIdsAreUniqueWithinACollection(t *testing.T) {
	ctx := context.Background()
	c := process.NewBuilder().WithSeed(7).Build()

	seen := make(map[process.Pid]bool)
	var handles []*process.Handle
	for i := 0; i < 8; i++ {
		h, _, err := c.Execute(ctx, wasmtest.Smallest(), nil, nil)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if seen[h.Pid()] {
			t.Fatalf("Pid %d reused", h.Pid())
		}
		seen[h.Pid()] = true
		handles = append(handles, h)
	}
	for _, h := range handles {
		h.Release()
	}
}

// Duplicate extrinsic registrations for the same (module, field) are
// rejected at Builder time, before any process ever runs.
func TestRegisterExtrinsicRejectsDuplicates(t *testing.T) {
	b := process.NewBuilder()
	i32 := vm.ValueTypeI32
	sig := vm.Signature{Result: &i32}
	if err := b.RegisterExtrinsic("foo", "test", sig, 1); err != nil {
		t.Fatalf("first RegisterExtrinsic: %v", err)
	}
	if err := b.RegisterExtrinsic("foo", "test", sig, 2); err != process.ErrDuplicateExtrinsic {
		t.Fatalf("second RegisterExtrinsic err = %v, want ErrDuplicateExtrinsic", err)
	}
}
