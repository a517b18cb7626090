package vm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelos/wasmkernel/internal/wasmtest"
	"github.com/kestrelos/wasmkernel/vm"
)

func noImports(_, _ string, _ vm.Signature) (uint64, bool) { return 0, false }

// S1 — smallest module runs to completion.
func TestSmallestModuleRunsToCompletion(t *testing.T) {
	v, err := vm.New(context.Background(), wasmtest.Smallest(), nil, noImports)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	th := v.Thread(0)
	outcome, err := th.Run(nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Kind != vm.ExecFinished {
		t.Fatalf("Kind = %v, want ExecFinished", outcome.Kind)
	}
	if outcome.ReturnValue == nil || outcome.ReturnValue.I32() != 5 {
		t.Fatalf("ReturnValue = %v, want I32(5)", outcome.ReturnValue)
	}
	if !v.IsPoisoned() {
		t.Fatal("VM should be poisoned after the main thread finishes")
	}
}

// S2 — trap propagates as an errored outcome carrying a TrapError.
func TestTrapPropagatesAsErroredOutcome(t *testing.T) {
	v, err := vm.New(context.Background(), wasmtest.Trap(), nil, noImports)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	th := v.Thread(0)
	outcome, err := th.Run(nil)
	if outcome.Kind != vm.ExecErrored {
		t.Fatalf("Kind = %v, want ExecErrored", outcome.Kind)
	}
	var trap *vm.TrapError
	if !errors.As(err, &trap) {
		t.Fatalf("Run err = %v, want a *vm.TrapError", err)
	}
	if !v.IsPoisoned() {
		t.Fatal("VM should be poisoned after a trap")
	}
}

// S3 — extrinsic round-trip: the guest's import call surfaces as
// Interrupted with the resolver's token, and the injected resume value
// becomes the guest's observed return value.
func TestExtrinsicRoundTrip(t *testing.T) {
	const token = 639
	resolver := func(module, field string, sig vm.Signature) (uint64, bool) {
		if module == "foo" && field == "test" {
			return token, true
		}
		return 0, false
	}

	v, err := vm.New(context.Background(), wasmtest.ImportReturn("foo", "test"), nil, resolver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	th := v.Thread(0)
	outcome, err := th.Run(nil)
	if err != nil {
		t.Fatalf("Run (first step): %v", err)
	}
	if outcome.Kind != vm.ExecInterrupted {
		t.Fatalf("Kind = %v, want ExecInterrupted", outcome.Kind)
	}
	if outcome.ID != token {
		t.Fatalf("ID = %d, want %d", outcome.ID, token)
	}
	if len(outcome.Params) != 0 {
		t.Fatalf("Params = %v, want none", outcome.Params)
	}

	resume := vm.I32(713)
	outcome, err = th.Run(&resume)
	if err != nil {
		t.Fatalf("Run (resume): %v", err)
	}
	if outcome.Kind != vm.ExecFinished {
		t.Fatalf("Kind = %v, want ExecFinished", outcome.Kind)
	}
	if outcome.ReturnValue == nil || outcome.ReturnValue.I32() != 713 {
		t.Fatalf("ReturnValue = %v, want I32(713)", outcome.ReturnValue)
	}
}

// Resuming with a value of the wrong type is a host-side contract
// violation, reported as ErrBadValueTy rather than silently coerced.
func TestResumeWithWrongTypeIsRejected(t *testing.T) {
	resolver := func(module, field string, sig vm.Signature) (uint64, bool) {
		return 1, true
	}
	v, err := vm.New(context.Background(), wasmtest.ImportReturn("foo", "test"), nil, resolver)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	th := v.Thread(0)
	if _, err := th.Run(nil); err != nil {
		t.Fatalf("Run (first step): %v", err)
	}

	badResume := vm.I64(0)
	if _, err := th.Run(&badResume); !errors.Is(err, vm.ErrBadValueTy) {
		t.Fatalf("Run (bad resume) err = %v, want ErrBadValueTy", err)
	}
}

// An import the resolver cannot resolve surfaces as ErrUnresolvedImport
// wrapped in an ImportError naming the offending module/field.
func TestUnresolvedImportIsRejected(t *testing.T) {
	_, err := vm.New(context.Background(), wasmtest.ImportReturn("foo", "test"), nil, noImports)
	var impErr *vm.ImportError
	if !errors.As(err, &impErr) {
		t.Fatalf("New err = %v, want *vm.ImportError", err)
	}
	if impErr.Module != "foo" || impErr.Field != "test" {
		t.Fatalf("ImportError = %+v, want foo.test", impErr)
	}
	if !errors.Is(err, vm.ErrUnresolvedImport) {
		t.Fatalf("New err does not wrap ErrUnresolvedImport: %v", err)
	}
}

// No lost memory writes: bytes written via WriteMemory are observable on
// the next read (spec testable property 5, exercised at the VM layer).
func TestMemoryWriteThenReadRoundTrips(t *testing.T) {
	v, err := vm.New(context.Background(), wasmtest.EmitMessageCall(nil, false, false, 64), nil, func(string, string, vm.Signature) (uint64, bool) {
		return 1, true
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if err := v.WriteMemory(100, payload); err != nil {
		t.Fatalf("WriteMemory: %v", err)
	}
	got, err := v.ReadMemory(100, uint32(len(payload)))
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("ReadMemory = %x, want %x", got, payload)
	}
}

// Out-of-bounds memory access is reported, never silently truncated.
func TestOutOfBoundsMemoryAccessIsReported(t *testing.T) {
	v, err := vm.New(context.Background(), wasmtest.Smallest(), nil, noImports)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer v.Close()

	_, err = v.ReadMemory(0, 8)
	var oob *vm.OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("ReadMemory err = %v, want *vm.OutOfBoundsError (module declares no memory)", err)
	}
}
