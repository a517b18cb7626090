package extrinsics_test

import (
	"context"
	"testing"

	"github.com/kestrelos/wasmkernel/extrinsics"
	"github.com/kestrelos/wasmkernel/internal/wasmtest"
	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// fixedResumeCollaborator answers every interrupt on its one registered
// extrinsic by resuming the guest with a fixed value, without ever parking
// for a later InjectMessageResponse.
type fixedResumeCollaborator struct {
	module, field string
	value         int32
}

func (c *fixedResumeCollaborator) SupportedExtrinsics() []extrinsics.SupportedExtrinsic {
	i32 := vm.ValueTypeI32
	return []extrinsics.SupportedExtrinsic{{
		WasmInterface: c.module,
		FunctionName:  c.field,
		Sig:           vm.Signature{Result: &i32},
		ID:            "fixed",
	}}
}

func (c *fixedResumeCollaborator) NewContext(tid process.ThreadId, extID extrinsics.ExtrinsicId, params []vm.Value, mem extrinsics.MemoryAccess) (extrinsics.Context, extrinsics.Action, error) {
	v := vm.I32(c.value)
	return nil, extrinsics.Action{Kind: extrinsics.ActionResume, ResumeValue: &v}, nil
}

func (c *fixedResumeCollaborator) InjectMessageResponse(ctx extrinsics.Context, payload []byte, hasPayload bool, mem extrinsics.MemoryAccess) (extrinsics.Action, error) {
	panic("not reached by fixedResumeCollaborator")
}

// S3 analog at the extrinsics layer: a non-hardcoded import resolves
// through a collaborator's NewContext straight to ActionResume.
func TestCollaboratorExtrinsicRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := extrinsics.NewBuilder().WithSeed(11)
	if err := b.WithCollaborator(&fixedResumeCollaborator{module: "foo", field: "test", value: 999}); err != nil {
		t.Fatalf("WithCollaborator: %v", err)
	}
	core := b.Build()

	h, _, err := core.Execute(ctx, wasmtest.ImportReturn("foo", "test"), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := core.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ev.Kind != extrinsics.EventProcessAborting {
		t.Fatalf("Kind = %v, want EventProcessAborting", ev.Kind)
	}
	if ev.Reason != process.AbortReasonMainThreadExit {
		t.Fatalf("Reason = %v, want AbortReasonMainThreadExit", ev.Reason)
	}

	h.Release()
	ev, err = core.Run(ctx)
	if err != nil {
		t.Fatalf("Run (finish): %v", err)
	}
	if ev.Kind != extrinsics.EventProcessFinished {
		t.Fatalf("Kind = %v, want EventProcessFinished", ev.Kind)
	}
	if ev.ProcessFinished.Outcome.Ok == nil || ev.ProcessFinished.Outcome.Ok.I32() != 999 {
		t.Fatalf("Outcome.Ok = %v, want I32(999)", ev.ProcessFinished.Outcome.Ok)
	}
}

// S4 analog: emit_message with needs_answer set, accepted with a message
// id that gets written back into guest memory at message_id_write_addr.
func TestEmitMessageAcceptWritesMessageID(t *testing.T) {
	ctx := context.Background()
	core := extrinsics.NewBuilder().WithSeed(12).Build()

	payload := []byte("hello")
	const msgIDOffset = 100
	h, _, err := core.Execute(ctx, wasmtest.EmitMessageCall(payload, true, false, msgIDOffset), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := core.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ev.Kind != extrinsics.EventThreadEmitMessage {
		t.Fatalf("Kind = %v, want EventThreadEmitMessage", ev.Kind)
	}
	em := ev.EmitMessage
	if !em.NeedsAnswer() {
		t.Fatal("NeedsAnswer() = false, want true")
	}
	if string(em.Payload()) != string(payload) {
		t.Fatalf("Payload = %q, want %q", em.Payload(), payload)
	}
	if em.EmitInterface() != (extrinsics.InterfaceHash{}) {
		t.Fatalf("EmitInterface = %x, want the zero interface (guest wrote an all-zero slot)", em.EmitInterface())
	}

	msgID := core.AllocateMessageID(ev.Pid)
	if err := em.AcceptEmit(&msgID); err != nil {
		t.Fatalf("AcceptEmit: %v", err)
	}

	// Asking to accept/refuse a second time must fail cleanly.
	if err := em.AcceptEmit(&msgID); err != extrinsics.ErrNotPending {
		t.Fatalf("second AcceptEmit err = %v, want ErrNotPending", err)
	}

	checkH, err := core.ProcessByID(ev.Pid)
	if err != nil {
		t.Fatalf("ProcessByID: %v", err)
	}
	written, err := checkH.ReadMemory(msgIDOffset, 8)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	wantBytes := msgID.Bytes()
	if string(written) != string(wantBytes[:]) {
		t.Fatalf("memory at message_id_write_addr = %x, want %x", written, wantBytes)
	}
	checkH.Release()

	ev, err = core.Run(ctx)
	if err != nil {
		t.Fatalf("Run (abort step): %v", err)
	}
	if ev.Kind != extrinsics.EventProcessAborting {
		t.Fatalf("Kind = %v, want EventProcessAborting", ev.Kind)
	}

	h.Release()
	ev, err = core.Run(ctx)
	if err != nil {
		t.Fatalf("Run (finish): %v", err)
	}
	if ev.Kind != extrinsics.EventProcessFinished {
		t.Fatalf("Kind = %v, want EventProcessFinished", ev.Kind)
	}
	if ev.ProcessFinished.Outcome.Ok == nil || ev.ProcessFinished.Outcome.Ok.I32() != 0 {
		t.Fatalf("Outcome.Ok = %v, want I32(0) (accept_emit resumes 0)", ev.ProcessFinished.Outcome.Ok)
	}
}

// S5 analog: next_notification with block=false and nothing pending
// resumes immediately with 0, never leaving the thread parked.
func TestNextNotificationNonBlockingNoNotification(t *testing.T) {
	ctx := context.Background()
	core := extrinsics.NewBuilder().WithSeed(13).Build()

	h, _, err := core.Execute(ctx, wasmtest.NextNotificationCall(50, 16, false), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := core.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ev.Kind != extrinsics.EventThreadWaitNotification {
		t.Fatalf("Kind = %v, want EventThreadWaitNotification", ev.Kind)
	}
	wn := ev.WaitNotification
	if wn.Block() {
		t.Fatal("Block() = true, want false")
	}
	if wn.AllowedNotificationSize() != 16 {
		t.Fatalf("AllowedNotificationSize = %d, want 16", wn.AllowedNotificationSize())
	}
	entries := wn.WaitEntries()
	if len(entries) != 3 {
		t.Fatalf("WaitEntries = %v, want 3 entries", entries)
	}
	for i, e := range entries {
		if e != 0 {
			t.Fatalf("WaitEntries[%d] = %d, want 0 (zero-initialized guest memory)", i, e)
		}
	}

	if err := wn.ResumeNoNotification(); err != nil {
		t.Fatalf("ResumeNoNotification: %v", err)
	}
	if err := wn.ResumeNoNotification(); err != extrinsics.ErrNotPending {
		t.Fatalf("second ResumeNoNotification err = %v, want ErrNotPending", err)
	}

	ev, err = core.Run(ctx)
	if err != nil {
		t.Fatalf("Run (abort step): %v", err)
	}
	if ev.Kind != extrinsics.EventProcessAborting {
		t.Fatalf("Kind = %v, want EventProcessAborting", ev.Kind)
	}

	h.Release()
	ev, err = core.Run(ctx)
	if err != nil {
		t.Fatalf("Run (finish): %v", err)
	}
	if ev.Kind != extrinsics.EventProcessFinished {
		t.Fatalf("Kind = %v, want EventProcessFinished", ev.Kind)
	}
	if ev.ProcessFinished.Outcome.Ok == nil || ev.ProcessFinished.Outcome.Ok.I32() != 0 {
		t.Fatalf("Outcome.Ok = %v, want I32(0)", ev.ProcessFinished.Outcome.Ok)
	}
}

// ResumeNoNotification must refuse a blocking wait: the caller is expected
// to use ResumeNotification/ResumeNotificationTooBig instead once a
// notification actually arrives.
func TestNextNotificationBlockingRejectsResumeNoNotification(t *testing.T) {
	ctx := context.Background()
	core := extrinsics.NewBuilder().WithSeed(14).Build()

	h, _, err := core.Execute(ctx, wasmtest.NextNotificationCall(50, 16, true), nil, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ev, err := core.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wn := ev.WaitNotification
	if !wn.Block() {
		t.Fatal("Block() = false, want true")
	}
	if err := wn.ResumeNoNotification(); err != extrinsics.ErrNotPending {
		t.Fatalf("ResumeNoNotification on a blocking wait err = %v, want ErrNotPending", err)
	}

	if err := wn.ResumeNotificationTooBig(64); err != nil {
		t.Fatalf("ResumeNotificationTooBig: %v", err)
	}

	ev, err = core.Run(ctx)
	if err != nil || ev.Kind != extrinsics.EventProcessAborting {
		t.Fatalf("Run (abort step) = %+v, %v, want EventProcessAborting", ev, err)
	}
	h.Release()
	ev, err = core.Run(ctx)
	if err != nil || ev.Kind != extrinsics.EventProcessFinished {
		t.Fatalf("Run (finish) = %+v, %v, want EventProcessFinished", ev, err)
	}
	if ev.ProcessFinished.Outcome.Ok == nil || ev.ProcessFinished.Outcome.Ok.I32() != 64 {
		t.Fatalf("Outcome.Ok = %v, want I32(64)", ev.ProcessFinished.Outcome.Ok)
	}
}
