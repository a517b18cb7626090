package kernel

import (
	"context"

	"github.com/kestrelos/wasmkernel/extrinsics"
	"github.com/kestrelos/wasmkernel/internal/log"
)

// LoggingHandler is a minimal EventHandler: it logs every event and
// applies the simplest safe policy to the ones that require a response
// (refuse every emit, never block a notification wait), so a Kernel can
// be driven to completion without an application-specific collaborator.
// Real embedders are expected to provide their own EventHandler.
type LoggingHandler struct {
	Logger *log.Logger
}

func (h *LoggingHandler) HandleEvent(_ context.Context, _ *Kernel, ev extrinsics.Event) error {
	switch ev.Kind {
	case extrinsics.EventProcessFinished:
		log.LInfof(h.Logger, "kernel: process %d finished: %+v", ev.ProcessFinished.Pid, ev.ProcessFinished.Outcome)

	case extrinsics.EventThreadFinished:
		log.LDebugf(h.Logger, "kernel: thread %d (pid %d) finished", ev.Tid, ev.Pid)

	case extrinsics.EventProcessAborting:
		log.LWarnf(h.Logger, "kernel: process %d aborting: reason=%v", ev.Pid, ev.Reason)

	case extrinsics.EventThreadEmitMessage:
		log.LDebugf(h.Logger, "kernel: thread %d emitted to interface %x, refusing (no collaborator wired)", ev.Tid, ev.EmitMessage.EmitInterface())
		return ev.EmitMessage.RefuseEmit()

	case extrinsics.EventThreadWaitNotification:
		if !ev.WaitNotification.Block() {
			return ev.WaitNotification.ResumeNoNotification()
		}
		log.LWarnf(h.Logger, "kernel: thread %d blocked waiting for a notification with no deliverer wired", ev.Tid)
	}
	return nil
}
