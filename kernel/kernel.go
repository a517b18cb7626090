// Package kernel ties the VM, processes, and extrinsics layers together
// behind one construction/run surface — the "outside driver" of spec §2's
// data-flow paragraph — and supplies the host thread pool that actually
// lets processes run in parallel (spec §5 "Scheduling model").
package kernel

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kestrelos/wasmkernel/extrinsics"
	"github.com/kestrelos/wasmkernel/process"
)

// EventHandler reacts to whatever extrinsics.Core.Run surfaces. A Kernel
// calls it once per event, from whichever worker goroutine produced that
// event; implementations must be safe for concurrent use.
type EventHandler interface {
	HandleEvent(ctx context.Context, k *Kernel, ev extrinsics.Event) error
}

// Kernel is a fully wired instance: one extrinsics.Core plus the worker
// pool that drives its Run loop.
type Kernel struct {
	core *extrinsics.Core
	cfg  *Config
	// sem bounds concurrent Core.Run calls, and with them Wasm-body
	// execution, at Config.MaxConcurrentRunBodies — see Run below.
	sem *semaphore.Weighted
}

// New builds a Kernel from cfg (OrDefault-filled internally).
func New(cfg *Config) (*Kernel, error) {
	conf := cfg.OrDefault()

	b := extrinsics.NewBuilder().
		WithSeed(conf.Seed).
		WithLogger(conf.Logger).
		WithParkerCapacity(conf.ParkerCapacity)

	if conf.Collaborator != nil {
		if err := b.WithCollaborator(conf.Collaborator); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExtrinsicCollision, err)
		}
	}

	return &Kernel{
		core: b.Build(),
		cfg:  conf,
		sem:  semaphore.NewWeighted(int64(conf.MaxConcurrentRunBodies)),
	}, nil
}

// Execute starts a new process from moduleBytes, mirroring
// extrinsics.Core.Execute.
func (k *Kernel) Execute(ctx context.Context, moduleBytes []byte, processUserData, mainThreadUserData any) (*process.Handle, process.ThreadId, error) {
	return k.core.Execute(ctx, moduleBytes, processUserData, mainThreadUserData)
}

// ReservePid mirrors extrinsics.Core.ReservePid.
func (k *Kernel) ReservePid() process.Pid { return k.core.ReservePid() }

// ProcessByID mirrors extrinsics.Core.ProcessByID.
func (k *Kernel) ProcessByID(pid process.Pid) (*process.Handle, error) { return k.core.ProcessByID(pid) }

// Core exposes the underlying extrinsics.Core for callers that need
// DeliverResponse/AllocateMessageID directly instead of going through an
// EventHandler.
func (k *Kernel) Core() *extrinsics.Core { return k.core }

// NotifyExternalIRQ is the seam where a real driver would wake the
// scheduler in response to hardware/interrupt activity external to any
// Wasm process (e.g. a timer or device IRQ landing outside the VM/process
// layers entirely). This kernel has no device model — boot, interrupt
// controllers, and drivers are explicitly out of scope (spec §1
// Non-goals) — so there is nothing to wire this into yet; it exists as a
// documented extension point rather than a working notification path.
func (k *Kernel) NotifyExternalIRQ() {}

// Run starts Config.Workers goroutines, each looping Core.Run → handler
// until ctx is cancelled or a goroutine returns an error (spec §5 "the
// core is single-logical-threaded-per-process at any instant... but
// processes run in parallel on a host thread pool"). Each worker holds
// k.sem — sized to MaxConcurrentRunBodies, not Workers — for its whole
// Core.Run call, including any time spent parked waiting for a ready
// thread, so at most MaxConcurrentRunBodies Core.Run calls (and therefore
// Wasm bodies) are in progress at once; with more workers live than that
// cap, Acquire blocks the excess ones.
func (k *Kernel) Run(ctx context.Context, handler EventHandler) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < k.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				if err := k.sem.Acquire(gctx, 1); err != nil {
					return err
				}
				ev, err := k.core.Run(gctx)
				k.sem.Release(1)
				if err != nil {
					return err
				}
				if err := handler.HandleEvent(gctx, k, ev); err != nil {
					return err
				}
			}
		})
	}

	return g.Wait()
}
