package extrinsics

import (
	"encoding/binary"

	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// ThreadWaitNotification is the public handle surfaced when a thread calls
// next_notification (spec §4.3).
type ThreadWaitNotification struct {
	core *Core

	access *process.ThreadAccess
	pid    process.Pid
	tid    process.ThreadId

	// waitEntries mirrors the guest's notif_ids array verbatim,
	// including zero-value sentinel (empty) slots, at notifIDsPtr.
	waitEntries []uint64
	notifIDsPtr uint32
	outPtr      uint32
	outSize     uint32
	block       bool

	resolved bool
}

func (w *ThreadWaitNotification) Pid() process.Pid           { return w.pid }
func (w *ThreadWaitNotification) ThreadId() process.ThreadId { return w.tid }
func (w *ThreadWaitNotification) Block() bool                { return w.block }
func (w *ThreadWaitNotification) AllowedNotificationSize() uint32 { return w.outSize }

// WaitEntries returns the awaited message ids, positions preserved,
// including sentinel gaps (a 0 entry means "empty slot").
func (w *ThreadWaitNotification) WaitEntries() []uint64 {
	out := make([]uint64, len(w.waitEntries))
	copy(out, w.waitEntries)
	return out
}

// ResumeNotification delivers notif at wait_entries[index]: writes notif
// into the guest's out-buffer at out_ptr, zeroes that entry's slot in the
// guest's id array, and resumes the call with the byte count.
func (w *ThreadWaitNotification) ResumeNotification(index int, notif []byte) error {
	if w.resolved {
		return ErrNotPending
	}
	if index < 0 || index >= len(w.waitEntries) || w.waitEntries[index] == 0 {
		return ErrNotificationIndexOutOfRange
	}
	if uint32(len(notif)) > w.outSize {
		return ErrNotificationTooBig
	}
	w.resolved = true
	defer w.access.Release()

	if err := w.access.WriteMemory(w.outPtr, notif); err != nil {
		w.core.abortOnMalformed(w.access, w.pid)
		return nil
	}
	var zero [8]byte
	if err := w.access.WriteMemory(w.notifIDsPtr+8*uint32(index), zero[:]); err != nil {
		w.core.abortOnMalformed(w.access, w.pid)
		return nil
	}

	n := vm.I32(int32(len(notif)))
	return w.access.Resume(&n)
}

// ResumeNotificationTooBig resumes with size as the signaling "required
// size" value (> out_size by protocol), without delivering any bytes.
func (w *ThreadWaitNotification) ResumeNotificationTooBig(size uint32) error {
	if w.resolved {
		return ErrNotPending
	}
	w.resolved = true
	defer w.access.Release()

	n := vm.I32(int32(size))
	return w.access.Resume(&n)
}

// ResumeNoNotification resumes with 0. Only valid when Block() is false.
func (w *ThreadWaitNotification) ResumeNoNotification() error {
	if w.resolved {
		return ErrNotPending
	}
	if w.block {
		return ErrNotPending
	}
	w.resolved = true
	defer w.access.Release()

	zero := vm.I32(0)
	return w.access.Resume(&zero)
}

func parseNextNotificationParams(access *process.ThreadAccess, params []vm.Value) (waitEntries []uint64, notifIDsPtr, outPtr, outSize uint32, block bool, err error) {
	if len(params) != 5 {
		return nil, 0, 0, 0, false, ErrMalformedCall
	}
	notifIDsPtr = uint32(params[0].I32())
	count := uint32(params[1].I32())
	outPtr = uint32(params[2].I32())
	outSize = uint32(params[3].I32())
	block = uint64(params[4].I64()) != 0

	raw, e := access.ReadMemory(notifIDsPtr, count*8)
	if e != nil {
		return nil, 0, 0, 0, false, ErrMalformedCall
	}
	waitEntries = make([]uint64, count)
	for i := range waitEntries {
		waitEntries[i] = binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
	}
	return waitEntries, notifIDsPtr, outPtr, outSize, block, nil
}
