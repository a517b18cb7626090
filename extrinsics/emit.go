package extrinsics

import (
	"github.com/kestrelos/wasmkernel/process"
	"github.com/kestrelos/wasmkernel/vm"
)

// ThreadEmitMessage is the public handle surfaced when a thread calls
// emit_message (hardcoded) or a collaborator extrinsic resolves to
// ActionEmitMessage (spec §4.3).
type ThreadEmitMessage struct {
	core *Core

	access *process.ThreadAccess
	pid    process.Pid
	tid    process.ThreadId

	iface       InterfaceHash
	payload     []byte
	needsAnswer bool
	allowDelay  bool

	// msgIDOutOffset and viaHardcodedCall are unset (zero/false) for a
	// collaborator-originated emit — there is no guest address to write
	// the assigned id back to, and acceptance instead drives
	// InjectMessageResponse rather than a guest resume value.
	msgIDOutOffset   uint32
	viaHardcodedCall bool

	collabCtx Context
	collabID  ExtrinsicId

	resolved bool
}

func (m *ThreadEmitMessage) Pid() process.Pid             { return m.pid }
func (m *ThreadEmitMessage) ThreadId() process.ThreadId   { return m.tid }
func (m *ThreadEmitMessage) NeedsAnswer() bool            { return m.needsAnswer }
func (m *ThreadEmitMessage) EmitInterface() InterfaceHash { return m.iface }
func (m *ThreadEmitMessage) Payload() []byte              { return m.payload }
func (m *ThreadEmitMessage) AllowDelay() bool             { return m.allowDelay }

// AcceptEmit accepts the emission. messageID must be non-nil iff
// NeedsAnswer is true (spec §4.3 "must match needs_answer"). For a
// hardcoded emit_message this writes the id's 8 little-endian bytes back
// to the guest's message_id_write_addr and resumes the call with 0. For a
// collaborator-originated emit with no response expected, it instead asks
// the collaborator for the follow-up Action via InjectMessageResponse.
func (m *ThreadEmitMessage) AcceptEmit(messageID *MessageID) error {
	if m.resolved {
		return ErrNotPending
	}
	if (messageID != nil) != m.needsAnswer {
		return ErrBadAcceptEmit
	}
	m.resolved = true

	if messageID != nil {
		m.core.trackPendingMessage(*messageID)
	}

	if m.viaHardcodedCall {
		if messageID != nil {
			b := messageID.Bytes()
			if err := m.access.WriteMemory(m.msgIDOutOffset, b[:]); err != nil {
				m.core.abortOnMalformed(m.access, m.pid)
				return nil
			}
		}
		zero := vm.I32(0)
		defer m.access.Release()
		return m.access.Resume(&zero)
	}

	// Collaborator-originated: no guest resume value to produce here.
	if m.needsAnswer {
		m.core.parkCollaboratorThread(m.tid, m.collabID, m.collabCtx)
		m.access.Release()
		return nil
	}

	action, err := m.core.collaborator.InjectMessageResponse(m.collabCtx, nil, false, m.access)
	if err != nil {
		m.access.Release()
		return err
	}
	m.core.enqueueFollowup(m.pid, m.tid, m.access, action)
	return nil
}

// RefuseEmit declines the emission; the guest observes return value 1.
// Only meaningful for a hardcoded emit_message — a collaborator-originated
// emit being refused marks the process dying instead (spec §9 Open
// Question (a): the original always crashes here; this implementation
// preserves that).
func (m *ThreadEmitMessage) RefuseEmit() error {
	if m.resolved {
		return ErrNotPending
	}
	m.resolved = true

	if m.viaHardcodedCall {
		one := vm.I32(1)
		defer m.access.Release()
		return m.access.Resume(&one)
	}

	h, err := m.core.procs.ProcessByID(m.pid)
	if err == nil {
		h.Abort()
		h.Release()
	}
	m.access.Release()
	return nil
}

func parseEmitMessageParams(pid process.Pid, access *process.ThreadAccess, params []vm.Value) (iface InterfaceHash, payload []byte, needsAnswer, allowDelay bool, msgIDOut uint32, err error) {
	if len(params) != 5 {
		return InterfaceHash{}, nil, false, false, 0, ErrMalformedCall
	}
	ifacePtr := uint32(params[0].I32())
	payloadPtr := uint32(params[1].I32())
	payloadLen := uint32(params[2].I32())
	flags := uint64(params[3].I64())
	msgIDOut = uint32(params[4].I32())

	rawIface, e := access.ReadMemory(ifacePtr, 32)
	if e != nil {
		return InterfaceHash{}, nil, false, false, 0, ErrMalformedCall
	}
	var buf [32]byte
	copy(buf[:], rawIface)
	iface = ResolveInterfaceHash(buf)

	payload, e = access.ReadMemory(payloadPtr, payloadLen)
	if e != nil {
		return InterfaceHash{}, nil, false, false, 0, ErrMalformedCall
	}

	// Bit 0 of the flags argument is needs_answer and bit 1 is allow_delay;
	// a call with any other bit set is malformed.
	if flags&^3 != 0 {
		return InterfaceHash{}, nil, false, false, 0, ErrMalformedCall
	}
	needsAnswer = flags&1 != 0
	allowDelay = flags&2 != 0
	return iface, payload, needsAnswer, allowDelay, msgIDOut, nil
}
