package extrinsics

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/kestrelos/wasmkernel/process"
)

// InterfaceHash identifies an interface: a fixed-width 32-byte value, named
// either directly or derived from a human-readable string via
// HashInterface (SPEC_FULL.md "Interface registration by both hash and
// human name").
type InterfaceHash [32]byte

// HashInterface derives an InterfaceHash from a human-readable interface
// name, mirroring the original's `redshirt-syscalls` name hashing. SHA-256
// already produces 32 bytes, so no truncation/expansion is needed.
func HashInterface(name string) InterfaceHash {
	return InterfaceHash(sha256.Sum256([]byte(name)))
}

// ResolveInterfaceHash turns the 32 bytes read from a guest's
// interface_ptr argument into an InterfaceHash. Those bytes are either
// already the raw hash, or a base58-encoded human-readable identifier that
// happens to fill the same 32-byte slot; both forms must resolve to the
// same interface identity (spec §6 "Module-name resolution").
func ResolveInterfaceHash(raw [32]byte) InterfaceHash {
	trimmed := strings.TrimRight(string(raw[:]), "\x00")
	if decoded, err := base58.Decode(trimmed); err == nil && len(decoded) == 32 {
		var h InterfaceHash
		copy(h[:], decoded)
		return h
	}
	return InterfaceHash(raw)
}

// MessageID is the original's per-process message identifier: a sequence
// number scoped to the emitting process, so a reply or cancellation can
// find its way back to the right pending-message table without a global
// counter (SPEC_FULL.md supplemented feature #1).
type MessageID struct {
	Pid process.Pid
	Seq uint64
}

// Bytes encodes the MessageID as the 8 little-endian bytes written back
// into guest memory at accept_emit's message_id_write_addr. Pid is folded
// in via XOR, so equal sequence numbers in different processes encode to
// different bytes; ids of different processes with different sequence
// numbers can still encode to the same bytes (a guest only ever sees its
// own emitted ids, round-tripped through cancel_message).
func (m MessageID) Bytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], m.Seq^uint64(m.Pid))
	return b
}

// ParseMessageID reverses Bytes, given the pid the raw bytes were read
// from (cancel_message only ever targets messages emitted by the caller's
// own process, so pid is always already known from the interrupted call).
func ParseMessageID(pid process.Pid, b [8]byte) MessageID {
	raw := binary.LittleEndian.Uint64(b[:])
	return MessageID{Pid: pid, Seq: raw ^ uint64(pid)}
}

// messageIDAllocator hands out process-scoped MessageIDs, one per Core.
type messageIDAllocator struct {
	next map[process.Pid]uint64
}

func newMessageIDAllocator() *messageIDAllocator {
	return &messageIDAllocator{next: make(map[process.Pid]uint64)}
}

func (a *messageIDAllocator) allocate(pid process.Pid) MessageID {
	seq := a.next[pid] + 1
	a.next[pid] = seq
	return MessageID{Pid: pid, Seq: seq}
}
