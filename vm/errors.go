package vm

import (
	"errors"
	"fmt"
)

// These errors are returned by New when a module cannot be turned into a
// runnable VM. ErrInvalidWasm and ErrUnresolvedImport are each their own sentinel
// since callers (the process layer's Execute) need to tell apart "the bytes
// are not valid wasm" from "your import table doesn't cover what this
// module needs"; everything else wazero's own instantiate step can reject
// (multiple memories, imported globals/tables, allocation failure) comes
// back from that one call and is wrapped as ErrUnresolvedImport rather than
// re-diagnosed into a sentinel of its own — wazero does not expose which of
// those it was without parsing its error text.
var (
	ErrInvalidWasm           = errors.New("vm: module bytes are not a valid WebAssembly module")
	ErrUnresolvedImport      = errors.New("vm: module imports a function the resolver could not resolve")
	ErrSignatureNotSupported = errors.New("vm: function signature uses an unsupported value type")
	ErrBadStartFunction      = errors.New("vm: module has no usable _start function")
)

// ImportError wraps ErrUnresolvedImport with the offending (module, field)
// pair, so a log line or test assertion can name exactly which import
// failed to resolve.
type ImportError struct {
	Module, Field string
	Err           error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("vm: import %q.%q: %v", e.Module, e.Field, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// ErrPoisoned and ErrBadValueTy are returned by Thread.Run (ErrPoisoned also
// by StartThreadByID), and ErrNotAFunction and ErrBadArity by
// StartThreadByID. Poisoned and BadValueTy are host-side
// contract violations distinct from a guest Trap: Poisoned means the
// caller kept using a VM after it stopped being runnable (a processes-layer
// bug, per spec §7 "internal; should be unreachable at the processes
// layer"), while Trap carries a guest-caused failure that the processes
// layer is expected to convert into ProcessFinished{outcome: Err}.
var (
	ErrPoisoned    = errors.New("vm: poisoned, no further execution permitted")
	ErrBadValueTy  = errors.New("vm: resume value type does not match the interrupted call's declared return type")
	ErrNotAFunction = errors.New("vm: start_thread_by_id: target index is not a function")
	ErrBadArity    = errors.New("vm: start_thread_by_id: parameter arity or types do not match")
)

// TrapError is the guest-caused failure captured by ExecOutcome.Errored
// and propagated by the processes layer as the process's final Err
// outcome (spec §7: Trap{error}).
type TrapError struct {
	Cause error
}

func (e *TrapError) Error() string { return fmt.Sprintf("vm: trap: %v", e.Cause) }
func (e *TrapError) Unwrap() error  { return e.Cause }

// OutOfBoundsError is returned by ReadMemory/WriteMemory when the
// requested range falls outside the module's linear memory. It is never
// silently truncated (spec §4.1).
type OutOfBoundsError struct {
	Offset, Size, MemSize uint32
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("vm: out of bounds memory access: offset=%d size=%d memsize=%d", e.Offset, e.Size, e.MemSize)
}
