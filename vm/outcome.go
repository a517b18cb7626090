package vm

// ExecKind classifies how a single Thread.Run call ended (spec §4.1).
type ExecKind int

const (
	// ExecFinished — the exported function returned; the thread is
	// removed from the VM. If this was thread 0 (main), the VM is now
	// poisoned.
	ExecFinished ExecKind = iota
	// ExecInterrupted — an imported function was invoked. The thread
	// remains parked until Run is called again with an injected value of
	// the matching return type.
	ExecInterrupted
	// ExecErrored — a trap occurred. The VM is now poisoned.
	ExecErrored
)

// ExecOutcome is the result of driving a Thread forward exactly one step.
type ExecOutcome struct {
	Kind ExecKind

	// Set when Kind == ExecFinished.
	ReturnValue *Value
	UserData    any

	// Set when Kind == ExecInterrupted.
	ID     uint64
	Params []Value

	// Set when Kind == ExecErrored.
	Err error
}
