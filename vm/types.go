package vm

import "github.com/tetratelabs/wazero/api"

// ValueType is one of the four WebAssembly MVP value types. The scheduler
// core never deals in any other type — no SIMD, no reference types — and
// rejects module imports using the wazero api.ValueType constants it
// doesn't recognize (ErrSignatureNotSupported). Exported functions are not
// checked this way.
type ValueType = api.ValueType

const (
	ValueTypeI32 = api.ValueTypeI32
	ValueTypeI64 = api.ValueTypeI64
	ValueTypeF32 = api.ValueTypeF32
	ValueTypeF64 = api.ValueTypeF64
)

// Value is a typed WebAssembly value carried across the VM boundary: as a
// thread's injected resume value, as parameters to start_thread_by_id, or
// as the params/return of an Interrupted outcome.
type Value struct {
	Type ValueType
	bits uint64
}

func I32(v int32) Value  { return Value{Type: ValueTypeI32, bits: uint64(uint32(v))} }
func I64(v int64) Value  { return Value{Type: ValueTypeI64, bits: uint64(v)} }
func F32(v float32) Value {
	return Value{Type: ValueTypeF32, bits: uint64(api.EncodeF32(v))}
}
func F64(v float64) Value { return Value{Type: ValueTypeF64, bits: api.EncodeF64(v)} }

func (v Value) I32() int32   { return int32(uint32(v.bits)) }
func (v Value) I64() int64   { return int64(v.bits) }
func (v Value) F32() float32 { return api.DecodeF32(v.bits) }
func (v Value) F64() float64 { return api.DecodeF64(v.bits) }

// Raw returns the value's wazero wire representation, the uint64 used on
// the Go-module-function stack and as Call()/results arguments.
func (v Value) Raw() uint64 { return v.bits }

// valueFromRaw reconstructs a typed Value from a raw stack slot, given the
// value type declared by the function signature it belongs to.
func valueFromRaw(t ValueType, raw uint64) Value {
	return Value{Type: t, bits: raw}
}

// Signature is the (params, result) shape of an imported or startable
// function. result is nil for void functions — the spec's "resume with a
// value of the callee's declared return type (or None if void)".
type Signature struct {
	Params []ValueType
	Result *ValueType
}

// Equal reports whether two signatures describe the same shape. Used by
// import resolution to reject a host-provided token whose declared
// signature doesn't match what the guest module actually imports.
func (s Signature) Equal(o Signature) bool {
	if len(s.Params) != len(o.Params) {
		return false
	}
	for i := range s.Params {
		if s.Params[i] != o.Params[i] {
			return false
		}
	}
	if (s.Result == nil) != (o.Result == nil) {
		return false
	}
	return s.Result == nil || *s.Result == *o.Result
}
