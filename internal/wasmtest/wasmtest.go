// Package wasmtest hand-assembles minimal WebAssembly modules for tests
// across vm, process, and extrinsics: this repo has no wasm toolchain
// dependency of its own, so the handful of fixture modules its tests need
// are built byte-by-byte from the MVP binary format instead.
package wasmtest

// WebAssembly MVP value type encodings.
const (
	I32 = 0x7F
	I64 = 0x7E
)

const (
	opUnreachable = 0x00
	opCall        = 0x10
	opI32Const    = 0x41
	opI64Const    = 0x42
	opEnd         = 0x0B
)

var magic = []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}

// leb encodes v as unsigned LEB128, the encoding used for counts, sizes and
// indices.
func leb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func bytesVec(b []byte) []byte {
	return append(leb(uint32(len(b))), b...)
}

func name(s string) []byte { return bytesVec([]byte(s)) }

func vec(items [][]byte) []byte {
	out := leb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	out := append([]byte{id}, leb(uint32(len(content)))...)
	return append(out, content...)
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, bytesVec(params)...)
	return append(out, bytesVec(results)...)
}

func importFunc(module, field string, typeIdx uint32) []byte {
	out := append(name(module), name(field)...)
	out = append(out, 0x00) // import kind: func
	return append(out, leb(typeIdx)...)
}

func exportFunc(nm string, funcIdx uint32) []byte {
	out := append(name(nm), 0x00) // export kind: func
	return append(out, leb(funcIdx)...)
}

// sleb encodes v as signed LEB128, the encoding of i32.const and i64.const
// immediates.
func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func i32Const(v int32) []byte { return append([]byte{opI32Const}, sleb(int64(v))...) }
func i64Const(v int64) []byte { return append([]byte{opI64Const}, sleb(v)...) }
func call(funcIdx uint32) []byte { return append([]byte{opCall}, leb(funcIdx)...) }

func activeData(offset uint32, data []byte) []byte {
	out := []byte{0x00} // flag: active, memory index 0
	out = append(out, i32Const(int32(offset))...)
	out = append(out, opEnd)
	return append(out, bytesVec(data)...)
}

func code(body []byte) []byte {
	full := append([]byte{0x00}, body...) // 0 local-variable declarations
	return bytesVec(full)
}

// assemble concatenates a magic header with zero or more already-built
// sections, in the order they must appear in a valid module.
func assemble(sections ...[]byte) []byte {
	out := append([]byte(nil), magic...)
	for _, s := range sections {
		out = append(out, s...)
	}
	return out
}

// Smallest returns `(func (export "_start") (result i32) i32.const 5)`:
// the simplest module that runs to completion with a value (spec's S1).
func Smallest() []byte {
	typeSec := section(0x01, vec([][]byte{funcType(nil, []byte{I32})}))
	funcSec := section(0x03, vec([][]byte{leb(0)}))
	exportSec := section(0x07, vec([][]byte{exportFunc("_start", 0)}))
	codeSec := section(0x0A, vec([][]byte{code(append(i32Const(5), opEnd))}))
	return assemble(typeSec, funcSec, exportSec, codeSec)
}

// Trap returns a module whose _start immediately executes `unreachable`
// (spec's S2: trap propagates as ProcessFinished).
func Trap() []byte {
	typeSec := section(0x01, vec([][]byte{funcType(nil, nil)}))
	funcSec := section(0x03, vec([][]byte{leb(0)}))
	exportSec := section(0x07, vec([][]byte{exportFunc("_start", 0)}))
	codeSec := section(0x0A, vec([][]byte{code([]byte{opUnreachable, opEnd})}))
	return assemble(typeSec, funcSec, exportSec, codeSec)
}

// ImportReturn returns a module that imports module.field (a () -> i32
// function) and whose _start calls it and returns its result verbatim
// (spec's S3: extrinsic round-trip).
func ImportReturn(module, field string) []byte {
	typ := funcType(nil, []byte{I32})
	typeSec := section(0x01, vec([][]byte{typ}))
	importSec := section(0x02, vec([][]byte{importFunc(module, field, 0)}))
	funcSec := section(0x03, vec([][]byte{leb(0)})) // _start, type 0; imported func occupies index 0
	exportSec := section(0x07, vec([][]byte{exportFunc("_start", 1)}))
	codeSec := section(0x0A, vec([][]byte{code(append(call(0), opEnd))}))
	return assemble(typeSec, importSec, funcSec, exportSec, codeSec)
}

// EmitMessageCall returns a module that imports "redshirt"."emit_message"
// and whose _start calls it with a zeroed 32-byte interface at offset 0,
// payload at offset 32, the given flags, and message_id_write_addr at
// msgIDOutOffset, returning the call's i32 result.
func EmitMessageCall(payload []byte, needsAnswer, allowDelay bool, msgIDOutOffset uint32) []byte {
	importTyp := funcType([]byte{I32, I32, I32, I64, I32}, []byte{I32})
	startTyp := funcType(nil, []byte{I32})
	typeSec := section(0x01, vec([][]byte{importTyp, startTyp}))
	importSec := section(0x02, vec([][]byte{importFunc("redshirt", "emit_message", 0)}))
	funcSec := section(0x03, vec([][]byte{leb(1)})) // _start has its own () -> i32 type, distinct from the 5-arg import
	memSec := section(0x05, vec([][]byte{{0x00, 0x01}})) // 1 page, no max
	exportSec := section(0x07, vec([][]byte{exportFunc("_start", 1)}))

	var flags int64
	if needsAnswer {
		flags |= 1
	}
	if allowDelay {
		flags |= 2
	}

	body := i32Const(0)                          // iface ptr
	body = append(body, i32Const(32)...)          // payload ptr
	body = append(body, i32Const(int32(len(payload)))...)
	body = append(body, i64Const(flags)...)
	body = append(body, i32Const(int32(msgIDOutOffset))...)
	body = append(body, call(0)...)
	body = append(body, opEnd)
	codeSec := section(0x0A, vec([][]byte{code(body)}))

	var dataSec []byte
	if len(payload) > 0 {
		dataSec = section(0x0B, vec([][]byte{activeData(32, payload)}))
	}

	if dataSec != nil {
		return assemble(typeSec, importSec, funcSec, memSec, exportSec, codeSec, dataSec)
	}
	return assemble(typeSec, importSec, funcSec, memSec, exportSec, codeSec)
}

// NextNotificationCall returns a module that imports
// "redshirt"."next_notification" and whose _start calls it with a
// 3-entry all-zero wait_entries array at offset 0, out buffer at outPtr
// with outSize bytes, and the given block flag.
func NextNotificationCall(outPtr, outSize uint32, block bool) []byte {
	importTyp := funcType([]byte{I32, I32, I32, I32, I64}, []byte{I32})
	startTyp := funcType(nil, []byte{I32})
	typeSec := section(0x01, vec([][]byte{importTyp, startTyp}))
	importSec := section(0x02, vec([][]byte{importFunc("redshirt", "next_notification", 0)}))
	funcSec := section(0x03, vec([][]byte{leb(1)})) // _start has its own () -> i32 type, distinct from the 5-arg import
	memSec := section(0x05, vec([][]byte{{0x00, 0x01}}))
	exportSec := section(0x07, vec([][]byte{exportFunc("_start", 1)}))

	var blockVal int64
	if block {
		blockVal = 1
	}

	body := i32Const(0) // notif ids ptr (3 zeroed 8-byte slots, from zero-init memory)
	body = append(body, i32Const(3)...)
	body = append(body, i32Const(int32(outPtr))...)
	body = append(body, i32Const(int32(outSize))...)
	body = append(body, i64Const(blockVal)...)
	body = append(body, call(0)...)
	body = append(body, opEnd)
	codeSec := section(0x0A, vec([][]byte{code(body)}))

	return assemble(typeSec, importSec, funcSec, memSec, exportSec, codeSec)
}
