// Package vm is the per-process WebAssembly state machine described in
// spec.md §4.1: instantiate a module, start/resume threads, inspect and
// mutate guest linear memory, and report every trap as a typed outcome
// instead of letting it escape as a Go panic.
//
// Resumable execution (pause mid-function, resume later with an injected
// value) needs no bespoke coroutine machinery: each thread runs its
// exported function on its own goroutine, and the Go closure wired in as
// the host side of every imported function (via wazero's raw
// api.GoModuleFunc, the same low-level hook wapc-go and wazero's own WASI
// shim use to avoid reflection) blocks on a channel until the caller
// supplies a resume value. That is exactly what a goroutine is for.
package vm

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// VM wraps one compiled, instantiated WebAssembly module and the set of
// threads currently executing inside it.
type VM struct {
	ctx      context.Context
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module

	mu       sync.Mutex
	poisoned bool
	threads  []*Thread // positional index is the public Thread handle index; finished slots are nilled, never compacted
	funcs    map[uint32]api.Function
}

type threadCtxKey struct{}

// New parses moduleBytes, resolves its imports against resolver, and
// enqueues the main thread's call to _start with no arguments. It does not
// start executing anything — the first call to Thread(0).Run(nil) does.
//
// WebAssembly's binary format already forbids a module from declaring more
// than one memory, so there is no separate "too many memories" check to
// perform; a module that imports a global or table our resolver cannot
// supply (we only ever resolve function imports) surfaces as
// ErrUnresolvedImport once instantiation fails, same as any other
// unsatisfiable import.
func New(ctx context.Context, moduleBytes []byte, mainUserData any, resolver ImportResolver) (vm *VM, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, moduleBytes)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrInvalidWasm, err)
	}

	v := &VM{
		ctx:      ctx,
		runtime:  rt,
		compiled: compiled,
		funcs:    make(map[uint32]api.Function),
	}

	hostBuilders := make(map[string]wazero.HostModuleBuilder)
	for _, imp := range compiled.ImportedFunctions() {
		module, field, ok := imp.Import()
		if !ok {
			continue
		}
		sig, sigErr := signatureOf(imp)
		if sigErr != nil {
			_ = v.Close()
			return nil, sigErr
		}
		token, ok := resolver(module, field, sig)
		if !ok {
			_ = v.Close()
			return nil, &ImportError{Module: module, Field: field, Err: ErrUnresolvedImport}
		}

		b, ok := hostBuilders[module]
		if !ok {
			b = rt.NewHostModuleBuilder(module)
		}
		hostBuilders[module] = b.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(v.importBridge(token, sig)), sig.Params, resultSlice(sig)).
			Export(field)
	}
	for _, b := range hostBuilders {
		if _, err := b.Instantiate(ctx); err != nil {
			_ = v.Close()
			return nil, fmt.Errorf("vm: instantiating host module: %w", err)
		}
	}

	instance, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnresolvedImport, err)
	}
	v.instance = instance

	if err := v.indexExportedFunctions(); err != nil {
		_ = v.Close()
		return nil, err
	}

	start, ok := v.funcs[startFuncIndex]
	if !ok || start == nil || len(start.Definition().ParamTypes()) != 0 {
		_ = v.Close()
		return nil, ErrBadStartFunction
	}

	mainThread := newThread(v, 0, startFuncIndex, nil, mainUserData)
	v.threads = []*Thread{mainThread}

	return v, nil
}

// startFuncIndex is the sentinel key under which the "_start" export is
// recorded in v.funcs, distinct from any real wazero-assigned function
// index (which start at 0 too, hence the out-of-band sentinel rather than
// reusing whatever index "_start" happens to occupy).
const startFuncIndex = ^uint32(0)

// indexExportedFunctions assigns every exported function a stable,
// deterministic index — the "function table index" addressed by
// StartThreadByID — by sorting export names and numbering them in order.
// wazero's public CompiledModule surface does not expose the raw
// module-index-space of non-exported functions, so only exports are
// addressable.
func (vm *VM) indexExportedFunctions() error {
	names := make([]string, 0, 8)
	for name, kind := range vm.compiled.AllExports() {
		if kind == api.ExternTypeFunc {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for i, name := range names {
		f := vm.instance.ExportedFunction(name)
		if f == nil {
			continue
		}
		if name == "_start" {
			vm.funcs[startFuncIndex] = f
		}
		vm.funcs[uint32(i)] = f
	}
	return nil
}

func signatureOf(def api.FunctionDefinition) (Signature, error) {
	params := def.ParamTypes()
	for _, p := range params {
		if !isSupportedType(p) {
			return Signature{}, ErrSignatureNotSupported
		}
	}
	results := def.ResultTypes()
	if len(results) > 1 {
		return Signature{}, ErrSignatureNotSupported
	}
	sig := Signature{Params: append([]ValueType(nil), params...)}
	if len(results) == 1 {
		if !isSupportedType(results[0]) {
			return Signature{}, ErrSignatureNotSupported
		}
		r := results[0]
		sig.Result = &r
	}
	return sig, nil
}

func resultSlice(sig Signature) []ValueType {
	if sig.Result == nil {
		return nil
	}
	return []ValueType{*sig.Result}
}

func isSupportedType(t ValueType) bool {
	switch t {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64:
		return true
	default:
		return false
	}
}

// IsPoisoned reports whether a trap or main-thread exit has made this VM
// permanently un-runnable. Threads remain inspectable until the process
// destroys the VM (spec §4.1 "Poisoning rule").
func (vm *VM) IsPoisoned() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.poisoned
}

func (vm *VM) poison() {
	vm.mu.Lock()
	vm.poisoned = true
	vm.mu.Unlock()
}

// NumThreads returns the number of threads still tracked (not yet removed
// after ThreadFinished).
func (vm *VM) NumThreads() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	n := 0
	for _, t := range vm.threads {
		if t != nil {
			n++
		}
	}
	return n
}

// Thread returns an O(1) borrow of the thread at the given positional
// index, or nil if that slot is empty (never allocated, or already
// finished and removed).
func (vm *VM) Thread(index int) *Thread {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if index < 0 || index >= len(vm.threads) {
		return nil
	}
	return vm.threads[index]
}

// StartThreadByID queues a new thread starting at the given function-table
// index with typed parameters, returning its positional Thread index.
func (vm *VM) StartThreadByID(funcIndex uint32, params []Value, userData any) (int, error) {
	vm.mu.Lock()
	poisoned := vm.poisoned
	f, ok := vm.funcs[funcIndex]
	vm.mu.Unlock()
	if poisoned {
		return 0, ErrPoisoned
	}
	if !ok || f == nil {
		return 0, ErrNotAFunction
	}
	def := f.Definition()
	if len(def.ParamTypes()) != len(params) {
		return 0, ErrBadArity
	}
	for i, pt := range def.ParamTypes() {
		if pt != params[i].Type {
			return 0, ErrBadArity
		}
	}

	vm.mu.Lock()
	idx := len(vm.threads)
	th := newThread(vm, idx, funcIndex, params, userData)
	vm.threads = append(vm.threads, th)
	vm.mu.Unlock()

	return idx, nil
}

// Close tears down the wazero runtime. Safe to call multiple times.
func (vm *VM) Close() error {
	var firstErr error
	if vm.instance != nil {
		if err := vm.instance.Close(vm.ctx); err != nil {
			firstErr = err
		}
		vm.instance = nil
	}
	if vm.compiled != nil {
		if err := vm.compiled.Close(vm.ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		vm.compiled = nil
	}
	if vm.runtime != nil {
		if err := vm.runtime.Close(vm.ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		vm.runtime = nil
	}
	return firstErr
}

// IntoUserDatas drains and returns the user data of every remaining
// thread, in positional-index order, skipping already-removed slots. The
// processes layer does not call it: it collects dead threads' user data
// through Thread.TakeUserData instead.
func (vm *VM) IntoUserDatas() []any {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	out := make([]any, 0, len(vm.threads))
	for _, t := range vm.threads {
		if t == nil {
			continue
		}
		out = append(out, t.TakeUserData())
	}
	return out
}
