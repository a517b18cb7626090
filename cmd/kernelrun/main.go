// Command kernelrun is a minimal smoke-test harness analogous to the
// teacher's example/ binary: it boots one Kernel, executes the smallest
// possible guest module, and prints the single ProcessFinished event that
// results. It is not a bootloader — boot, CLI ergonomics, and a real
// device/driver model are out of scope (spec §1 Non-goals).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kestrelos/wasmkernel/extrinsics"
	"github.com/kestrelos/wasmkernel/kernel"
)

// smallestModule is `(module (func $_start (result i32) i32.const 5)
// (export "_start" (func $_start)))`, hand-assembled since this harness
// has no wasm toolchain dependency of its own.
var smallestModule = []byte{
	0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00, // magic, version
	0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7F, // type section: 1 type, () -> i32
	0x03, 0x02, 0x01, 0x00, // func section: 1 func, type 0
	0x07, 0x0A, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00, // export "_start" func 0
	0x0A, 0x06, 0x01, 0x04, 0x00, 0x41, 0x05, 0x0B, // code: i32.const 5
}

func main() {
	k, err := kernel.New(&kernel.Config{Seed: 0, Workers: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernelrun: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	handle, _, err := k.Execute(ctx, smallestModule, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernelrun: execute: %v\n", err)
		os.Exit(1)
	}
	handle.Release()

	handler := &kernel.LoggingHandler{}
	for {
		ev, err := k.Core().Run(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kernelrun: run: %v\n", err)
			os.Exit(1)
		}
		if ev.Kind == extrinsics.EventProcessFinished {
			fmt.Printf("process %d finished: ok=%v err=%v\n", ev.ProcessFinished.Pid, ev.ProcessFinished.Outcome.Ok, ev.ProcessFinished.Outcome.Err)
			return
		}
		if err := handler.HandleEvent(ctx, k, ev); err != nil {
			fmt.Fprintf(os.Stderr, "kernelrun: handle event: %v\n", err)
			os.Exit(1)
		}
	}
}
