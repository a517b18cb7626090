package vm

// ReadMemory returns a copy of size bytes starting at offset in the VM's
// single linear memory. Out-of-bounds ranges are reported explicitly,
// never silently truncated (spec §4.1).
func (vm *VM) ReadMemory(offset, size uint32) ([]byte, error) {
	mem := vm.instance.Memory()
	if mem == nil {
		return nil, &OutOfBoundsError{Offset: offset, Size: size}
	}
	b, ok := mem.Read(offset, size)
	if !ok {
		return nil, &OutOfBoundsError{Offset: offset, Size: size, MemSize: mem.Size()}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// WriteMemory writes data at offset in the VM's linear memory. Writes
// issued before the next Thread.Run call are guaranteed visible to that
// thread on resume (spec §4.2 "Ordering"); no cross-thread visibility is
// promised beyond that round trip.
func (vm *VM) WriteMemory(offset uint32, data []byte) error {
	mem := vm.instance.Memory()
	if mem == nil {
		return &OutOfBoundsError{Offset: offset, Size: uint32(len(data))}
	}
	if ok := mem.Write(offset, data); !ok {
		return &OutOfBoundsError{Offset: offset, Size: uint32(len(data)), MemSize: mem.Size()}
	}
	return nil
}

// MemorySize returns the current size, in bytes, of the VM's linear
// memory, or 0 if the module declares none.
func (vm *VM) MemorySize() uint32 {
	mem := vm.instance.Memory()
	if mem == nil {
		return 0
	}
	return mem.Size()
}
