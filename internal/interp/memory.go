package interp

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// Pointers are encoded in an int64: the allocation number in the upper 32
// bits and the byte offset in the lower 32. Zero is the null pointer.
// Function pointers carry funcTag and an index into the machine's function
// table.
const (
	offsetBits = 32
	offsetMask = 1<<offsetBits - 1
	funcTag    = int64(1) << 62
)

// Memory is the shared heap and stack memory of a machine. It is safe for
// concurrent use; racing accesses to the same bytes are serialized but
// unordered, as on real hardware.
type Memory struct {
	mu     sync.RWMutex
	allocs map[uint32][]byte
	next   uint32
}

func newMemory() *Memory {
	return &Memory{allocs: make(map[uint32][]byte)}
}

// Alloc reserves size zeroed bytes and returns a pointer to them.
func (m *Memory) Alloc(size int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.allocs[m.next] = make([]byte, size)
	return int64(m.next) << offsetBits
}

// Free releases the allocation ptr points into.
func (m *Memory) Free(ptr int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allocs, uint32(ptr>>offsetBits))
}

// Live returns the number of live allocations.
func (m *Memory) Live() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.allocs)
}

func (m *Memory) span(ptr, size int64) ([]byte, error) {
	if ptr == 0 {
		return nil, fmt.Errorf("null pointer dereference")
	}
	if ptr&funcTag != 0 {
		return nil, fmt.Errorf("memory access through function pointer %#x", ptr)
	}
	buf, ok := m.allocs[uint32(ptr>>offsetBits)]
	if !ok {
		return nil, fmt.Errorf("access to freed or invalid pointer %#x", ptr)
	}
	off := ptr & offsetMask
	if off+size > int64(len(buf)) {
		return nil, fmt.Errorf("access of %d bytes at offset %d out of bounds (allocation of %d bytes)",
			size, off, len(buf))
	}
	return buf[off : off+size], nil
}

// Load reads a little-endian integer of size bytes (1, 2, 4 or 8) and sign
// extends it.
func (m *Memory) Load(ptr, size int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, err := m.span(ptr, size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return int64(int8(b[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("unsupported load size %d", size)
}

// Store writes the low size bytes of v in little-endian order.
func (m *Memory) Store(ptr, size, v int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.span(ptr, size)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		return fmt.Errorf("unsupported store size %d", size)
	}
	return nil
}

// ReadInt64s reads n consecutive i64 values starting at ptr.
func (m *Memory) ReadInt64s(ptr int64, n int) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		v, err := m.Load(ptr+int64(i)*8, 8)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteInt64s writes vs as consecutive i64 values starting at ptr.
func (m *Memory) WriteInt64s(ptr int64, vs []int64) error {
	for i, v := range vs {
		if err := m.Store(ptr+int64(i)*8, 8, v); err != nil {
			return err
		}
	}
	return nil
}
