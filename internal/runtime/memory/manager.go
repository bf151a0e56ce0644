package memory

import (
	"encoding/binary"
	"sync"

	"github.com/holiman/uint256"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/actorvm/types"
)

// Manager handles guest memory accesses made on behalf of the program by host
// syscalls. Every access touches the pages it spans before it happens, so a
// failing charge leaves memory untouched.
type Manager struct {
	mu     sync.RWMutex
	memory api.Memory
	touch  TouchFunc
}

// TouchFunc registers a page access. Tracker.Touch is one.
type TouchFunc func(page types.PageNumber, access types.PageAccess) (types.PageBuf, error)

// New creates a new memory manager
func New(memory api.Memory, touch TouchFunc) *Manager {
	return &Manager{
		memory: memory,
		touch:  touch,
	}
}

func (m *Manager) touchRange(offset, length uint32, access types.PageAccess) error {
	if length == 0 {
		return nil
	}
	last := types.PageOf(offset + length - 1)
	for p := types.PageOf(offset); p <= last; p++ {
		if _, err := m.touch(p, access); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) inBounds(offset, length uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(m.memory.Size())
}

// ReadBytes copies length bytes out of guest memory.
func (m *Manager) ReadBytes(offset uint32, length uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.inBounds(offset, length) {
		return nil, ErrInvalidMemoryAccess
	}
	if err := m.touchRange(offset, length, types.AccessRead); err != nil {
		return nil, err
	}

	data, ok := m.memory.Read(offset, length)
	if !ok {
		return nil, ErrMemoryReadFailed
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBytes writes a byte slice to guest memory
func (m *Manager) WriteBytes(offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.inBounds(offset, uint32(len(data))) {
		return ErrInvalidMemoryAccess
	}
	if err := m.touchRange(offset, uint32(len(data)), types.AccessWrite); err != nil {
		return err
	}

	if !m.memory.Write(offset, data) {
		return ErrMemoryWriteFailed
	}
	return nil
}

// WriteUint32 writes a little-endian uint32
func (m *Manager) WriteUint32(offset uint32, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return m.WriteBytes(offset, buf)
}

// ReadID reads a 32 byte identifier.
func (m *Manager) ReadID(offset uint32) ([types.IDLen]byte, error) {
	var id [types.IDLen]byte
	data, err := m.ReadBytes(offset, types.IDLen)
	if err != nil {
		return id, err
	}
	copy(id[:], data)
	return id, nil
}

// WriteID writes a 32 byte identifier.
func (m *Manager) WriteID(offset uint32, id [types.IDLen]byte) error {
	return m.WriteBytes(offset, id[:])
}

// ReadValue reads a little-endian u128 value.
func (m *Manager) ReadValue(offset uint32) (*uint256.Int, error) {
	data, err := m.ReadBytes(offset, 16)
	if err != nil {
		return nil, err
	}
	return valueFromLE(data), nil
}

// WriteValue writes v as a little-endian u128.
func (m *Manager) WriteValue(offset uint32, v *uint256.Int) error {
	return m.WriteBytes(offset, valueToLE(v))
}

func valueFromLE(data []byte) *uint256.Int {
	be := make([]byte, len(data))
	for i, b := range data {
		be[len(data)-1-i] = b
	}
	return new(uint256.Int).SetBytes(be)
}

func valueToLE(v *uint256.Int) []byte {
	be := v.Bytes32()
	out := make([]byte, 16)
	for i := range out {
		out[i] = be[31-i]
	}
	return out
}
