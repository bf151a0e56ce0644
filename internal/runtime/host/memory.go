package host

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/CosmWasm/actorvm/types"
)

// Guest memory helpers. A failed access ends the run.

func (s *State) requireMemory() {
	if s.mem == nil {
		s.stop(types.Trap(types.TrapMemoryOverflow, "program exports no memory"))
	}
}

func readMemory(s *State, offset, length uint32) []byte {
	s.requireMemory()
	data, err := s.mem.ReadBytes(offset, length)
	if err != nil {
		s.fatal(fmt.Errorf("read %d bytes at %d: %w", length, offset, err))
	}
	return data
}

func writeMemory(s *State, offset uint32, data []byte) {
	s.requireMemory()
	if err := s.mem.WriteBytes(offset, data); err != nil {
		s.fatal(fmt.Errorf("write %d bytes at %d: %w", len(data), offset, err))
	}
}

func readProgramID(s *State, offset uint32) types.ProgramID {
	s.requireMemory()
	id, err := s.mem.ReadID(offset)
	if err != nil {
		s.fatal(fmt.Errorf("read id at %d: %w", offset, err))
	}
	return types.ProgramID(id)
}

func writeID(s *State, offset uint32, id [types.IDLen]byte) {
	s.requireMemory()
	if err := s.mem.WriteID(offset, id); err != nil {
		s.fatal(fmt.Errorf("write id at %d: %w", offset, err))
	}
}

func readMessageID(s *State, offset uint32) types.MessageID {
	return types.MessageID(readProgramID(s, offset))
}

func readValue(s *State, offset uint32) *uint256.Int {
	s.requireMemory()
	v, err := s.mem.ReadValue(offset)
	if err != nil {
		s.fatal(fmt.Errorf("read value at %d: %w", offset, err))
	}
	return v
}

func writeValue(s *State, offset uint32, v *uint256.Int) {
	s.requireMemory()
	if err := s.mem.WriteValue(offset, v); err != nil {
		s.fatal(fmt.Errorf("write value at %d: %w", offset, err))
	}
}

func writeUint32(s *State, offset, v uint32) {
	s.requireMemory()
	if err := s.mem.WriteUint32(offset, v); err != nil {
		s.fatal(fmt.Errorf("write u32 at %d: %w", offset, err))
	}
}
