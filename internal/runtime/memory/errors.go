package memory

import (
	"errors"
	"fmt"

	"github.com/CosmWasm/actorvm/types"
)

var (
	// ErrInvalidMemoryAccess is returned when trying to access invalid memory regions
	ErrInvalidMemoryAccess = fmt.Errorf("invalid memory access: %w", types.ErrMemoryOverflow)
	// ErrMemoryReadFailed is returned when memory read operation fails
	ErrMemoryReadFailed = errors.New("memory read failed")
	// ErrMemoryWriteFailed is returned when memory write operation fails
	ErrMemoryWriteFailed = errors.New("memory write failed")
)
