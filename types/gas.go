// Package types provides core types used throughout the actorvm module.
package types

// Gas represents the amount of computational resources consumed during execution.
type Gas = uint64

// PageCosts prices the first accesses to a memory page during one execution.
type PageCosts struct {
	// Read is charged on the first read of a page.
	Read Gas `json:"read"`
	// Write is charged on the first write of a page that was not read before.
	Write Gas `json:"write"`
	// WriteAfterRead is charged on the first write of a page that was already read.
	WriteAfterRead Gas `json:"write_after_read"`
	// LoadData is charged when a page present in persistent state is first accessed.
	LoadData Gas `json:"load_data"`
}

// MessageFees are charged by the message syscalls on top of their base weight.
type MessageFees struct {
	Sending Gas `json:"sending"`
	Waiting Gas `json:"waiting"`
	Waking  Gas `json:"waking"`
}

// SyscallCosts are the weights a backend charges before running a syscall.
type SyscallCosts struct {
	Base    Gas `json:"base"`
	PerByte Gas `json:"per_byte"`
}

// Cost returns the weight of a syscall moving n bytes.
func (c SyscallCosts) Cost(n uint32) Gas {
	return c.Base + c.PerByte*Gas(n)
}
