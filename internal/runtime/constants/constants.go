package constants

const (
	// OutgoingLimit is the default number of outgoing handles per message.
	OutgoingLimit = 1024
	// MaxPayloadSizeMiB is the default payload cap.
	MaxPayloadSizeMiB = 8
	// MaxPages is 512 wasm pages (32 MiB) expressed in 16 KiB pages.
	MaxPages = 512 * 4
	// MaxWaitDuration is in blocks.
	MaxWaitDuration = 100_000
	// BlockGasLimit is the default gas allowance of one block.
	BlockGasLimit = 250_000_000_000
	// CacheSize is the default number of unpinned compiled modules kept in memory.
	CacheSize = 100
)

// Gas costs for various operations
const (
	// Memory operations
	GasPerByte = 1

	// Lazy pages
	GasCostPageRead           = 1_000
	GasCostPageWrite          = 2_500
	GasCostPageWriteAfterRead = 1_500
	GasCostPageLoadData       = 700

	// Message operations
	GasFeeSending = 10_000
	GasFeeWaiting = 20_000
	GasFeeWaking  = 5_000

	// GasCostSyscall is the base weight of every syscall.
	GasCostSyscall = 100
)
