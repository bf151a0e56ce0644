package types

import (
	"encoding/json"

	"github.com/CosmWasm/actorvm/internal/runtime/constants"
)

// Config defines the parameters of dispatch processing.
// All fields take part in consensus: two nodes must use the same Config to
// produce the same journals.
type Config struct {
	Block     BlockInfo    `json:"block"`
	Limits    Limits       `json:"limits"`
	PageCosts PageCosts    `json:"page_costs"`
	Fees      MessageFees  `json:"fees"`
	Syscalls  SyscallCosts `json:"syscalls"`
}

// BlockInfo describes the block the dispatch is processed in.
type BlockInfo struct {
	Height    uint64 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
}

type Limits struct {
	// OutgoingLimit caps the number of outgoing message handles per message.
	OutgoingLimit uint32 `json:"outgoing_limit"`
	// MaxPayloadSize caps the payload of any outgoing message or reply.
	MaxPayloadSize Size `json:"max_payload_size"`
	// MaxPages caps program memory, in pages.
	MaxPages uint32 `json:"max_pages"`
	// MaxWaitDuration is the default and maximum number of blocks a dispatch may wait.
	MaxWaitDuration uint32 `json:"max_wait_duration"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			OutgoingLimit:   constants.OutgoingLimit,
			MaxPayloadSize:  NewSizeMebi(constants.MaxPayloadSizeMiB),
			MaxPages:        constants.MaxPages,
			MaxWaitDuration: constants.MaxWaitDuration,
		},
		PageCosts: PageCosts{
			Read:           constants.GasCostPageRead,
			Write:          constants.GasCostPageWrite,
			WriteAfterRead: constants.GasCostPageWriteAfterRead,
			LoadData:       constants.GasCostPageLoadData,
		},
		Fees: MessageFees{
			Sending: constants.GasFeeSending,
			Waiting: constants.GasFeeWaiting,
			Waking:  constants.GasFeeWaking,
		},
		Syscalls: SyscallCosts{
			Base:    constants.GasCostSyscall,
			PerByte: constants.GasPerByte,
		},
	}
}

type Size struct{ uint32 }

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.uint32)
}

func (s *Size) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.uint32)
}

// Bytes returns the size in bytes.
func (s Size) Bytes() uint32 { return s.uint32 }

func NewSize(v uint32) Size {
	return Size{v}
}

func NewSizeKibi(v uint32) Size {
	return Size{v * 1024}
}

func NewSizeMebi(v uint32) Size {
	return Size{v * 1024 * 1024}
}
