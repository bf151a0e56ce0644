package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// IDLen is the length of every identifier in bytes.
const IDLen = 32

// ProgramID identifies a program (actor) on chain.
type ProgramID [IDLen]byte

// MessageID identifies a message. Ids of messages created during execution are
// derived deterministically from the message being processed.
type MessageID [IDLen]byte

// ReservationID identifies a gas reservation.
type ReservationID [IDLen]byte

// CodeID identifies an uploaded wasm blob. It is the blake2b-256 hash of the code.
type CodeID [IDLen]byte

func (id ProgramID) String() string     { return hex.EncodeToString(id[:]) }
func (id MessageID) String() string     { return hex.EncodeToString(id[:]) }
func (id ReservationID) String() string { return hex.EncodeToString(id[:]) }
func (id CodeID) String() string        { return hex.EncodeToString(id[:]) }

// Compare orders program ids bytewise.
func (id ProgramID) Compare(other ProgramID) int { return bytes.Compare(id[:], other[:]) }

// Compare orders message ids bytewise.
func (id MessageID) Compare(other MessageID) int { return bytes.Compare(id[:], other[:]) }

func (id ProgramID) IsZero() bool { return id == ProgramID{} }
func (id MessageID) IsZero() bool { return id == MessageID{} }

// MarshalJSON encodes the id as a hex string.
func (id ProgramID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }

// UnmarshalJSON parses a hex string into the id.
func (id *ProgramID) UnmarshalJSON(input []byte) error { return unmarshalHexID(input, id[:]) }

// MarshalJSON encodes the id as a hex string.
func (id MessageID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }

// UnmarshalJSON parses a hex string into the id.
func (id *MessageID) UnmarshalJSON(input []byte) error { return unmarshalHexID(input, id[:]) }

// MarshalJSON encodes the id as a hex string.
func (id CodeID) MarshalJSON() ([]byte, error) { return json.Marshal(id.String()) }

// UnmarshalJSON parses a hex string into the id.
func (id *CodeID) UnmarshalJSON(input []byte) error { return unmarshalHexID(input, id[:]) }

func unmarshalHexID(input []byte, dst []byte) error {
	var hexString string
	if err := json.Unmarshal(input, &hexString); err != nil {
		return err
	}
	data, err := hex.DecodeString(hexString)
	if err != nil {
		return err
	}
	if len(data) != IDLen {
		return fmt.Errorf("got %d bytes for id, expected %d", len(data), IDLen)
	}
	copy(dst, data)
	return nil
}

// ParseProgramID creates a ProgramID from a hex string.
func ParseProgramID(s string) (ProgramID, error) {
	var id ProgramID
	data, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decode program id: %w", err)
	}
	if len(data) != IDLen {
		return id, fmt.Errorf("got %d bytes for program id, expected %d", len(data), IDLen)
	}
	copy(id[:], data)
	return id, nil
}

// NewCodeID hashes wasm code into its identifier.
func NewCodeID(code []byte) CodeID {
	return CodeID(blake2b.Sum256(code))
}

var (
	saltOutgoing = []byte("outgoing")
	saltReply    = []byte("reply")
	saltSignal   = []byte("signal")
	saltProgram  = []byte("program")
	saltExternal = []byte("external")
)

func hashID(salt []byte, parts ...[]byte) [IDLen]byte {
	// blake2b.New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	h.Write(salt)
	for _, p := range parts {
		h.Write(p)
	}
	var out [IDLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

// OutgoingMessageID derives the id of the message committed under handle while
// processing origin. Handles are unique per origin, so ids never collide.
func OutgoingMessageID(origin MessageID, destination ProgramID, handle uint32) MessageID {
	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], handle)
	return MessageID(hashID(saltOutgoing, origin[:], destination[:], seq[:]))
}

// ReplyMessageID derives the id of the single reply to origin.
func ReplyMessageID(origin MessageID) MessageID {
	return MessageID(hashID(saltReply, origin[:]))
}

// SignalMessageID derives the id of the signal sent when origin traps.
func SignalMessageID(origin MessageID) MessageID {
	return MessageID(hashID(saltSignal, origin[:]))
}

// NewProgramID derives the id of a program created from code with salt.
func NewProgramID(code CodeID, salt []byte) ProgramID {
	return ProgramID(hashID(saltProgram, code[:], salt))
}

// ExternalMessageID derives the id of a message sent from outside, where
// nonce is unique per source.
func ExternalMessageID(source ProgramID, nonce uint64) MessageID {
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], nonce)
	return MessageID(hashID(saltExternal, source[:], seq[:]))
}
