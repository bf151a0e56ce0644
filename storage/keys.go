package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/CosmWasm/actorvm/types"
)

// Key prefixes. Every record lives under exactly one of them.
const (
	prefixMeta        byte = 0x00
	prefixProgram     byte = 0x01
	prefixPage        byte = 0x02
	prefixQueue       byte = 0x03
	prefixWaitlist    byte = 0x04
	prefixExpiry      byte = 0x05
	prefixDelayed     byte = 0x06
	prefixOutcome     byte = 0x07
	prefixBurned      byte = 0x08
	prefixBalance     byte = 0x09
	prefixReservation byte = 0x0a
	prefixLocked      byte = 0x0b
	prefixMailbox     byte = 0x0c
)

var (
	keyQueueHead = []byte{prefixMeta, 'h'}
	keyQueueTail = []byte{prefixMeta, 't'}
	keyHeight    = []byte{prefixMeta, 'b'}
	keyNonce     = []byte{prefixMeta, 'n'}
)

// queueStart is the first sequence number. Dispatches pushed to the front
// take numbers below it.
const queueStart = uint64(1) << 63

func join(prefix byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	out = append(out, prefix)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func be64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }
func be32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func programKey(id types.ProgramID) []byte { return join(prefixProgram, id[:]) }
func pagePrefix(id types.ProgramID) []byte { return join(prefixPage, id[:]) }
func pageKey(id types.ProgramID, p types.PageNumber) []byte {
	return join(prefixPage, id[:], be32(uint32(p)))
}
func queueKey(seq uint64) []byte               { return join(prefixQueue, be64(seq)) }
func waitlistKey(id types.MessageID) []byte    { return join(prefixWaitlist, id[:]) }
func outcomeKey(id types.MessageID) []byte     { return join(prefixOutcome, id[:]) }
func burnedKey(id types.MessageID) []byte      { return join(prefixBurned, id[:]) }
func balanceKey(id types.ProgramID) []byte     { return join(prefixBalance, id[:]) }
func reservationKey(id types.MessageID) []byte { return join(prefixReservation, id[:]) }
func lockedKey(id types.ProgramID) []byte      { return join(prefixLocked, id[:]) }
func mailboxPrefix(id types.ProgramID) []byte  { return join(prefixMailbox, id[:]) }

func mailboxKey(to types.ProgramID, id types.MessageID) []byte {
	return join(prefixMailbox, to[:], id[:])
}

// expiryKey orders waitlist entries by the height they expire at.
func expiryKey(height uint64, id types.MessageID) []byte {
	return join(prefixExpiry, be64(height), id[:])
}

// delayedKey orders delayed wakes by the height they become due at.
func delayedKey(height uint64, id types.MessageID) []byte {
	return join(prefixDelayed, be64(height), id[:])
}

// heightFromKey reads the height of an expiry or delayed key.
func heightFromKey(key []byte) uint64 { return binary.BigEndian.Uint64(key[1:9]) }

// prefixEnd returns the end key for prefix iteration
func prefixEnd(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}

	end := make([]byte, len(prefix))
	copy(end, prefix)

	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	// If we got here, we had a prefix of all 0xff values
	return bytes.Repeat([]byte{0xff}, len(prefix))
}
