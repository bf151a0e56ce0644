// Package storage persists the effects of processed dispatches in a
// cometbft-db database: programs, memory pages, the dispatch queue, the
// waitlist, balances and the recorded outcomes.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shamaton/msgpack/v2"

	"github.com/CosmWasm/actorvm/types"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the available funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrUnknownProgram is returned for operations on a program that was never stored.
	ErrUnknownProgram = errors.New("unknown program")
)

// Store implements types.JournalHandler on top of a key-value database.
// Journals are applied atomically through a single batch.
type Store struct {
	mu     sync.RWMutex
	db     dbm.DB
	logger zerolog.Logger
}

// New creates a store over db.
func New(db dbm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "storage").Logger(),
	}
}

// update runs fn inside a batch and commits it if fn succeeds.
func (s *Store) update(fn func(tx *txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTxn(s.db)
	defer tx.discard()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) view(fn func(tx *txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := newTxn(s.db)
	defer tx.discard()
	return fn(tx)
}

// Apply writes every note of j. Either all notes take effect or none does.
func (s *Store) Apply(j types.Journal) error {
	err := s.update(func(tx *txn) error {
		return j.Apply(&applier{tx: tx, logger: s.logger})
	})
	if err != nil {
		return fmt.Errorf("apply journal: %w", err)
	}
	s.logger.Debug().Int("notes", len(j)).Msg("journal applied")
	return nil
}

// SetProgram stores p, replacing any previous record.
func (s *Store) SetProgram(p types.Program) error {
	return s.update(func(tx *txn) error {
		return tx.setValue(programKey(p.ID), p)
	})
}

// Program returns the stored program with the given id.
func (s *Store) Program(id types.ProgramID) (types.Program, bool, error) {
	var p types.Program
	var found bool
	err := s.view(func(tx *txn) (err error) {
		found, err = tx.getValue(programKey(id), &p)
		return err
	})
	return p, found, err
}

// Snapshot returns the persisted memory pages of a program.
func (s *Store) Snapshot(id types.ProgramID) (types.PageMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := pagePrefix(id)
	it, err := s.db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	pages := make(types.PageMap)
	for ; it.Valid(); it.Next() {
		key := it.Key()
		page := types.PageNumber(binary.BigEndian.Uint32(key[len(prefix):]))
		pages[page] = append(types.PageBuf(nil), it.Value()...)
	}
	return pages, it.Error()
}

// SetBalance sets the free balance of an account.
func (s *Store) SetBalance(id types.ProgramID, v *uint256.Int) error {
	return s.update(func(tx *txn) error {
		return setAmount(tx, balanceKey(id), v)
	})
}

// Balance returns the free balance of an account.
func (s *Store) Balance(id types.ProgramID) (*uint256.Int, error) {
	var v *uint256.Int
	err := s.view(func(tx *txn) (err error) {
		v, err = getAmount(tx, balanceKey(id))
		return err
	})
	return v, err
}

// Locked returns the value an account has attached to messages still in flight.
func (s *Store) Locked(id types.ProgramID) (*uint256.Int, error) {
	var v *uint256.Int
	err := s.view(func(tx *txn) (err error) {
		v, err = getAmount(tx, lockedKey(id))
		return err
	})
	return v, err
}

// Enqueue appends d to the dispatch queue. The value of the message is
// locked from the balance of its source.
func (s *Store) Enqueue(d types.Dispatch) error {
	return s.update(func(tx *txn) error {
		if err := lockValue(tx, d.Message.Source, &d.Message.Value); err != nil {
			return err
		}
		return pushBack(tx, d)
	})
}

// Requeue puts d at the front of the queue. Its value stays locked.
func (s *Store) Requeue(d types.Dispatch) error {
	return s.update(func(tx *txn) error {
		return pushFront(tx, d)
	})
}

// Next removes and returns the dispatch at the front of the queue.
func (s *Store) Next() (types.Dispatch, bool, error) {
	var d types.Dispatch
	var found bool
	err := s.update(func(tx *txn) error {
		prefix := []byte{prefixQueue}
		it, err := s.db.Iterator(prefix, prefixEnd(prefix))
		if err != nil {
			return err
		}
		defer it.Close()
		if !it.Valid() {
			return it.Error()
		}
		key := append([]byte(nil), it.Key()...)
		if err := msgpack.Unmarshal(it.Value(), &d); err != nil {
			return fmt.Errorf("decode queued dispatch: %w", err)
		}
		found = true
		return tx.delete(key)
	})
	return d, found, err
}

// QueueLen returns the number of queued dispatches.
func (s *Store) QueueLen() (int, error) {
	var n int
	err := s.view(func(tx *txn) error {
		keys, err := tx.keys([]byte{prefixQueue})
		n = len(keys)
		return err
	})
	return n, err
}

// Waiting returns the waitlist entry of a message.
func (s *Store) Waiting(id types.MessageID) (types.WaitDispatch, bool, error) {
	var w types.WaitDispatch
	var found bool
	err := s.view(func(tx *txn) (err error) {
		found, err = tx.getValue(waitlistKey(id), &w)
		return err
	})
	return w, found, err
}

// Outcome returns how a message was dispatched.
func (s *Store) Outcome(id types.MessageID) (types.MessageDispatched, bool, error) {
	var md types.MessageDispatched
	var found bool
	err := s.view(func(tx *txn) (err error) {
		found, err = tx.getValue(outcomeKey(id), &md)
		return err
	})
	return md, found, err
}

// Burned returns the total gas burned by a message over all its executions.
func (s *Store) Burned(id types.MessageID) (types.Gas, error) {
	var g types.Gas
	err := s.view(func(tx *txn) (err error) {
		g, err = tx.getUint64(burnedKey(id))
		return err
	})
	return g, err
}

// Reservation returns the system reservation held for a message.
func (s *Store) Reservation(id types.MessageID) (types.Gas, error) {
	var g types.Gas
	err := s.view(func(tx *txn) (err error) {
		g, err = tx.getUint64(reservationKey(id))
		return err
	})
	return g, err
}

// Mailbox returns the messages delivered to an account that is not a program.
func (s *Store) Mailbox(id types.ProgramID) ([]types.Message, error) {
	var out []types.Message
	err := s.view(func(tx *txn) error {
		keys, err := tx.keys(mailboxPrefix(id))
		if err != nil {
			return err
		}
		for _, k := range keys {
			var m types.Message
			if _, err := tx.getValue(k, &m); err != nil {
				return err
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// Deliver puts a message addressed to an account in its mailbox and
// releases the attached value to it.
func (s *Store) Deliver(msg types.Message) error {
	return s.update(func(tx *txn) error {
		if err := transferLocked(tx, msg.Source, msg.Destination, &msg.Value); err != nil {
			return err
		}
		return tx.setValue(mailboxKey(msg.Destination, msg.ID), msg)
	})
}

// NextNonce returns a number never returned before by this store.
func (s *Store) NextNonce() (uint64, error) {
	var n uint64
	err := s.update(func(tx *txn) (err error) {
		n, err = tx.getUint64(keyNonce)
		if err != nil {
			return err
		}
		return tx.setUint64(keyNonce, n+1)
	})
	return n, err
}

// Height returns the block height the store was last advanced to.
func (s *Store) Height() (uint64, error) {
	var h uint64
	err := s.view(func(tx *txn) (err error) {
		h, err = tx.getUint64(keyHeight)
		return err
	})
	return h, err
}

// Advance moves the store to height. Delayed wakes that became due are
// queued and expired waitlist entries are removed. Every expired message
// that expects a reply gets an error reply with SignalRemovedFromWaitlist.
// The value of an expired message already belongs to the program.
func (s *Store) Advance(height uint64) (woken, expired int, err error) {
	err = s.update(func(tx *txn) error {
		if err := tx.setUint64(keyHeight, height); err != nil {
			return err
		}
		due, err := dueKeys(tx, prefixDelayed, height)
		if err != nil {
			return err
		}
		for _, k := range due {
			var d types.Dispatch
			if _, err := tx.getValue(k, &d); err != nil {
				return err
			}
			if err := pushBack(tx, d); err != nil {
				return err
			}
			if err := tx.delete(k); err != nil {
				return err
			}
			woken++
		}

		due, err = dueKeys(tx, prefixExpiry, height)
		if err != nil {
			return err
		}
		for _, k := range due {
			var id types.MessageID
			copy(id[:], k[9:])
			if err := expire(tx, id); err != nil {
				return err
			}
			if err := tx.delete(k); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err == nil && woken+expired > 0 {
		s.logger.Debug().
			Uint64("height", height).
			Int("woken", woken).
			Int("expired", expired).
			Msg("advanced waitlist")
	}
	return woken, expired, err
}

// dueKeys lists the keys under prefix whose height is at most height.
func dueKeys(tx *txn, prefix byte, height uint64) ([][]byte, error) {
	keys, err := tx.keys([]byte{prefix})
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		if heightFromKey(k) > height {
			return keys[:i], nil
		}
	}
	return keys, nil
}

func expire(tx *txn, id types.MessageID) error {
	var w types.WaitDispatch
	found, err := tx.getValue(waitlistKey(id), &w)
	if err != nil || !found {
		return err
	}
	if err := tx.delete(waitlistKey(id)); err != nil {
		return err
	}
	msg := &w.Dispatch.Message
	if msg.Kind != types.MessageKindInit && msg.Kind != types.MessageKindHandle {
		return nil
	}
	if w.Dispatch.Context != nil && w.Dispatch.Context.ReplySent {
		return nil
	}
	return pushBack(tx, types.Dispatch{
		Message: types.Message{
			ID:          types.ReplyMessageID(id),
			Source:      msg.Destination,
			Destination: msg.Source,
			Kind:        types.MessageKindReply,
			Reply: &types.ReplyDetails{
				To:   id,
				Code: types.ReplyFromSignal(types.SignalRemovedFromWaitlist),
			},
		},
		System: true,
	})
}

func pushBack(tx *txn, d types.Dispatch) error {
	tail, err := tx.getUint64(keyQueueTail)
	if err != nil {
		return err
	}
	if tail == 0 {
		tail = queueStart
	}
	if err := tx.setValue(queueKey(tail), d); err != nil {
		return err
	}
	return tx.setUint64(keyQueueTail, tail+1)
}

func pushFront(tx *txn, d types.Dispatch) error {
	head, err := tx.getUint64(keyQueueHead)
	if err != nil {
		return err
	}
	if head == 0 {
		head = queueStart
	}
	head--
	if err := tx.setValue(queueKey(head), d); err != nil {
		return err
	}
	return tx.setUint64(keyQueueHead, head)
}

func getAmount(tx *txn, key []byte) (*uint256.Int, error) {
	bz, err := tx.get(key)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).SetBytes(bz), nil
}

func setAmount(tx *txn, key []byte, v *uint256.Int) error {
	if v.IsZero() {
		return tx.delete(key)
	}
	b := v.Bytes32()
	return tx.set(key, b[:])
}

// moveAmount subtracts v from the amount at from and adds it to the amount at to.
func moveAmount(tx *txn, from, to []byte, v *uint256.Int) error {
	if v.IsZero() {
		return nil
	}
	src, err := getAmount(tx, from)
	if err != nil {
		return err
	}
	if src.Lt(v) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, src.Dec(), v.Dec())
	}
	if err := setAmount(tx, from, src.Sub(src, v)); err != nil {
		return err
	}
	dst, err := getAmount(tx, to)
	if err != nil {
		return err
	}
	return setAmount(tx, to, dst.Add(dst, v))
}

// lockValue moves v from the free balance of owner to its locked balance.
func lockValue(tx *txn, owner types.ProgramID, v *uint256.Int) error {
	return moveAmount(tx, balanceKey(owner), lockedKey(owner), v)
}

// transferLocked releases v locked by from into the free balance of to.
func transferLocked(tx *txn, from, to types.ProgramID, v *uint256.Int) error {
	return moveAmount(tx, lockedKey(from), balanceKey(to), v)
}
