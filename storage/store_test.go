package storage

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/actorvm/types"
)

var (
	user    = types.ProgramID{0xAA}
	program = types.ProgramID{0x01}
	other   = types.ProgramID{0x02}
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(dbm.NewMemDB(), zerolog.Nop())
}

func dispatch(id byte, from, to types.ProgramID, kind types.MessageKind, value uint64) types.Dispatch {
	return types.Dispatch{
		Message: types.Message{
			ID:          types.MessageID{id},
			Source:      from,
			Destination: to,
			Kind:        kind,
			Value:       *uint256.NewInt(value),
		},
		GasLimit: 1_000,
	}
}

func page(b byte) types.PageBuf {
	buf := types.NewPageBuf()
	buf[0] = b
	return buf
}

func balance(t *testing.T, s *Store, id types.ProgramID) uint64 {
	t.Helper()
	v, err := s.Balance(id)
	require.NoError(t, err)
	return v.Uint64()
}

func locked(t *testing.T, s *Store, id types.ProgramID) uint64 {
	t.Helper()
	v, err := s.Locked(id)
	require.NoError(t, err)
	return v.Uint64()
}

func next(t *testing.T, s *Store) types.Dispatch {
	t.Helper()
	d, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok, "queue is empty")
	return d
}

func TestApplyInitJournal(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetProgram(types.Program{ID: program, State: types.ProgramUninitialized, MemoryPages: 4}))
	require.NoError(t, s.SetBalance(user, uint256.NewInt(100)))

	initMsg := dispatch(1, user, program, types.MessageKindInit, 10)
	require.NoError(t, s.Enqueue(initMsg))
	assert.Equal(t, uint64(90), balance(t, s, user))
	assert.Equal(t, uint64(10), locked(t, s, user))
	got := next(t, s)
	assert.Equal(t, initMsg.ID(), got.ID())

	out := dispatch(2, program, other, types.MessageKindHandle, 3)
	j := types.Journal{
		&types.SendValue{From: user, To: program, Value: *uint256.NewInt(10)},
		&types.SendMessage{Origin: initMsg.ID(), Dispatch: out},
		&types.UpdatePage{ProgramID: program, Page: 2, Data: page(9)},
		&types.GasBurned{MessageID: initMsg.ID(), Amount: 120},
		&types.MessageDispatched{MessageID: initMsg.ID(), Source: user, ProgramID: program, Outcome: types.DispatchOutcome{Kind: types.OutcomeInitSuccess}},
	}
	require.NoError(t, s.Apply(j))

	p, found, err := s.Program(program)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.ProgramActive, p.State)

	assert.Equal(t, uint64(0), locked(t, s, user))
	assert.Equal(t, uint64(7), balance(t, s, program))
	assert.Equal(t, uint64(3), locked(t, s, program))

	pages, err := s.Snapshot(program)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, byte(9), pages[2][0])

	burned, err := s.Burned(initMsg.ID())
	require.NoError(t, err)
	assert.Equal(t, types.Gas(120), burned)

	md, found, err := s.Outcome(initMsg.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, types.OutcomeInitSuccess, md.Outcome.Kind)

	assert.Equal(t, out.ID(), next(t, s).ID())
}

func TestInitFailureTerminatesProgram(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetProgram(types.Program{ID: program}))
	require.NoError(t, s.Apply(types.Journal{
		&types.MessageDispatched{
			MessageID: types.MessageID{1},
			ProgramID: program,
			Outcome:   types.DispatchOutcome{Kind: types.OutcomeInitFailure, Code: types.SignalUserspacePanic},
		},
	}))
	p, _, err := s.Program(program)
	require.NoError(t, err)
	assert.Equal(t, types.ProgramTerminated, p.State)

	err = s.Apply(types.Journal{
		&types.MessageDispatched{ProgramID: other, Outcome: types.DispatchOutcome{Kind: types.OutcomeInitSuccess}},
	})
	require.ErrorIs(t, err, ErrUnknownProgram)
}

func TestApplyIsAtomic(t *testing.T) {
	s := newStore(t)
	j := types.Journal{
		&types.UpdatePage{ProgramID: program, Page: 1, Data: page(1)},
		&types.GasBurned{MessageID: types.MessageID{1}, Amount: 10},
		&types.SendValue{From: user, To: program, Value: *uint256.NewInt(5)},
	}
	err := s.Apply(j)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Contains(t, err.Error(), "apply note 2 (SendValue)")

	pages, err := s.Snapshot(program)
	require.NoError(t, err)
	assert.Empty(t, pages)
	burned, err := s.Burned(types.MessageID{1})
	require.NoError(t, err)
	assert.Zero(t, burned)
}

func TestInvalidPageIsRejected(t *testing.T) {
	s := newStore(t)
	err := s.Apply(types.Journal{
		&types.UpdatePage{ProgramID: program, Page: 1, Data: types.PageBuf{1, 2, 3}},
	})
	require.Error(t, err)
}

func TestQueueOrder(t *testing.T) {
	s := newStore(t)
	a := dispatch(1, user, program, types.MessageKindHandle, 0)
	b := dispatch(2, user, program, types.MessageKindHandle, 0)
	c := dispatch(3, user, program, types.MessageKindHandle, 0)
	require.NoError(t, s.Enqueue(a))
	require.NoError(t, s.Enqueue(b))
	require.NoError(t, s.Requeue(c))

	n, err := s.QueueLen()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, exp := range []types.Dispatch{c, a, b} {
		assert.Equal(t, exp.ID(), next(t, s).ID())
	}
	_, ok, err := s.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnqueueNeedsBalance(t *testing.T) {
	s := newStore(t)
	err := s.Enqueue(dispatch(1, user, program, types.MessageKindHandle, 1))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	n, err := s.QueueLen()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStopProcessingRequeuesFirst(t *testing.T) {
	s := newStore(t)
	a := dispatch(1, user, program, types.MessageKindHandle, 0)
	b := dispatch(2, user, program, types.MessageKindHandle, 0)
	require.NoError(t, s.Enqueue(a))
	require.NoError(t, s.Apply(types.Journal{&types.StopProcessing{Dispatch: b, GasBurned: 7}}))
	assert.Equal(t, b.ID(), next(t, s).ID())
	assert.Equal(t, a.ID(), next(t, s).ID())
}

func TestWaitAndWake(t *testing.T) {
	s := newStore(t)
	d := dispatch(1, user, program, types.MessageKindHandle, 0)
	d.Context = &types.ContextStore{Outgoing: 2}
	require.NoError(t, s.Apply(types.Journal{&types.WaitDispatch{Dispatch: d, Expiry: 50}}))

	w, found, err := s.Waiting(d.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(50), w.Expiry)

	// only the program the message waits on can wake it
	require.NoError(t, s.Apply(types.Journal{&types.WakeMessage{ProgramID: other, AwakeningID: d.ID()}}))
	_, found, err = s.Waiting(d.ID())
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, s.Apply(types.Journal{&types.WakeMessage{ProgramID: program, AwakeningID: d.ID()}}))
	_, found, err = s.Waiting(d.ID())
	require.NoError(t, err)
	assert.False(t, found)

	got := next(t, s)
	require.NotNil(t, got.Context)
	assert.Equal(t, uint32(2), got.Context.Outgoing)

	// the expiry entry is gone too
	_, expired, err := s.Advance(100)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

func TestDelayedWake(t *testing.T) {
	s := newStore(t)
	_, _, err := s.Advance(10)
	require.NoError(t, err)

	d := dispatch(1, user, program, types.MessageKindHandle, 0)
	require.NoError(t, s.Apply(types.Journal{
		&types.WaitDispatch{Dispatch: d, Expiry: 1_000},
		&types.WakeMessage{ProgramID: program, AwakeningID: d.ID(), Delay: 5},
	}))
	n, err := s.QueueLen()
	require.NoError(t, err)
	assert.Zero(t, n)

	woken, _, err := s.Advance(14)
	require.NoError(t, err)
	assert.Zero(t, woken)

	woken, _, err = s.Advance(15)
	require.NoError(t, err)
	assert.Equal(t, 1, woken)
	assert.Equal(t, d.ID(), next(t, s).ID())

	h, err := s.Height()
	require.NoError(t, err)
	assert.Equal(t, uint64(15), h)
}

func TestWaitlistExpiry(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetBalance(user, uint256.NewInt(10)))
	d := dispatch(1, user, program, types.MessageKindHandle, 4)
	require.NoError(t, s.Enqueue(d))
	next(t, s)
	require.NoError(t, s.Apply(types.Journal{
		&types.SendValue{From: user, To: program, Value: d.Message.Value},
		&types.WaitDispatch{Dispatch: d, Expiry: 20},
	}))

	_, expired, err := s.Advance(19)
	require.NoError(t, err)
	assert.Zero(t, expired)

	_, expired, err = s.Advance(20)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	// the value moved to the program on the first run and stays there
	assert.Equal(t, uint64(6), balance(t, s, user))
	assert.Equal(t, uint64(0), locked(t, s, user))
	assert.Equal(t, uint64(4), balance(t, s, program))

	reply := next(t, s)
	assert.Equal(t, types.ReplyMessageID(d.ID()), reply.ID())
	assert.Equal(t, user, reply.Message.Destination)
	assert.Equal(t, types.MessageKindReply, reply.Kind())
	assert.Equal(t, types.ReplyFromSignal(types.SignalRemovedFromWaitlist), reply.Message.Reply.Code)
	assert.True(t, reply.System)
}

func TestExpiredReplyGetsNoReply(t *testing.T) {
	s := newStore(t)
	d := dispatch(1, user, program, types.MessageKindReply, 0)
	require.NoError(t, s.Apply(types.Journal{&types.WaitDispatch{Dispatch: d, Expiry: 5}}))
	_, expired, err := s.Advance(5)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
	n, err := s.QueueLen()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExitDispatch(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetProgram(types.Program{ID: program, State: types.ProgramActive}))
	require.NoError(t, s.SetBalance(program, uint256.NewInt(30)))
	require.NoError(t, s.Apply(types.Journal{
		&types.UpdatePage{ProgramID: program, Page: 0, Data: page(1)},
		&types.UpdatePage{ProgramID: other, Page: 0, Data: page(2)},
	}))

	require.NoError(t, s.Apply(types.Journal{
		&types.UpdatePage{ProgramID: program, Page: 3, Data: page(3)},
		&types.ExitDispatch{ProgramID: program, ValueDestination: user},
	}))

	p, _, err := s.Program(program)
	require.NoError(t, err)
	assert.Equal(t, types.ProgramExited, p.State)
	pages, err := s.Snapshot(program)
	require.NoError(t, err)
	assert.Empty(t, pages)
	pages, err = s.Snapshot(other)
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	assert.Equal(t, uint64(0), balance(t, s, program))
	assert.Equal(t, uint64(30), balance(t, s, user))

	err = s.Apply(types.Journal{&types.ExitDispatch{ProgramID: other}})
	require.ErrorIs(t, err, ErrUnknownProgram)
}

func TestSystemReservation(t *testing.T) {
	s := newStore(t)
	id := types.MessageID{1}
	require.NoError(t, s.Apply(types.Journal{
		&types.SystemReserveGas{MessageID: id, Amount: 100},
		&types.SystemReserveGas{MessageID: id, Amount: 50},
	}))
	g, err := s.Reservation(id)
	require.NoError(t, err)
	assert.Equal(t, types.Gas(150), g)

	require.NoError(t, s.Apply(types.Journal{&types.SystemUnreserveGas{MessageID: id}}))
	g, err = s.Reservation(id)
	require.NoError(t, err)
	assert.Zero(t, g)
}

func TestDeliverToMailbox(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SetBalance(program, uint256.NewInt(5)))
	d := dispatch(1, program, user, types.MessageKindHandle, 5)
	d.Message.Payload = []byte("hello")
	require.NoError(t, s.Apply(types.Journal{&types.SendMessage{Dispatch: d}}))

	got := next(t, s)
	require.NoError(t, s.Deliver(got.Message))

	box, err := s.Mailbox(user)
	require.NoError(t, err)
	require.Len(t, box, 1)
	assert.Equal(t, []byte("hello"), box[0].Payload)
	assert.Equal(t, uint64(5), balance(t, s, user))
	assert.Equal(t, uint64(0), locked(t, s, program))
}

func TestNextNonce(t *testing.T) {
	s := newStore(t)
	for i := uint64(0); i < 3; i++ {
		n, err := s.NextNonce()
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}
