// Package message accumulates the messages, reply and wait/wake requests a
// program issues while it handles one message.
package message

import (
	"slices"

	"github.com/holiman/uint256"

	rterrors "github.com/CosmWasm/actorvm/internal/runtime/error"
	"github.com/CosmWasm/actorvm/types"
)

// Settings bounds what one message may produce.
type Settings struct {
	OutgoingLimit  uint32
	MaxPayloadSize uint32
}

// Committed is a message frozen by Commit or CommitReply.
type Committed struct {
	Dispatch types.Dispatch
	IsReply  bool
}

// Awakening is a request to wake a waiting message.
type Awakening struct {
	ID    types.MessageID
	Delay uint32
}

// Outcome is everything a Context collected.
type Outcome struct {
	// Committed is in commit order.
	Committed  []Committed
	Awakenings []Awakening
	Wait       *WaitRequest
	Exit       *types.ProgramID
	ReplySent  bool
	Store      types.ContextStore
}

// WaitRequest asks for the current message to be parked. A nil Duration
// means the maximum.
type WaitRequest struct {
	Duration *uint32
}

type builder struct {
	destination types.ProgramID
	value       uint256.Int
	payload     []byte
	committed   bool
}

// Context builds the outgoing messages of one execution. Handles are issued
// in increasing order starting after the handles used before a wait.
type Context struct {
	settings  Settings
	current   types.Message
	programID types.ProgramID

	outgoing   map[uint32]*builder
	nextHandle uint32

	replyPayload []byte
	replySent    bool

	committed  []Committed
	awakened   map[types.MessageID]struct{}
	awakenings []Awakening

	waitRequested bool
	waitDuration  *uint32
	exit          *types.ProgramID

	systemReservation types.Gas
	drained           bool
}

// New creates a context for processing current on programID. store restores
// state saved by an earlier execution of the same message and may be nil.
func New(settings Settings, current types.Message, programID types.ProgramID, store *types.ContextStore) *Context {
	c := &Context{
		settings:  settings,
		current:   current,
		programID: programID,
		outgoing:  make(map[uint32]*builder),
		awakened:  make(map[types.MessageID]struct{}),
	}
	if store != nil {
		c.nextHandle = store.Outgoing
		c.replySent = store.ReplySent
		c.systemReservation = store.SystemReservation
		for _, id := range store.Awakened {
			c.awakened[id] = struct{}{}
		}
	}
	return c
}

func (c *Context) checkLive() {
	if c.drained {
		rterrors.Violation("message context of %s used after drain", c.current.ID)
	}
}

// InitOutgoing opens a new outgoing message and returns its handle.
func (c *Context) InitOutgoing(destination types.ProgramID, value *uint256.Int) (uint32, error) {
	c.checkLive()
	if c.nextHandle >= c.settings.OutgoingLimit {
		return 0, types.NewMessageError(types.CodeOutOfHandles, "limit of %d outgoing messages reached", c.settings.OutgoingLimit)
	}
	if err := types.ValidateValue(value); err != nil {
		return 0, err
	}
	handle := c.nextHandle
	c.nextHandle++
	c.outgoing[handle] = &builder{destination: destination, value: *value}
	return handle, nil
}

// PushPayload appends data to the payload of an open outgoing message.
// An oversized push appends nothing.
func (c *Context) PushPayload(handle uint32, data []byte) error {
	c.checkLive()
	b, ok := c.outgoing[handle]
	if !ok {
		return types.NewMessageError(types.CodeOutOfBounds, "handle %d", handle)
	}
	if b.committed {
		return types.NewMessageError(types.CodeLateAccess, "handle %d already committed", handle)
	}
	if err := c.checkSize(len(b.payload), len(data)); err != nil {
		return err
	}
	b.payload = append(b.payload, data...)
	return nil
}

// Commit freezes an outgoing message and returns its id.
func (c *Context) Commit(handle uint32, gasLimit types.Gas) (types.MessageID, error) {
	c.checkLive()
	b, ok := c.outgoing[handle]
	if !ok {
		return types.MessageID{}, types.NewMessageError(types.CodeOutOfBounds, "handle %d", handle)
	}
	if b.committed {
		return types.MessageID{}, types.NewMessageError(types.CodeLateAccess, "handle %d already committed", handle)
	}
	b.committed = true

	msg := types.Message{
		ID:          types.OutgoingMessageID(c.current.ID, b.destination, handle),
		Source:      c.programID,
		Destination: b.destination,
		Payload:     b.payload,
		Value:       b.value,
		Kind:        types.MessageKindHandle,
	}
	b.payload = nil
	c.committed = append(c.committed, Committed{Dispatch: types.Dispatch{Message: msg, GasLimit: gasLimit}})
	return msg.ID, nil
}

// CanCommit reports the error Commit would return for handle, without
// committing. Callers use it to avoid charging for a commit that cannot happen.
func (c *Context) CanCommit(handle uint32) error {
	b, ok := c.outgoing[handle]
	if !ok {
		return types.NewMessageError(types.CodeOutOfBounds, "handle %d", handle)
	}
	if b.committed {
		return types.NewMessageError(types.CodeLateAccess, "handle %d already committed", handle)
	}
	return nil
}

// ReplyPush appends data to the reply payload.
func (c *Context) ReplyPush(data []byte) error {
	c.checkLive()
	if c.replySent {
		return types.NewMessageError(types.CodeLateAccess, "reply already committed")
	}
	if err := c.checkSize(len(c.replyPayload), len(data)); err != nil {
		return err
	}
	c.replyPayload = append(c.replyPayload, data...)
	return nil
}

// CanReply reports the error ReplyCommit would return.
func (c *Context) CanReply() error {
	if c.replySent {
		return types.NewMessageError(types.CodeDuplicateReply, "reply to %s already sent", c.current.ID)
	}
	return nil
}

// ReplyCommit sends the reply to the current message. Only one reply per
// message is allowed, including replies sent before a wait.
func (c *Context) ReplyCommit(value *uint256.Int, gasLimit types.Gas) (types.MessageID, error) {
	c.checkLive()
	if err := c.CanReply(); err != nil {
		return types.MessageID{}, err
	}
	if err := types.ValidateValue(value); err != nil {
		return types.MessageID{}, err
	}
	c.replySent = true

	msg := types.Message{
		ID:          types.ReplyMessageID(c.current.ID),
		Source:      c.programID,
		Destination: c.current.Source,
		Payload:     c.replyPayload,
		Value:       *value,
		Kind:        types.MessageKindReply,
		Reply:       &types.ReplyDetails{To: c.current.ID, Code: types.ReplySuccess},
	}
	c.replyPayload = nil
	c.committed = append(c.committed, Committed{Dispatch: types.Dispatch{Message: msg, GasLimit: gasLimit}, IsReply: true})
	return msg.ID, nil
}

// Wake asks for a waiting message to be put back in the queue.
func (c *Context) Wake(id types.MessageID, delay uint32) error {
	c.checkLive()
	if err := c.CanWake(id); err != nil {
		return err
	}
	c.awakened[id] = struct{}{}
	c.awakenings = append(c.awakenings, Awakening{ID: id, Delay: delay})
	return nil
}

// CanWake reports the error Wake would return.
func (c *Context) CanWake(id types.MessageID) error {
	if _, ok := c.awakened[id]; ok {
		return types.NewMessageError(types.CodeDuplicateWaking, "%s", id)
	}
	return nil
}

// RequestWait records that the current message must be parked.
func (c *Context) RequestWait(duration *uint32) error {
	c.checkLive()
	if err := c.CanWait(); err != nil {
		return err
	}
	c.waitRequested = true
	c.waitDuration = duration
	return nil
}

// CanWait reports the error RequestWait would return.
func (c *Context) CanWait() error {
	if c.waitRequested {
		return types.NewMessageError(types.CodeDuplicateWait, "wait already requested")
	}
	return nil
}

// RequestExit records that the program removes itself.
func (c *Context) RequestExit(valueDestination types.ProgramID) {
	c.checkLive()
	c.exit = &valueDestination
}

// ReserveSystemGas adds amount to the gas held for signal delivery.
func (c *Context) ReserveSystemGas(amount types.Gas) {
	c.checkLive()
	c.systemReservation += amount
}

// SystemReservation is the gas held for signal delivery, including earlier executions.
func (c *Context) SystemReservation() types.Gas { return c.systemReservation }

// ReplySent reports whether a reply was committed.
func (c *Context) ReplySent() bool { return c.replySent }

// WaitRequested reports whether RequestWait succeeded.
func (c *Context) WaitRequested() bool { return c.waitRequested }

// ExitRequested reports whether RequestExit was called.
func (c *Context) ExitRequested() bool { return c.exit != nil }

func (c *Context) checkSize(have, add int) error {
	if uint64(have)+uint64(add) > uint64(c.settings.MaxPayloadSize) {
		return types.NewMessageError(types.CodeSizeLimitExceeded, "payload of %d bytes exceeds %d", have+add, c.settings.MaxPayloadSize)
	}
	return nil
}

// Drain ends the context and returns what it collected. Uncommitted messages
// are dropped.
func (c *Context) Drain() Outcome {
	c.checkLive()
	c.drained = true

	store := types.ContextStore{
		Outgoing:          c.nextHandle,
		ReplySent:         c.replySent,
		SystemReservation: c.systemReservation,
	}
	for id := range c.awakened {
		store.Awakened = append(store.Awakened, id)
	}
	slices.SortFunc(store.Awakened, func(a, b types.MessageID) int { return a.Compare(b) })

	out := Outcome{
		Committed:  c.committed,
		Awakenings: c.awakenings,
		Exit:       c.exit,
		ReplySent:  c.replySent,
		Store:      store,
	}
	if c.waitRequested {
		out.Wait = &WaitRequest{Duration: c.waitDuration}
	}
	return out
}
