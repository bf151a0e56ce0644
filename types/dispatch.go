package types

// Dispatch is a message together with its execution parameters.
type Dispatch struct {
	Message Message `json:"message" msgpack:"message"`
	// GasLimit is the gas the message carries. It bounds the counter of one execution.
	GasLimit Gas `json:"gas_limit" msgpack:"gas_limit"`
	// GasAllowance is the block-wide budget left when the dispatch is started.
	GasAllowance Gas `json:"gas_allowance" msgpack:"gas_allowance"`
	// System dispatches are produced by the runtime itself and may run with no gas.
	System bool `json:"system,omitempty" msgpack:"system"`
	// Context is set when the dispatch is re-entered after a wait.
	Context *ContextStore `json:"context,omitempty" msgpack:"context"`
}

func (d Dispatch) ID() MessageID         { return d.Message.ID }
func (d Dispatch) Kind() MessageKind     { return d.Message.Kind }
func (d Dispatch) EntryPoint() EntryPoint { return d.Message.Kind.EntryPoint() }

// ContextStore is the part of a message context that survives a wait.
type ContextStore struct {
	// Outgoing is the number of handles already used by earlier executions.
	Outgoing uint32 `json:"outgoing" msgpack:"outgoing"`
	// ReplySent is set once a reply to the message was committed.
	ReplySent bool `json:"reply_sent" msgpack:"reply_sent"`
	// Awakened lists messages already woken by earlier executions.
	Awakened []MessageID `json:"awakened,omitempty" msgpack:"awakened"`
	// SystemReservation is gas held back for delivering a signal.
	SystemReservation Gas `json:"system_reservation" msgpack:"system_reservation"`
}

// Clone returns a deep copy so the stored context is never shared.
func (c *ContextStore) Clone() *ContextStore {
	if c == nil {
		return nil
	}
	out := *c
	out.Awakened = append([]MessageID(nil), c.Awakened...)
	return &out
}
