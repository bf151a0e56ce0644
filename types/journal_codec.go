package types

import (
	"fmt"

	"github.com/shamaton/msgpack/v2"
)

// noteEnvelope is the wire form of a JournalNote.
// Exactly one of the fields should be set.
type noteEnvelope struct {
	GasBurned          *GasBurned          `msgpack:"gas_burned"`
	SendMessage        *SendMessage        `msgpack:"send_message"`
	ReplySent          *ReplySent          `msgpack:"reply_sent"`
	WaitDispatch       *WaitDispatch       `msgpack:"wait_dispatch"`
	WakeMessage        *WakeMessage        `msgpack:"wake_message"`
	UpdatePage         *UpdatePage         `msgpack:"update_page"`
	MessageDispatched  *MessageDispatched  `msgpack:"message_dispatched"`
	SystemReserveGas   *SystemReserveGas   `msgpack:"system_reserve_gas"`
	SystemUnreserveGas *SystemUnreserveGas `msgpack:"system_unreserve_gas"`
	SendSignal         *SendSignal         `msgpack:"send_signal"`
	SendValue          *SendValue          `msgpack:"send_value"`
	ExitDispatch       *ExitDispatch       `msgpack:"exit_dispatch"`
	StopProcessing     *StopProcessing     `msgpack:"stop_processing"`
}

func wrapNote(n JournalNote) noteEnvelope {
	var e noteEnvelope
	switch n := n.(type) {
	case *GasBurned:
		e.GasBurned = n
	case *SendMessage:
		e.SendMessage = n
	case *ReplySent:
		e.ReplySent = n
	case *WaitDispatch:
		e.WaitDispatch = n
	case *WakeMessage:
		e.WakeMessage = n
	case *UpdatePage:
		e.UpdatePage = n
	case *MessageDispatched:
		e.MessageDispatched = n
	case *SystemReserveGas:
		e.SystemReserveGas = n
	case *SystemUnreserveGas:
		e.SystemUnreserveGas = n
	case *SendSignal:
		e.SendSignal = n
	case *SendValue:
		e.SendValue = n
	case *ExitDispatch:
		e.ExitDispatch = n
	case *StopProcessing:
		e.StopProcessing = n
	default:
		panic(fmt.Sprintf("unknown journal note %T", n))
	}
	return e
}

func (e noteEnvelope) unwrap() (JournalNote, error) {
	switch {
	case e.GasBurned != nil:
		return e.GasBurned, nil
	case e.SendMessage != nil:
		return e.SendMessage, nil
	case e.ReplySent != nil:
		return e.ReplySent, nil
	case e.WaitDispatch != nil:
		return e.WaitDispatch, nil
	case e.WakeMessage != nil:
		return e.WakeMessage, nil
	case e.UpdatePage != nil:
		return e.UpdatePage, nil
	case e.MessageDispatched != nil:
		return e.MessageDispatched, nil
	case e.SystemReserveGas != nil:
		return e.SystemReserveGas, nil
	case e.SystemUnreserveGas != nil:
		return e.SystemUnreserveGas, nil
	case e.SendSignal != nil:
		return e.SendSignal, nil
	case e.SendValue != nil:
		return e.SendValue, nil
	case e.ExitDispatch != nil:
		return e.ExitDispatch, nil
	case e.StopProcessing != nil:
		return e.StopProcessing, nil
	default:
		return nil, fmt.Errorf("empty journal note")
	}
}

// Encode serializes the journal with msgpack.
func (j Journal) Encode() ([]byte, error) {
	envelopes := make([]noteEnvelope, len(j))
	for i, n := range j {
		envelopes[i] = wrapNote(n)
	}
	bz, err := msgpack.Marshal(envelopes)
	if err != nil {
		return nil, fmt.Errorf("encode journal: %w", err)
	}
	return bz, nil
}

// DecodeJournal parses the output of Journal.Encode.
func DecodeJournal(data []byte) (_ Journal, err error) {
	// msgpack indexes past the end of some truncated inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode journal: malformed input: %v", r)
		}
	}()
	var envelopes []noteEnvelope
	if err := msgpack.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("decode journal: %w", err)
	}
	j := make(Journal, 0, len(envelopes))
	for i, e := range envelopes {
		n, err := e.unwrap()
		if err != nil {
			return nil, fmt.Errorf("decode journal note %d: %w", i, err)
		}
		j = append(j, n)
	}
	return j, nil
}
