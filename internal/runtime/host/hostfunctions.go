package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/actorvm/types"
)

// Syscalls returning uint32 return 0 on success or a types.MessageErrorCode.
// Ids are 32 bytes and values are 16 byte little-endian integers in guest
// memory.

func hostGas(ctx context.Context, _ api.Module, amount uint64) {
	stateFrom(ctx).chargeGas(amount)
}

func hostSize(ctx context.Context, _ api.Module) uint32 {
	s := stateFrom(ctx)
	s.charge(0)
	return uint32(len(s.ext.Message.Payload))
}

func hostRead(ctx context.Context, _ api.Module, at, length, bufPtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(length)
	payload := s.ext.Message.Payload
	if uint64(at)+uint64(length) > uint64(len(payload)) {
		return uint32(types.CodeOutOfBounds)
	}
	writeMemory(s, bufPtr, payload[at:at+length])
	return 0
}

func hostSource(ctx context.Context, _ api.Module, ptr uint32) {
	s := stateFrom(ctx)
	s.charge(types.IDLen)
	writeID(s, ptr, s.ext.Message.Source)
}

func hostMessageID(ctx context.Context, _ api.Module, ptr uint32) {
	s := stateFrom(ctx)
	s.charge(types.IDLen)
	writeID(s, ptr, s.ext.Message.ID)
}

func hostProgramID(ctx context.Context, _ api.Module, ptr uint32) {
	s := stateFrom(ctx)
	s.charge(types.IDLen)
	writeID(s, ptr, s.ext.ProgramID)
}

func hostValue(ctx context.Context, _ api.Module, ptr uint32) {
	s := stateFrom(ctx)
	s.charge(16)
	writeValue(s, ptr, &s.ext.Message.Value)
}

// hostReplyDetails writes the replied message id and the reply code. It
// returns OutOfBounds when the current message is not a reply.
func hostReplyDetails(ctx context.Context, _ api.Module, idPtr, codePtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(types.IDLen + 4)
	reply := s.ext.Message.Reply
	if reply == nil {
		return uint32(types.CodeOutOfBounds)
	}
	writeID(s, idPtr, reply.To)
	writeUint32(s, codePtr, uint32(reply.Code))
	return 0
}

// hostSignalCode writes the code of the signal being handled.
func hostSignalCode(ctx context.Context, _ api.Module, codePtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(4)
	signal := s.ext.Message.Signal
	if signal == nil {
		return uint32(types.CodeOutOfBounds)
	}
	writeUint32(s, codePtr, uint32(signal.Code))
	return 0
}

func hostBlockHeight(ctx context.Context, _ api.Module) uint64 {
	s := stateFrom(ctx)
	s.charge(0)
	return s.ext.Block.Height
}

func hostBlockTimestamp(ctx context.Context, _ api.Module) uint64 {
	s := stateFrom(ctx)
	s.charge(0)
	return s.ext.Block.Timestamp
}

func hostGasAvailable(ctx context.Context, _ api.Module) uint64 {
	s := stateFrom(ctx)
	s.charge(0)
	return s.ext.GasAvailable()
}

func hostSendInit(ctx context.Context, _ api.Module, destPtr, valuePtr, handlePtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(0)
	dest := readProgramID(s, destPtr)
	value := readValue(s, valuePtr)
	handle, err := s.ext.SendInit(dest, value)
	if err != nil {
		return s.result(err)
	}
	writeUint32(s, handlePtr, handle)
	return 0
}

func hostSendPush(ctx context.Context, _ api.Module, handle, ptr, length uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(length)
	return s.result(s.ext.SendPush(handle, readMemory(s, ptr, length)))
}

func hostSendCommit(ctx context.Context, _ api.Module, handle uint32, gasLimit uint64, idPtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(0)
	id, err := s.ext.SendCommit(handle, gasLimit)
	if err != nil {
		return s.result(err)
	}
	writeID(s, idPtr, id)
	return 0
}

// hostSend is init, push and commit in one call.
func hostSend(ctx context.Context, _ api.Module, destPtr, ptr, length, valuePtr uint32, gasLimit uint64, idPtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(length)
	dest := readProgramID(s, destPtr)
	payload := readMemory(s, ptr, length)
	value := readValue(s, valuePtr)

	handle, err := s.ext.SendInit(dest, value)
	if err != nil {
		return s.result(err)
	}
	if err := s.ext.SendPush(handle, payload); err != nil {
		return s.result(err)
	}
	id, err := s.ext.SendCommit(handle, gasLimit)
	if err != nil {
		return s.result(err)
	}
	writeID(s, idPtr, id)
	return 0
}

func hostReplyPush(ctx context.Context, _ api.Module, ptr, length uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(length)
	return s.result(s.ext.ReplyPush(readMemory(s, ptr, length)))
}

func hostReplyCommit(ctx context.Context, _ api.Module, valuePtr uint32, gasLimit uint64, idPtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(0)
	id, err := s.ext.ReplyCommit(readValue(s, valuePtr), gasLimit)
	if err != nil {
		return s.result(err)
	}
	writeID(s, idPtr, id)
	return 0
}

// hostReply is reply_push and reply_commit in one call.
func hostReply(ctx context.Context, _ api.Module, ptr, length, valuePtr uint32, gasLimit uint64, idPtr uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(length)
	payload := readMemory(s, ptr, length)
	value := readValue(s, valuePtr)
	if err := s.ext.ReplyPush(payload); err != nil {
		return s.result(err)
	}
	id, err := s.ext.ReplyCommit(value, gasLimit)
	if err != nil {
		return s.result(err)
	}
	writeID(s, idPtr, id)
	return 0
}

// hostWait parks the message for the maximum duration. It does not return.
func hostWait(ctx context.Context, _ api.Module) {
	s := stateFrom(ctx)
	s.charge(0)
	s.must(s.ext.Wait(nil))
	s.stop(types.Success())
}

// hostWaitFor parks the message for at most duration blocks. It does not return.
func hostWaitFor(ctx context.Context, _ api.Module, duration uint32) {
	s := stateFrom(ctx)
	s.charge(0)
	s.must(s.ext.Wait(&duration))
	s.stop(types.Success())
}

func hostWake(ctx context.Context, _ api.Module, idPtr, delay uint32) uint32 {
	s := stateFrom(ctx)
	s.charge(0)
	return s.result(s.ext.Wake(readMessageID(s, idPtr), delay))
}

// hostExit removes the program. It does not return.
func hostExit(ctx context.Context, _ api.Module, destPtr uint32) {
	s := stateFrom(ctx)
	s.charge(0)
	s.must(s.ext.Exit(readProgramID(s, destPtr)))
	s.stop(types.Success())
}

// hostPanic traps with the message at ptr. It does not return.
func hostPanic(ctx context.Context, _ api.Module, ptr, length uint32) {
	s := stateFrom(ctx)
	s.charge(length)
	msg := readMemory(s, ptr, length)
	s.stop(types.Trap(types.TrapPanic, string(msg)))
}

func hostSystemReserveGas(ctx context.Context, _ api.Module, amount uint64) uint32 {
	s := stateFrom(ctx)
	s.charge(0)
	return s.result(s.ext.ReserveSystemGas(amount))
}

func hostDebug(ctx context.Context, _ api.Module, ptr, length uint32) {
	s := stateFrom(ctx)
	s.charge(length)
	msg := readMemory(s, ptr, length)
	s.logger.Debug().
		Str("program_id", s.ext.ProgramID.String()).
		Str("message_id", s.ext.Message.ID.String()).
		Msg(string(msg))
}
