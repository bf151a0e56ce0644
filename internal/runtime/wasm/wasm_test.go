package wasm

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/actorvm/internal/runtime/processor"
	"github.com/CosmWasm/actorvm/internal/wasmtest"
	"github.com/CosmWasm/actorvm/types"
)

var (
	user      = types.ProgramID{0xAA}
	programID = types.ProgramID{0x01}
	messageID = types.MessageID{0x10}
)

const page3 = 3 * types.PageSize

func testConfig() types.Config {
	cfg := types.DefaultConfig()
	cfg.Block.Height = 10
	cfg.Limits.MaxPages = 64
	cfg.PageCosts = types.PageCosts{Read: 10, Write: 100, WriteAfterRead: 50, LoadData: 5}
	cfg.Fees = types.MessageFees{}
	cfg.Syscalls = types.SyscallCosts{Base: 1}
	return cfg
}

func newTestVM(t *testing.T) *VM {
	t.Helper()
	cfg := testConfig()
	vm, err := NewVM(context.Background(), Options{CacheSize: 4, MaxPages: cfg.Limits.MaxPages, Syscalls: cfg.Syscalls}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vm.Close(context.Background()) })
	return vm
}

func handleDispatch(gasLimit types.Gas) types.Dispatch {
	return types.Dispatch{
		Message: types.Message{
			ID:          messageID,
			Source:      user,
			Destination: programID,
			Kind:        types.MessageKindHandle,
		},
		GasLimit:     gasLimit,
		GasAllowance: 1_000_000,
	}
}

func handleOnly(body []byte, imports ...wasmtest.Import) wasmtest.Module {
	return wasmtest.Module{
		Imports:  imports,
		Funcs:    []wasmtest.Func{{Export: "handle", Body: body}},
		MemPages: 1,
	}
}

func runProgram(t *testing.T, m wasmtest.Module, d types.Dispatch, pages types.PageMap) types.Journal {
	t.Helper()
	vm := newTestVM(t)
	id, err := vm.StoreCode(m.Bytes())
	require.NoError(t, err)

	prog := types.Program{ID: programID, CodeID: id, State: types.ProgramActive, MemoryPages: 16}
	j, err := processor.New(testConfig(), vm, zerolog.Nop()).Process(context.Background(), d, prog, pages, nil)
	require.NoError(t, err)
	return j
}

func notesOf[T types.JournalNote](j types.Journal) []T {
	var out []T
	for _, n := range j {
		if v, ok := n.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func outcome(t *testing.T, j types.Journal) types.DispatchOutcome {
	t.Helper()
	md := notesOf[*types.MessageDispatched](j)
	require.Len(t, md, 1)
	return md[0].Outcome
}

func TestWriteIsPersisted(t *testing.T) {
	m := handleOnly(wasmtest.Code(wasmtest.I32Const(page3), wasmtest.I32Const(7), wasmtest.OpI32Store8))
	j := runProgram(t, m, handleDispatch(10_000), nil)

	pages := notesOf[*types.UpdatePage](j)
	require.Len(t, pages, 1)
	assert.Equal(t, types.PageNumber(3), pages[0].Page)
	assert.Equal(t, byte(7), pages[0].Data[0])
	assert.Equal(t, types.Gas(100), notesOf[*types.GasBurned](j)[0].Amount)
	assert.Equal(t, types.OutcomeSuccess, outcome(t, j).Kind)
}

func TestPersistentPageIsLoaded(t *testing.T) {
	stored := types.NewPageBuf()
	stored[0] = 5
	m := handleOnly(wasmtest.Code(
		wasmtest.I32Const(page3),
		wasmtest.I32Const(page3), wasmtest.OpI32Load8U, wasmtest.I32Const(1), wasmtest.OpI32Add,
		wasmtest.OpI32Store8,
	))
	j := runProgram(t, m, handleDispatch(10_000), types.PageMap{3: stored})

	pages := notesOf[*types.UpdatePage](j)
	require.Len(t, pages, 1)
	assert.Equal(t, byte(6), pages[0].Data[0])
	// read 10 + load 5 + write after read 50
	assert.Equal(t, types.Gas(65), notesOf[*types.GasBurned](j)[0].Amount)
}

func TestUnchangedPersistentPageIsNotUpdated(t *testing.T) {
	stored := types.NewPageBuf()
	stored[1] = 1
	m := handleOnly(wasmtest.Code(wasmtest.I32Const(page3), wasmtest.OpI32Load8U, wasmtest.OpDrop))
	j := runProgram(t, m, handleDispatch(10_000), types.PageMap{3: stored})
	assert.Empty(t, notesOf[*types.UpdatePage](j))
	assert.Equal(t, types.Gas(15), notesOf[*types.GasBurned](j)[0].Amount)
}

func TestPanicSyscall(t *testing.T) {
	m := handleOnly(wasmtest.Code(wasmtest.I32Const(0), wasmtest.I32Const(4), wasmtest.Call(0)),
		wasmtest.Import{Name: "gr_panic", Params: []byte{wasmtest.I32, wasmtest.I32}})
	m.Data = []wasmtest.Data{{Offset: 0, Bytes: []byte("boom")}}

	j := runProgram(t, m, handleDispatch(10_000), nil)
	out := outcome(t, j)
	assert.Equal(t, types.OutcomeTrap, out.Kind)
	assert.Equal(t, types.SignalUserspacePanic, out.Code)
	assert.Equal(t, "boom", out.Reason)
	// syscall base 1 + first read of page 0
	assert.Equal(t, types.Gas(11), notesOf[*types.GasBurned](j)[0].Amount)
}

func TestTraps(t *testing.T) {
	specs := map[string]struct {
		module wasmtest.Module
		exp    types.SignalCode
	}{
		"unreachable": {
			module: handleOnly(wasmtest.OpUnreachable),
			exp:    types.SignalUnreachableInstruction,
		},
		"out of bounds": {
			module: handleOnly(wasmtest.Code(wasmtest.I32Const(0x20000), wasmtest.OpI32Load8U, wasmtest.OpDrop)),
			exp:    types.SignalMemoryOverflow,
		},
		"recursion": {
			// function 0 calls itself
			module: handleOnly(wasmtest.Call(0)),
			exp:    types.SignalStackLimitExceeded,
		},
		"gas": {
			module: handleOnly(wasmtest.Code(wasmtest.I64Const(5_000), wasmtest.Call(0)), wasmtest.Import{Name: "gas", Params: []byte{wasmtest.I64}}),
			exp:    types.SignalRanOutOfGas,
		},
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			j := runProgram(t, spec.module, handleDispatch(1_000), nil)
			assert.Equal(t, spec.exp, outcome(t, j).Code)
		})
	}
}

func TestReplySyscall(t *testing.T) {
	m := handleOnly(wasmtest.Code(
		wasmtest.I32Const(0), wasmtest.I32Const(4), wasmtest.I32Const(16), wasmtest.I64Const(0), wasmtest.I32Const(64), wasmtest.Call(0), wasmtest.OpDrop,
	), wasmtest.Import{Name: "gr_reply", Params: []byte{wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I64, wasmtest.I32}, Results: []byte{wasmtest.I32}})
	m.Data = []wasmtest.Data{{Offset: 0, Bytes: []byte("pong")}}

	j := runProgram(t, m, handleDispatch(10_000), nil)
	replies := notesOf[*types.ReplySent](j)
	require.Len(t, replies, 1)
	msg := replies[0].Dispatch.Message
	assert.Equal(t, []byte("pong"), msg.Payload)
	assert.Equal(t, types.ReplySuccess, msg.Reply.Code)
	assert.Equal(t, user, msg.Destination)

	// the reply id was written back at offset 64
	pages := notesOf[*types.UpdatePage](j)
	require.Len(t, pages, 1)
	assert.Equal(t, msg.ID[:], []byte(pages[0].Data[64:96]))
}

func TestSendSyscall(t *testing.T) {
	dest := bytes.Repeat([]byte{0x02}, types.IDLen)
	m := handleOnly(wasmtest.Code(
		wasmtest.I32Const(0), wasmtest.I32Const(32), wasmtest.I32Const(2), wasmtest.I32Const(48), wasmtest.I64Const(100), wasmtest.I32Const(128), wasmtest.Call(0), wasmtest.OpDrop,
	), wasmtest.Import{Name: "gr_send", Params: []byte{wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I32, wasmtest.I64, wasmtest.I32}, Results: []byte{wasmtest.I32}})
	m.Data = []wasmtest.Data{{Offset: 0, Bytes: dest}, {Offset: 32, Bytes: []byte("hi")}}

	j := runProgram(t, m, handleDispatch(10_000), nil)
	sends := notesOf[*types.SendMessage](j)
	require.Len(t, sends, 1)
	d := sends[0].Dispatch
	assert.Equal(t, types.ProgramID(dest), d.Message.Destination)
	assert.Equal(t, []byte("hi"), d.Message.Payload)
	assert.Equal(t, types.Gas(100), d.GasLimit)
	assert.Equal(t, types.OutgoingMessageID(messageID, types.ProgramID(dest), 0), d.Message.ID)
}

func TestErrorCodeIsReturned(t *testing.T) {
	// store8(256, gr_send_commit(7, 0, 128))
	m := handleOnly(wasmtest.Code(
		wasmtest.I32Const(256),
		wasmtest.I32Const(7), wasmtest.I64Const(0), wasmtest.I32Const(128), wasmtest.Call(0),
		wasmtest.OpI32Store8,
	), wasmtest.Import{Name: "gr_send_commit", Params: []byte{wasmtest.I32, wasmtest.I64, wasmtest.I32}, Results: []byte{wasmtest.I32}})

	j := runProgram(t, m, handleDispatch(10_000), nil)
	pages := notesOf[*types.UpdatePage](j)
	require.Len(t, pages, 1)
	assert.Equal(t, byte(types.CodeOutOfBounds), pages[0].Data[256])
	assert.Equal(t, types.OutcomeSuccess, outcome(t, j).Kind)
}

func TestWaitSyscall(t *testing.T) {
	m := handleOnly(wasmtest.Code(wasmtest.Call(0), wasmtest.OpUnreachable), wasmtest.Import{Name: "gr_wait"})
	j := runProgram(t, m, handleDispatch(10_000), nil)

	waits := notesOf[*types.WaitDispatch](j)
	require.Len(t, waits, 1)
	assert.Equal(t, uint64(10)+uint64(testConfig().Limits.MaxWaitDuration), waits[0].Expiry)
	assert.Empty(t, notesOf[*types.MessageDispatched](j))
}

func TestMissingEntryPointSucceeds(t *testing.T) {
	m := wasmtest.Module{Funcs: []wasmtest.Func{{Export: "init"}}, MemPages: 1}
	j := runProgram(t, m, handleDispatch(10_000), nil)
	assert.Equal(t, types.OutcomeSuccess, outcome(t, j).Kind)
	assert.Equal(t, types.Gas(0), notesOf[*types.GasBurned](j)[0].Amount)
}

func TestStoreCodeRejects(t *testing.T) {
	vm := newTestVM(t)
	specs := map[string][]byte{
		"garbage":        []byte("not wasm"),
		"unknown import": handleOnly(nil, wasmtest.Import{Name: "nope"}).Bytes(),
		"no entry point": wasmtest.Module{Funcs: []wasmtest.Func{{Export: "main"}}}.Bytes(),
		"entry params":   wasmtest.Module{Funcs: []wasmtest.Func{{Export: "handle", Params: []byte{wasmtest.I32}}}}.Bytes(),
	}
	for name, code := range specs {
		t.Run(name, func(t *testing.T) {
			_, err := vm.StoreCode(code)
			require.ErrorIs(t, err, ErrInvalidCode)
		})
	}
}

func TestCodeManagement(t *testing.T) {
	vm := newTestVM(t)
	code := handleOnly(nil).Bytes()
	id, err := vm.StoreCode(code)
	require.NoError(t, err)
	assert.Equal(t, types.NewCodeID(code), id)

	got, err := vm.GetCode(id)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	require.NoError(t, vm.Pin(id))
	require.Error(t, vm.RemoveCode(id))
	assert.Equal(t, uint64(1), vm.Metrics().ElementsPinnedMemoryCache)

	vm.Unpin(id)
	require.NoError(t, vm.RemoveCode(id))
	_, err = vm.GetCode(id)
	require.Error(t, err)
}

func TestWriteBeforeWaitIsPersisted(t *testing.T) {
	m := handleOnly(wasmtest.Code(
		wasmtest.I32Const(page3), wasmtest.I32Const(7), wasmtest.OpI32Store8,
		wasmtest.Call(0), wasmtest.OpUnreachable,
	), wasmtest.Import{Name: "gr_wait"})
	j := runProgram(t, m, handleDispatch(10_000), nil)

	assert.Equal(t, []types.NoteKind{
		types.NoteUpdatePage,
		types.NoteGasBurned,
		types.NoteWaitDispatch,
	}, j.Kinds())
	page := notesOf[*types.UpdatePage](j)[0]
	assert.Equal(t, types.PageNumber(3), page.Page)
	assert.Equal(t, byte(7), page.Data[0])
	wait := notesOf[*types.WaitDispatch](j)[0]
	require.NotNil(t, wait.Dispatch.Context)
}

func TestDataSegmentClearedByInitStaysCleared(t *testing.T) {
	m := wasmtest.Module{
		Funcs: []wasmtest.Func{
			{Export: "init", Body: wasmtest.Code(wasmtest.I32Const(0), wasmtest.I32Const(0), wasmtest.OpI32Store8)},
			{Export: "handle", Body: wasmtest.Code(
				wasmtest.I32Const(0), wasmtest.OpI32Load8U,
				wasmtest.OpIf, wasmtest.OpUnreachable, wasmtest.OpEnd,
			)},
		},
		Data:     []wasmtest.Data{{Offset: 0, Bytes: []byte("X")}},
		MemPages: 1,
	}
	vm := newTestVM(t)
	id, err := vm.StoreCode(m.Bytes())
	require.NoError(t, err)
	proc := processor.New(testConfig(), vm, zerolog.Nop())
	prog := types.Program{ID: programID, CodeID: id, State: types.ProgramUninitialized, MemoryPages: 16}

	init := handleDispatch(10_000)
	init.Message.Kind = types.MessageKindInit
	j, err := proc.Process(context.Background(), init, prog, nil, nil)
	require.NoError(t, err)
	require.Equal(t, types.OutcomeInitSuccess, outcome(t, j).Kind)

	updates := notesOf[*types.UpdatePage](j)
	require.Len(t, updates, 1)
	assert.Equal(t, types.PageNumber(0), updates[0].Page)
	assert.True(t, bytes.Equal(types.NewPageBuf(), updates[0].Data))

	prog.State = types.ProgramActive
	j, err = proc.Process(context.Background(), handleDispatch(10_000), prog, types.PageMap{0: updates[0].Data}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, outcome(t, j).Kind)
}

func TestReadOfFreshPageIsNotCharged(t *testing.T) {
	m := handleOnly(wasmtest.Code(wasmtest.I32Const(page3), wasmtest.OpI32Load8U, wasmtest.OpDrop))
	j := runProgram(t, m, handleDispatch(10_000), nil)
	assert.Empty(t, notesOf[*types.UpdatePage](j))
	assert.Equal(t, types.Gas(0), notesOf[*types.GasBurned](j)[0].Amount)
}
