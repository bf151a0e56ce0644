package host

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module of every syscall.
const ModuleName = "env"

var syscalls = map[string]any{
	"gas":                   hostGas,
	"gr_size":               hostSize,
	"gr_read":               hostRead,
	"gr_source":             hostSource,
	"gr_message_id":         hostMessageID,
	"gr_program_id":         hostProgramID,
	"gr_value":              hostValue,
	"gr_reply_details":      hostReplyDetails,
	"gr_signal_code":        hostSignalCode,
	"gr_block_height":       hostBlockHeight,
	"gr_block_timestamp":    hostBlockTimestamp,
	"gr_gas_available":      hostGasAvailable,
	"gr_send_init":          hostSendInit,
	"gr_send_push":          hostSendPush,
	"gr_send_commit":        hostSendCommit,
	"gr_send":               hostSend,
	"gr_reply_push":         hostReplyPush,
	"gr_reply_commit":       hostReplyCommit,
	"gr_reply":              hostReply,
	"gr_wait":               hostWait,
	"gr_wait_for":           hostWaitFor,
	"gr_wake":               hostWake,
	"gr_exit":               hostExit,
	"gr_panic":              hostPanic,
	"gr_system_reserve_gas": hostSystemReserveGas,
	"gr_debug":              hostDebug,
}

// Names lists the exported syscalls in lexical order.
func Names() []string {
	names := make([]string, 0, len(syscalls))
	for name := range syscalls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSyscall reports whether name is exported by the env module.
func IsSyscall(name string) bool {
	_, ok := syscalls[name]
	return ok
}

// RegisterHostFunctions instantiates the env module in r. Programs
// instantiated afterwards in r can import from it.
func RegisterHostFunctions(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	for _, name := range Names() {
		builder.NewFunctionBuilder().
			WithFunc(syscalls[name]).
			WithName(name).
			Export(name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}
	return mod, nil
}
