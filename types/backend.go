package types

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
)

// Backend runs one entry point of a program. Implementations drive the wasm
// code and call back into Externalities for every metered or effectful
// operation. A Backend must not keep state between Run calls that could make
// two runs of the same input diverge.
type Backend interface {
	// Run executes inv. A non-nil error means the backend could not run the
	// code at all (missing or invalid module); it is treated as a BackendError
	// trap of the dispatch.
	Run(ctx context.Context, inv Invocation, ext *Externalities) (BackendReport, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, inv Invocation, ext *Externalities) (BackendReport, error)

func (f BackendFunc) Run(ctx context.Context, inv Invocation, ext *Externalities) (BackendReport, error) {
	return f(ctx, inv, ext)
}

// Invocation describes what a backend has to run.
type Invocation struct {
	EntryPoint EntryPoint
	CodeID     CodeID
	ProgramID  ProgramID
	// MemoryPages is the size of program memory in pages.
	MemoryPages uint32
	// PersistentPages lists the pages that have content in persistent state,
	// ascending. Their content is obtained through Externalities.TouchPage.
	PersistentPages []PageNumber
}

// Externalities is the table of callbacks a backend uses during one run.
// Each run gets its own table; it must not be used after Run returns.
type Externalities struct {
	Message   Message
	ProgramID ProgramID
	Block     BlockInfo

	// ChargeGas charges both the message gas counter and the block allowance.
	// Errors match ErrOutOfGas or ErrAllowanceExceeded and must end the run
	// with a trap.
	ChargeGas func(amount Gas) error
	// ChargeAllowance charges the block allowance only, for work the message
	// does not pay for. Errors match ErrAllowanceExceeded and must end the run
	// with a trap.
	ChargeAllowance func(amount Gas) error
	// GasAvailable returns the gas left in the message counter.
	GasAvailable func() Gas
	// TouchPage must be called before the first access of each kind to a page.
	// It returns the persistent content the first time a page is touched and
	// nil afterwards. Charging errors must end the run with a trap.
	TouchPage func(page PageNumber, access PageAccess) (PageBuf, error)

	SendInit    func(destination ProgramID, value *uint256.Int) (uint32, error)
	SendPush    func(handle uint32, payload []byte) error
	SendCommit  func(handle uint32, gasLimit Gas) (MessageID, error)
	ReplyPush   func(payload []byte) error
	ReplyCommit func(value *uint256.Int, gasLimit Gas) (MessageID, error)
	// Wait requests the dispatch to be parked. The backend stops the run
	// cleanly after a successful call. Nil duration means the maximum.
	Wait func(duration *uint32) error
	Wake func(id MessageID, delay uint32) error
	// Exit requests program removal. The backend stops the run cleanly after
	// a successful call.
	Exit             func(valueDestination ProgramID) error
	ReserveSystemGas func(amount Gas) error
}

// TerminationKind tells how a backend run ended.
type TerminationKind uint8

const (
	TerminationSuccess TerminationKind = iota
	TerminationTrap
)

// Termination is the end state reported by a backend.
type Termination struct {
	Kind        TerminationKind
	Reason      TrapReason
	Explanation string
}

// Success is the termination of a run that returned normally.
func Success() Termination { return Termination{Kind: TerminationSuccess} }

// Trap is the termination of a run that trapped.
func Trap(reason TrapReason, explanation string) Termination {
	return Termination{Kind: TerminationTrap, Reason: reason, Explanation: explanation}
}

func (t Termination) String() string {
	if t.Kind == TerminationSuccess {
		return "success"
	}
	if t.Explanation == "" {
		return fmt.Sprintf("trap: %s", t.Reason)
	}
	return fmt.Sprintf("trap: %s: %s", t.Reason, t.Explanation)
}

// BackendReport is the result of a backend run.
type BackendReport struct {
	Termination Termination
	// Memory reads final page contents. It must serve every page that was
	// touched for write.
	Memory PageReader
	// Initial reads page contents as they were when the entry point started,
	// for pages the instance set up itself, such as data segments. Nil means
	// such pages started zeroed.
	Initial PageReader
	// Dirty lists pages the backend saw modified. Each of them must have been
	// touched for write.
	Dirty []PageNumber
}
