package memory

import (
	"fmt"

	"github.com/google/btree"

	rterrors "github.com/CosmWasm/actorvm/internal/runtime/error"
	"github.com/CosmWasm/actorvm/types"
)

// PageState is how far a page has been accessed during one execution.
type PageState uint8

const (
	Untouched PageState = iota
	Read
	Written
)

func (s PageState) String() string {
	switch s {
	case Untouched:
		return "untouched"
	case Read:
		return "read"
	case Written:
		return "written"
	default:
		return fmt.Sprintf("PageState(%d)", uint8(s))
	}
}

// Charger is the gas sink of page accesses.
type Charger interface {
	Charge(amount types.Gas) error
}

type pageEntry struct {
	page  types.PageNumber
	state PageState
}

func lessPage(a, b pageEntry) bool { return a.page < b.page }

// Tracker charges the first access of each kind to every page and remembers
// which pages were read or written. Every page in Read or Written state has
// been paid for exactly once per transition.
type Tracker struct {
	costs       types.PageCosts
	memoryPages uint32
	persistent  types.PageReader
	charger     Charger
	states      *btree.BTreeG[pageEntry]
	released    bool
}

// NewTracker creates a tracker for a memory of memoryPages pages whose
// persistent content is served by persistent.
func NewTracker(costs types.PageCosts, memoryPages uint32, persistent types.PageReader, charger Charger) *Tracker {
	if persistent == nil {
		persistent = types.PageMap{}
	}
	return &Tracker{
		costs:       costs,
		memoryPages: memoryPages,
		persistent:  persistent,
		charger:     charger,
		states:      btree.NewG[pageEntry](16, lessPage),
	}
}

// Touch registers an access to page. The first touch of a page returns its
// persistent content (a zero page if it has none); later touches return nil.
// If the charge fails the page state is unchanged.
func (t *Tracker) Touch(page types.PageNumber, access types.PageAccess) (types.PageBuf, error) {
	if t.released {
		rterrors.Violation("page %d touched after the execution ended", page)
	}
	if uint32(page) >= t.memoryPages {
		return nil, fmt.Errorf("page %d of %d: %w", page, t.memoryPages, types.ErrMemoryOverflow)
	}

	state := t.State(page)
	stored, persistent := t.persistent.ReadPage(page)

	var (
		cost types.Gas
		next PageState
	)
	switch {
	case state == Written, state == Read && access == types.AccessRead:
		return nil, nil
	case state == Read:
		cost, next = t.costs.WriteAfterRead, Written
	case access == types.AccessRead:
		cost, next = t.costs.Read, Read
	default:
		cost, next = t.costs.Write, Written
	}
	if state == Untouched && persistent {
		cost += t.costs.LoadData
	}

	if err := t.charger.Charge(cost); err != nil {
		return nil, fmt.Errorf("%s page %d: %w", access, page, err)
	}
	t.states.ReplaceOrInsert(pageEntry{page: page, state: next})

	if state != Untouched {
		return nil, nil
	}
	buf := types.NewPageBuf()
	if persistent {
		copy(buf, stored)
	}
	return buf, nil
}

// State returns the current state of page.
func (t *Tracker) State(page types.PageNumber) PageState {
	if e, ok := t.states.Get(pageEntry{page: page}); ok {
		return e.state
	}
	return Untouched
}

// Written lists written pages in ascending order.
func (t *Tracker) Written() []types.PageNumber {
	return t.pages(Written)
}

// Accessed lists every touched page in ascending order.
func (t *Tracker) Accessed() []types.PageNumber {
	var out []types.PageNumber
	t.states.Ascend(func(e pageEntry) bool {
		out = append(out, e.page)
		return true
	})
	return out
}

func (t *Tracker) pages(state PageState) []types.PageNumber {
	var out []types.PageNumber
	t.states.Ascend(func(e pageEntry) bool {
		if e.state == state {
			out = append(out, e.page)
		}
		return true
	})
	return out
}

// Persistent returns the stored content of page.
func (t *Tracker) Persistent(page types.PageNumber) (types.PageBuf, bool) {
	return t.persistent.ReadPage(page)
}

// Release ends the execution. Touching a page afterwards is a bug.
func (t *Tracker) Release() {
	t.released = true
}
