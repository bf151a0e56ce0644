package types

import (
	"bytes"
	"fmt"
)

const (
	// PageSize is the granularity of memory tracking and persistence.
	PageSize = 0x4000
	// WasmPageSize is the size of a wasm linear memory page.
	WasmPageSize = 0x10000
	// PagesPerWasmPage is the number of tracked pages in one wasm page.
	PagesPerWasmPage = WasmPageSize / PageSize
)

// PageNumber indexes a PageSize sized region of program memory.
type PageNumber uint32

// Offset is the first byte of the page in linear memory.
func (p PageNumber) Offset() uint32 { return uint32(p) * PageSize }

// PageOf returns the page holding the byte at offset.
func PageOf(offset uint32) PageNumber { return PageNumber(offset / PageSize) }

// PageBuf holds the content of exactly one page.
type PageBuf []byte

// NewPageBuf returns a zeroed page.
func NewPageBuf() PageBuf { return make(PageBuf, PageSize) }

// Validate checks the buffer length.
func (b PageBuf) Validate() error {
	if len(b) != PageSize {
		return fmt.Errorf("page buffer has %d bytes, expected %d", len(b), PageSize)
	}
	return nil
}

// IsZero reports whether every byte of the page is zero.
func (b PageBuf) IsZero() bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// Equal compares page contents.
func (b PageBuf) Equal(other PageBuf) bool { return bytes.Equal(b, other) }

// PageAccess is the kind of memory access that touches a page.
type PageAccess uint8

const (
	AccessRead PageAccess = iota
	AccessWrite
)

func (a PageAccess) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// PageReader exposes page contents at some point of an execution.
type PageReader interface {
	ReadPage(page PageNumber) (PageBuf, bool)
}

// PageMap is a PageReader over an in-memory set of pages. Absent pages are zero.
type PageMap map[PageNumber]PageBuf

func (m PageMap) ReadPage(page PageNumber) (PageBuf, bool) {
	buf, ok := m[page]
	return buf, ok
}
