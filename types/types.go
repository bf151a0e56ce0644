package types

import (
	"sort"

	"github.com/shamaton/msgpack/v2"
)

type Metrics struct {
	HitsPinnedMemoryCache     uint32
	HitsMemoryCache           uint32
	Misses                    uint32
	ElementsPinnedMemoryCache uint64
	ElementsMemoryCache       uint64
	// Cumulative size of all elements in pinned memory cache (in bytes)
	SizePinnedMemoryCache uint64
	// Cumulative size of all elements in memory cache (in bytes)
	SizeMemoryCache uint64
	// Number of stored codes, compiled or not
	CodeElements uint64
}

type PerModuleMetrics struct {
	Hits uint32 `msgpack:"hits"`
	Size uint64 `msgpack:"size"`
}

type PerModuleEntry struct {
	CodeID  CodeID           `msgpack:"code_id"`
	Metrics PerModuleMetrics `msgpack:"metrics"`
}

// PinnedMetrics lists the pinned modules ordered by code id.
type PinnedMetrics struct {
	PerModule []PerModuleEntry `msgpack:"per_module"`
}

// Sort orders the entries by code id.
func (pm *PinnedMetrics) Sort() {
	sort.Slice(pm.PerModule, func(i, j int) bool {
		a, b := pm.PerModule[i].CodeID, pm.PerModule[j].CodeID
		return string(a[:]) < string(b[:])
	})
}

func (pm *PinnedMetrics) MarshalMessagePack() ([]byte, error) {
	return msgpack.MarshalAsArray(pm)
}

func (pm *PinnedMetrics) UnmarshalMessagePack(data []byte) error {
	return msgpack.UnmarshalAsArray(data, pm)
}
