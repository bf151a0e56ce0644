package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"

	"github.com/CosmWasm/actorvm/internal/wasmtest"
	"github.com/CosmWasm/actorvm/types"
)

// emptyModule returns a valid module that differs by the name of its only export.
func emptyModule(tag byte) []byte {
	return wasmtest.Module{Funcs: []wasmtest.Func{{Export: string(tag)}}}.Bytes()
}

func newCompiler(t *testing.T) (func([]byte) (wazero.CompiledModule, error), *int) {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	calls := 0
	return func(code []byte) (wazero.CompiledModule, error) {
		calls++
		return r.CompileModule(ctx, code)
	}, &calls
}

func TestCompiledIsCached(t *testing.T) {
	compile, calls := newCompiler(t)
	c := New(2)
	id := c.SaveCode(emptyModule('a'))
	assert.Equal(t, types.NewCodeID(emptyModule('a')), id)

	first, err := c.Compiled(id, compile)
	require.NoError(t, err)
	second, err := c.Compiled(id, compile)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, *calls)

	m := c.Metrics()
	assert.Equal(t, uint32(1), m.Misses)
	assert.Equal(t, uint32(1), m.HitsMemoryCache)
	assert.Equal(t, uint64(1), m.ElementsMemoryCache)
}

func TestUnknownCode(t *testing.T) {
	compile, _ := newCompiler(t)
	c := New(2)
	_, err := c.Compiled(types.CodeID{1}, compile)
	require.ErrorAs(t, err, &ErrCodeNotFound{})
	require.Error(t, c.Pin(types.CodeID{1}, compile))
}

func TestLRUEviction(t *testing.T) {
	compile, calls := newCompiler(t)
	c := New(2)
	a := c.SaveCode(emptyModule('a'))
	b := c.SaveCode(emptyModule('b'))
	d := c.SaveCode(emptyModule('d'))

	for _, id := range []types.CodeID{a, b, a, d} {
		_, err := c.Compiled(id, compile)
		require.NoError(t, err)
	}
	// b was least recently used
	assert.Equal(t, uint64(2), c.Metrics().ElementsMemoryCache)
	_, err := c.Compiled(a, compile)
	require.NoError(t, err)
	assert.Equal(t, 3, *calls)
	_, err = c.Compiled(b, compile)
	require.NoError(t, err)
	assert.Equal(t, 4, *calls)

	// evicted code is still stored
	assert.Equal(t, uint64(3), c.Metrics().CodeElements)
}

func TestPinning(t *testing.T) {
	compile, calls := newCompiler(t)
	c := New(1)
	a := c.SaveCode(emptyModule('a'))
	b := c.SaveCode(emptyModule('b'))

	require.NoError(t, c.Pin(a, compile))
	_, err := c.Compiled(b, compile)
	require.NoError(t, err)
	_, err = c.Compiled(a, compile)
	require.NoError(t, err)
	assert.Equal(t, 2, *calls)

	m := c.Metrics()
	assert.Equal(t, uint32(1), m.HitsPinnedMemoryCache)
	assert.Equal(t, uint64(1), m.ElementsPinnedMemoryCache)
	assert.Equal(t, uint64(len(emptyModule('a'))), m.SizePinnedMemoryCache)

	pm := c.PinnedMetrics()
	require.Len(t, pm.PerModule, 1)
	assert.Equal(t, a, pm.PerModule[0].CodeID)
	assert.Equal(t, uint32(1), pm.PerModule[0].Metrics.Hits)

	assert.False(t, c.Remove(a))
	c.Unpin(a)
	assert.True(t, c.Remove(a))
	_, ok := c.LoadCode(a)
	assert.False(t, ok)
}

type closeRecorder struct {
	wazero.CompiledModule
	closed *[]byte
	tag    byte
}

func (r closeRecorder) Close(ctx context.Context) error {
	*r.closed = append(*r.closed, r.tag)
	return r.CompiledModule.Close(ctx)
}

func TestEvictionClosesModules(t *testing.T) {
	compile, _ := newCompiler(t)
	var closed []byte
	recording := func(tag byte) func([]byte) (wazero.CompiledModule, error) {
		return func(code []byte) (wazero.CompiledModule, error) {
			m, err := compile(code)
			if err != nil {
				return nil, err
			}
			return closeRecorder{CompiledModule: m, closed: &closed, tag: tag}, nil
		}
	}
	c := New(1)
	a := c.SaveCode(emptyModule('a'))
	b := c.SaveCode(emptyModule('b'))
	d := c.SaveCode(emptyModule('d'))

	_, err := c.Compiled(a, recording('a'))
	require.NoError(t, err)
	// moving a into the pinned set keeps it open
	require.NoError(t, c.Pin(a, recording('a')))
	assert.Empty(t, closed)

	_, err = c.Compiled(b, recording('b'))
	require.NoError(t, err)
	_, err = c.Compiled(d, recording('d'))
	require.NoError(t, err)
	assert.Equal(t, []byte{'b'}, closed)

	assert.True(t, c.Remove(d))
	assert.Equal(t, []byte{'b', 'd'}, closed)

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []byte{'b', 'd', 'a'}, closed)
}
