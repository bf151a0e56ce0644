// Package wasmtest encodes small wasm modules for tests.
package wasmtest

// Value types.
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

// Import is a function imported from the env module.
type Import struct {
	Name            string
	Params, Results []byte
}

// Func is a defined function. Its index follows the imports.
type Func struct {
	Export          string
	Params, Results []byte
	Body            []byte
}

// Data is an active data segment of memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module exports its memory as "memory" when it has one.
type Module struct {
	Imports  []Import
	Funcs    []Func
	MemPages uint32 // zero means no memory
	Data     []Data
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint64(len(content)))...), content...)
}

func funcType(params, results []byte) []byte {
	out := []byte{0x60}
	out = append(out, uleb(uint64(len(params)))...)
	out = append(out, params...)
	out = append(out, uleb(uint64(len(results)))...)
	return append(out, results...)
}

// Bytes encodes the module.
func (m Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	var typeSec, imports, funcs, exports, codes [][]byte
	for _, imp := range m.Imports {
		idx := uint64(len(typeSec))
		typeSec = append(typeSec, funcType(imp.Params, imp.Results))
		entry := append(name("env"), name(imp.Name)...)
		entry = append(entry, 0x00)
		imports = append(imports, append(entry, uleb(idx)...))
	}
	for i, f := range m.Funcs {
		idx := uint64(len(typeSec))
		typeSec = append(typeSec, funcType(f.Params, f.Results))
		funcs = append(funcs, uleb(idx))
		if f.Export != "" {
			entry := append(name(f.Export), 0x00)
			exports = append(exports, append(entry, uleb(uint64(len(m.Imports)+i))...))
		}
		body := append([]byte{0x00}, f.Body...) // no locals
		body = append(body, 0x0b)
		codes = append(codes, append(uleb(uint64(len(body))), body...))
	}
	if m.MemPages > 0 {
		exports = append(exports, append(name("memory"), 0x02, 0x00))
	}

	out = append(out, section(1, vec(typeSec...))...)
	if len(imports) > 0 {
		out = append(out, section(2, vec(imports...))...)
	}
	out = append(out, section(3, vec(funcs...))...)
	if m.MemPages > 0 {
		out = append(out, section(5, vec(append([]byte{0x00}, uleb(uint64(m.MemPages))...)))...)
	}
	out = append(out, section(7, vec(exports...))...)
	out = append(out, section(10, vec(codes...))...)
	if len(m.Data) > 0 {
		var segs [][]byte
		for _, d := range m.Data {
			seg := []byte{0x00, 0x41}
			seg = append(seg, sleb(int64(d.Offset))...)
			seg = append(seg, 0x0b)
			seg = append(seg, uleb(uint64(len(d.Bytes)))...)
			segs = append(segs, append(seg, d.Bytes...))
		}
		out = append(out, section(11, vec(segs...))...)
	}
	return out
}

// Instructions.

func I32Const(v int32) []byte { return append([]byte{0x41}, sleb(int64(v))...) }
func I64Const(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }
func Call(idx uint32) []byte  { return append([]byte{0x10}, uleb(uint64(idx))...) }

var (
	OpDrop        = []byte{0x1a}
	OpUnreachable = []byte{0x00}
	OpI32Add      = []byte{0x6a}
	OpI32Load8U   = []byte{0x2d, 0x00, 0x00}
	OpI32Store8   = []byte{0x3a, 0x00, 0x00}
	// OpIf opens a block without results that runs when the popped i32 is non-zero.
	OpIf  = []byte{0x04, 0x40}
	OpEnd = []byte{0x0b}
)

// Code concatenates instructions.
func Code(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
