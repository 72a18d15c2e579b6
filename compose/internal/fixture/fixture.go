// Copyright 2024 The Wasm Component Trampoline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fixture hand-assembles minimal, valid Core Wasm binary modules
// for compose's tests. There is no Rust/WIT toolchain available in this
// environment to compile real component fixtures from (mirroring why
// cue/interpreter/wasm/testdata itself ships hand-authored .wasm rather
// than generating it in CI by default), so tests build just enough of
// the binary format by hand: a type section, an import section for
// cross-module calls, a function/export pair per guest-visible method,
// optional mutable i32 globals standing in for instance state,
// and a code section of a tiny stack-machine instruction subset.
package fixture

// Op is one encoded Wasm instruction (opcode plus any encoded immediate).
type Op []byte

var (
	wasmMagic   = []byte{0x00, 0x61, 0x73, 0x6d}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
)

const (
	valTypeI32 byte = 0x7f

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionGlobal   byte = 6
	sectionExport   byte = 7
	sectionCode     byte = 10

	externKindFunc byte = 0x00

	opI32Const  byte = 0x41
	opLocalGet  byte = 0x20
	opGlobalGet byte = 0x23
	opGlobalSet byte = 0x24
	opCall      byte = 0x10
	opDrop      byte = 0x1a
	opI32Add    byte = 0x6a
	opEnd       byte = 0x0b
)

// I32Const pushes a constant i32.
func I32Const(v int32) Op { return append([]byte{opI32Const}, sleb128(int64(v))...) }

// LocalGet reads local (or parameter) index idx.
func LocalGet(idx uint32) Op { return append([]byte{opLocalGet}, uleb128(uint64(idx))...) }

// GlobalGet reads the module's global at index idx.
func GlobalGet(idx uint32) Op { return append([]byte{opGlobalGet}, uleb128(uint64(idx))...) }

// GlobalSet writes the module's global at index idx, popping the top of
// the value stack.
func GlobalSet(idx uint32) Op { return append([]byte{opGlobalSet}, uleb128(uint64(idx))...) }

// Call invokes the function (import or local, in declaration order, with
// imports numbered first) at funcIdx.
func Call(funcIdx uint32) Op { return append([]byte{opCall}, uleb128(uint64(funcIdx))...) }

// I32Add pops two i32s and pushes their sum.
var I32Add = Op{opI32Add}

// Drop discards the top of the value stack, for when a call's result
// must be ignored to keep a function body's final stack depth matching
// its declared arity.
var Drop = Op{opDrop}

type importSpec struct {
	module, name    string
	params, results int
}

type funcSpec struct {
	name            string
	params, results int
	body            []Op
}

// Builder accumulates a module's imports, mutable globals, and its
// exported functions, then encodes them into Wasm bytes with Build.
type Builder struct {
	imports []importSpec
	funcs   []funcSpec
	globals []int32
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Import declares a function this module imports from the named module,
// taking the given number of i32 parameters and returning the given
// number of i32 results (0 or 1). Its function index (for use with Call)
// is the order in which it was declared, starting at 0; imports are
// always numbered before local functions.
func (b *Builder) Import(module, name string, params, results int) *Builder {
	b.imports = append(b.imports, importSpec{module, name, params, results})
	return b
}

// WithMutableGlobal declares a mutable i32 global initialized to init,
// standing in for a slice of a component's instance-local state (spec.md's
// S1 scenario's set_name/hello pair, realized here as a numeric
// set/get). Returns its index, for use with GlobalGet/GlobalSet.
func (b *Builder) WithMutableGlobal(init int32) uint32 {
	idx := uint32(len(b.globals))
	b.globals = append(b.globals, init)
	return idx
}

// Func declares an exported function taking the given number of i32
// parameters, returning the given number of i32 results (0 or 1), with
// the given instruction body (End is appended automatically). Its
// function index is len(imports) plus the order in which it was
// declared among Func calls.
func (b *Builder) Func(name string, params, results int, body ...Op) *Builder {
	b.funcs = append(b.funcs, funcSpec{name, params, results, body})
	return b
}

// Build encodes the accumulated declarations into a minimal valid Core
// Wasm binary module.
func (b *Builder) Build() []byte {
	var out []byte
	out = append(out, wasmMagic...)
	out = append(out, wasmVersion...)

	out = append(out, section(sectionType, b.typeSection())...)
	if len(b.imports) > 0 {
		out = append(out, section(sectionImport, b.importSection())...)
	}
	out = append(out, section(sectionFunction, b.functionSection())...)
	if len(b.globals) > 0 {
		out = append(out, section(sectionGlobal, b.globalSection())...)
	}
	out = append(out, section(sectionExport, b.exportSection())...)
	out = append(out, section(sectionCode, b.codeSection())...)
	return out
}

// typeSection emits one function type per import, then one per local
// function, in that order, matching the index scheme funcIdx assumes.
func (b *Builder) typeSection() []byte {
	count := len(b.imports) + len(b.funcs)
	payload := uleb128(uint64(count))

	encode := func(params, results int) {
		payload = append(payload, 0x60) // func type tag
		payload = append(payload, uleb128(uint64(params))...)
		for i := 0; i < params; i++ {
			payload = append(payload, valTypeI32)
		}
		payload = append(payload, uleb128(uint64(results))...)
		for i := 0; i < results; i++ {
			payload = append(payload, valTypeI32)
		}
	}
	for _, im := range b.imports {
		encode(im.params, im.results)
	}
	for _, f := range b.funcs {
		encode(f.params, f.results)
	}
	return payload
}

func (b *Builder) importSection() []byte {
	payload := uleb128(uint64(len(b.imports)))
	for i, im := range b.imports {
		payload = append(payload, name(im.module)...)
		payload = append(payload, name(im.name)...)
		payload = append(payload, externKindFunc)
		payload = append(payload, uleb128(uint64(i))...) // type index == import index
	}
	return payload
}

func (b *Builder) functionSection() []byte {
	payload := uleb128(uint64(len(b.funcs)))
	for j := range b.funcs {
		payload = append(payload, uleb128(uint64(len(b.imports)+j))...)
	}
	return payload
}

func (b *Builder) globalSection() []byte {
	payload := uleb128(uint64(len(b.globals)))
	for _, init := range b.globals {
		payload = append(payload, valTypeI32, 0x01) // mutable
		payload = append(payload, I32Const(init)...)
		payload = append(payload, opEnd)
	}
	return payload
}

func (b *Builder) exportSection() []byte {
	payload := uleb128(uint64(len(b.funcs)))
	for j, f := range b.funcs {
		payload = append(payload, name(f.name)...)
		payload = append(payload, externKindFunc)
		payload = append(payload, uleb128(uint64(len(b.imports)+j))...)
	}
	return payload
}

func (b *Builder) codeSection() []byte {
	payload := uleb128(uint64(len(b.funcs)))
	for _, f := range b.funcs {
		var body []byte
		body = append(body, uleb128(0)...) // zero local-declaration groups
		for _, op := range f.body {
			body = append(body, op...)
		}
		body = append(body, opEnd)

		payload = append(payload, uleb128(uint64(len(body)))...)
		payload = append(payload, body...)
	}
	return payload
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, uleb128(uint64(len(payload)))...)
	return append(out, payload...)
}

func name(s string) []byte {
	out := uleb128(uint64(len(s)))
	return append(out, []byte(s)...)
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		out = append(out, b)
		return out
	}
}

func sleb128(v int64) []byte {
	var out []byte
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}
