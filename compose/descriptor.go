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

// Package compose implements the composition graph: a catalogue of
// packages, export/import indexing, dependency resolution with cycle
// detection, and the shadow-instantiation-and-shim protocol that rewires
// a target's cross-component imports through host-installed trampolines
// on top of github.com/tetratelabs/wazero.
package compose

import (
	"bytes"

	"github.com/andyl-technologies/wasm-component-trampoline/semver"
	"github.com/andyl-technologies/wasm-component-trampoline/trampoline"
)

// wasmMagic and wasmVersion are the first eight bytes of every valid Core
// Wasm binary module (\0asm, then the binary format version). wazero
// itself only validates these once a Runtime compiles the module, and
// add_package has no runtime to hand; checking the header here is enough
// to reject garbage bytes (S6) without needing one.
var (
	wasmMagic   = []byte{0x00, 0x61, 0x73, 0x6d}
	wasmVersion = []byte{0x01, 0x00, 0x00, 0x00}
)

func validateModuleHeader(b []byte) error {
	if len(b) < 8 || !bytes.Equal(b[0:4], wasmMagic) || !bytes.Equal(b[4:8], wasmVersion) {
		return &PackageParseError{Cause: errNotAWasmModule}
	}
	return nil
}

// Descriptor stands in for the external WIT/component type-info store
// spec.md assumes: the caller, having parsed a package's interface
// metadata by whatever means it likes, supplies the result alongside the
// package's raw bytes. Exports maps an interface name to the ordered list
// of method (function) names it exports; Imports lists the package's
// declared foreign imports in their raw canonical string form
// ("pkg/iface[@version]"), exactly as they would appear in the
// package's own import section.
type Descriptor struct {
	Exports map[string][]string
	Imports []string
}

// PackageId is an opaque handle into a CompositionGraph's dense package
// storage. It is stable for the lifetime of the graph.
type PackageId int

// packageEntry is one catalogued package.
type packageEntry[D any, C any] struct {
	id         PackageId
	name       string
	version    *semver.Version
	bytes      []byte
	descriptor Descriptor
	trampoline *trampoline.PackageTrampoline[D, C]
}
