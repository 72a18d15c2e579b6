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

package trampoline

import "context"

// Kind distinguishes the two trampoline flavors a PackageTrampoline may
// wrap.
type Kind int

const (
	// KindSync marks a PackageTrampoline built from a Trampoline.
	KindSync Kind = iota
	// KindAsync marks a PackageTrampoline built from an AsyncTrampoline.
	KindAsync
)

// PackageTrampoline manages one trampoline function (sync or async, fixed
// at construction) and a pool of per-interface contexts: a default,
// overridable per interface name. It is the package-level factory the
// composition graph asks for an InterfaceTrampoline to bind into an
// exported interface's shims.
type PackageTrampoline[D any, C any] struct {
	kind    Kind
	sync    Trampoline[D, C]
	async   AsyncTrampoline[D, C]
	dflt    C
	perIfce map[string]C
}

// NewPackageTrampoline returns a PackageTrampoline wrapping a synchronous
// Trampoline, with defaultContext used for every interface without an
// override.
func NewPackageTrampoline[D any, C any](t Trampoline[D, C], defaultContext C) *PackageTrampoline[D, C] {
	return &PackageTrampoline[D, C]{kind: KindSync, sync: t, dflt: defaultContext}
}

// NewAsyncPackageTrampoline returns a PackageTrampoline wrapping a
// suspending AsyncTrampoline, with defaultContext used for every interface
// without an override.
func NewAsyncPackageTrampoline[D any, C any](t AsyncTrampoline[D, C], defaultContext C) *PackageTrampoline[D, C] {
	return &PackageTrampoline[D, C]{kind: KindAsync, async: t, dflt: defaultContext}
}

// Kind reports whether this PackageTrampoline was built synchronous or
// asynchronous.
func (p *PackageTrampoline[D, C]) Kind() Kind { return p.kind }

// DefaultContext returns the context used for every interface not
// otherwise overridden.
func (p *PackageTrampoline[D, C]) DefaultContext() C { return p.dflt }

// SetDefaultContext replaces the default context.
func (p *PackageTrampoline[D, C]) SetDefaultContext(c C) { p.dflt = c }

// InterfaceContext returns the override context for interfaceName, if one
// has been set.
func (p *PackageTrampoline[D, C]) InterfaceContext(interfaceName string) (C, bool) {
	c, ok := p.perIfce[interfaceName]
	return c, ok
}

// SetInterfaceContext overrides the context used for interfaceName.
func (p *PackageTrampoline[D, C]) SetInterfaceContext(interfaceName string, c C) {
	if p.perIfce == nil {
		p.perIfce = make(map[string]C)
	}
	p.perIfce[interfaceName] = c
}

// RemoveInterfaceContext drops the override for interfaceName, reverting
// it to the default. It is a no-op if no override exists.
func (p *PackageTrampoline[D, C]) RemoveInterfaceContext(interfaceName string) {
	delete(p.perIfce, interfaceName)
}

func (p *PackageTrampoline[D, C]) contextFor(interfaceName string) C {
	if c, ok := p.perIfce[interfaceName]; ok {
		return c
	}
	return p.dflt
}

// InterfaceTrampoline binds a single interface to its resolved context,
// yielding the heterogeneous DynInterfaceTrampoline the composition graph
// stores in its exported-interface index.
func (p *PackageTrampoline[D, C]) InterfaceTrampoline(interfaceName string) DynInterfaceTrampoline[D, C] {
	ctx := p.contextFor(interfaceName)
	switch p.kind {
	case KindAsync:
		return DynInterfaceTrampoline[D, C]{Kind: KindAsync, Async: &AsyncInterfaceTrampoline[D, C]{Fn: p.async, Ctx: ctx}}
	default:
		return DynInterfaceTrampoline[D, C]{Kind: KindSync, Sync: &SyncInterfaceTrampoline[D, C]{Fn: p.sync, Ctx: ctx}}
	}
}

// SyncInterfaceTrampoline runs a specific synchronous Trampoline bound to
// one resolved context.
type SyncInterfaceTrampoline[D any, C any] struct {
	Fn  Trampoline[D, C]
	Ctx C
}

// Bounce builds a GuestCall from params (with HostCtx overridden by the
// bound context Ctx) and invokes the bound trampoline.
func (t *SyncInterfaceTrampoline[D, C]) Bounce(params CallParams[D, C]) (*GuestResult[D, C], error) {
	params.HostCtx = t.Ctx
	return t.Fn(NewGuestCall(params))
}

// AsyncInterfaceTrampoline runs a specific AsyncTrampoline bound to one
// resolved context.
type AsyncInterfaceTrampoline[D any, C any] struct {
	Fn  AsyncTrampoline[D, C]
	Ctx C
}

// BounceAsync builds an AsyncGuestCall from params (with HostCtx overridden
// by the bound context Ctx) and invokes the bound trampoline.
func (t *AsyncInterfaceTrampoline[D, C]) BounceAsync(ctx context.Context, params CallParams[D, C]) (*AsyncGuestResult[D, C], error) {
	params.HostCtx = t.Ctx
	return t.Fn(ctx, NewAsyncGuestCall(params))
}

// DynInterfaceTrampoline is a tagged union of SyncInterfaceTrampoline and
// AsyncInterfaceTrampoline, letting the composition graph hold
// heterogeneous trampolines uniformly and dispatch the correct invocation
// flavor at shim-install time.
type DynInterfaceTrampoline[D any, C any] struct {
	Kind  Kind
	Sync  *SyncInterfaceTrampoline[D, C]
	Async *AsyncInterfaceTrampoline[D, C]
}
