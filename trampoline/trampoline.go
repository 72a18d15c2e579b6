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

// Package trampoline carries a cross-component call's context across a
// host-installed shim, so that a caller-supplied handler can observe,
// transform, or refuse the call before it reaches the real exported
// function, and observe its result before returning.
//
// It comes in two disjoint flavors, matching the two ways wazero lets a
// host function be installed: Trampoline/GuestCall for an ordinary,
// blocking Go function (the runtime is not configured to suspend), and
// AsyncTrampoline/AsyncGuestCall for a suspending one, driven by a
// context.Context the way the rest of this module's "async" support is.
package trampoline

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/andyl-technologies/wasm-component-trampoline/wit"
)

// FuncType is the minimal function-type descriptor a trampoline needs: the
// Wasm value types of its parameters and results, ported directly from
// wazero's own api.FunctionDefinition.ParamTypes/ResultTypes.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// GuestCallData is the data shared by every call flavor: access to the
// store's host data, the host-supplied per-interface context, the call
// site's interface path and method name, its type signature, and the
// argument/result value slices (Core Wasm values encoded as uint64 per
// wazero convention).
type GuestCallData[D any, C any] struct {
	ctx       context.Context
	store     *D
	module    api.Module
	function  api.Function
	hostCtx   C
	path      wit.ForeignInterfacePath
	method    string
	funcType  FuncType
	arguments []uint64
	results   []uint64
}

// Context returns the call's deadline/cancellation context.
func (d *GuestCallData[D, C]) Context() context.Context { return d.ctx }

// Store returns a mutable pointer to the host's store data.
func (d *GuestCallData[D, C]) Store() *D { return d.store }

// HostContext returns the trampoline-specific context attached to this
// interface (the override if one was set, else the package default).
func (d *GuestCallData[D, C]) HostContext() C { return d.hostCtx }

// Interface returns the fully-qualified interface path of the call site.
func (d *GuestCallData[D, C]) Interface() wit.ForeignInterfacePath { return d.path }

// Method returns the method name being called.
func (d *GuestCallData[D, C]) Method() string { return d.method }

// FuncType returns the type signature of the function being called.
func (d *GuestCallData[D, C]) FuncType() FuncType { return d.funcType }

// Arguments returns the input arguments of the call.
func (d *GuestCallData[D, C]) Arguments() []uint64 { return d.arguments }

// Results returns the call's result slice; it is empty until the call has
// completed.
func (d *GuestCallData[D, C]) Results() []uint64 { return d.results }

// CallParams bundles the fields needed to construct a GuestCall or
// AsyncGuestCall; it exists so the composition graph (the only other
// package that builds calls) can do so without this package exposing its
// field layout.
type CallParams[D any, C any] struct {
	Ctx       context.Context
	Store     *D
	Module    api.Module
	Function  api.Function
	HostCtx   C
	Path      wit.ForeignInterfacePath
	Method    string
	FuncType  FuncType
	Arguments []uint64
}

func (p CallParams[D, C]) data() GuestCallData[D, C] {
	return GuestCallData[D, C]{
		ctx:       p.Ctx,
		store:     p.Store,
		module:    p.Module,
		function:  p.Function,
		hostCtx:   p.HostCtx,
		path:      p.Path,
		method:    p.Method,
		funcType:  p.FuncType,
		arguments: p.Arguments,
	}
}

// NewGuestCall builds a GuestCall from params.
func NewGuestCall[D any, C any](params CallParams[D, C]) *GuestCall[D, C] {
	return &GuestCall[D, C]{data: params.data()}
}

// NewAsyncGuestCall builds an AsyncGuestCall from params.
func NewAsyncGuestCall[D any, C any](params CallParams[D, C]) *AsyncGuestCall[D, C] {
	return &AsyncGuestCall[D, C]{data: params.data()}
}

// GuestCall is a cross-component call that must be executed synchronously.
// The handler is expected to call Call in all cases, unless it errors out
// before doing so.
type GuestCall[D any, C any] struct {
	data GuestCallData[D, C]
}

// Data exposes the call's shared fields.
func (c *GuestCall[D, C]) Data() *GuestCallData[D, C] { return &c.data }

// Call invokes the underlying exported function with the call's arguments,
// writing its results into the call's result slice.
func (c *GuestCall[D, C]) Call() (*GuestResult[D, C], error) {
	res, err := c.data.function.Call(c.data.ctx, c.data.arguments...)
	if err != nil {
		return nil, fmt.Errorf("trampoline: guest call %s#%s failed: %w", c.data.path, c.data.method, err)
	}
	c.data.results = res
	return &GuestResult[D, C]{data: c.data}, nil
}

// GuestResult is the result of a completed GuestCall.
type GuestResult[D any, C any] struct {
	data         GuestCallData[D, C]
	postReturned bool
}

// Data exposes the call's shared fields, now including Results.
func (r *GuestResult[D, C]) Data() *GuestCallData[D, C] { return &r.data }

// Results returns the function call's results.
func (r *GuestResult[D, C]) Results() []uint64 { return r.data.results }

// PostReturn triggers the runtime's post_return finalization for this
// call. It is idempotent: calling it more than once is a no-op after the
// first call. Callers that obtained a GuestResult via Call need not call
// this themselves; the shim installed by the composition graph does so
// exactly once on every successful call, per spec.
func (r *GuestResult[D, C]) PostReturn() error {
	if r.postReturned {
		return nil
	}
	r.postReturned = true
	return postReturn(r.data.ctx, r.data.module, r.data.method)
}

// postReturn invokes the <method>$post_return export, if the module
// defines one. wazero, unlike wasmtime, has no native canonical-ABI
// post_return concept (it is a pure Core Wasm runtime); this convention
// realizes the same finalization hook spec.md assumes the runtime
// provides. A module that defines no such export needs none: this is a
// no-op, not an error.
func postReturn(ctx context.Context, mod api.Module, method string) error {
	if mod == nil {
		return nil
	}
	fn := mod.ExportedFunction(method + "$post_return")
	if fn == nil {
		return nil
	}
	if _, err := fn.Call(ctx); err != nil {
		return fmt.Errorf("trampoline: post_return for %s failed: %w", method, err)
	}
	return nil
}

// Trampoline intercepts a synchronous cross-component call. The default,
// Passthrough, simply forwards to Call.
type Trampoline[D any, C any] func(call *GuestCall[D, C]) (*GuestResult[D, C], error)

// Passthrough is the minimal Trampoline: it forwards directly to Call with
// no inspection or transformation.
func Passthrough[D any, C any](call *GuestCall[D, C]) (*GuestResult[D, C], error) {
	return call.Call()
}

// AsyncGuestCall is a cross-component call that may be executed in a
// suspending fashion; the handler is expected to call CallAsync in all
// cases, unless it errors out before doing so.
type AsyncGuestCall[D any, C any] struct {
	data GuestCallData[D, C]
}

// Data exposes the call's shared fields.
func (c *AsyncGuestCall[D, C]) Data() *GuestCallData[D, C] { return &c.data }

// CallAsync invokes the underlying exported function, honoring the call's
// context for cancellation. If ctx is canceled before the underlying call
// completes, CallAsync returns ctx.Err() immediately; per spec.md §5, the
// graph installs no extra cleanup for the abandoned call — that is the
// embedding runtime's responsibility.
func (c *AsyncGuestCall[D, C]) CallAsync(ctx context.Context) (*AsyncGuestResult[D, C], error) {
	type outcome struct {
		res []uint64
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := c.data.function.Call(ctx, c.data.arguments...)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case o := <-done:
		if o.err != nil {
			return nil, fmt.Errorf("trampoline: async guest call %s#%s failed: %w", c.data.path, c.data.method, o.err)
		}
		c.data.results = o.res
		return &AsyncGuestResult[D, C]{data: c.data}, nil
	}
}

// AsyncGuestResult is the result of a completed AsyncGuestCall.
type AsyncGuestResult[D any, C any] struct {
	data         GuestCallData[D, C]
	postReturned bool
}

// Data exposes the call's shared fields, now including Results.
func (r *AsyncGuestResult[D, C]) Data() *GuestCallData[D, C] { return &r.data }

// Results returns the function call's results.
func (r *AsyncGuestResult[D, C]) Results() []uint64 { return r.data.results }

// PostReturnAsync is the suspending counterpart of GuestResult.PostReturn.
// On the error paths of CallAsync it is not required to be called, per
// spec.md §5; on every successful call it MUST be invoked exactly once,
// and is, by the shim installed by the composition graph.
func (r *AsyncGuestResult[D, C]) PostReturnAsync(ctx context.Context) error {
	if r.postReturned {
		return nil
	}
	r.postReturned = true
	return postReturn(ctx, r.data.module, r.data.method)
}

// AsyncTrampoline intercepts a suspending cross-component call. The
// default, PassthroughAsync, simply forwards to CallAsync.
type AsyncTrampoline[D any, C any] func(ctx context.Context, call *AsyncGuestCall[D, C]) (*AsyncGuestResult[D, C], error)

// PassthroughAsync is the minimal AsyncTrampoline: it forwards directly to
// CallAsync with no inspection or transformation.
func PassthroughAsync[D any, C any](ctx context.Context, call *AsyncGuestCall[D, C]) (*AsyncGuestResult[D, C], error) {
	return call.CallAsync(ctx)
}
