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

package compose

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/andyl-technologies/wasm-component-trampoline/trampoline"
	"github.com/andyl-technologies/wasm-component-trampoline/wit"
)

// wazero has no separate Linker type the way wasmtime does: an
// instantiated module is addressable, by the name given to its
// ModuleConfig, as the import source for any other module compiled
// against the same Runtime. A Runtime therefore already plays the role
// spec.md assigns to "linker" and "runtime" together, so Instantiate and
// InstantiateAsync take a single wazero.Runtime rather than the two
// separate parameters of the original design.

// Instantiate shadow-instantiates target's dependencies in load order,
// installs shims for every interface the target's transitive closure
// requires, then instantiates target itself against runtime. Every
// installed shim uses the synchronous trampoline bounce; a required
// interface bound to an asynchronous trampoline makes this call fail with
// ErrInvalidTrampolineSynchronicity (use InstantiateAsync instead).
func (g *CompositionGraph[D, C]) Instantiate(ctx context.Context, target PackageId, runtime wazero.Runtime, store *D) (api.Module, error) {
	return g.instantiate(ctx, target, runtime, store, trampoline.KindSync)
}

// InstantiateAsync is the suspending counterpart of Instantiate. It
// accepts shims bound to either a synchronous or an asynchronous
// trampoline.
func (g *CompositionGraph[D, C]) InstantiateAsync(ctx context.Context, target PackageId, runtime wazero.Runtime, store *D) (api.Module, error) {
	return g.instantiate(ctx, target, runtime, store, trampoline.KindAsync)
}

func (g *CompositionGraph[D, C]) instantiate(
	ctx context.Context,
	target PackageId,
	runtime wazero.Runtime,
	store *D,
	mode trampoline.Kind,
) (api.Module, error) {
	order, required, err := g.ResolveLoadOrder(target)
	if err != nil {
		return nil, err
	}

	for _, id := range order[:len(order)-1] {
		entry := g.packages[id]

		compiled, cerr := runtime.CompileModule(ctx, entry.bytes)
		if cerr != nil {
			return nil, &InstantiatePackageDependencyError{Name: entry.name, Version: entry.version, Cause: cerr}
		}

		shadowName := fmt.Sprintf("shadow:%s@%s", entry.name, entry.version)
		shadow, ierr := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(shadowName))
		if ierr != nil {
			return nil, &InstantiatePackageDependencyError{Name: entry.name, Version: entry.version, Cause: ierr}
		}

		for ifaceName := range required[id] {
			if err := g.installShim(ctx, runtime, store, entry, ifaceName, shadow, mode); err != nil {
				return nil, err
			}
		}
	}

	targetEntry := g.packages[target]
	compiled, cerr := runtime.CompileModule(ctx, targetEntry.bytes)
	if cerr != nil {
		return nil, &ComponentInstantiationError{Cause: cerr}
	}
	inst, ierr := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(targetEntry.name))
	if ierr != nil {
		return nil, &ComponentInstantiationError{Cause: ierr}
	}
	return inst, nil
}

// installShim builds and registers, as a single wazero host module named
// after the interface's canonical path, one exported function per method
// the exporter's Descriptor declares for ifaceName. Each installed
// function bounces through the interface's bound trampoline before
// (and, via post_return, after) calling the shadow's real export.
func (g *CompositionGraph[D, C]) installShim(
	ctx context.Context,
	runtime wazero.Runtime,
	store *D,
	exporter *packageEntry[D, C],
	ifaceName string,
	shadow api.Module,
	mode trampoline.Kind,
) error {
	path := wit.ForeignInterfacePath{PackageName: exporter.name, InterfaceName: ifaceName, Version: exporter.version}

	export, ok := g.exportedInterfaces[path.String()]
	if !ok {
		return &MissingInterfaceExportError{Path: path.String()}
	}

	if mode == trampoline.KindSync && export.trampoline.Kind == trampoline.KindAsync {
		return ErrInvalidTrampolineSynchronicity
	}

	methods, ok := exporter.descriptor.Exports[ifaceName]
	if !ok {
		return &InstanceMissingInterfaceExportError{Interface: path.String()}
	}
	backed := false
	for _, method := range methods {
		if shadow.ExportedFunction(method) != nil {
			backed = true
			break
		}
	}
	if len(methods) > 0 && !backed {
		return &InstanceMissingInterfaceExportError{Interface: path.String()}
	}

	builder := runtime.NewHostModuleBuilder(path.String())
	for _, method := range methods {
		realFn := shadow.ExportedFunction(method)
		if realFn == nil {
			return &InstanceMissingInterfaceFuncExportError{Interface: path.String(), Func: method}
		}

		def := realFn.Definition()
		ft := trampoline.FuncType{Params: def.ParamTypes(), Results: def.ResultTypes()}

		method, realFn, ft := method, realFn, ft // per-iteration capture
		goFn := api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			g.bounceShim(ctx, store, shadow, realFn, path, method, ft, export.trampoline, stack)
		})

		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(goFn, ft.Params, ft.Results).
			Export(method)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return &LinkerInstanceError{Interface: path.String(), Cause: err}
	}
	return nil
}

// bounceShim is the body of every installed shim function. wazero's
// GoModuleFunction has no error return; a host function that needs to
// fail the call panics with the error, which wazero recovers and
// propagates to the caller of the guest export that triggered it (the
// same convention cue/interpreter/wasm relies on for its own host calls).
func (g *CompositionGraph[D, C]) bounceShim(
	ctx context.Context,
	store *D,
	shadow api.Module,
	realFn api.Function,
	path wit.ForeignInterfacePath,
	method string,
	ft trampoline.FuncType,
	dyn trampoline.DynInterfaceTrampoline[D, C],
	stack []uint64,
) {
	params := trampoline.CallParams[D, C]{
		Ctx:       ctx,
		Store:     store,
		Module:    shadow,
		Function:  realFn,
		Path:      path,
		Method:    method,
		FuncType:  ft,
		Arguments: append([]uint64(nil), stack[:len(ft.Params)]...),
	}

	switch dyn.Kind {
	case trampoline.KindAsync:
		result, err := dyn.Async.BounceAsync(ctx, params)
		if err != nil {
			panic(fmt.Errorf("compose: shim %s#%s failed: %w", path, method, err))
		}
		copy(stack, result.Results())
		if err := result.PostReturnAsync(ctx); err != nil {
			panic(err)
		}
	default:
		result, err := dyn.Sync.Bounce(params)
		if err != nil {
			panic(fmt.Errorf("compose: shim %s#%s failed: %w", path, method, err))
		}
		copy(stack, result.Results())
		if err := result.PostReturn(); err != nil {
			panic(err)
		}
	}
}
