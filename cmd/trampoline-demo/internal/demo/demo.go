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

// Package demo is the Go analogue of tests/runner: it loads a fixed
// three-component catalogue (logger, kvstore, application) from a
// directory of precompiled Wasm binaries, composes them with
// compose.CompositionGraph, and drives the application's exported
// set_name/hello pair through the installed shims, logging every bounced
// call the way runner.rs's PassthroughTrampoline does.
//
// This package carries no WIT/component-model string-lifting support (no
// Rust/WIT toolchain is available to produce component fixtures that
// actually pass component-model strings across the boundary — see
// compose/internal/fixture and DESIGN.md); set_name/hello are realized
// over plain i32s, the same numeric stand-in the compose test suite uses
// for the same reason, rather than the original scenario's literal
// strings.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	mmsemver "github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"

	"github.com/andyl-technologies/wasm-component-trampoline/compose"
	"github.com/andyl-technologies/wasm-component-trampoline/filter"
	"github.com/andyl-technologies/wasm-component-trampoline/trampoline"
)

// hostStore is the per-instantiation data threaded through every call; it
// tracks the current cross-component call-stack depth so the trampoline
// can log the 0->1->0 shape spec.md's S1 scenario asserts.
type hostStore struct {
	depth int
}

// component describes one of the three demo artifacts expected under
// wasmDir, paired with the Descriptor a real WIT type-info store would
// otherwise supply.
type component struct {
	file       string
	name       string
	version    string
	descriptor compose.Descriptor
}

var components = []component{
	{
		file:    "logger.wasm",
		name:    "test:logging",
		version: "1.1.1",
		descriptor: compose.Descriptor{
			Exports: map[string][]string{"logger": {"log"}},
		},
	},
	{
		file:    "kvstore.wasm",
		name:    "test:kvstore",
		version: "2.1.6",
		descriptor: compose.Descriptor{
			Exports: map[string][]string{"store": {"set_name", "get_name"}},
			Imports: []string{"test:logging/logger@1.1.1"},
		},
	},
	{
		file:    "application.wasm",
		name:    "test:app",
		version: "0.4.0",
		descriptor: compose.Descriptor{
			Exports: map[string][]string{"app": {"set_name", "hello"}},
			Imports: []string{"test:kvstore/store@2.0.0", "test:logging/logger@1.1.1"},
		},
	},
}

// Run loads the logger/kvstore/application triple from wasmDir, composes
// them against a fresh wazero runtime, and calls set_name then hello on
// the resulting instance, logging each shimmed bounce as it happens.
func Run(ctx context.Context, logger *slog.Logger, wasmDir string) error {
	g := compose.NewCompositionGraph[hostStore, string]()
	// Mirrors S1's host-supplied filter: a hypothetical "system" logging
	// sub-interface is assumed satisfied by direct host linkage, so it is
	// skipped rather than resolved against the catalogue.
	g.SetImportFilter(filter.NewRegexFilter(regexp.MustCompile(`^test:logging/system$`), filter.Skip))

	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	var appID compose.PackageId
	var haveApp bool
	for _, c := range components {
		raw, err := os.ReadFile(filepath.Join(wasmDir, c.file))
		if err != nil {
			return fmt.Errorf("demo: reading %s: %w", c.file, err)
		}

		version, err := mmsemver.NewVersion(c.version)
		if err != nil {
			return fmt.Errorf("demo: parsing version %q for %s: %w", c.version, c.name, err)
		}

		pt := trampoline.NewPackageTrampoline[hostStore](
			trampoline.Trampoline[hostStore, string](loggingTrampoline(logger)), c.name)

		id, err := g.AddPackage(c.name, version, raw, c.descriptor, pt)
		if err != nil {
			return fmt.Errorf("demo: adding %s@%s: %w", c.name, c.version, err)
		}
		if c.name == "test:app" {
			appID, haveApp = id, true
		}
	}
	if !haveApp {
		return fmt.Errorf("demo: catalogue never registered test:app")
	}

	inst, err := g.Instantiate(ctx, appID, runtime, &hostStore{})
	if err != nil {
		return fmt.Errorf("demo: instantiate: %w", err)
	}

	setName := inst.ExportedFunction("set_name")
	if setName == nil {
		return &compose.ComponentFuncRetrievalError{Interface: "test:app/app", Func: "set_name"}
	}
	hello := inst.ExportedFunction("hello")
	if hello == nil {
		return &compose.ComponentFuncRetrievalError{Interface: "test:app/app", Func: "hello"}
	}

	const daveID = 7 // stand-in for the string "Dave"; see package doc.
	if _, err := setName.Call(ctx, daveID); err != nil {
		return fmt.Errorf("demo: set_name: %w", err)
	}
	results, err := hello.Call(ctx)
	if err != nil {
		return fmt.Errorf("demo: hello: %w", err)
	}

	logger.Info("hello", slog.Uint64("greeting_id", results[0]))
	fmt.Printf("hello() == %d (expected %d, echoing set_name's argument)\n", results[0], daveID)
	return nil
}

// loggingTrampoline is the Go analogue of runner.rs's PassthroughTrampoline:
// it logs the call site and stack depth before and after forwarding to the
// real export, leaving the call itself untouched.
func loggingTrampoline(logger *slog.Logger) trampoline.Trampoline[hostStore, string] {
	return func(call *trampoline.GuestCall[hostStore, string]) (*trampoline.GuestResult[hostStore, string], error) {
		data := call.Data()
		store := data.Store()

		logger.Debug("bounce enter",
			slog.String("interface", data.Interface().String()),
			slog.String("method", data.Method()),
			slog.Int("depth", store.depth))
		store.depth++

		result, err := call.Call()

		store.depth--
		logger.Debug("bounce exit",
			slog.String("interface", data.Interface().String()),
			slog.String("method", data.Method()),
			slog.Int("depth", store.depth))

		return result, err
	}
}
