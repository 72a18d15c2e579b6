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

package compose_test

import (
	"errors"
	"regexp"
	"testing"

	mmsemver "github.com/Masterminds/semver/v3"
	"github.com/go-quicktest/qt"

	"github.com/andyl-technologies/wasm-component-trampoline/compose"
	"github.com/andyl-technologies/wasm-component-trampoline/compose/internal/fixture"
	"github.com/andyl-technologies/wasm-component-trampoline/filter"
	"github.com/andyl-technologies/wasm-component-trampoline/trampoline"
)

type appStore struct{}

func passthroughTrampoline() *trampoline.PackageTrampoline[appStore, string] {
	return trampoline.NewPackageTrampoline[appStore](trampoline.Trampoline[appStore, string](trampoline.Passthrough[appStore, string]), "")
}

func mustVersion(t *testing.T, s string) *mmsemver.Version {
	t.Helper()
	v, err := mmsemver.NewVersion(s)
	qt.Assert(t, qt.IsNil(err))
	return v
}

func loggerBytes() []byte {
	return fixture.NewBuilder().
		Func("log", 1, 1, fixture.LocalGet(0)).
		Build()
}

// TestAddPackageRejectsInvalidBytes is S6.
func TestAddPackageRejectsInvalidBytes(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	_, err := g.AddPackage("test:logging", mustVersion(t, "1.1.1"), []byte("not wasm"), compose.Descriptor{
		Exports: map[string][]string{"logger": {"log"}},
	}, passthroughTrampoline())

	var parseErr *compose.PackageParseError
	qt.Assert(t, qt.ErrorAs(err, &parseErr))
}

// TestAddPackageRejectsDuplicate is S2/P5.
func TestAddPackageRejectsDuplicate(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	descriptor := compose.Descriptor{Exports: map[string][]string{"logger": {"log"}}}

	_, err := g.AddPackage("test:logging", mustVersion(t, "1.1.1"), loggerBytes(), descriptor, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	_, err = g.AddPackage("test:logging", mustVersion(t, "1.1.1"), loggerBytes(), descriptor, passthroughTrampoline())

	var dupErr *compose.DuplicatePackageError
	qt.Assert(t, qt.ErrorAs(err, &dupErr))
	qt.Check(t, qt.Equals(dupErr.Name, "test:logging"))
}

func TestResolveLoadOrderDetectsCycle(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()

	aDescriptor := compose.Descriptor{
		Exports: map[string][]string{"a": {"run"}},
		Imports: []string{"test:b/b@1.0.0"},
	}
	bDescriptor := compose.Descriptor{
		Exports: map[string][]string{"b": {"run"}},
		Imports: []string{"test:a/a@1.0.0"},
	}

	idA, err := g.AddPackage("test:a", mustVersion(t, "1.0.0"), fixture.NewBuilder().
		Import("test:b/b@1.0.0", "run", 0, 1).
		Func("run", 0, 1, fixture.I32Const(1)).
		Build(), aDescriptor, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	_, err = g.AddPackage("test:b", mustVersion(t, "1.0.0"), fixture.NewBuilder().
		Import("test:a/a@1.0.0", "run", 0, 1).
		Func("run", 0, 1, fixture.I32Const(2)).
		Build(), bDescriptor, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	_, _, err = g.ResolveLoadOrder(idA)
	var cycleErr *compose.PackageCycleError
	qt.Assert(t, qt.ErrorAs(err, &cycleErr))
	qt.Check(t, qt.DeepEquals(cycleErr.Chain, []string{"test:a", "test:b", "test:a"}))
}

func TestResolveLoadOrderMissingDependency(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	id, err := g.AddPackage("test:app", mustVersion(t, "1.0.0"), fixture.NewBuilder().
		Import("test:missing/thing", "run", 0, 1).
		Func("run", 0, 1, fixture.LocalGet(0)).
		Build(), compose.Descriptor{
		Exports: map[string][]string{"app": {"run"}},
		Imports: []string{"test:missing/thing"},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	_, _, err = g.ResolveLoadOrder(id)
	var missing *compose.MissingPackageDependencyError
	qt.Assert(t, qt.ErrorAs(err, &missing))
	qt.Check(t, qt.Equals(missing.Name, "test:missing"))
}

// TestResolveLoadOrderAlternateVersion is S3.
func TestResolveLoadOrderAlternateVersion(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	_, err := g.AddPackage("test:kvstore", mustVersion(t, "2.1.6"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"store": {"get"}},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	id, err := g.AddPackage("test:app", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Imports: []string{"test:kvstore/store@2.0.0"},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	order, required, err := g.ResolveLoadOrder(id)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.HasLen(order, 2))
	qt.Check(t, qt.Equals(order[len(order)-1], id))

	var sawStore bool
	for _, ifaces := range required {
		if ifaces["store"] {
			sawStore = true
		}
	}
	qt.Check(t, qt.IsTrue(sawStore))
}

// TestResolveLoadOrderWrongMajorFails is S4.
func TestResolveLoadOrderWrongMajorFails(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	_, err := g.AddPackage("test:logging", mustVersion(t, "100.0.0"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"logger": {"log"}},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	id, err := g.AddPackage("test:app", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Imports: []string{"test:logging/logger@1.0.0"},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	_, _, err = g.ResolveLoadOrder(id)
	var verErr *compose.CannotResolvePackageVersionError
	qt.Assert(t, qt.ErrorAs(err, &verErr))
	qt.Check(t, qt.Equals(verErr.Name, "test:logging"))
}

func TestAddPackageInvalidImportRollsBack(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	_, err := g.AddPackage("test:app", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"app": {"log"}},
		Imports: []string{"bad/path/extra"},
	}, passthroughTrampoline())

	var impErr *compose.ImportParseError
	qt.Assert(t, qt.ErrorAs(err, &impErr))

	// The package must not have been catalogued: a fresh add under the
	// same (name, version) should succeed, not return DuplicatePackage.
	_, err = g.AddPackage("test:app", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"app": {"log"}},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))
}

func TestImportFilterSkipsMatchedPaths(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	g.SetImportFilter(filter.NewRegexFilter(regexp.MustCompile(`^test:logging/`), filter.Skip))

	_, err := g.AddPackage("test:logging", mustVersion(t, "1.1.1"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"logger": {"log"}},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	id, err := g.AddPackage("test:app", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Imports: []string{"test:logging/logger@1.1.1"},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	order, _, err := g.ResolveLoadOrder(id)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.DeepEquals(order, []compose.PackageId{id}))
}

// TestImportFilterForceStillInstalls verifies the filter's Force rule:
// even though this application's body never actually calls the imported
// "store" interface's functions (its only function, log, returns its
// argument and its module imports nothing), Force still causes
// ResolveLoadOrder to record it as required so a shim gets installed on
// the shadow. Under the default Include rule the same happens, since this
// graph always installs a shim for every declared, non-Skip import
// reachable from the target (see DESIGN.md) rather than tracking actual
// call sites; this test pins that Force is never weaker than Include.
func TestImportFilterForceStillInstalls(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	g.SetImportFilter(filter.NewRegexFilter(regexp.MustCompile(`^test:kvstore/`), filter.Force))

	_, err := g.AddPackage("test:kvstore", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"store": {"log"}},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	id, err := g.AddPackage("test:app", mustVersion(t, "1.0.0"), loggerBytes(), compose.Descriptor{
		Exports: map[string][]string{"app": {"log"}},
		Imports: []string{"test:kvstore/store@1.0.0"},
	}, passthroughTrampoline())
	qt.Assert(t, qt.IsNil(err))

	order, required, err := g.ResolveLoadOrder(id)
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.HasLen(order, 2))

	var forced bool
	for _, ifaces := range required {
		if ifaces["store"] {
			forced = true
		}
	}
	qt.Check(t, qt.IsTrue(forced))
}

func TestResolveLoadOrderUnknownOrigin(t *testing.T) {
	g := compose.NewCompositionGraph[appStore, string]()
	_, _, err := g.ResolveLoadOrder(compose.PackageId(42))
	var notFound *compose.PackageNotFoundError
	qt.Assert(t, qt.ErrorAs(err, &notFound))
}

func TestErrorsAreUnwrappable(t *testing.T) {
	cause := errors.New("boom")
	err := &compose.ComponentInstantiationError{Cause: cause}
	qt.Check(t, qt.ErrorIs(err, cause))
}
