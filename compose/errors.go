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
	"errors"
	"fmt"
	"strings"

	"github.com/andyl-technologies/wasm-component-trampoline/semver"
)

// errNotAWasmModule is the cause wrapped by PackageParseError when a
// package's bytes fail even the minimal Core Wasm header check.
var errNotAWasmModule = errors.New("compose: bytes do not begin with a Wasm module header")

// ErrInvalidTrampolineSynchronicity is returned by Instantiate when a
// required interface's trampoline is asynchronous, which only
// InstantiateAsync can install; the reverse (a synchronous trampoline
// under InstantiateAsync) is permitted.
var ErrInvalidTrampolineSynchronicity = errors.New("compose: trampoline synchronicity does not match the instantiation mode")

// DuplicatePackageError is returned by AddPackage when (name, version) is
// already present in the catalogue.
type DuplicatePackageError struct {
	Name    string
	Version *semver.Version
}

func (e *DuplicatePackageError) Error() string {
	return fmt.Sprintf("compose: package %s@%s already exists", e.Name, e.Version)
}

// PackageParseError is returned by AddPackage when bytes could not be
// recognized as a Wasm module.
type PackageParseError struct {
	Cause error
}

func (e *PackageParseError) Error() string { return fmt.Sprintf("compose: package parse failed: %v", e.Cause) }
func (e *PackageParseError) Unwrap() error { return e.Cause }

// ImportParseError is returned by AddPackage when one of a package's
// declared import strings fails wit.ParseInterfacePath.
type ImportParseError struct {
	Path  string
	Cause error
}

func (e *ImportParseError) Error() string {
	return fmt.Sprintf("compose: invalid import path %q: %v", e.Path, e.Cause)
}
func (e *ImportParseError) Unwrap() error { return e.Cause }

// PackageCycleError is returned by ResolveLoadOrder (and so by Instantiate
// and InstantiateAsync) when the dependency graph reachable from the
// origin contains a cycle. Chain lists package names starting at the
// first repeated node and ending at its re-encounter, e.g. [A, B, A].
type PackageCycleError struct {
	Chain []string
}

func (e *PackageCycleError) Error() string {
	return fmt.Sprintf("compose: dependency cycle: %s", strings.Join(e.Chain, " -> "))
}

// MissingPackageDependencyError is returned when an import names a
// package that has never been added to the catalogue.
type MissingPackageDependencyError struct {
	Name string
}

func (e *MissingPackageDependencyError) Error() string {
	return fmt.Sprintf("compose: no package named %q in the catalogue", e.Name)
}

// CannotResolvePackageVersionError is returned when a package name
// resolves but no catalogued version satisfies the request (neither
// exact, alternate-fallback, nor latest-when-unspecified).
type CannotResolvePackageVersionError struct {
	Name    string
	Version *semver.Version // nil when the import specified no version
}

func (e *CannotResolvePackageVersionError) Error() string {
	if e.Version == nil {
		return fmt.Sprintf("compose: no version of package %q satisfies the (unspecified) request", e.Name)
	}
	return fmt.Sprintf("compose: no version of package %q satisfies %s", e.Name, e.Version)
}

// PackageNotFoundError is returned when a PackageId does not identify a
// catalogued package.
type PackageNotFoundError struct {
	ID PackageId
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("compose: no package with id %d", e.ID)
}

// InstantiatePackageDependencyError wraps the failure to shadow-instantiate
// one of a target's transitive dependencies.
type InstantiatePackageDependencyError struct {
	Name    string
	Version *semver.Version
	Cause   error
}

func (e *InstantiatePackageDependencyError) Error() string {
	return fmt.Sprintf("compose: failed to instantiate dependency %s@%s: %v", e.Name, e.Version, e.Cause)
}
func (e *InstantiatePackageDependencyError) Unwrap() error { return e.Cause }

// ComponentInstantiationError wraps a failure instantiating the target
// package itself, once every dependency has been shadow-instantiated and
// shimmed.
type ComponentInstantiationError struct {
	Cause error
}

func (e *ComponentInstantiationError) Error() string {
	return fmt.Sprintf("compose: failed to instantiate target: %v", e.Cause)
}
func (e *ComponentInstantiationError) Unwrap() error { return e.Cause }

// LinkerInstanceError wraps a failure registering a shim's host module
// (wazero's analogue of a Linker sub-instance) against the runtime.
type LinkerInstanceError struct {
	Interface string
	Cause     error
}

func (e *LinkerInstanceError) Error() string {
	return fmt.Sprintf("compose: failed to install shim sub-instance for %s: %v", e.Interface, e.Cause)
}
func (e *LinkerInstanceError) Unwrap() error { return e.Cause }

// LinkFuncInstantiationError wraps a failure installing a single function
// within an otherwise-successful shim sub-instance. wazero's
// HostModuleBuilder has no install-time failure distinct from the
// sub-instance's own Instantiate call (see LinkerInstanceError); this type
// is retained for parity with the full error taxonomy but is not
// constructed by this package's wazero-based implementation.
type LinkFuncInstantiationError struct {
	Interface string
	Func      string
	Cause     error
}

func (e *LinkFuncInstantiationError) Error() string {
	return fmt.Sprintf("compose: failed to install shim function %s#%s: %v", e.Interface, e.Func, e.Cause)
}
func (e *LinkFuncInstantiationError) Unwrap() error { return e.Cause }

// InstanceMissingInterfaceExportError is returned when a shadow instance
// lacks any function belonging to an interface its owning package's
// Descriptor claims to export.
type InstanceMissingInterfaceExportError struct {
	Interface string
}

func (e *InstanceMissingInterfaceExportError) Error() string {
	return fmt.Sprintf("compose: shadow instance has no exports for interface %s", e.Interface)
}

// InstanceMissingInterfaceFuncExportError is returned when a shadow
// instance is missing one specific function of a required interface.
type InstanceMissingInterfaceFuncExportError struct {
	Interface string
	Func      string
}

func (e *InstanceMissingInterfaceFuncExportError) Error() string {
	return fmt.Sprintf("compose: shadow instance has no export %q for interface %s", e.Func, e.Interface)
}

// ComponentFuncRetrievalError is returned when a function known to be
// exported by name cannot be retrieved from an already-instantiated
// component, e.g. when a caller (such as the demo CLI) looks up a method
// on the final target instance to invoke it directly.
type ComponentFuncRetrievalError struct {
	Interface string
	Func      string
}

func (e *ComponentFuncRetrievalError) Error() string {
	return fmt.Sprintf("compose: could not retrieve function %s#%s from instance", e.Interface, e.Func)
}

// MissingInterfaceExportError is returned when a required import resolves
// to a package that never indexed the requested interface in
// exported_interfaces (i.e. the owning package's Descriptor never
// declared it), distinct from InstanceMissingInterfaceExportError, which
// fires when the declaration exists but the shadow instance's actual
// exports don't back it up.
type MissingInterfaceExportError struct {
	Path string
}

func (e *MissingInterfaceExportError) Error() string {
	return fmt.Sprintf("compose: no catalogued package exports interface %s", e.Path)
}
