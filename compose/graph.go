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
	"github.com/andyl-technologies/wasm-component-trampoline/filter"
	"github.com/andyl-technologies/wasm-component-trampoline/semver"
	"github.com/andyl-technologies/wasm-component-trampoline/trampoline"
	"github.com/andyl-technologies/wasm-component-trampoline/wit"
)

// interfaceExport is one entry of exported_interfaces: the package that
// owns the interface, and the bound trampoline the graph installs a shim
// around whenever the interface is required as a dependency.
type interfaceExport[D any, C any] struct {
	owningPackage PackageId
	interfaceName string
	trampoline    trampoline.DynInterfaceTrampoline[D, C]
}

// importRecord is one entry of a package's recorded foreign imports,
// after filtering.
type importRecord struct {
	path   wit.ForeignInterfacePath
	forced bool
}

// CompositionGraph is the package catalogue: it ingests packages, indexes
// their exported and imported interfaces, resolves dependency order with
// cycle detection, and drives shadow instantiation and shim installation
// for a given target against a caller-supplied wazero.Runtime.
//
// D is the host store type threaded through every call (the type
// InterfaceTrampoline's GuestCallData.Store returns); C is the trampoline
// context type. A CompositionGraph is not safe for concurrent use; guard
// it externally if multiple goroutines share one instance.
type CompositionGraph[D any, C any] struct {
	packages   []*packageEntry[D, C]
	packageMap map[string]*semver.VersionMap[PackageId]

	exportedInterfaces map[string]interfaceExport[D, C]
	importedInterfaces map[PackageId][]importRecord

	importFilter filter.Filter
}

// NewCompositionGraph returns an empty CompositionGraph.
func NewCompositionGraph[D any, C any]() *CompositionGraph[D, C] {
	return &CompositionGraph[D, C]{
		packageMap:         make(map[string]*semver.VersionMap[PackageId]),
		exportedInterfaces: make(map[string]interfaceExport[D, C]),
		importedInterfaces: make(map[PackageId][]importRecord),
	}
}

// SetImportFilter installs the filter consulted while indexing every
// package's foreign imports. A nil filter (the zero value) classifies
// every import as filter.Include, matching spec's default.
func (g *CompositionGraph[D, C]) SetImportFilter(f filter.Filter) {
	g.importFilter = f
}

func (g *CompositionGraph[D, C]) filterRule(path wit.ForeignInterfacePath) filter.Rule {
	if g.importFilter == nil {
		return filter.Include
	}
	return g.importFilter.FilterRule(path)
}

// AddPackage parses bytes (validated as a Core Wasm module; see
// validateModuleHeader), catalogues it under (name, version), indexes
// every interface its Descriptor claims to export, and re-scans the
// entire catalogue's declared imports. On any failure the catalogue is
// left exactly as it was before the call.
func (g *CompositionGraph[D, C]) AddPackage(
	name string,
	version *semver.Version,
	bytes []byte,
	descriptor Descriptor,
	pt *trampoline.PackageTrampoline[D, C],
) (PackageId, error) {
	if err := validateModuleHeader(bytes); err != nil {
		return 0, err
	}

	vm := g.packageMap[name]
	if vm == nil {
		vm = semver.NewVersionMap[PackageId]()
	}
	if _, _, ok := vm.TryInsert(version, PackageId(len(g.packages))); !ok {
		return 0, &DuplicatePackageError{Name: name, Version: version}
	}

	id := PackageId(len(g.packages))
	entry := &packageEntry[D, C]{
		id:         id,
		name:       name,
		version:    version,
		bytes:      bytes,
		descriptor: descriptor,
		trampoline: pt,
	}

	g.packages = append(g.packages, entry)
	g.packageMap[name] = vm

	for iface := range descriptor.Exports {
		path := wit.ForeignInterfacePath{PackageName: name, InterfaceName: iface, Version: version}
		g.exportedInterfaces[path.String()] = interfaceExport[D, C]{
			owningPackage: id,
			interfaceName: iface,
			trampoline:    pt.InterfaceTrampoline(iface),
		}
	}

	if err := g.reindexImports(); err != nil {
		g.rollbackLastPackage(name, version)
		return 0, err
	}

	return id, nil
}

// rollbackLastPackage undoes the catalogue mutations AddPackage performed
// for the package most recently appended, in response to a failure
// discovered only after it was tentatively added (e.g. a bad import
// string found during the full-catalogue import rescan).
func (g *CompositionGraph[D, C]) rollbackLastPackage(name string, version *semver.Version) {
	id := PackageId(len(g.packages) - 1)
	entry := g.packages[id]

	for iface := range entry.descriptor.Exports {
		path := wit.ForeignInterfacePath{PackageName: name, InterfaceName: iface, Version: version}
		delete(g.exportedInterfaces, path.String())
	}

	g.packages = g.packages[:id]
	if vm := g.packageMap[name]; vm != nil {
		vm.Remove(version)
		if vm.Len() == 0 {
			delete(g.packageMap, name)
		}
	}
	delete(g.importedInterfaces, id)
}

// reindexImports recomputes imported_interfaces from scratch across every
// catalogued package, per spec.md §4.4.1 step 5. It builds the full
// replacement map before installing it, so a parse error partway through
// leaves the graph's visible state untouched.
func (g *CompositionGraph[D, C]) reindexImports() error {
	next := make(map[PackageId][]importRecord, len(g.packages))

	for _, entry := range g.packages {
		seen := make(map[string]int) // path string -> index into records, for dedup
		var records []importRecord

		for _, raw := range entry.descriptor.Imports {
			parsed, err := wit.ParseInterfacePath(raw)
			if err != nil {
				return &ImportParseError{Path: raw, Cause: err}
			}
			if !parsed.HasPackage {
				continue // local import, not recorded
			}
			foreign, _ := parsed.IntoForeign()

			rule := g.filterRule(foreign)
			if rule == filter.Skip {
				continue
			}

			key := foreign.String()
			if idx, ok := seen[key]; ok {
				if rule == filter.Force {
					records[idx].forced = true
				}
				continue
			}
			seen[key] = len(records)
			records = append(records, importRecord{path: foreign, forced: rule == filter.Force})
		}

		next[entry.id] = records
	}

	g.importedInterfaces = next
	return nil
}

// resolveImport looks up the package a foreign import path resolves to, by
// the rules of §4.4.2: exact/alternate lookup when a
// version is given, latest-of-primary when it is not.
func (g *CompositionGraph[D, C]) resolveImport(path wit.ForeignInterfacePath) (PackageId, error) {
	vm, ok := g.packageMap[path.PackageName]
	if !ok {
		return 0, &MissingPackageDependencyError{Name: path.PackageName}
	}
	id, ok := vm.GetOrLatest(path.Version)
	if !ok {
		return 0, &CannotResolvePackageVersionError{Name: path.PackageName, Version: path.Version}
	}
	return id, nil
}

// ResolveLoadOrder computes the order in which origin's dependencies must
// be shadow-instantiated (post-order DFS, origin last), and, per
// dependency package, the set of interface names that origin's
// transitive closure actually requires from it. It fails with
// PackageCycleError, MissingPackageDependencyError, or
// CannotResolvePackageVersionError, matching §4.4.2.
func (g *CompositionGraph[D, C]) ResolveLoadOrder(origin PackageId) ([]PackageId, map[PackageId]map[string]bool, error) {
	if int(origin) < 0 || int(origin) >= len(g.packages) {
		return nil, nil, &PackageNotFoundError{ID: origin}
	}

	var order []PackageId
	visited := make(map[PackageId]bool)
	onStack := make(map[PackageId]bool)
	var stack []PackageId
	required := make(map[PackageId]map[string]bool)

	var visit func(id PackageId) error
	visit = func(id PackageId) error {
		if onStack[id] {
			return g.cycleError(stack, id)
		}
		if visited[id] {
			return nil
		}

		onStack[id] = true
		stack = append(stack, id)

		for _, imp := range g.importedInterfaces[id] {
			depID, err := g.resolveImport(imp.path)
			if err != nil {
				return err
			}

			if required[depID] == nil {
				required[depID] = make(map[string]bool)
			}
			required[depID][imp.path.InterfaceName] = true

			if depID != id {
				if err := visit(depID); err != nil {
					return err
				}
			}
		}

		onStack[id] = false
		stack = stack[:len(stack)-1]
		visited[id] = true
		order = append(order, id)
		return nil
	}

	if err := visit(origin); err != nil {
		return nil, nil, err
	}
	return order, required, nil
}

func (g *CompositionGraph[D, C]) cycleError(stack []PackageId, reentered PackageId) error {
	idx := 0
	for i, id := range stack {
		if id == reentered {
			idx = i
			break
		}
	}
	chain := append(append([]PackageId{}, stack[idx:]...), reentered)

	names := make([]string, len(chain))
	for i, id := range chain {
		names[i] = g.packages[id].name
	}
	return &PackageCycleError{Chain: names}
}
