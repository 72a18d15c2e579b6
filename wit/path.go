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

// Package wit defines the value types used to name a foreign (WIT)
// interface: a package name, an interface name, and an optional semantic
// version, plus a looser form that permits an absent package name for
// local (intra-component) references.
package wit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ErrFormat is returned by ParseInterfacePath when s does not conform to
// the "package/interface[@version]" or "interface" grammar.
var ErrFormat = errors.New("wit: invalid interface path format")

// VersionParseError wraps a semver parse failure encountered while parsing
// the "@version" suffix of an interface path.
type VersionParseError struct {
	Input string
	Err   error
}

func (e *VersionParseError) Error() string {
	return fmt.Sprintf("wit: invalid version %q: %v", e.Input, e.Err)
}

func (e *VersionParseError) Unwrap() error { return e.Err }

// ForeignInterfacePath is a fully-qualified reference to an interface
// exported by some package: (package name, interface name, optional
// version). Its canonical string form is "pkg/iface" or "pkg/iface@ver".
type ForeignInterfacePath struct {
	PackageName   string
	InterfaceName string
	Version       *semver.Version
}

// String renders the canonical form of p, used both as a map key and as
// the linker sub-instance name installed shims are registered under.
func (p ForeignInterfacePath) String() string {
	if p.Version == nil {
		return p.PackageName + "/" + p.InterfaceName
	}
	return p.PackageName + "/" + p.InterfaceName + "@" + p.Version.String()
}

// InterfacePath is a looser interface reference that permits an absent
// package name, denoting a "local" (intra-component) interface that
// cannot be demoted to a ForeignInterfacePath.
type InterfacePath struct {
	PackageName   string // empty means local
	HasPackage    bool
	InterfaceName string
	Version       *semver.Version
}

// String renders the canonical form of p.
func (p InterfacePath) String() string {
	if !p.HasPackage {
		return p.InterfaceName
	}
	f := ForeignInterfacePath{p.PackageName, p.InterfaceName, p.Version}
	return f.String()
}

// IntoForeign demotes p to a ForeignInterfacePath, returning ok=false if p
// is local (has no package name).
func (p InterfacePath) IntoForeign() (ForeignInterfacePath, bool) {
	if !p.HasPackage {
		return ForeignInterfacePath{}, false
	}
	return ForeignInterfacePath{p.PackageName, p.InterfaceName, p.Version}, true
}

// ParseInterfacePath parses the canonical form "package_name/interface_name@version",
// where both the package and the version are optional, yielding a local
// InterfacePath when the package is absent.
//
// "x/y/" (a trailing slash) and any path with more than one '/' is
// ErrFormat. "x/y@" (an empty version after '@') is a *VersionParseError.
// A bare interface name containing '@' with no package ("y@1.0.0") is
// ErrFormat, matching the original implementation's grammar: version
// specifiers are only meaningful alongside a package name.
func ParseInterfacePath(s string) (InterfacePath, error) {
	parts := strings.Split(s, "/")

	switch len(parts) {
	case 1:
		if strings.Contains(s, "@") {
			return InterfacePath{}, ErrFormat
		}
		return InterfacePath{InterfaceName: s}, nil
	case 2:
		// continue below
	default:
		return InterfacePath{}, ErrFormat
	}

	packageName := parts[0]
	if packageName == "" {
		return InterfacePath{}, ErrFormat
	}

	interfaceParts := strings.SplitN(parts[1], "@", 2)
	interfaceName := interfaceParts[0]
	if interfaceName == "" {
		return InterfacePath{}, ErrFormat
	}

	var version *semver.Version
	if len(interfaceParts) == 2 {
		v, err := semver.NewVersion(interfaceParts[1])
		if err != nil {
			return InterfacePath{}, &VersionParseError{Input: interfaceParts[1], Err: err}
		}
		version = v
	}

	return InterfacePath{
		PackageName:   packageName,
		HasPackage:    true,
		InterfaceName: interfaceName,
		Version:       version,
	}, nil
}
