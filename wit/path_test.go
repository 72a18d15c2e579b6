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

package wit_test

import (
	"errors"
	"testing"

	mmsemver "github.com/Masterminds/semver/v3"
	"github.com/go-quicktest/qt"

	"github.com/andyl-technologies/wasm-component-trampoline/wit"
)

// TestInterfacePathParsing mirrors original_source/src/path.rs's
// test_interface_path_parsing.
func TestInterfacePathParsing(t *testing.T) {
	path, err := wit.ParseInterfacePath("package_name/interface_name@1.0.0")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsTrue(path.HasPackage))
	qt.Check(t, qt.Equals(path.PackageName, "package_name"))
	qt.Check(t, qt.Equals(path.InterfaceName, "interface_name"))
	qt.Assert(t, qt.IsNotNil(path.Version))
	qt.Check(t, qt.IsTrue(path.Version.Equal(mmsemver.MustParse("1.0.0"))))

	path, err = wit.ParseInterfacePath("interface_name")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsFalse(path.HasPackage))
	qt.Check(t, qt.Equals(path.InterfaceName, "interface_name"))
	qt.Check(t, qt.IsNil(path.Version))

	path, err = wit.ParseInterfacePath("package_name/interface_name")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.IsTrue(path.HasPackage))
	qt.Check(t, qt.Equals(path.PackageName, "package_name"))
	qt.Check(t, qt.Equals(path.InterfaceName, "interface_name"))
	qt.Check(t, qt.IsNil(path.Version))

	_, err = wit.ParseInterfacePath("package_name/interface_name/")
	qt.Check(t, qt.ErrorIs(err, wit.ErrFormat))

	_, err = wit.ParseInterfacePath("package_name/interface_name@")
	var verErr *wit.VersionParseError
	qt.Check(t, qt.ErrorAs(err, &verErr))
}

func TestInterfacePathMultiSlashIsFormatError(t *testing.T) {
	_, err := wit.ParseInterfacePath("a/b/c")
	qt.Check(t, qt.ErrorIs(err, wit.ErrFormat))
}

func TestBareInterfaceWithAtIsFormatError(t *testing.T) {
	_, err := wit.ParseInterfacePath("interface@1.0.0")
	qt.Check(t, qt.ErrorIs(err, wit.ErrFormat))
}

func TestDisplayRoundTrip(t *testing.T) {
	for _, s := range []string{
		"interface_name",
		"package_name/interface_name",
		"package_name/interface_name@1.0.0",
	} {
		path, err := wit.ParseInterfacePath(s)
		qt.Assert(t, qt.IsNil(err))
		qt.Check(t, qt.Equals(path.String(), s))
	}
}

func TestIntoForeign(t *testing.T) {
	local, err := wit.ParseInterfacePath("local-only")
	qt.Assert(t, qt.IsNil(err))
	_, ok := local.IntoForeign()
	qt.Check(t, qt.IsFalse(ok))

	foreign, err := wit.ParseInterfacePath("test:kvstore/store@2.1.6")
	qt.Assert(t, qt.IsNil(err))
	f, ok := foreign.IntoForeign()
	qt.Assert(t, qt.IsTrue(ok))
	qt.Check(t, qt.Equals(f.String(), "test:kvstore/store@2.1.6"))
}

func TestErrFormatIsSentinel(t *testing.T) {
	_, err := wit.ParseInterfacePath("a/b/")
	qt.Check(t, qt.IsTrue(errors.Is(err, wit.ErrFormat)))
}
