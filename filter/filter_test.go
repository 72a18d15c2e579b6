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

package filter_test

import (
	"regexp"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/andyl-technologies/wasm-component-trampoline/filter"
	"github.com/andyl-technologies/wasm-component-trampoline/wit"
)

func path(t *testing.T, s string) wit.ForeignInterfacePath {
	t.Helper()
	p, err := wit.ParseInterfacePath(s)
	qt.Assert(t, qt.IsNil(err))
	f, ok := p.IntoForeign()
	qt.Assert(t, qt.IsTrue(ok))
	return f
}

func TestDefaultRuleIsInclude(t *testing.T) {
	var c filter.Chain
	qt.Check(t, qt.Equals(c.FilterRule(path(t, "test:logging/logger")), filter.Include))
}

func TestChainShortCircuitsOnSkip(t *testing.T) {
	c := filter.Chain{
		filter.Always(filter.Include),
		filter.Always(filter.Skip),
		filter.Always(filter.Force),
	}
	qt.Check(t, qt.Equals(c.FilterRule(path(t, "test:logging/logger")), filter.Skip))
}

func TestChainShortCircuitsOnForce(t *testing.T) {
	c := filter.Chain{
		filter.Always(filter.Include),
		filter.Always(filter.Force),
		filter.Always(filter.Skip),
	}
	qt.Check(t, qt.Equals(c.FilterRule(path(t, "test:logging/logger")), filter.Force))
}

func TestRegexFilterMatchAndDefault(t *testing.T) {
	re := regexp.MustCompile(`^test:logging/.*`)
	f := filter.NewRegexFilter(re, filter.Skip)

	qt.Check(t, qt.Equals(f.FilterRule(path(t, "test:logging/system")), filter.Skip))
	qt.Check(t, qt.Equals(f.FilterRule(path(t, "test:kvstore/store@2.1.6")), filter.Include))
}
