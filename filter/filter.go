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

// Package filter classifies foreign imports discovered while cataloguing a
// package as Skip, Include, or Force, letting a host decide which
// cross-component imports the composition graph should actually resolve
// and wire shims for.
package filter

import (
	"regexp"

	"github.com/andyl-technologies/wasm-component-trampoline/wit"
)

// Rule is the classification of a single foreign import.
type Rule int

const (
	// Include resolves the import normally. This is the default.
	Include Rule = iota
	// Skip omits the import from resolution and shim installation; the
	// runtime is assumed to satisfy it some other way (host linkage).
	Skip
	// Force resolves the import even if no downstream function of the
	// interface is actually reachable from the target's transitive
	// closure.
	Force
)

func (r Rule) String() string {
	switch r {
	case Skip:
		return "skip"
	case Force:
		return "force"
	default:
		return "include"
	}
}

// Filter classifies a foreign import path into a Rule.
type Filter interface {
	FilterRule(path wit.ForeignInterfacePath) Rule
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(path wit.ForeignInterfacePath) Rule

// FilterRule implements Filter.
func (f FilterFunc) FilterRule(path wit.ForeignInterfacePath) Rule { return f(path) }

// Always is a Filter that returns the same Rule regardless of path.
type Always Rule

// FilterRule implements Filter.
func (a Always) FilterRule(wit.ForeignInterfacePath) Rule { return Rule(a) }

// Chain evaluates a sequence of filters in order, short-circuiting on the
// first Skip or Force; an all-Include chain (or an empty one) yields
// Include.
type Chain []Filter

// FilterRule implements Filter.
func (c Chain) FilterRule(path wit.ForeignInterfacePath) Rule {
	for _, f := range c {
		switch r := f.FilterRule(path); r {
		case Skip, Force:
			return r
		case Include:
			continue
		}
	}
	return Include
}

// RegexFilter matches the canonical rendered form of an import path
// against a regular expression, yielding matchRule on a match and
// defaultRule otherwise. The zero value's defaultRule is Include.
type RegexFilter struct {
	Regex       *regexp.Regexp
	MatchRule   Filter
	DefaultRule Filter
}

// NewRegexFilter returns a RegexFilter that yields matchRule on a match and
// Include otherwise.
func NewRegexFilter(re *regexp.Regexp, matchRule Rule) *RegexFilter {
	return &RegexFilter{Regex: re, MatchRule: Always(matchRule), DefaultRule: Always(Include)}
}

// FilterRule implements Filter.
func (f *RegexFilter) FilterRule(path wit.ForeignInterfacePath) Rule {
	if f.Regex.MatchString(path.String()) {
		if f.MatchRule != nil {
			return f.MatchRule.FilterRule(path)
		}
		return Include
	}
	if f.DefaultRule != nil {
		return f.DefaultRule.FilterRule(path)
	}
	return Include
}
