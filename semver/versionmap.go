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

// Package semver provides VersionMap, an ordered map keyed by semantic
// version with a secondary "alternate" index that supports fallback lookup
// of the latest API-compatible version for a given query.
package semver

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Version is the semantic version type used throughout this module. It is
// an alias for Masterminds/semver/v3's Version rather than a hand-rolled
// triple: it already gives us Prerelease(), Metadata(), and a total
// Compare order matching the SemVer 2.0 precedence rules this package
// depends on.
type Version = semver.Version

// VersionMap stores one value of type T per exact version, and resolves a
// "fuzzy" query to the latest matching stored version by the alternate-key
// compatibility rule described on Alternate.
//
// The zero value is ready to use.
type VersionMap[T any] struct {
	// order holds every inserted version, sorted ascending. It is the
	// primary ordered map: values live in parallel in the values slice at
	// the same index.
	order  []*Version
	values []T

	// alternates maps an alternate-key string to the sorted list of
	// concrete versions that share it.
	alternates map[string][]*Version
}

// NewVersionMap returns an empty VersionMap. Using the zero value directly
// also works; this constructor exists for symmetry with the rest of the
// corpus's New-prefixed constructors.
func NewVersionMap[T any]() *VersionMap[T] {
	return &VersionMap[T]{}
}

// Alternate returns the alternate key grouping API-compatible siblings of
// v, or nil if v has no alternate (i.e. v carries a pre-release tag).
//
// Under SemVer, 1.x.y versions are API-compatible with each other; under
// 0.x.y, minor versions are breaking; under 0.0.z, every patch is
// breaking. Bucketing by alternate groups compatible siblings so that the
// highest member of a bucket is "the latest compatible" version.
func Alternate(v *Version) *Version {
	if v.Prerelease() != "" {
		return nil
	}
	switch {
	case v.Major() > 0:
		return semver.New(v.Major(), 0, 0, "", "")
	case v.Minor() > 0:
		return semver.New(0, v.Minor(), 0, "", "")
	default:
		return semver.New(0, 0, v.Patch(), "", "")
	}
}

func (m *VersionMap[T]) find(v *Version) (idx int, ok bool) {
	idx = sort.Search(len(m.order), func(i int) bool {
		return m.order[i].Compare(v) >= 0
	})
	if idx < len(m.order) && m.order[idx].Equal(v) {
		return idx, true
	}
	return idx, false
}

func (m *VersionMap[T]) insertAt(idx int, v *Version, value T) {
	m.order = append(m.order, nil)
	copy(m.order[idx+1:], m.order[idx:])
	m.order[idx] = v

	m.values = append(m.values, value)
	copy(m.values[idx+1:], m.values[idx:])
	m.values[idx] = value
}

func (m *VersionMap[T]) addToAlternateBucket(v *Version) {
	alt := Alternate(v)
	if alt == nil {
		return
	}
	if m.alternates == nil {
		m.alternates = make(map[string][]*Version)
	}
	key := alt.String()
	bucket := m.alternates[key]
	idx := sort.Search(len(bucket), func(i int) bool { return bucket[i].Compare(v) >= 0 })
	bucket = append(bucket, nil)
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = v
	m.alternates[key] = bucket
}

func (m *VersionMap[T]) removeFromAlternateBucket(v *Version) {
	alt := Alternate(v)
	if alt == nil {
		return
	}
	key := alt.String()
	bucket := m.alternates[key]
	for i, bv := range bucket {
		if bv.Equal(v) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(m.alternates, key)
	} else {
		m.alternates[key] = bucket
	}
}

// TryInsert inserts value under the exact version v. If v is already
// present, it leaves the map unchanged and returns false along with the
// rejected (version, value) pair.
func (m *VersionMap[T]) TryInsert(v *Version, value T) (version *Version, rejected T, ok bool) {
	idx, exists := m.find(v)
	if exists {
		return v, value, false
	}
	m.insertAt(idx, v, value)
	m.addToAlternateBucket(v)
	return nil, rejected, true
}

// Insert overwrites the value stored at the exact version v, returning the
// previous value if any. If v was not previously present, it is also
// added to its alternate bucket.
func (m *VersionMap[T]) Insert(v *Version, value T) (previous T, hadPrevious bool) {
	idx, exists := m.find(v)
	if exists {
		previous = m.values[idx]
		m.values[idx] = value
		return previous, true
	}
	m.insertAt(idx, v, value)
	m.addToAlternateBucket(v)
	return previous, false
}

// GetExact looks up v in the primary map only, ignoring alternates.
func (m *VersionMap[T]) GetExact(v *Version) (value T, ok bool) {
	idx, exists := m.find(v)
	if !exists {
		return value, false
	}
	return m.values[idx], true
}

// Get resolves v by alternate-fallback: if v carries no build metadata,
// its alternate bucket is consulted and the value of the bucket's highest
// member is returned, if the bucket is non-empty. Otherwise (build
// metadata present, or the bucket is empty/undefined), Get falls back to
// GetExact.
func (m *VersionMap[T]) Get(v *Version) (value T, ok bool) {
	if v.Metadata() == "" {
		if alt := Alternate(v); alt != nil {
			if bucket := m.alternates[alt.String()]; len(bucket) > 0 {
				latest := bucket[len(bucket)-1]
				return m.GetExact(latest)
			}
		}
	}
	return m.GetExact(v)
}

// GetOrLatest resolves v with Get when v is non-nil, or returns the value
// of the highest-keyed primary entry when v is nil.
func (m *VersionMap[T]) GetOrLatest(v *Version) (value T, ok bool) {
	if v != nil {
		return m.Get(v)
	}
	return m.GetLatest()
}

// GetLatest returns the value of the highest-keyed primary entry, if any.
func (m *VersionMap[T]) GetLatest() (value T, ok bool) {
	if len(m.order) == 0 {
		return value, false
	}
	return m.values[len(m.order)-1], true
}

// Remove deletes the entry at the exact version v, returning its value if
// it was present. Its alternate bucket is updated (and dropped if it
// becomes empty) as a consequence.
func (m *VersionMap[T]) Remove(v *Version) (value T, ok bool) {
	idx, exists := m.find(v)
	if !exists {
		return value, false
	}
	value = m.values[idx]

	m.removeFromAlternateBucket(m.order[idx])

	m.order = append(m.order[:idx], m.order[idx+1:]...)
	m.values = append(m.values[:idx], m.values[idx+1:]...)
	return value, true
}

// Len reports the number of entries in the primary map.
func (m *VersionMap[T]) Len() int {
	return len(m.order)
}
