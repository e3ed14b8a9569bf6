package diff

import (
	"cmp"
	"math"
	"slices"
)

// NotFound is returned by mapping lookups with no correspondence. It is larger
// than any real line number and distinct from the graph's virtual sentinels.
const NotFound int64 = math.MaxUint32

// Mapping is the line-level projection of one file pair's edit script.
// Every line number appears in at most one of Added, Deleted and the matched pairs.
type Mapping struct {
	// File is the base name shared by the pair.
	File string

	// Before and After are the paths the lines were read from; one may be
	// empty when the file exists in only one version.
	Before string
	After  string

	// Added holds after-version numbers of added lines, ascending.
	Added []int64

	// Deleted holds before-version numbers of deleted lines, ascending.
	Deleted []int64

	forward  map[int64]int64
	backward map[int64]int64
	added    map[int64]bool
	deleted  map[int64]bool
}

// NewMapping projects an edit script into added, deleted and matched lines.
func NewMapping[T any](file string, s *Script[T]) *Mapping {
	m := &Mapping{
		File:     file,
		forward:  make(map[int64]int64),
		backward: make(map[int64]int64),
		added:    make(map[int64]bool),
		deleted:  make(map[int64]bool),
	}
	for _, op := range s.Ops {
		switch op.Type {
		case Add:
			m.Added = append(m.Added, op.AfterIdx)
			m.added[op.AfterIdx] = true
		case Delete:
			m.Deleted = append(m.Deleted, op.BeforeIdx)
			m.deleted[op.BeforeIdx] = true
		case Common:
			m.forward[op.BeforeIdx] = op.AfterIdx
			m.backward[op.AfterIdx] = op.BeforeIdx
		}
	}
	return m
}

// AfterLineFor returns the after-version number of an unchanged before-version
// line, or NotFound.
func (m *Mapping) AfterLineFor(before int64) int64 {
	if after, ok := m.forward[before]; ok {
		return after
	}
	return NotFound
}

// BeforeLineFor returns the before-version number of an unchanged after-version
// line, or NotFound.
func (m *Mapping) BeforeLineFor(after int64) int64 {
	if before, ok := m.backward[after]; ok {
		return before
	}
	return NotFound
}

// IsAdded reports whether the after-version line was added.
func (m *Mapping) IsAdded(after int64) bool {
	return m.added[after]
}

// IsDeleted reports whether the before-version line was deleted.
func (m *Mapping) IsDeleted(before int64) bool {
	return m.deleted[before]
}

// Matched returns the unchanged lines as before -> after pairs in before order.
func (m *Mapping) Matched() []Pair {
	out := make([]Pair, 0, len(m.forward))
	for before, after := range m.forward {
		out = append(out, Pair{Before: before, After: after})
	}
	slices.SortFunc(out, func(a, b Pair) int { return cmp.Compare(a.Before, b.Before) })
	return out
}

// Pair is one unchanged line correspondence.
type Pair struct {
	Before int64 `json:"before"`
	After  int64 `json:"after"`
}

// Unchanged reports whether the pair has no added or deleted lines.
func (m *Mapping) Unchanged() bool {
	return len(m.Added) == 0 && len(m.Deleted) == 0
}
