package diff

import "slices"

// OpType is the kind of an edit-script operation.
type OpType int8

const (
	Delete OpType = -1
	Common OpType = 0
	Add    OpType = 1
)

// String returns the string representation of the OpType.
func (t OpType) String() string {
	switch t {
	case Delete:
		return "delete"
	case Common:
		return "common"
	case Add:
		return "add"
	default:
		return "unknown"
	}
}

// Op is one edit-script entry. Indices are 1-based; BeforeIdx is 0 for Add and
// AfterIdx is 0 for Delete.
type Op[T any] struct {
	Type      OpType
	Elem      T
	BeforeIdx int64
	AfterIdx  int64
}

// Script is a shortest edit script turning sequence A into sequence B.
type Script[T any] struct {
	Ops []Op[T]

	onlyAdd    bool
	onlyDelete bool
	onlyCommon bool
}

func newScript[T any](ops []Op[T]) *Script[T] {
	s := &Script[T]{Ops: ops, onlyAdd: true, onlyDelete: true, onlyCommon: true}
	for _, op := range ops {
		switch op.Type {
		case Add:
			s.onlyDelete = false
			s.onlyCommon = false
		case Delete:
			s.onlyAdd = false
			s.onlyCommon = false
		case Common:
			s.onlyAdd = false
			s.onlyDelete = false
		}
	}
	return s
}

// OnlyAdditions reports whether the script contains no Delete or Common entries.
func (s *Script[T]) OnlyAdditions() bool { return s.onlyAdd }

// OnlyDeletions reports whether the script contains no Add or Common entries.
func (s *Script[T]) OnlyDeletions() bool { return s.onlyDelete }

// OnlyCommon reports whether the script contains no Add or Delete entries.
func (s *Script[T]) OnlyCommon() bool { return s.onlyCommon }

// EditDistance returns the number of Add and Delete entries.
func (s *Script[T]) EditDistance() int {
	n := 0
	for _, op := range s.Ops {
		if op.Type != Common {
			n++
		}
	}
	return n
}

// deletesFirst moves every Delete ahead of the Adds that follow the previous
// Common entry, keeping relative order within each kind.
func deletesFirst[T any](ops []Op[T]) []Op[T] {
	out := make([]Op[T], 0, len(ops))
	next := 0
	for _, op := range ops {
		switch op.Type {
		case Delete:
			out = slices.Insert(out, next, op)
			next++
		case Common:
			out = append(out, op)
			next = len(out)
		default:
			out = append(out, op)
		}
	}
	return out
}
