// Package diff computes shortest edit scripts between line sequences and
// turns them into per-file line mappings.
package diff

import (
	"errors"
	"fmt"
)

// DefaultMaxCoordinates bounds the number of break-points one search may record.
const DefaultMaxCoordinates = 2_000_000

// ErrCoordinateLimit is returned when a search exceeds its coordinate ceiling.
var ErrCoordinateLimit = errors.New("diff coordinate limit exceeded")

// Equal reports whether an element of A matches an element of B.
type Equal[T any] func(a, b T) bool

// Option configures Compose.
type Option func(*options)

type options struct {
	deletesFirst   bool
	maxCoordinates int
}

// WithDeletesFirst moves Delete entries ahead of Add entries between Common runs.
func WithDeletesFirst(enabled bool) Option {
	return func(o *options) {
		o.deletesFirst = enabled
	}
}

// WithMaxCoordinates overrides the coordinate ceiling. Values <= 0 keep the default.
func WithMaxCoordinates(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCoordinates = n
		}
	}
}

// Compose computes a shortest edit script from a to b using exact equality.
func Compose[T comparable](a, b []T, opts ...Option) (*Script[T], error) {
	return ComposeFunc(a, b, func(x, y T) bool { return x == y }, opts...)
}

// ComposeFunc computes a shortest edit script from a to b using eq.
//
// The search is the O(NP) algorithm of Wu, Manber, Myers and Miller. If the
// recovered path stops short of either end, the unconsumed suffixes are diffed
// again and the results concatenated.
func ComposeFunc[T any](a, b []T, eq Equal[T], opts ...Option) (*Script[T], error) {
	o := options{maxCoordinates: DefaultMaxCoordinates}
	for _, opt := range opts {
		opt(&o)
	}

	var ops []Op[T]
	var baseA, baseB int
	for baseA < len(a) || baseB < len(b) {
		s := newSearch(a[baseA:], b[baseB:], eq, o.maxCoordinates)
		if err := s.run(); err != nil {
			return nil, fmt.Errorf("diff of %d and %d elements: %w", len(a), len(b), err)
		}
		consumedA, consumedB := s.record(&ops, int64(baseA), int64(baseB))
		if consumedA == 0 && consumedB == 0 {
			// No progress; emit the remainder as a plain replacement.
			for i := baseA; i < len(a); i++ {
				ops = append(ops, Op[T]{Type: Delete, Elem: a[i], BeforeIdx: int64(i + 1)})
			}
			for j := baseB; j < len(b); j++ {
				ops = append(ops, Op[T]{Type: Add, Elem: b[j], AfterIdx: int64(j + 1)})
			}
			break
		}
		baseA += consumedA
		baseB += consumedB
	}

	if o.deletesFirst {
		ops = deletesFirst(ops)
	}
	return newScript(ops), nil
}

// point is a break-point on the edit graph with a back-pointer into coords.
type point struct {
	x, y int
	prev int
}

// search holds the state of one O(NP) run. The shorter input always plays
// the A role; swapped records that the roles were exchanged.
type search[T any] struct {
	a, b    []T
	m, n    int
	swapped bool
	eq      Equal[T]
	limit   int

	offset int
	fp     []int
	path   []int
	coords []point
}

func newSearch[T any](a, b []T, eq Equal[T], limit int) *search[T] {
	s := &search[T]{a: a, b: b, eq: eq, limit: limit}
	if len(a) >= len(b) {
		s.a, s.b = b, a
		s.swapped = true
	}
	s.m, s.n = len(s.a), len(s.b)
	return s
}

func (s *search[T]) equal(x, y int) bool {
	if s.swapped {
		return s.eq(s.b[y], s.a[x])
	}
	return s.eq(s.a[x], s.b[y])
}

func (s *search[T]) run() error {
	size := s.m + s.n + 3
	s.offset = s.m + 1
	s.fp = make([]int, size)
	s.path = make([]int, size)
	for i := range s.fp {
		s.fp[i] = -1
		s.path[i] = -1
	}

	delta := s.n - s.m
	off := s.offset
	for p := 0; ; p++ {
		for k := -p; k <= delta-1; k++ {
			s.fp[k+off] = s.snake(k, s.fp[k-1+off]+1, s.fp[k+1+off])
		}
		for k := delta + p; k >= delta+1; k-- {
			s.fp[k+off] = s.snake(k, s.fp[k-1+off]+1, s.fp[k+1+off])
		}
		s.fp[delta+off] = s.snake(delta, s.fp[delta-1+off]+1, s.fp[delta+1+off])

		if len(s.coords) > s.limit {
			return fmt.Errorf("%w: %d > %d", ErrCoordinateLimit, len(s.coords), s.limit)
		}
		if s.fp[delta+off] >= s.n {
			return nil
		}
	}
}

// snake extends diagonal k from the furthest point reachable from its
// neighbours and records the end of the run.
func (s *search[T]) snake(k, above, below int) int {
	off := s.offset
	prev := s.path[k+1+off]
	if above > below {
		prev = s.path[k-1+off]
	}

	y := max(above, below)
	x := y - k
	for x < s.m && y < s.n && s.equal(x, y) {
		x++
		y++
	}

	s.path[k+off] = len(s.coords)
	s.coords = append(s.coords, point{x: x, y: y, prev: prev})
	return y
}

// record walks the break-point chain from the origin and appends the edit
// operations to ops. It returns how many elements of the caller's A and B
// were consumed.
func (s *search[T]) record(ops *[]Op[T], baseA, baseB int64) (int, int) {
	var chain []point
	for r := s.path[s.n-s.m+s.offset]; r != -1; r = s.coords[r].prev {
		chain = append(chain, s.coords[r])
	}

	x, y := 0, 0
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		for x < c.x || y < c.y {
			switch {
			case c.y-c.x > y-x:
				*ops = append(*ops, s.fromB(y, baseA, baseB))
				y++
			case c.y-c.x < y-x:
				*ops = append(*ops, s.fromA(x, baseA, baseB))
				x++
			default:
				*ops = append(*ops, s.common(x, y, baseA, baseB))
				x++
				y++
			}
		}
	}

	if s.swapped {
		return y, x
	}
	return x, y
}

// fromB emits the element at index y of the internal B role.
func (s *search[T]) fromB(y int, baseA, baseB int64) Op[T] {
	if s.swapped {
		return Op[T]{Type: Delete, Elem: s.b[y], BeforeIdx: baseA + int64(y) + 1}
	}
	return Op[T]{Type: Add, Elem: s.b[y], AfterIdx: baseB + int64(y) + 1}
}

// fromA emits the element at index x of the internal A role.
func (s *search[T]) fromA(x int, baseA, baseB int64) Op[T] {
	if s.swapped {
		return Op[T]{Type: Add, Elem: s.a[x], AfterIdx: baseB + int64(x) + 1}
	}
	return Op[T]{Type: Delete, Elem: s.a[x], BeforeIdx: baseA + int64(x) + 1}
}

func (s *search[T]) common(x, y int, baseA, baseB int64) Op[T] {
	if s.swapped {
		return Op[T]{Type: Common, Elem: s.b[y], BeforeIdx: baseA + int64(y) + 1, AfterIdx: baseB + int64(x) + 1}
	}
	return Op[T]{Type: Common, Elem: s.a[x], BeforeIdx: baseA + int64(x) + 1, AfterIdx: baseB + int64(y) + 1}
}
