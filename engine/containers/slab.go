package containers

// Handle is a generation checked index into a Slab. The zero Handle is
// never valid.
type Handle[T any] struct {
	index      uint32
	generation uint32
}

func (h Handle[T]) IsZero() bool {
	return h.generation == 0
}

// Index is the slot position, useful as a dense key.
func (h Handle[T]) Index() uint32 {
	return h.index
}

type slabEntry[T any] struct {
	value      *T
	generation uint32
}

// Slab stores values in reusable slots. Removing a value bumps the slot
// generation so any handle still pointing at it stops resolving.
// It is not safe for concurrent mutation.
type Slab[T any] struct {
	entries []slabEntry[T]
	free    []uint32
	count   int
}

func NewSlab[T any]() *Slab[T] {
	return &Slab[T]{}
}

func (s *Slab[T]) Insert(value *T) Handle[T] {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.entries))
		s.entries = append(s.entries, slabEntry[T]{})
	}
	e := &s.entries[idx]
	e.generation++
	if e.generation == 0 {
		e.generation = 1
	}
	e.value = value
	s.count++
	return Handle[T]{index: idx, generation: e.generation}
}

// Get resolves h, returning false for stale or zero handles.
func (s *Slab[T]) Get(h Handle[T]) (*T, bool) {
	if h.generation == 0 || int(h.index) >= len(s.entries) {
		return nil, false
	}
	e := s.entries[h.index]
	if e.generation != h.generation || e.value == nil {
		return nil, false
	}
	return e.value, true
}

func (s *Slab[T]) Contains(h Handle[T]) bool {
	_, ok := s.Get(h)
	return ok
}

// Remove invalidates h and returns the value it referenced.
func (s *Slab[T]) Remove(h Handle[T]) (*T, bool) {
	v, ok := s.Get(h)
	if !ok {
		return nil, false
	}
	e := &s.entries[h.index]
	e.value = nil
	e.generation++
	if e.generation == 0 {
		e.generation = 1
	}
	s.free = append(s.free, h.index)
	s.count--
	return v, true
}

func (s *Slab[T]) Len() int {
	return s.count
}

// Each visits live values in slot order.
func (s *Slab[T]) Each(fn func(Handle[T], *T)) {
	for i, e := range s.entries {
		if e.value != nil {
			fn(Handle[T]{index: uint32(i), generation: e.generation}, e.value)
		}
	}
}
