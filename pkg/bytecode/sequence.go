package bytecode

// Sequence is a fixed-capacity, index-addressed buffer with a logical size.
// Storage is allocated once by NewSequence and never grows; Push on a full
// sequence and Pop on an empty one report failure instead of panicking.
type Sequence[T any] struct {
	items []T
	size  int
}

// NewSequence preallocates a sequence holding at most capacity elements.
func NewSequence[T any](capacity int) *Sequence[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Sequence[T]{items: make([]T, capacity)}
}

// Len returns the number of live elements.
func (s *Sequence[T]) Len() int { return s.size }

// Cap returns the fixed capacity.
func (s *Sequence[T]) Cap() int { return len(s.items) }

// Full reports whether another Push would fail.
func (s *Sequence[T]) Full() bool { return s.size == len(s.items) }

// Push appends v. It returns false if the sequence is at capacity.
func (s *Sequence[T]) Push(v T) bool {
	if s.size == len(s.items) {
		return false
	}
	s.items[s.size] = v
	s.size++
	return true
}

// Pop removes and returns the last element.
func (s *Sequence[T]) Pop() (T, bool) {
	var zero T
	if s.size == 0 {
		return zero, false
	}
	s.size--
	v := s.items[s.size]
	s.items[s.size] = zero
	return v, true
}

// Peek returns the last element without removing it.
func (s *Sequence[T]) Peek() (T, bool) {
	return s.FromTop(0)
}

// FromTop returns the element idx slots below the last one (0 = last).
func (s *Sequence[T]) FromTop(idx int) (T, bool) {
	var zero T
	if idx < 0 || idx >= s.size {
		return zero, false
	}
	return s.items[s.size-1-idx], true
}

// SetFromTop replaces the element idx slots below the last one.
func (s *Sequence[T]) SetFromTop(idx int, v T) bool {
	if idx < 0 || idx >= s.size {
		return false
	}
	s.items[s.size-1-idx] = v
	return true
}

// At returns the element at absolute index i. It panics if i is not live.
func (s *Sequence[T]) At(i int) T {
	if i < 0 || i >= s.size {
		panic("bytecode: sequence index out of range")
	}
	return s.items[i]
}

// Set replaces the element at absolute index i. It panics if i is not live.
func (s *Sequence[T]) Set(i int, v T) {
	if i < 0 || i >= s.size {
		panic("bytecode: sequence index out of range")
	}
	s.items[i] = v
}

// Reset drops every element, keeping the storage.
func (s *Sequence[T]) Reset() {
	var zero T
	for i := 0; i < s.size; i++ {
		s.items[i] = zero
	}
	s.size = 0
}

// Items returns the live elements, bottom first. The slice aliases the
// sequence storage and is only valid until the next mutation.
func (s *Sequence[T]) Items() []T {
	return s.items[:s.size]
}
