package bytecode

import "testing"

func TestSequencePushPop(t *testing.T) {
	s := NewSequence[int](3)

	if s.Cap() != 3 || s.Len() != 0 {
		t.Fatalf("new sequence: len %d cap %d", s.Len(), s.Cap())
	}
	if _, ok := s.Pop(); ok {
		t.Error("Pop on empty sequence succeeded")
	}

	for i := 1; i <= 3; i++ {
		if !s.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	if !s.Full() {
		t.Error("Full() = false at capacity")
	}
	if s.Push(4) {
		t.Error("Push past capacity succeeded")
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d after rejected push, want 3", s.Len())
	}

	for want := 3; want >= 1; want-- {
		got, ok := s.Pop()
		if !ok || got != want {
			t.Errorf("Pop() = %d, %v; want %d", got, ok, want)
		}
	}
}

func TestSequenceFromTop(t *testing.T) {
	s := NewSequence[string](4)
	s.Push("a")
	s.Push("b")
	s.Push("c")

	tests := []struct {
		idx  int
		want string
		ok   bool
	}{
		{0, "c", true},
		{1, "b", true},
		{2, "a", true},
		{3, "", false},
		{-1, "", false},
	}
	for _, tt := range tests {
		got, ok := s.FromTop(tt.idx)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FromTop(%d) = %q, %v; want %q, %v", tt.idx, got, ok, tt.want, tt.ok)
		}
	}

	if !s.SetFromTop(2, "z") {
		t.Fatal("SetFromTop(2) failed")
	}
	if s.At(0) != "z" {
		t.Errorf("At(0) = %q, want z", s.At(0))
	}
	if s.SetFromTop(3, "x") {
		t.Error("SetFromTop past size succeeded")
	}
	if top, _ := s.Peek(); top != "c" {
		t.Errorf("Peek() = %q, want c", top)
	}
}

func TestSequenceReset(t *testing.T) {
	s := NewSequence[int](2)
	s.Push(1)
	s.Push(2)
	s.Reset()

	if s.Len() != 0 || s.Cap() != 2 {
		t.Errorf("after Reset: len %d cap %d", s.Len(), s.Cap())
	}
	if len(s.Items()) != 0 {
		t.Errorf("Items() = %v, want empty", s.Items())
	}
	if !s.Push(3) {
		t.Error("Push after Reset failed")
	}
}

func TestSequenceAtPanics(t *testing.T) {
	s := NewSequence[int](2)
	s.Push(1)

	defer func() {
		if recover() == nil {
			t.Error("At past size did not panic")
		}
	}()
	s.At(1)
}

func TestSequenceNegativeCapacity(t *testing.T) {
	s := NewSequence[int](-1)
	if s.Cap() != 0 || s.Push(1) {
		t.Error("negative capacity sequence accepted a push")
	}
}
