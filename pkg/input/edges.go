package input

// EdgeTracker derives press/release transitions from successive samples,
// which lets keyboards and gamepads share the same polled contract.
type EdgeTracker struct {
	prev map[int]bool
}

// Annotate fills s.Pressed and s.Released relative to the previous call.
// The first call treats every held button as freshly pressed.
func (t *EdgeTracker) Annotate(s *Sample) {
	s.Pressed = make(map[int]bool)
	s.Released = make(map[int]bool)

	for i, down := range s.Buttons {
		if down && !t.prev[i] {
			s.Pressed[i] = true
		}
	}
	for i, was := range t.prev {
		if was && !s.Buttons[i] {
			s.Released[i] = true
		}
	}

	next := make(map[int]bool, len(s.Buttons))
	for i, down := range s.Buttons {
		if down {
			next[i] = true
		}
	}
	t.prev = next
}

// Reset forgets the previous state.
func (t *EdgeTracker) Reset() {
	t.prev = nil
}
