package input

import "sync"

// Replay is a Source that plays back a fixed list of samples, one per Poll,
// and then keeps repeating the last one. It drives tests and dry runs.
type Replay struct {
	mu      sync.Mutex
	samples []Sample
	pos     int
}

// NewReplay creates a replay source. With no samples it reports neutral input.
func NewReplay(samples ...Sample) *Replay {
	return &Replay{samples: samples}
}

// Poll returns the next sample.
func (r *Replay) Poll() (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		return NewSample(), nil
	}
	s := r.samples[r.pos]
	if r.pos < len(r.samples)-1 {
		r.pos++
	}
	return s.Clone(), nil
}

// Done reports whether every sample has been handed out at least once.
func (r *Replay) Done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples) == 0 || r.pos == len(r.samples)-1
}

func (r *Replay) Name() string { return "replay" }

func (r *Replay) Close() error { return nil }
