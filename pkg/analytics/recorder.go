package analytics

import (
	"context"
	"sync"
)

// Recorder is an in-memory Client that keeps every call. Useful for tests
// and for running locally without a write key.
type Recorder struct {
	mu         sync.Mutex
	tracks     []TrackCall
	identifies []IdentifyCall
	resets     []string
	Err        error
}

func (r *Recorder) Track(_ context.Context, call TrackCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks = append(r.tracks, call)
	return r.Err
}

func (r *Recorder) Identify(_ context.Context, call IdentifyCall) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identifies = append(r.identifies, call)
	return r.Err
}

func (r *Recorder) Reset(_ context.Context, anonymousID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, anonymousID)
	return r.Err
}

// Tracks returns a copy of the tracked events.
func (r *Recorder) Tracks() []TrackCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TrackCall(nil), r.tracks...)
}

// Events returns the names of tracked events in order.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.tracks))
	for i, c := range r.tracks {
		names[i] = c.Event
	}
	return names
}

// Find returns the tracked calls with the given event name.
func (r *Recorder) Find(event string) []TrackCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []TrackCall
	for _, c := range r.tracks {
		if c.Event == event {
			found = append(found, c)
		}
	}
	return found
}

func (r *Recorder) Identifies() []IdentifyCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]IdentifyCall(nil), r.identifies...)
}

func (r *Recorder) Resets() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.resets...)
}
