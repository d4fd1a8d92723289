package funnel

import (
	"sync"
	"time"
)

// Page is the controller for one page load. It owns the one-shot latches
// that guard the view and form-started events, and the touched flag that
// gates abandonment reporting.
type Page struct {
	ID        string
	VisitorID string
	Step      Step // zero for the login page
	CreatedAt time.Time

	mu            sync.Mutex
	pageTracked   bool
	formStarted   bool
	formTouched   bool
	submitted     bool
	loginAttempts int
}

// NewPage creates the controller for a fresh page load.
func NewPage(id, visitorID string, step Step, now time.Time) *Page {
	return &Page{ID: id, VisitorID: visitorID, Step: step, CreatedAt: now}
}

// IsLogin reports whether the page is the login page rather than a step.
func (p *Page) IsLogin() bool {
	return p.Step.Number == 0
}

// MarkTracked flips the view latch and reports whether this call flipped it.
func (p *Page) MarkTracked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pageTracked {
		return false
	}
	p.pageTracked = true
	return true
}

// MarkStarted records the first input on the form and reports whether this
// call was the first one.
func (p *Page) MarkStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.formStarted {
		return false
	}
	p.formStarted = true
	p.formTouched = true
	return true
}

func (p *Page) Touched() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.formTouched
}

// BeginSubmit takes the submit latch after a form passed validation and
// reports whether this call took it. Once taken, the step counts as
// persisted by this page even after completion clears the record.
func (p *Page) BeginSubmit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitted {
		return false
	}
	p.submitted = true
	return true
}

// AbortSubmit releases the latch when the submit did not persist.
func (p *Page) AbortSubmit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = false
}

func (p *Page) Submitted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

// NextAttempt increments and returns the submit attempt counter.
func (p *Page) NextAttempt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loginAttempts++
	return p.loginAttempts
}
