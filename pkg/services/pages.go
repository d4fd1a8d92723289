package services

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"onboarding-funnel/pkg/funnel"
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrPageExpired  = errors.New("page expired")
)

// PageRegistry holds the controllers of pages currently open in a browser.
// Entries are dropped ttl after the page was loaded.
type PageRegistry struct {
	pages map[string]*funnel.Page
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

func NewPageRegistry(ttl time.Duration) *PageRegistry {
	return &PageRegistry{
		pages: make(map[string]*funnel.Page),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Open registers a controller for a new page load of step (zero Step for
// the login page).
func (r *PageRegistry) Open(visitorID string, step funnel.Step) *funnel.Page {
	page := funnel.NewPage(uuid.NewString(), visitorID, step, r.now())

	r.mu.Lock()
	r.pages[page.ID] = page
	r.mu.Unlock()

	// Schedule cleanup
	time.AfterFunc(r.ttl, func() {
		r.mu.Lock()
		delete(r.pages, page.ID)
		r.mu.Unlock()
	})
	return page
}

// Get returns the visitor's page. A page id belonging to another visitor is
// reported as not found.
func (r *PageRegistry) Get(visitorID, pageID string) (*funnel.Page, error) {
	r.mu.RLock()
	page, exists := r.pages[pageID]
	r.mu.RUnlock()

	if !exists || page.VisitorID != visitorID {
		return nil, ErrPageNotFound
	}

	if r.now().After(page.CreatedAt.Add(r.ttl)) {
		r.mu.Lock()
		delete(r.pages, pageID)
		r.mu.Unlock()
		return nil, ErrPageExpired
	}
	return page, nil
}

// Len returns the number of open pages.
func (r *PageRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}
