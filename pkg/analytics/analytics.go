package analytics

import (
	"context"
	"time"
)

// Properties are attached to a tracked event
type Properties map[string]any

// Traits are attached to an identity
type Traits map[string]any

// TrackCall records a discrete named event.
type TrackCall struct {
	AnonymousID string
	UserID      string
	Event       string
	Properties  Properties
	Timestamp   time.Time
}

// IdentifyCall binds a stable user id to accumulated traits.
type IdentifyCall struct {
	AnonymousID string
	UserID      string
	Traits      Traits
	Timestamp   time.Time
}

// Client is the external analytics collaborator.
type Client interface {
	Track(ctx context.Context, call TrackCall) error
	Identify(ctx context.Context, call IdentifyCall) error
	// Reset forgets the anonymous identity so the next calls start fresh.
	Reset(ctx context.Context, anonymousID string) error
}
