package segment

import (
	"context"
	"fmt"
	"time"

	segment "github.com/segmentio/analytics-go/v3"
	"go.uber.org/zap"

	"onboarding-funnel/pkg/analytics"
)

// Options tune the SDK's batching. Zero values keep the SDK defaults.
type Options struct {
	Endpoint  string
	BatchSize int
	Interval  time.Duration
}

// Client hands calls to the Segment SDK, which batches, retries and
// delivers them in the background.
type Client struct {
	sdk    segment.Client
	logger *zap.Logger
}

// NewClient creates a Segment client for the given write key
func NewClient(writeKey string, opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sdk, err := segment.NewWithConfig(writeKey, segment.Config{
		Endpoint:  opts.Endpoint,
		BatchSize: opts.BatchSize,
		Interval:  opts.Interval,
		Logger:    sdkLogger{logger.Sugar()},
		Callback:  deliveryLog{logger},
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Segment client: %w", err)
	}
	return &Client{sdk: sdk, logger: logger}, nil
}

func (c *Client) Track(_ context.Context, call analytics.TrackCall) error {
	err := c.sdk.Enqueue(segment.Track{
		AnonymousId: call.AnonymousID,
		UserId:      call.UserID,
		Event:       call.Event,
		Timestamp:   call.Timestamp,
		Properties:  segment.Properties(call.Properties),
	})
	if err != nil {
		return fmt.Errorf("error tracking %q: %w", call.Event, err)
	}
	return nil
}

func (c *Client) Identify(_ context.Context, call analytics.IdentifyCall) error {
	err := c.sdk.Enqueue(segment.Identify{
		AnonymousId: call.AnonymousID,
		UserId:      call.UserID,
		Timestamp:   call.Timestamp,
		Traits:      segment.Traits(call.Traits),
	})
	if err != nil {
		return fmt.Errorf("error identifying user: %w", err)
	}
	return nil
}

// Reset has no server-side counterpart: the anonymous id lives with the
// visitor and is rotated by the caller.
func (c *Client) Reset(_ context.Context, anonymousID string) error {
	c.logger.Debug("reset anonymous identity", zap.String("anonymous_id", anonymousID))
	return nil
}

// Close delivers everything still batched and stops the SDK.
func (c *Client) Close() error {
	return c.sdk.Close()
}

type sdkLogger struct {
	s *zap.SugaredLogger
}

func (l sdkLogger) Logf(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}

func (l sdkLogger) Errorf(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}

type deliveryLog struct {
	logger *zap.Logger
}

func (d deliveryLog) Success(msg segment.Message) {
	d.logger.Debug("segment delivered", describe(msg)...)
}

func (d deliveryLog) Failure(msg segment.Message, err error) {
	d.logger.Error("segment delivery failed", append(describe(msg), zap.Error(err))...)
}

func describe(msg segment.Message) []zap.Field {
	switch m := msg.(type) {
	case segment.Track:
		return []zap.Field{zap.String("type", "track"), zap.String("event", m.Event)}
	case segment.Identify:
		return []zap.Field{zap.String("type", "identify"), zap.String("user_id", m.UserId)}
	default:
		return []zap.Field{zap.String("type", fmt.Sprintf("%T", msg))}
	}
}
