package segment

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"onboarding-funnel/pkg/analytics"
)

type batch struct {
	Batch []map[string]any `json:"batch"`
}

// collector is a fake Segment batch endpoint.
type collector struct {
	t        *testing.T
	status   int
	mu       sync.Mutex
	messages []map[string]any
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assert.Equal(c.t, "/v1/batch", r.URL.Path)
	user, _, ok := r.BasicAuth()
	assert.True(c.t, ok)
	assert.Equal(c.t, "write-key", user)

	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		require.NoError(c.t, err)
		defer gz.Close()
		body = gz
	}
	var b batch
	require.NoError(c.t, json.NewDecoder(body).Decode(&b))

	c.mu.Lock()
	c.messages = append(c.messages, b.Batch...)
	c.mu.Unlock()

	if c.status != 0 {
		w.WriteHeader(c.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (c *collector) byType(kind string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, m := range c.messages {
		if m["type"] == kind {
			out = append(out, m)
		}
	}
	return out
}

func TestCloseDeliversBatchedCalls(t *testing.T) {
	col := &collector{t: t}
	srv := httptest.NewServer(col)
	defer srv.Close()

	c, err := NewClient("write-key", Options{Endpoint: srv.URL, BatchSize: 10, Interval: time.Hour}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Track(ctx, analytics.TrackCall{
		AnonymousID: "anon-1",
		Event:       "Onboarding Step Viewed",
		Properties:  analytics.Properties{"step": 2},
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	require.NoError(t, c.Identify(ctx, analytics.IdentifyCall{
		AnonymousID: "anon-1",
		UserID:      "ops@acme.io",
		Traits:      analytics.Traits{"business_name": "Acme"},
	}))
	require.NoError(t, c.Reset(ctx, "anon-1"))
	require.NoError(t, c.Close())

	tracks := col.byType("track")
	require.Len(t, tracks, 1)
	assert.Equal(t, "Onboarding Step Viewed", tracks[0]["event"])
	assert.Equal(t, "anon-1", tracks[0]["anonymousId"])
	assert.Equal(t, float64(2), tracks[0]["properties"].(map[string]any)["step"])
	assert.NotEmpty(t, tracks[0]["messageId"])

	ids := col.byType("identify")
	require.Len(t, ids, 1)
	assert.Equal(t, "ops@acme.io", ids[0]["userId"])
	assert.Equal(t, "Acme", ids[0]["traits"].(map[string]any)["business_name"])
}

func TestTrackRequiresIdentity(t *testing.T) {
	c, err := NewClient("write-key", Options{Endpoint: "http://127.0.0.1:0"}, nil)
	require.NoError(t, err)
	defer c.Close()

	err = c.Track(context.Background(), analytics.TrackCall{Event: "x"})
	assert.Error(t, err)
}

func TestRejectedBatchIsLogged(t *testing.T) {
	col := &collector{t: t, status: http.StatusBadRequest}
	srv := httptest.NewServer(col)
	defer srv.Close()

	core, logs := observer.New(zap.ErrorLevel)
	c, err := NewClient("write-key", Options{Endpoint: srv.URL, BatchSize: 1}, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, c.Track(context.Background(), analytics.TrackCall{AnonymousID: "a", Event: "x"}))
	require.NoError(t, c.Close())

	failed := logs.FilterMessage("segment delivery failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "x", failed[0].ContextMap()["event"])
}
