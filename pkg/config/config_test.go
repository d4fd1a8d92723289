package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GIN_MODE", "debug")
	t.Setenv("VISITOR_TOKEN_SECRET", "")
	t.Setenv("SEGMENT_ENDPOINT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultVisitorSecret, cfg.VisitorSecret)
	assert.Equal(t, "https://api.segment.io", cfg.SegmentEndpoint)
	assert.Equal(t, 30*time.Minute, cfg.PageTTL)
}

func TestReleaseModeRequiresSecret(t *testing.T) {
	t.Setenv("GIN_MODE", "release")

	for name, secret := range map[string]string{
		"unset":   "",
		"default": DefaultVisitorSecret,
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("VISITOR_TOKEN_SECRET", secret)
			_, err := LoadConfig()
			assert.ErrorIs(t, err, ErrInsecureSecret)
		})
	}

	t.Setenv("VISITOR_TOKEN_SECRET", "a-real-secret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "a-real-secret", cfg.VisitorSecret)
}

func TestFeatureToggles(t *testing.T) {
	cfg := &Config{AirtableAPIKey: "k"}
	assert.False(t, cfg.CRMEnabled())
	cfg.AirtableBaseID = "b"
	assert.True(t, cfg.CRMEnabled())

	cfg = &Config{TextMagicAPIKey: "k", TextMagicUsername: "u"}
	assert.False(t, cfg.FollowupEnabled())
	cfg.ShortIOAPIKey = "s"
	assert.True(t, cfg.FollowupEnabled())
}
