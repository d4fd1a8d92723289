package shortio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client defines the interface for interacting with Short.io API
type Client interface {
	CreateShortLink(ctx context.Context, originalURL string) (string, error)
}

type clientImpl struct {
	apiKey     string
	domain     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Short.io client
func NewClient(apiKey, domain string, logger *zap.Logger) Client {
	return newClient(apiKey, domain, "https://api.short.io", logger)
}

func newClient(apiKey, domain, baseURL string, logger *zap.Logger) *clientImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clientImpl{
		apiKey:     apiKey,
		domain:     domain,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// CreateShortLink shortens a resume link for SMS
func (c *clientImpl) CreateShortLink(ctx context.Context, originalURL string) (string, error) {
	payload := map[string]any{
		"originalURL": originalURL,
		"domain":      c.domain,
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error creating payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/links", bytes.NewReader(jsonPayload))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error creating short link: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("error from Short.io API: %s", string(body))
	}

	var response struct {
		ShortURL string `json:"shortURL"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if response.ShortURL == "" {
		return "", fmt.Errorf("Short.io returned no link for %s", originalURL)
	}

	c.logger.Info("created short link", zap.String("short_url", response.ShortURL))
	return response.ShortURL, nil
}
