package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client defines the interface for syncing onboarded businesses to Airtable
type Client interface {
	RecordExists(ctx context.Context, table, identityHash string) (bool, error)
	CreateRecord(ctx context.Context, table string, fields map[string]any) error
}

type clientImpl struct {
	apiKey     string
	baseID     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new Airtable client
func NewClient(apiKey, baseID string, logger *zap.Logger) Client {
	return newClient(apiKey, baseID, "https://api.airtable.com/v0", logger)
}

func newClient(apiKey, baseID, baseURL string, logger *zap.Logger) *clientImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clientImpl{
		apiKey:     apiKey,
		baseID:     baseID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *clientImpl) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(table))
}

func (c *clientImpl) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// RecordExists looks a record up by its hash field
func (c *clientImpl) RecordExists(ctx context.Context, table, identityHash string) (bool, error) {
	query := url.Values{}
	query.Set("filterByFormula", fmt.Sprintf(`{hash}="%s"`, identityHash))
	query.Set("maxRecords", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(table)+"?"+query.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("error creating request: %w", err)
	}

	body, status, err := c.do(req)
	if err != nil {
		return false, fmt.Errorf("error checking Airtable: %w", err)
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("error from Airtable API: %s", string(body))
	}

	var response struct {
		Records []struct {
			ID string `json:"id"`
		} `json:"records"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return false, fmt.Errorf("error parsing response: %w", err)
	}

	exists := len(response.Records) > 0
	c.logger.Debug("airtable record check",
		zap.String("hash", identityHash), zap.String("table", table), zap.Bool("exists", exists))
	return exists, nil
}

// CreateRecord inserts one record with the given fields
func (c *clientImpl) CreateRecord(ctx context.Context, table string, fields map[string]any) error {
	payload := map[string]any{
		"records": []map[string]any{
			{"fields": fields},
		},
	}
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error creating payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(table), bytes.NewReader(jsonPayload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return fmt.Errorf("error creating Airtable record: %w", err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("error from Airtable API: %s", string(body))
	}

	c.logger.Info("created airtable record", zap.String("table", table))
	return nil
}
