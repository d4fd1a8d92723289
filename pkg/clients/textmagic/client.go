package textmagic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"onboarding-funnel/pkg/utils"
)

var errContactNotFound = errors.New("contact not found")

// Client defines the interface for interacting with TextMagic API
type Client interface {
	GetOrCreateContact(ctx context.Context, phone, firstName, lastName string) (string, error)
	SendMessage(ctx context.Context, contactID, message string) error
}

type clientImpl struct {
	apiKey     string
	username   string
	listID     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new TextMagic client. New contacts are added to
// listID when it is set.
func NewClient(username, apiKey, listID string, logger *zap.Logger) Client {
	return newClient(username, apiKey, listID, "https://rest.textmagic.com/api/v2", logger)
}

func newClient(username, apiKey, listID, baseURL string, logger *zap.Logger) *clientImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clientImpl{
		apiKey:     apiKey,
		username:   username,
		listID:     listID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (c *clientImpl) request(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("error creating payload: %w", err)
		}
		body = bytes.NewReader(jsonPayload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("error creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("error reading response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// GetOrCreateContact finds a contact by phone number, creating it when missing
func (c *clientImpl) GetOrCreateContact(ctx context.Context, phone, firstName, lastName string) (string, error) {
	phone = utils.DigitsOnly(phone)

	contactID, err := c.findContactByPhone(ctx, phone)
	if err == nil {
		return contactID, nil
	}
	if !errors.Is(err, errContactNotFound) {
		return "", err
	}

	payload := map[string]any{
		"phone":     phone,
		"firstName": firstName,
		"lastName":  lastName,
	}
	if c.listID != "" {
		payload["lists"] = c.listID
	}

	body, status, err := c.request(ctx, http.MethodPost, "/contacts", payload)
	if err != nil {
		return "", fmt.Errorf("error creating contact: %w", err)
	}

	// A concurrent create can race us; TextMagic then reports a duplicate
	if status == http.StatusBadRequest && isDuplicatePhone(body) {
		return c.findContactByPhone(ctx, phone)
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("error from TextMagic API: %s", string(body))
	}

	var createResponse struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &createResponse); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}

	contactID = strconv.Itoa(createResponse.ID)
	c.logger.Info("created textmagic contact", zap.String("contact_id", contactID))
	return contactID, nil
}

func isDuplicatePhone(body []byte) bool {
	var errorResponse struct {
		Errors struct {
			Fields struct {
				Phone []string `json:"phone"`
			} `json:"fields"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &errorResponse); err != nil {
		return false
	}
	for _, msg := range errorResponse.Errors.Fields.Phone {
		if strings.Contains(msg, "already exists in your contacts") {
			return true
		}
	}
	return false
}

func (c *clientImpl) findContactByPhone(ctx context.Context, phone string) (string, error) {
	body, status, err := c.request(ctx, http.MethodGet, "/contacts/search?query="+url.QueryEscape(phone), nil)
	if err != nil {
		return "", fmt.Errorf("error searching for contact: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("error from TextMagic API: %s", string(body))
	}

	var searchResponse struct {
		Resources []struct {
			ID int `json:"id"`
		} `json:"resources"`
	}
	if err := json.Unmarshal(body, &searchResponse); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if len(searchResponse.Resources) == 0 {
		return "", errContactNotFound
	}

	contactID := strconv.Itoa(searchResponse.Resources[0].ID)
	c.logger.Debug("found textmagic contact", zap.String("contact_id", contactID))
	return contactID, nil
}

// SendMessage sends an SMS to an existing contact
func (c *clientImpl) SendMessage(ctx context.Context, contactID, message string) error {
	payload := map[string]any{
		"contacts": contactID,
		"text":     message,
	}
	body, status, err := c.request(ctx, http.MethodPost, "/messages", payload)
	if err != nil {
		return fmt.Errorf("error sending message: %w", err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("error from TextMagic API: %s", string(body))
	}

	c.logger.Info("sent message", zap.String("contact_id", contactID))
	return nil
}
