package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys persisted per visitor
const (
	KeyUser          = "tazapay_user"
	KeyPreviousLogin = "tazapay_previous_login"
	KeyUserEmail     = "user_email"
	KeyUserName      = "user_name"
)

var ErrNotFound = errors.New("key not found")

// Store is a string key/value namespace per visitor. Set replaces the whole
// value; nothing is ever merged.
type Store interface {
	Get(ctx context.Context, visitorID, key string) (string, error)
	Set(ctx context.Context, visitorID, key, value string) error
	Delete(ctx context.Context, visitorID string, keys ...string) error
	Close() error
}

// Has reports whether a key holds a value.
func Has(ctx context.Context, s Store, visitorID, key string) (bool, error) {
	_, err := s.Get(ctx, visitorID, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetJSON decodes a structured value into dst.
func GetJSON(ctx context.Context, s Store, visitorID, key string, dst any) error {
	raw, err := s.Get(ctx, visitorID, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, visitorID, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, visitorID, key, string(data))
}
