package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetConfig returns the JSON value stored under key. The bool is false when
// the key does not exist.
func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read config %q: %w", key, err)
	}
	return json.RawMessage(value), true, nil
}

// SetConfig stores value under key, replacing any previous value.
func (s *Store) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	if !json.Valid(value) {
		return fmt.Errorf("config %q: value is not valid JSON", key)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("write config %q: %w", key, err)
	}
	return nil
}

// AllConfig returns every stored config value. Values that are not valid
// JSON are skipped with a warning.
func (s *Store) AllConfig(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query config: %w", err)
	}
	defer rows.Close()

	all := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		if !json.Valid([]byte(value)) {
			s.logger.Warn().Str("key", key).Msg("Skipping config value that is not valid JSON")
			continue
		}
		all[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate config: %w", err)
	}
	return all, nil
}

// SiteConfig returns the stored site config, or DefaultSiteConfig when none
// has been saved.
func (s *Store) SiteConfig(ctx context.Context) (json.RawMessage, error) {
	value, ok, err := s.GetConfig(ctx, SiteConfigKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return json.RawMessage(DefaultSiteConfig), nil
	}
	return value, nil
}

// MergeSiteConfig shallow-merges patch into the site config and stores the
// result. Top-level keys in patch replace existing ones.
func (s *Store) MergeSiteConfig(ctx context.Context, patch map[string]json.RawMessage) (json.RawMessage, error) {
	current, err := s.SiteConfig(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(current, &merged); err != nil {
		// a non-object site config is replaced by the patch
		merged = make(map[string]json.RawMessage)
	}
	for k, v := range patch {
		merged[k] = v
	}

	value, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode site config: %w", err)
	}
	if err := s.SetConfig(ctx, SiteConfigKey, value); err != nil {
		return nil, err
	}
	return value, nil
}
