package store

import (
	"context"
	"encoding/json"

	"github.com/parleyhq/parley/internal/errors"
)

// GetPrefs reads the whole preference document. Values are raw JSON; the
// prefs package owns decoding.
func (s *Store) GetPrefs(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM prefs`)
	if err != nil {
		return nil, errors.NewStorage("get_prefs", err)
	}
	defer rows.Close()

	prefs := make(map[string]json.RawMessage)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errors.NewStorage("get_prefs", err)
		}
		prefs[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("get_prefs", err)
	}
	return prefs, nil
}

// SetPref durably writes one preference key. Last write wins.
func (s *Store) SetPref(ctx context.Context, key string, value json.RawMessage) error {
	if key == "" {
		return errors.NewInvalidRequest("pref key must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefs (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(value))
	if err != nil {
		return errors.NewStorage("set_pref", err)
	}
	return nil
}
