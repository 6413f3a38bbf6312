package store

import (
	"context"
	"errors"
	"fmt"

	"malipo/internal/dbx"

	"github.com/jackc/pgx/v5"
)

// SettingsStore persists per-context plugin settings as a key/value table,
// mirroring how the host keeps them.
type SettingsStore struct {
	q dbx.Querier
}

func (s *SettingsStore) Get(ctx context.Context, contextID int64, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var value string
	err := s.q.QueryRow(ctx, `
		SELECT setting_value FROM plugin_settings
		 WHERE context_id = $1 AND setting_name = $2
	`, contextID, name).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", name, err)
	}
	return value, nil
}

func (s *SettingsStore) All(ctx context.Context, contextID int64) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.q.Query(ctx, `
		SELECT setting_name, setting_value FROM plugin_settings
		 WHERE context_id = $1
	`, contextID)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SettingsStore) Upsert(ctx context.Context, contextID int64, name, value string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.q.Exec(ctx, `
		INSERT INTO plugin_settings (context_id, setting_name, setting_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (context_id, setting_name)
		DO UPDATE SET setting_value = EXCLUDED.setting_value
	`, contextID, name, value)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", name, err)
	}
	return nil
}
