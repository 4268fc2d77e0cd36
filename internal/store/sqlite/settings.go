package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"lookup_engine/internal/model"
)

const (
	emailSettingsKey  = "email_settings"
	limitsSettingsKey = "limits_settings"
)

func (s *Store) getSettings(ctx context.Context, key string, out any) (bool, error) {
	var valueJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT value_json FROM settings WHERE key = ?
	`, key).Scan(&valueJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(valueJSON), out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) upsertSettings(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value_json = excluded.value_json,
			updated_at = excluded.updated_at
	`, key, string(b), time.Now().UnixMilli())
	return err
}

func (s *Store) GetEmailSettings(ctx context.Context) (model.EmailSettings, bool, error) {
	var out model.EmailSettings
	ok, err := s.getSettings(ctx, emailSettingsKey, &out)
	return out, ok, err
}

func (s *Store) UpsertEmailSettings(ctx context.Context, v model.EmailSettings) (model.EmailSettings, error) {
	if err := s.upsertSettings(ctx, emailSettingsKey, v); err != nil {
		return model.EmailSettings{}, err
	}
	return v, nil
}

func (s *Store) GetLimitsSettings(ctx context.Context) (model.LimitsSettings, bool, error) {
	var out model.LimitsSettings
	ok, err := s.getSettings(ctx, limitsSettingsKey, &out)
	return out, ok, err
}

func (s *Store) UpsertLimitsSettings(ctx context.Context, v model.LimitsSettings) (model.LimitsSettings, error) {
	if err := s.upsertSettings(ctx, limitsSettingsKey, v); err != nil {
		return model.LimitsSettings{}, err
	}
	return v, nil
}
