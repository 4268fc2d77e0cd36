package sqlite

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"lookup_engine/internal/model"
)

func (s *Store) InsertResult(ctx context.Context, res model.VerificationResult) error {
	if res.Identifier == "" {
		return errors.New("identifier is required")
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	profileJSON := ""
	if res.Profile != nil {
		b, err := json.Marshal(res.Profile)
		if err != nil {
			return err
		}
		profileJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (id, identifier, outcome, profile_json, account_id, attempts, error, at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ID, res.Identifier, string(res.Outcome), profileJSON, res.AccountID, res.Attempts, res.Error, res.AtMs)
	return err
}

func (s *Store) ListResults(ctx context.Context, limit int) ([]model.VerificationResult, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identifier, outcome, profile_json, account_id, attempts, error, at_ms
		FROM results ORDER BY at_ms DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VerificationResult
	for rows.Next() {
		var (
			res         model.VerificationResult
			outcome     string
			profileJSON string
		)
		if err := rows.Scan(&res.ID, &res.Identifier, &outcome, &profileJSON, &res.AccountID, &res.Attempts, &res.Error, &res.AtMs); err != nil {
			return nil, err
		}
		res.Outcome = model.ResultOutcome(outcome)
		if profileJSON != "" {
			var p model.Profile
			if err := json.Unmarshal([]byte(profileJSON), &p); err == nil {
				res.Profile = &p
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
