package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"lookup_engine/internal/model"
)

func (s *Store) UpsertAccount(ctx context.Context, acc model.Account) (model.Account, error) {
	if acc.MSISDN == "" {
		return model.Account{}, errors.New("msisdn is required")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	// 调用方没给状态时，更新已有账号要保留库里的状态（尤其是 banned），
	// 只有新插入才落 active
	suppliedStatus := string(acc.Status)
	if acc.Status == "" {
		acc.Status = model.AccountActive
	}
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, label, msisdn, token, user_agent, proxy, status, checks_performed, cooldown_until_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msisdn) DO UPDATE SET
			label = excluded.label,
			token = excluded.token,
			user_agent = excluded.user_agent,
			proxy = excluded.proxy,
			status = CASE WHEN ? = '' THEN accounts.status ELSE excluded.status END,
			updated_at = excluded.updated_at
	`, acc.ID, acc.Label, acc.MSISDN, acc.Token, acc.UserAgent, acc.Proxy, string(acc.Status), acc.ChecksPerformed, acc.CooldownUntilMs, acc.CreatedAt.UnixMilli(), acc.UpdatedAt.UnixMilli(), suppliedStatus)
	if err != nil {
		return model.Account{}, err
	}

	return s.GetAccountByMSISDN(ctx, acc.MSISDN)
}

const accountColumns = `id, label, msisdn, token, user_agent, proxy, status, checks_performed, cooldown_until_ms, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (model.Account, error) {
	var (
		acc       model.Account
		status    string
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&acc.ID, &acc.Label, &acc.MSISDN, &acc.Token, &acc.UserAgent, &acc.Proxy, &status, &acc.ChecksPerformed, &acc.CooldownUntilMs, &createdAt, &updatedAt)
	if err != nil {
		return model.Account{}, err
	}
	acc.Status = model.AccountStatus(status)
	acc.CreatedAt = time.UnixMilli(createdAt)
	acc.UpdatedAt = time.UnixMilli(updatedAt)
	return acc, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByMSISDN(ctx context.Context, msisdn string) (model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE msisdn = ?`, msisdn)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

// SaveAccountRunState 落库引擎运行期间对账号的状态变更（计数、冷却、封禁）。
func (s *Store) SaveAccountRunState(ctx context.Context, acc model.Account) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = ?, checks_performed = ?, cooldown_until_ms = ?, updated_at = ?
		WHERE id = ?
	`, string(acc.Status), acc.ChecksPerformed, acc.CooldownUntilMs, time.Now().UnixMilli(), acc.ID)
	if err != nil {
		return fmt.Errorf("save account run state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save account run state: account %s not found", acc.ID)
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}
