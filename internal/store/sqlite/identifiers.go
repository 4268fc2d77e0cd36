package sqlite

import (
	"context"
	"time"
)

// EnqueueIdentifiers 把一批已归一化的标识写入待查队列。重复提交是幂等的。
func (s *Store) EnqueueIdentifiers(ctx context.Context, identifiers []string) (int, error) {
	if len(identifiers) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	nowMs := time.Now().UnixMilli()
	inserted := 0
	for _, v := range identifiers {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO identifiers (value, enqueued_at) VALUES (?, ?)
			ON CONFLICT(value) DO NOTHING
		`, v, nowMs)
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListPendingIdentifiers 返回还没有终态结果的标识，按入队顺序。
// 重启后靠这个差集恢复未完成的工作。
func (s *Store) ListPendingIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.value FROM identifiers i
		WHERE NOT EXISTS (SELECT 1 FROM results r WHERE r.identifier = i.value)
		ORDER BY i.enqueued_at ASC, i.value ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) CountPendingIdentifiers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM identifiers i
		WHERE NOT EXISTS (SELECT 1 FROM results r WHERE r.identifier = i.value)
	`).Scan(&n)
	return n, err
}
