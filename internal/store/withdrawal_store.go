package store

import (
	"context"
	"time"
)

type WithdrawalStore struct {
	db DB
}

func NewWithdrawalStore(db DB) *WithdrawalStore {
	return &WithdrawalStore{db: db}
}

func (s *WithdrawalStore) Create(ctx context.Context, tx Execer, id string, amountMinor int64, note, recordedBy string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO platform_withdrawals (id, amount_ttd, note, recorded_by)
		VALUES ($1, $2, $3, $4)
	`, id, amountMinor, note, recordedBy)
	return err
}

func (s *WithdrawalStore) Total(ctx context.Context, from, to time.Time) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount_ttd), 0)
		FROM platform_withdrawals
		WHERE created_at >= $1 AND created_at < $2
	`, from, to)
	return sum, err
}

type withdrawalRow struct {
	ID          string `db:"id"`
	AmountTTD   int64  `db:"amount_ttd"`
	Note        string `db:"note"`
	RecordedBy  string `db:"recorded_by"`
	CreatedAt   any    `db:"created_at"`
}

func (s *WithdrawalStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []withdrawalRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, amount_ttd, note, recorded_by, created_at
		FROM platform_withdrawals
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	withdrawals := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		withdrawals = append(withdrawals, map[string]any{
			"id":          row.ID,
			"amount_ttd":  row.AmountTTD,
			"note":        row.Note,
			"recorded_by": row.RecordedBy,
			"created_at":  row.CreatedAt,
		})
	}
	return withdrawals, nil
}
