package store

import (
	"context"
	"time"
)

type PayoutStore struct {
	db DB
}

type Payout struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Points       int64     `db:"points"`
	AmountTTD    int64     `db:"amount_ttd"`
	Status       string    `db:"status"`
	ScheduledFor time.Time `db:"scheduled_for"`
	LockedPoints int64     `db:"locked_points"`
}

type PayoutInput struct {
	ID           string
	UserID       string
	Points       int64
	AmountTTD    int64
	ScheduledFor time.Time
	LockedPoints int64
}

func NewPayoutStore(db DB) *PayoutStore {
	return &PayoutStore{db: db}
}

func (s *PayoutStore) Create(ctx context.Context, tx Execer, input PayoutInput) error {
	query := `
		INSERT INTO payouts (id, user_id, points, amount_ttd, status, scheduled_for, locked_points)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, input.Points, input.AmountTTD, input.ScheduledFor, input.LockedPoints,
	)
	return err
}

func (s *PayoutStore) GetForUpdate(ctx context.Context, tx Getter, payoutID string) (Payout, error) {
	var row Payout
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, points, amount_ttd, status, scheduled_for, locked_points
		FROM payouts
		WHERE id = $1
		FOR UPDATE
	`, payoutID)
	if err != nil {
		return Payout{}, err
	}
	return row, nil
}

// UpdateStatus transitions a payout conditionally on its current status.
// Zero rows affected means the payout was not in the expected state.
func (s *PayoutStore) UpdateStatus(ctx context.Context, tx Execer, payoutID, fromStatus, toStatus string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, processed_at = CASE WHEN $1 IN ('paid', 'cancelled') THEN NOW() ELSE processed_at END
		WHERE id = $2 AND status = $3
	`, toStatus, payoutID, fromStatus)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type payoutListRow struct {
	ID           string  `db:"id"`
	UserID       string  `db:"user_id"`
	Username     *string `db:"username"`
	Points       int64   `db:"points"`
	AmountTTD    int64   `db:"amount_ttd"`
	Status       string  `db:"status"`
	ScheduledFor any     `db:"scheduled_for"`
	LockedPoints int64   `db:"locked_points"`
	CreatedAt    any     `db:"created_at"`
	ProcessedAt  any     `db:"processed_at"`
}

func (s *PayoutStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error) {
	var rows []payoutListRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.id, p.user_id, u.username, p.points, p.amount_ttd, p.status,
		       p.scheduled_for, p.locked_points, p.created_at, p.processed_at
		FROM payouts p
		LEFT JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return payoutRowsToMaps(rows), nil
}

func (s *PayoutStore) ListAll(ctx context.Context, status string, limit, offset int) ([]map[string]any, error) {
	var rows []payoutListRow
	query := `
		SELECT p.id, p.user_id, u.username, p.points, p.amount_ttd, p.status,
		       p.scheduled_for, p.locked_points, p.created_at, p.processed_at
		FROM payouts p
		LEFT JOIN users u ON u.id = p.user_id
	`
	args := []any{}
	param := 1
	if status != "" {
		query += " WHERE p.status = $1"
		args = append(args, status)
		param = 2
	}
	query += " ORDER BY p.scheduled_for ASC, p.created_at ASC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return payoutRowsToMaps(rows), nil
}

func payoutRowsToMaps(rows []payoutListRow) []map[string]any {
	maps := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		maps = append(maps, map[string]any{
			"id":            row.ID,
			"user_id":       row.UserID,
			"username":      derefStringPtr(row.Username),
			"points":        row.Points,
			"amount_ttd":    row.AmountTTD,
			"status":        row.Status,
			"scheduled_for": row.ScheduledFor,
			"locked_points": row.LockedPoints,
			"created_at":    row.CreatedAt,
			"processed_at":  row.ProcessedAt,
		})
	}
	return maps
}
