package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type TransactionStore struct {
	db DB
}

type transactionRow struct {
	ID                  string  `db:"id"`
	UserID              string  `db:"user_id"`
	Username            *string `db:"username"`
	Type                string  `db:"type"`
	Status              string  `db:"status"`
	AmountTTD           *int64  `db:"amount_ttd"`
	PointsDelta         int64   `db:"points_delta"`
	EarningsPointsDelta int64   `db:"earnings_points_delta"`
	Category            *string `db:"category"`
	RecipientUserID     *string `db:"recipient_user_id"`
	SenderUserID        *string `db:"sender_user_id"`
	Metadata            string  `db:"metadata"`
	CreatedAt           any     `db:"created_at"`
}

type TransactionInput struct {
	ID                  string
	UserID              string
	Type                string
	Status              string
	AmountTTD           *int64
	PointsDelta         int64
	EarningsPointsDelta int64
	Category            *string
	RecipientUserID     *string
	SenderUserID        *string
	Metadata            string
}

type TransactionRecord struct {
	ID                  string  `db:"id"`
	UserID              string  `db:"user_id"`
	Type                string  `db:"type"`
	Status              string  `db:"status"`
	AmountTTD           *int64  `db:"amount_ttd"`
	PointsDelta         int64   `db:"points_delta"`
	EarningsPointsDelta int64   `db:"earnings_points_delta"`
	Category            *string `db:"category"`
	Metadata            string  `db:"metadata"`
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, user_id, type, status, amount_ttd, points_delta, earnings_points_delta, category, recipient_user_id, sender_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, input.Type, input.Status, input.AmountTTD,
		input.PointsDelta, input.EarningsPointsDelta, input.Category,
		input.RecipientUserID, input.SenderUserID, input.Metadata,
	)
	return err
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (TransactionRecord, error) {
	var row TransactionRecord
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, type, status, amount_ttd, points_delta, earnings_points_delta, category, metadata
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID)
	if err != nil {
		return TransactionRecord{}, err
	}
	return row, nil
}

// UpdateStatus transitions a transaction between statuses conditionally:
// zero rows affected means the row was not in the expected status.
func (s *TransactionStore) UpdateStatus(ctx context.Context, tx Execer, transactionID, fromStatus, toStatus string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = $1 WHERE id = $2 AND status = $3
	`, toStatus, transactionID, fromStatus)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	query := `
		SELECT t.id, t.user_id, u.username, t.type, t.status, t.amount_ttd,
		       t.points_delta, t.earnings_points_delta, t.category,
		       t.recipient_user_id, t.sender_user_id, t.metadata, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.user_id = $1
	`
	args := []any{userID}
	param := 2
	if txType != "" {
		query += " AND t.type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY t.created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.user_id, u.username, t.type, t.status, t.amount_ttd,
		       t.points_delta, t.earnings_points_delta, t.category,
		       t.recipient_user_id, t.sender_user_id, t.metadata, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		ORDER BY t.created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

func (s *TransactionStore) ListPendingTopUps(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT t.id, t.user_id, u.username, t.type, t.status, t.amount_ttd,
		       t.points_delta, t.earnings_points_delta, t.category,
		       t.recipient_user_id, t.sender_user_id, t.metadata, t.created_at
		FROM transactions t
		LEFT JOIN users u ON u.id = t.user_id
		WHERE t.type = 'top_up' AND t.status = 'pending'
		ORDER BY t.created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return transactionRowsToMaps(rows), nil
}

type VerifiedDeltaSums struct {
	PointsDelta         int64 `db:"points_delta"`
	EarningsPointsDelta int64 `db:"earnings_points_delta"`
}

// SumVerifiedDeltas sums the signed deltas of a user's verified
// transactions. Pending and rejected rows never count towards balances.
func (s *TransactionStore) SumVerifiedDeltas(ctx context.Context, userID string) (VerifiedDeltaSums, error) {
	var sums VerifiedDeltaSums
	err := s.db.GetContext(ctx, &sums, `
		SELECT COALESCE(SUM(points_delta), 0) AS points_delta,
		       COALESCE(SUM(earnings_points_delta), 0) AS earnings_points_delta
		FROM transactions
		WHERE user_id = $1 AND status = 'verified'
	`, userID)
	return sums, err
}

// PendingTopUpPoints sums the projected points of a user's pending
// top-ups. Projected points are display-only until verification.
func (s *TransactionStore) PendingTopUpPoints(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(points_delta), 0)
		FROM transactions
		WHERE user_id = $1 AND type = 'top_up' AND status = 'pending'
	`, userID)
	return sum, err
}

type TopUpTotals struct {
	Points      int64 `db:"points"`
	AmountMinor int64 `db:"amount_minor"`
}

func (s *TransactionStore) VerifiedTopUpTotals(ctx context.Context, from, to time.Time) (TopUpTotals, error) {
	var totals TopUpTotals
	err := s.db.GetContext(ctx, &totals, `
		SELECT COALESCE(SUM(points_delta), 0) AS points,
		       COALESCE(SUM(amount_ttd), 0) AS amount_minor
		FROM transactions
		WHERE type = 'top_up' AND status = 'verified'
		  AND created_at >= $1 AND created_at < $2
	`, from, to)
	return totals, err
}

// SpendPointsByCategory sums points consumed by verified spends in the
// given categories. Spend deltas are negative; the result is positive.
func (s *TransactionStore) SpendPointsByCategory(ctx context.Context, categories []string, from, to time.Time) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(-points_delta), 0)
		FROM transactions
		WHERE type = 'point_spend' AND status = 'verified'
		  AND category = ANY($1)
		  AND created_at >= $2 AND created_at < $3
	`, pq.Array(categories), from, to)
	return sum, err
}

// EarningsPointsNet sums verified earning credits net of reversals.
func (s *TransactionStore) EarningsPointsNet(ctx context.Context, from, to time.Time) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(earnings_points_delta), 0)
		FROM transactions
		WHERE type IN ('earning_credit', 'earning_reversal') AND status = 'verified'
		  AND created_at >= $1 AND created_at < $2
	`, from, to)
	return sum, err
}

func (s *TransactionStore) ReferralBonusPoints(ctx context.Context, from, to time.Time) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(points_delta), 0)
		FROM transactions
		WHERE type = 'referral_bonus' AND status = 'verified'
		  AND created_at >= $1 AND created_at < $2
	`, from, to)
	return sum, err
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}

func transactionRowsToMaps(rows []transactionRow) []map[string]any {
	maps := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		var amount any
		if row.AmountTTD != nil {
			amount = *row.AmountTTD
		}
		maps = append(maps, map[string]any{
			"id":                    row.ID,
			"user_id":               row.UserID,
			"username":              derefStringPtr(row.Username),
			"type":                  row.Type,
			"status":                row.Status,
			"amount_ttd":            amount,
			"points_delta":          row.PointsDelta,
			"earnings_points_delta": row.EarningsPointsDelta,
			"category":              derefStringPtr(row.Category),
			"recipient_user_id":     derefStringPtr(row.RecipientUserID),
			"sender_user_id":        derefStringPtr(row.SenderUserID),
			"metadata":              row.Metadata,
			"created_at":            row.CreatedAt,
		})
	}
	return maps
}
