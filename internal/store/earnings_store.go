package store

import (
	"context"
	"time"
)

type EarningsStore struct {
	db DB
}

type EarningEntry struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	SourceType  string    `db:"source_type"`
	Points      int64     `db:"points"`
	AmountTTD   *int64    `db:"amount_ttd"`
	Status      string    `db:"status"`
	AvailableAt time.Time `db:"available_at"`
	PayoutID    *string   `db:"payout_id"`
}

type EarningEntryInput struct {
	ID          string
	UserID      string
	SourceType  string
	Points      int64
	AmountTTD   *int64
	AvailableAt time.Time
}

func NewEarningsStore(db DB) *EarningsStore {
	return &EarningsStore{db: db}
}

func (s *EarningsStore) Create(ctx context.Context, tx Execer, input EarningEntryInput) error {
	query := `
		INSERT INTO earnings_ledger (id, user_id, source_type, points, amount_ttd, status, available_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.UserID, input.SourceType, input.Points, input.AmountTTD, input.AvailableAt,
	)
	return err
}

func (s *EarningsStore) GetForUpdate(ctx context.Context, tx Getter, entryID string) (EarningEntry, error) {
	var row EarningEntry
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, source_type, points, amount_ttd, status, available_at, payout_id
		FROM earnings_ledger
		WHERE id = $1
		FOR UPDATE
	`, entryID)
	if err != nil {
		return EarningEntry{}, err
	}
	return row, nil
}

// DuePending selects up to limit pending entries whose maturation window
// has elapsed. SKIP LOCKED keeps concurrent sweeps off the same rows.
func (s *EarningsStore) DuePending(ctx context.Context, tx Selecter, userID string, now time.Time, limit int) ([]EarningEntry, error) {
	var rows []EarningEntry
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, user_id, source_type, points, amount_ttd, status, available_at, payout_id
		FROM earnings_ledger
		WHERE user_id = $1 AND status = 'pending' AND available_at <= $2
		ORDER BY available_at ASC
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, userID, now, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ConfirmPending promotes a pending entry to confirmed. The status guard
// makes promotion at-most-once: zero rows means another sweep got there
// first or the entry left the pending state.
func (s *EarningsStore) ConfirmPending(ctx context.Context, tx Execer, entryID, transactionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE earnings_ledger
		SET status = 'confirmed', transaction_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, transactionID, entryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkReversed reverses an entry that has not yet been swept into a
// payout. Locked and already-reversed entries are terminal.
func (s *EarningsStore) MarkReversed(ctx context.Context, tx Execer, entryID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE earnings_ledger
		SET status = 'reversed', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`, entryID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EarningsStore) SumConfirmed(ctx context.Context, tx Getter, userID string) (int64, error) {
	var sum int64
	err := tx.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(points), 0)
		FROM earnings_ledger
		WHERE user_id = $1 AND status = 'confirmed'
	`, userID)
	return sum, err
}

func (s *EarningsStore) LockConfirmed(ctx context.Context, tx Execer, userID, payoutID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE earnings_ledger
		SET status = 'locked', payout_id = $1, updated_at = NOW()
		WHERE user_id = $2 AND status = 'confirmed'
	`, payoutID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *EarningsStore) ReleaseForPayout(ctx context.Context, tx Execer, payoutID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE earnings_ledger
		SET status = 'confirmed', payout_id = NULL, updated_at = NOW()
		WHERE payout_id = $1 AND status = 'locked'
	`, payoutID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type earningListRow struct {
	ID            string  `db:"id"`
	SourceType    string  `db:"source_type"`
	Points        int64   `db:"points"`
	AmountTTD     *int64  `db:"amount_ttd"`
	Status        string  `db:"status"`
	AvailableAt   any     `db:"available_at"`
	TransactionID *string `db:"transaction_id"`
	PayoutID      *string `db:"payout_id"`
	CreatedAt     any     `db:"created_at"`
}

func (s *EarningsStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error) {
	var rows []earningListRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, source_type, points, amount_ttd, status, available_at, transaction_id, payout_id, created_at
		FROM earnings_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		var amount any
		if row.AmountTTD != nil {
			amount = *row.AmountTTD
		}
		entries = append(entries, map[string]any{
			"id":             row.ID,
			"source_type":    row.SourceType,
			"points":         row.Points,
			"amount_ttd":     amount,
			"status":         row.Status,
			"available_at":   row.AvailableAt,
			"transaction_id": derefStringPtr(row.TransactionID),
			"payout_id":      derefStringPtr(row.PayoutID),
			"created_at":     row.CreatedAt,
		})
	}
	return entries, nil
}

// UsersWithDue lists users holding pending entries past their maturation
// window, for the background sweep.
func (s *EarningsStore) UsersWithDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var userIDs []string
	err := s.db.SelectContext(ctx, &userIDs, `
		SELECT DISTINCT user_id
		FROM earnings_ledger
		WHERE status = 'pending' AND available_at <= $1
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
