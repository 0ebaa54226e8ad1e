package store

import (
	"context"
	"time"
)

type WalletStore struct {
	db DB
}

type Wallet struct {
	UserID               string     `db:"user_id"`
	PointsBalance        int64      `db:"points_balance"`
	EarningsPoints       int64      `db:"earnings_points"`
	LockedEarningsPoints int64      `db:"locked_earnings_points"`
	NextTopupDueOn       *time.Time `db:"next_topup_due_on"`
	CreatedAt            any        `db:"created_at"`
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, userID string, nextTopupDueOn time.Time) error {
	query := `
		INSERT INTO wallets (user_id, points_balance, earnings_points, locked_earnings_points, next_topup_due_on)
		VALUES ($1, 0, 0, 0, $2)
	`
	_, err := tx.ExecContext(ctx, query, userID, nextTopupDueOn)
	return err
}

func (s *WalletStore) GetByUser(ctx context.Context, userID string) (Wallet, error) {
	var row Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, points_balance, earnings_points, locked_earnings_points, next_topup_due_on, created_at
		FROM wallets
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) GetForUpdate(ctx context.Context, tx Getter, userID string) (Wallet, error) {
	var row Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, points_balance, earnings_points, locked_earnings_points, next_topup_due_on
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) UpdateBalances(ctx context.Context, tx Execer, userID string, points, earnings, locked int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET points_balance = $1, earnings_points = $2, locked_earnings_points = $3, updated_at = NOW()
		WHERE user_id = $4
	`, points, earnings, locked, userID)
	return err
}

func (s *WalletStore) SetNextTopupDue(ctx context.Context, tx Execer, userID string, dueOn time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET next_topup_due_on = $1, updated_at = NOW()
		WHERE user_id = $2
	`, dueOn, userID)
	return err
}
