package store

import "context"

type ReferralStore struct {
	db DB
}

type Referral struct {
	ID             string `db:"id"`
	ReferrerUserID string `db:"referrer_user_id"`
	ReferredUserID string `db:"referred_user_id"`
}

func NewReferralStore(db DB) *ReferralStore {
	return &ReferralStore{db: db}
}

func (s *ReferralStore) Create(ctx context.Context, tx Execer, id, referrerUserID, referredUserID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO referrals (id, referrer_user_id, referred_user_id)
		VALUES ($1, $2, $3)
	`, id, referrerUserID, referredUserID)
	return err
}

func (s *ReferralStore) GetByID(ctx context.Context, referralID string) (Referral, error) {
	var row Referral
	err := s.db.GetContext(ctx, &row, `
		SELECT id, referrer_user_id, referred_user_id
		FROM referrals
		WHERE id = $1
	`, referralID)
	if err != nil {
		return Referral{}, err
	}
	return row, nil
}

func (s *ReferralStore) GetByReferredUser(ctx context.Context, referredUserID string) (Referral, error) {
	var row Referral
	err := s.db.GetContext(ctx, &row, `
		SELECT id, referrer_user_id, referred_user_id
		FROM referrals
		WHERE referred_user_id = $1
	`, referredUserID)
	if err != nil {
		return Referral{}, err
	}
	return row, nil
}

// CountBonusTopups counts the bonus-bearing top-ups recorded for a
// referral. Rows without a bonus transaction do not count against the cap.
func (s *ReferralStore) CountBonusTopups(ctx context.Context, tx Getter, referralID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM referral_topups
		WHERE referral_id = $1 AND bonus_transaction_id IS NOT NULL
	`, referralID)
	return count, err
}

func (s *ReferralStore) CreateTopup(ctx context.Context, tx Execer, id, referralID, topupTransactionID string, bonusTransactionID *string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO referral_topups (id, referral_id, topup_transaction_id, bonus_transaction_id)
		VALUES ($1, $2, $3, $4)
	`, id, referralID, topupTransactionID, bonusTransactionID)
	return err
}

type referralHistoryRow struct {
	ReferralID         string  `db:"referral_id"`
	ReferredUsername   *string `db:"referred_username"`
	TopupTransactionID string  `db:"topup_transaction_id"`
	BonusTransactionID *string `db:"bonus_transaction_id"`
	BonusPoints        *int64  `db:"bonus_points"`
	CreatedAt          any     `db:"created_at"`
}

// ListTopupsByReferrer returns the referrer's bonus history, including
// over-cap top-ups recorded without a bonus.
func (s *ReferralStore) ListTopupsByReferrer(ctx context.Context, referrerUserID string, limit, offset int) ([]map[string]any, error) {
	var rows []referralHistoryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT rt.referral_id,
		       u.username AS referred_username,
		       rt.topup_transaction_id,
		       rt.bonus_transaction_id,
		       bt.points_delta AS bonus_points,
		       rt.created_at
		FROM referral_topups rt
		JOIN referrals r ON r.id = rt.referral_id
		JOIN users u ON u.id = r.referred_user_id
		LEFT JOIN transactions bt ON bt.id = rt.bonus_transaction_id
		WHERE r.referrer_user_id = $1
		ORDER BY rt.created_at DESC
		LIMIT $2 OFFSET $3
	`, referrerUserID, limit, offset)
	if err != nil {
		return nil, err
	}
	history := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		bonusPoints := int64(0)
		if row.BonusPoints != nil {
			bonusPoints = *row.BonusPoints
		}
		history = append(history, map[string]any{
			"referral_id":          row.ReferralID,
			"referred_username":    derefStringPtr(row.ReferredUsername),
			"topup_transaction_id": row.TopupTransactionID,
			"bonus_transaction_id": derefStringPtr(row.BonusTransactionID),
			"bonus_awarded":        row.BonusTransactionID != nil,
			"bonus_points":         bonusPoints,
			"created_at":           row.CreatedAt,
		})
	}
	return history, nil
}
