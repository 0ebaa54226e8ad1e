package models

import "time"

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	ReferralCode string    `db:"referral_code" json:"referral_code"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type Wallet struct {
	UserID               string     `db:"user_id" json:"user_id"`
	PointsBalance        int64      `db:"points_balance" json:"points_balance"`
	EarningsPoints       int64      `db:"earnings_points" json:"earnings_points"`
	LockedEarningsPoints int64      `db:"locked_earnings_points" json:"locked_earnings_points"`
	NextTopupDueOn       *time.Time `db:"next_topup_due_on" json:"next_topup_due_on,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

type Transaction struct {
	ID                  string    `db:"id" json:"id"`
	UserID              string    `db:"user_id" json:"user_id"`
	Type                string    `db:"type" json:"type"`
	Status              string    `db:"status" json:"status"`
	AmountTTD           *int64    `db:"amount_ttd" json:"amount_ttd,omitempty"`
	PointsDelta         int64     `db:"points_delta" json:"points_delta"`
	EarningsPointsDelta int64     `db:"earnings_points_delta" json:"earnings_points_delta"`
	Category            *string   `db:"category" json:"category,omitempty"`
	RecipientUserID     *string   `db:"recipient_user_id" json:"recipient_user_id,omitempty"`
	SenderUserID        *string   `db:"sender_user_id" json:"sender_user_id,omitempty"`
	Metadata            string    `db:"metadata" json:"metadata"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

type EarningEntry struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	SourceType    string     `db:"source_type" json:"source_type"`
	Points        int64      `db:"points" json:"points"`
	AmountTTD     *int64     `db:"amount_ttd" json:"amount_ttd,omitempty"`
	Status        string     `db:"status" json:"status"`
	AvailableAt   time.Time  `db:"available_at" json:"available_at"`
	TransactionID *string    `db:"transaction_id" json:"transaction_id,omitempty"`
	PayoutID      *string    `db:"payout_id" json:"payout_id,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

type Payout struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	Points       int64      `db:"points" json:"points"`
	AmountTTD    int64      `db:"amount_ttd" json:"amount_ttd"`
	Status       string     `db:"status" json:"status"`
	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
	LockedPoints int64      `db:"locked_points" json:"locked_points"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}

type Referral struct {
	ID             string    `db:"id" json:"id"`
	ReferrerUserID string    `db:"referrer_user_id" json:"referrer_user_id"`
	ReferredUserID string    `db:"referred_user_id" json:"referred_user_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

type ReferralTopup struct {
	ID                 string    `db:"id" json:"id"`
	ReferralID         string    `db:"referral_id" json:"referral_id"`
	TopupTransactionID string    `db:"topup_transaction_id" json:"topup_transaction_id"`
	BonusTransactionID *string   `db:"bonus_transaction_id" json:"bonus_transaction_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
