package handlers

import (
	"context"
	"time"

	"pointsledger/internal/services"
	"pointsledger/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash, referralCode string) error
	GetByEmail(ctx context.Context, email string) (map[string]any, error)
	GetByUsername(ctx context.Context, username string) (map[string]any, error)
	GetByID(ctx context.Context, userID string) (map[string]any, error)
	GetByReferralCode(ctx context.Context, referralCode string) (map[string]any, error)
}

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, userID string, nextTopupDueOn time.Time) error
	GetByUser(ctx context.Context, userID string) (store.Wallet, error)
}

type TransactionStore interface {
	ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error)
	ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error)
	ListPendingTopUps(ctx context.Context, limit, offset int) ([]map[string]any, error)
	SumVerifiedDeltas(ctx context.Context, userID string) (store.VerifiedDeltaSums, error)
	PendingTopUpPoints(ctx context.Context, userID string) (int64, error)
}

type EarningsStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error)
}

type PayoutStore interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error)
	ListAll(ctx context.Context, status string, limit, offset int) ([]map[string]any, error)
}

type ReferralStore interface {
	Create(ctx context.Context, tx store.Execer, id, referrerUserID, referredUserID string) error
	ListTopupsByReferrer(ctx context.Context, referrerUserID string, limit, offset int) ([]map[string]any, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (store.Settings, error)
	Update(ctx context.Context, tx store.Execer, input store.SettingsInput) error
}

type WithdrawalStore interface {
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	HasAnyAdmin(ctx context.Context) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type LedgerService interface {
	SubmitTopUp(ctx context.Context, userID string, amountMinor int64) (services.TopUpSubmission, error)
	VerifyTopUp(ctx context.Context, transactionID, actorID string) error
	RejectTopUp(ctx context.Context, transactionID, actorID string) error
	SpendPoints(ctx context.Context, userID string, points int64, category string) (string, error)
	RefundSpend(ctx context.Context, transactionID, actorID string) (string, error)
	CreditEarning(ctx context.Context, userID, sourceType string, points int64, amountTTD *int64, availableAt time.Time, actorID string) (string, error)
	MatureEarnings(ctx context.Context, userID string, limit int) (int, error)
	ReverseEarning(ctx context.Context, entryID, actorID string) error
	LockPayoutEligibleEarnings(ctx context.Context, userID, actorID string) (*services.PayoutResult, error)
	MarkPayoutProcessing(ctx context.Context, payoutID, actorID string) error
	CompletePayout(ctx context.Context, payoutID, actorID string) error
	CancelPayout(ctx context.Context, payoutID, actorID string) error
	RecordReferralTopup(ctx context.Context, referralID, topupTransactionID, actorID string) (*services.ReferralTopup, error)
}

type RevenueService interface {
	ComputeRevenue(ctx context.Context, rule string, from, to time.Time) (services.RevenueReport, error)
	RecordWithdrawal(ctx context.Context, amountMinor int64, note, actorID string) (string, error)
}
