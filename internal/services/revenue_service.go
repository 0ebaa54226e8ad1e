package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pointsledger/internal/db"
	"pointsledger/internal/pricing"
	"pointsledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	RevenueRuleMargin = "margin"
	RevenueRuleFlat   = "flat"
)

var ErrUnknownRevenueRule = errors.New("unknown revenue rule")

// RevenueService reports platform revenue from the transaction log. The
// reports are pure reads over verified transactions; nothing here writes
// to wallets.
type RevenueService struct {
	txRunner     db.TxRunner
	transactions RevenueTransactionStore
	withdrawals  WithdrawalStore
	settings     SettingsStore
	audit        AuditStore
}

type RevenueTransactionStore interface {
	VerifiedTopUpTotals(ctx context.Context, from, to time.Time) (store.TopUpTotals, error)
	SpendPointsByCategory(ctx context.Context, categories []string, from, to time.Time) (int64, error)
	EarningsPointsNet(ctx context.Context, from, to time.Time) (int64, error)
	ReferralBonusPoints(ctx context.Context, from, to time.Time) (int64, error)
}

type WithdrawalStore interface {
	Create(ctx context.Context, tx store.Execer, id string, amountMinor int64, note, recordedBy string) error
	Total(ctx context.Context, from, to time.Time) (int64, error)
}

func NewRevenueService(txRunner db.TxRunner, transactions RevenueTransactionStore, withdrawals WithdrawalStore, settings SettingsStore, audit AuditStore) *RevenueService {
	return &RevenueService{
		txRunner:     txRunner,
		transactions: transactions,
		withdrawals:  withdrawals,
		settings:     settings,
		audit:        audit,
	}
}

type RevenueReport struct {
	Rule            string    `json:"rule"`
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	TopUpAmountTTD  int64     `json:"top_up_amount_ttd"`
	TopUpPoints     int64     `json:"top_up_points"`
	SpendPoints     int64     `json:"spend_points"`
	GrossRevenueTTD int64     `json:"gross_revenue_ttd"`
	UserEarningsTTD int64     `json:"user_earnings_ttd"`
	WithdrawnTTD    int64     `json:"withdrawn_ttd"`
	AvailableTTD    int64     `json:"available_ttd"`
}

// ComputeRevenue builds a revenue report for [from, to) under the chosen
// rule. The margin rule books the buy/value spread on verified top-ups;
// the flat rule books the full top-up amount plus the value of points
// consumed on voice notes and live events.
func (s *RevenueService) ComputeRevenue(ctx context.Context, rule string, from, to time.Time) (RevenueReport, error) {
	if rule != RevenueRuleMargin && rule != RevenueRuleFlat {
		return RevenueReport{}, ErrUnknownRevenueRule
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return RevenueReport{}, err
	}
	topups, err := s.transactions.VerifiedTopUpTotals(ctx, from, to)
	if err != nil {
		return RevenueReport{}, err
	}
	report := RevenueReport{
		Rule:           rule,
		From:           from,
		To:             to,
		TopUpAmountTTD: topups.AmountMinor,
		TopUpPoints:    topups.Points,
	}
	switch rule {
	case RevenueRuleMargin:
		report.GrossRevenueTTD = pricing.MarginMinor(topups.Points, settings.BuyPricePerPoint, settings.UserValuePerPoint)
	case RevenueRuleFlat:
		spent, err := s.transactions.SpendPointsByCategory(ctx,
			[]string{store.SpendCategoryVoiceNote, store.SpendCategoryLiveEvent}, from, to)
		if err != nil {
			return RevenueReport{}, err
		}
		report.SpendPoints = spent
		report.GrossRevenueTTD = topups.AmountMinor + pricing.PointsValueMinor(spent, settings.UserValuePerPoint)
	}
	earningPoints, err := s.transactions.EarningsPointsNet(ctx, from, to)
	if err != nil {
		return RevenueReport{}, err
	}
	bonusPoints, err := s.transactions.ReferralBonusPoints(ctx, from, to)
	if err != nil {
		return RevenueReport{}, err
	}
	report.UserEarningsTTD = pricing.PointsValueMinor(earningPoints+bonusPoints, settings.UserValuePerPoint)
	withdrawn, err := s.withdrawals.Total(ctx, from, to)
	if err != nil {
		return RevenueReport{}, err
	}
	report.WithdrawnTTD = withdrawn
	available := report.GrossRevenueTTD - report.UserEarningsTTD - withdrawn
	if available < 0 {
		available = 0
	}
	report.AvailableTTD = available
	return report, nil
}

// RecordWithdrawal logs cash taken out of the platform by an operator.
func (s *RevenueService) RecordWithdrawal(ctx context.Context, amountMinor int64, note, actorID string) (string, error) {
	if amountMinor <= 0 {
		return "", ErrInvalidAmount
	}
	withdrawalID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.withdrawals.Create(ctx, tx, withdrawalID, amountMinor, note, actorID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{
			"withdrawal_id": withdrawalID,
			"amount_ttd":    amountMinor,
		})
		return s.audit.Log(ctx, tx, actorID, "record_withdrawal", "withdrawal", withdrawalID, string(data))
	})
	if err != nil {
		return "", err
	}
	return withdrawalID, nil
}
