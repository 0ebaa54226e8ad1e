package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"pointsledger/internal/db"
	"pointsledger/internal/pricing"
	"pointsledger/internal/store"
	"pointsledger/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient points balance")
	ErrInsufficientEarnings   = errors.New("insufficient earnings balance")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidPoints          = errors.New("invalid points quantity")
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrUnknownSpendCategory   = errors.New("unknown spend category")
	ErrUnknownEarningSource   = errors.New("unknown earning source")
	ErrConfigInvalid          = errors.New("platform settings are invalid")
	ErrLedgerOutOfSync        = errors.New("earnings ledger out of sync with wallet")
)

type LedgerService struct {
	txRunner     db.TxRunner
	wallets      WalletStore
	transactions TransactionStore
	earnings     EarningsStore
	payouts      PayoutStore
	settings     SettingsStore
	referrals    ReferralStore
	audit        AuditStore
	hub          WalletHub
}

type WalletStore interface {
	GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Wallet, error)
	UpdateBalances(ctx context.Context, tx store.Execer, userID string, points, earnings, locked int64) error
	SetNextTopupDue(ctx context.Context, tx store.Execer, userID string, dueOn time.Time) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (store.TransactionRecord, error)
	UpdateStatus(ctx context.Context, tx store.Execer, transactionID, fromStatus, toStatus string) (int64, error)
}

type EarningsStore interface {
	Create(ctx context.Context, tx store.Execer, input store.EarningEntryInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, entryID string) (store.EarningEntry, error)
	DuePending(ctx context.Context, tx store.Selecter, userID string, now time.Time, limit int) ([]store.EarningEntry, error)
	ConfirmPending(ctx context.Context, tx store.Execer, entryID, transactionID string) (int64, error)
	MarkReversed(ctx context.Context, tx store.Execer, entryID string) (int64, error)
	SumConfirmed(ctx context.Context, tx store.Getter, userID string) (int64, error)
	LockConfirmed(ctx context.Context, tx store.Execer, userID, payoutID string) (int64, error)
	ReleaseForPayout(ctx context.Context, tx store.Execer, payoutID string) (int64, error)
}

type PayoutStore interface {
	Create(ctx context.Context, tx store.Execer, input store.PayoutInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, payoutID string) (store.Payout, error)
	UpdateStatus(ctx context.Context, tx store.Execer, payoutID, fromStatus, toStatus string) (int64, error)
}

type SettingsStore interface {
	Get(ctx context.Context) (store.Settings, error)
}

type ReferralStore interface {
	GetByID(ctx context.Context, referralID string) (store.Referral, error)
	GetByReferredUser(ctx context.Context, referredUserID string) (store.Referral, error)
	CountBonusTopups(ctx context.Context, tx store.Getter, referralID string) (int, error)
	CreateTopup(ctx context.Context, tx store.Execer, id, referralID, topupTransactionID string, bonusTransactionID *string) error
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type WalletHub interface {
	BroadcastWallet(userID string, update websocket.WalletUpdate)
}

func NewLedgerService(txRunner db.TxRunner, wallets WalletStore, transactions TransactionStore, earnings EarningsStore, payouts PayoutStore, settings SettingsStore, referrals ReferralStore, audit AuditStore, hub WalletHub) *LedgerService {
	return &LedgerService{
		txRunner:     txRunner,
		wallets:      wallets,
		transactions: transactions,
		earnings:     earnings,
		payouts:      payouts,
		settings:     settings,
		referrals:    referrals,
		audit:        audit,
		hub:          hub,
	}
}

type ApplyRequest struct {
	UserID              string
	Type                string
	PointsDelta         int64
	EarningsPointsDelta int64
	AmountTTD           *int64
	Category            *string
	RecipientUserID     *string
	SenderUserID        *string
	Metadata            map[string]string
}

type walletSnapshot struct {
	userID string
	update websocket.WalletUpdate
}

// ApplyTransaction appends a transaction to the log and applies its
// deltas to the wallet in one database transaction. Top-ups are inserted
// pending and touch no balance; every other type is verified immediately.
func (s *LedgerService) ApplyTransaction(ctx context.Context, req ApplyRequest) (string, error) {
	if !store.ValidTransactionType(req.Type) {
		return "", ErrUnknownTransactionType
	}
	transactionID := uuid.NewString()
	status := store.TxStatusVerified
	if req.Type == store.TxTypeTopUp {
		status = store.TxStatusPending
	}
	var snapshot *walletSnapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		snapshot = nil
		wallet, err := s.wallets.GetForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if status == store.TxStatusVerified {
			updated, err := applyDeltas(wallet, req.PointsDelta, req.EarningsPointsDelta)
			if err != nil {
				return err
			}
			if err := s.wallets.UpdateBalances(ctx, tx, req.UserID, updated.PointsBalance, updated.EarningsPoints, updated.LockedEarningsPoints); err != nil {
				return err
			}
			snapshot = &walletSnapshot{userID: req.UserID, update: walletUpdateFor(updated)}
		}
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:                  transactionID,
			UserID:              req.UserID,
			Type:                req.Type,
			Status:              status,
			AmountTTD:           req.AmountTTD,
			PointsDelta:         req.PointsDelta,
			EarningsPointsDelta: req.EarningsPointsDelta,
			Category:            req.Category,
			RecipientUserID:     req.RecipientUserID,
			SenderUserID:        req.SenderUserID,
			Metadata:            metadataJSON(req.Metadata),
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"transaction_id": transactionID,
			"type":           req.Type,
		})
		return s.audit.Log(ctx, tx, req.UserID, "apply_transaction", "transaction", transactionID, string(data))
	})
	if err != nil {
		return "", err
	}
	s.broadcast(snapshot)
	return transactionID, nil
}

type TopUpSubmission struct {
	TransactionID   string
	AmountTTD       int64
	ProjectedPoints int64
}

// SubmitTopUp records a pending top-up. Projected points are computed at
// the submission-time price and locked in; a later price change does not
// reprice a pending top-up.
func (s *LedgerService) SubmitTopUp(ctx context.Context, userID string, amountMinor int64) (TopUpSubmission, error) {
	if amountMinor <= 0 {
		return TopUpSubmission{}, ErrInvalidAmount
	}
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return TopUpSubmission{}, err
	}
	projected := pricing.PointsForTopUp(amountMinor, settings.BuyPricePerPoint)
	if projected <= 0 {
		return TopUpSubmission{}, ErrInvalidAmount
	}
	transactionID, err := s.ApplyTransaction(ctx, ApplyRequest{
		UserID:      userID,
		Type:        store.TxTypeTopUp,
		PointsDelta: projected,
		AmountTTD:   &amountMinor,
		Metadata: map[string]string{
			"buy_price_per_point": settings.BuyPricePerPoint.String(),
		},
	})
	if err != nil {
		return TopUpSubmission{}, err
	}
	return TopUpSubmission{
		TransactionID:   transactionID,
		AmountTTD:       amountMinor,
		ProjectedPoints: projected,
	}, nil
}

// VerifyTopUp flips a pending top-up to verified, credits the projected
// points, advances the mandatory top-up due date when the amount
// qualifies, and awards the referrer's bonus when one is due.
func (s *LedgerService) VerifyTopUp(ctx context.Context, transactionID, actorID string) error {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return err
	}
	var snapshots []walletSnapshot
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		snapshots = snapshots[:0]
		record, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if record.Type != store.TxTypeTopUp || record.Status != store.TxStatusPending {
			return ErrInvalidTransition
		}
		rows, err := s.transactions.UpdateStatus(ctx, tx, transactionID, store.TxStatusPending, store.TxStatusVerified)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidTransition
		}
		wallet, err := s.wallets.GetForUpdate(ctx, tx, record.UserID)
		if err != nil {
			return err
		}
		updated, err := applyDeltas(wallet, record.PointsDelta, record.EarningsPointsDelta)
		if err != nil {
			return err
		}
		if err := s.wallets.UpdateBalances(ctx, tx, record.UserID, updated.PointsBalance, updated.EarningsPoints, updated.LockedEarningsPoints); err != nil {
			return err
		}
		snapshots = append(snapshots, walletSnapshot{userID: record.UserID, update: walletUpdateFor(updated)})
		if record.AmountTTD != nil && *record.AmountTTD >= settings.MandatoryTopupTTD {
			if err := s.wallets.SetNextTopupDue(ctx, tx, record.UserID, firstOfNextMonth(time.Now())); err != nil {
				return err
			}
		}
		referral, err := s.referrals.GetByReferredUser(ctx, record.UserID)
		if err != nil {
			if err == sql.ErrNoRows {
				referral = store.Referral{}
			} else {
				return err
			}
		}
		if referral.ID != "" {
			_, snap, err := s.recordReferralTopupTx(ctx, tx, referral, record.ID, settings)
			if err != nil {
				return err
			}
			if snap != nil {
				snapshots = append(snapshots, *snap)
			}
		}
		data, _ := json.Marshal(map[string]string{
			"transaction_id": transactionID,
			"user_id":        record.UserID,
		})
		return s.audit.Log(ctx, tx, actorID, "verify_top_up", "transaction", transactionID, string(data))
	})
	if err != nil {
		return err
	}
	for i := range snapshots {
		s.broadcast(&snapshots[i])
	}
	return nil
}

// RejectTopUp marks a pending top-up rejected. The speculative
// points_delta stays on the row for display, but never hits the wallet.
func (s *LedgerService) RejectTopUp(ctx context.Context, transactionID, actorID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		record, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if record.Type != store.TxTypeTopUp || record.Status != store.TxStatusPending {
			return ErrInvalidTransition
		}
		rows, err := s.transactions.UpdateStatus(ctx, tx, transactionID, store.TxStatusPending, store.TxStatusRejected)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidTransition
		}
		data, _ := json.Marshal(map[string]string{
			"transaction_id": transactionID,
			"user_id":        record.UserID,
		})
		return s.audit.Log(ctx, tx, actorID, "reject_top_up", "transaction", transactionID, string(data))
	})
}

// SpendPoints debits spendable points for a consumable. The wallet is
// never allowed to go negative; the transaction fails whole.
func (s *LedgerService) SpendPoints(ctx context.Context, userID string, points int64, category string) (string, error) {
	if points <= 0 {
		return "", ErrInvalidPoints
	}
	if !store.ValidSpendCategory(category) {
		return "", ErrUnknownSpendCategory
	}
	return s.ApplyTransaction(ctx, ApplyRequest{
		UserID:      userID,
		Type:        store.TxTypePointSpend,
		PointsDelta: -points,
		Category:    &category,
	})
}

// RefundSpend reverses a verified spend with a compensating point_refund
// transaction. History is never edited.
func (s *LedgerService) RefundSpend(ctx context.Context, transactionID, actorID string) (string, error) {
	refundID := uuid.NewString()
	var snapshot *walletSnapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		snapshot = nil
		record, err := s.transactions.GetForUpdate(ctx, tx, transactionID)
		if err != nil {
			return err
		}
		if record.Type != store.TxTypePointSpend || record.Status != store.TxStatusVerified {
			return ErrInvalidTransition
		}
		wallet, err := s.wallets.GetForUpdate(ctx, tx, record.UserID)
		if err != nil {
			return err
		}
		updated, err := applyDeltas(wallet, -record.PointsDelta, 0)
		if err != nil {
			return err
		}
		if err := s.wallets.UpdateBalances(ctx, tx, record.UserID, updated.PointsBalance, updated.EarningsPoints, updated.LockedEarningsPoints); err != nil {
			return err
		}
		snapshot = &walletSnapshot{userID: record.UserID, update: walletUpdateFor(updated)}
		metadata, _ := json.Marshal(map[string]string{"refund_of": record.ID})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:          refundID,
			UserID:      record.UserID,
			Type:        store.TxTypePointRefund,
			Status:      store.TxStatusVerified,
			PointsDelta: -record.PointsDelta,
			Category:    record.Category,
			Metadata:    string(metadata),
		}); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "refund_spend", "transaction", refundID, string(metadata))
	})
	if err != nil {
		return "", err
	}
	s.broadcast(snapshot)
	return refundID, nil
}

type ReferralTopup struct {
	ID                 string
	ReferralID         string
	TopupTransactionID string
	BonusTransactionID *string
}

// RecordReferralTopup awards the referrer's bonus for a verified top-up
// by the referred user. Returns nil once the bonus cap is reached; the
// top-up is still recorded for referral history.
func (s *LedgerService) RecordReferralTopup(ctx context.Context, referralID, topupTransactionID, actorID string) (*ReferralTopup, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	referral, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, err
	}
	var result *ReferralTopup
	var snapshot *walletSnapshot
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		snapshot = nil
		record, err := s.transactions.GetForUpdate(ctx, tx, topupTransactionID)
		if err != nil {
			return err
		}
		if record.Type != store.TxTypeTopUp || record.Status != store.TxStatusVerified || record.UserID != referral.ReferredUserID {
			return ErrInvalidTransition
		}
		recorded, snap, err := s.recordReferralTopupTx(ctx, tx, referral, record.ID, settings)
		if err != nil {
			return err
		}
		result = recorded
		snapshot = snap
		data, _ := json.Marshal(map[string]string{
			"referral_id":          referralID,
			"topup_transaction_id": topupTransactionID,
		})
		return s.audit.Log(ctx, tx, actorID, "record_referral_topup", "referral", referralID, string(data))
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(snapshot)
	return result, nil
}

func (s *LedgerService) recordReferralTopupTx(ctx context.Context, tx *sqlx.Tx, referral store.Referral, topupTransactionID string, settings store.Settings) (*ReferralTopup, *walletSnapshot, error) {
	count, err := s.referrals.CountBonusTopups(ctx, tx, referral.ID)
	if err != nil {
		return nil, nil, err
	}
	topupRecordID := uuid.NewString()
	if count >= settings.ReferralMaxTopups {
		if err := s.referrals.CreateTopup(ctx, tx, topupRecordID, referral.ID, topupTransactionID, nil); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	bonusID := uuid.NewString()
	metadata, _ := json.Marshal(map[string]string{
		"referral_id":          referral.ID,
		"topup_transaction_id": topupTransactionID,
	})
	if err := s.transactions.Create(ctx, tx, store.TransactionInput{
		ID:           bonusID,
		UserID:       referral.ReferrerUserID,
		Type:         store.TxTypeReferralBonus,
		Status:       store.TxStatusVerified,
		PointsDelta:  settings.ReferralBonusPoints,
		SenderUserID: &referral.ReferredUserID,
		Metadata:     string(metadata),
	}); err != nil {
		return nil, nil, err
	}
	wallet, err := s.wallets.GetForUpdate(ctx, tx, referral.ReferrerUserID)
	if err != nil {
		return nil, nil, err
	}
	updated, err := applyDeltas(wallet, settings.ReferralBonusPoints, 0)
	if err != nil {
		return nil, nil, err
	}
	if err := s.wallets.UpdateBalances(ctx, tx, referral.ReferrerUserID, updated.PointsBalance, updated.EarningsPoints, updated.LockedEarningsPoints); err != nil {
		return nil, nil, err
	}
	if err := s.referrals.CreateTopup(ctx, tx, topupRecordID, referral.ID, topupTransactionID, &bonusID); err != nil {
		return nil, nil, err
	}
	recorded := &ReferralTopup{
		ID:                 topupRecordID,
		ReferralID:         referral.ID,
		TopupTransactionID: topupTransactionID,
		BonusTransactionID: &bonusID,
	}
	snapshot := &walletSnapshot{userID: referral.ReferrerUserID, update: walletUpdateFor(updated)}
	return recorded, snapshot, nil
}

func (s *LedgerService) loadSettings(ctx context.Context) (store.Settings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return store.Settings{}, err
	}
	if !settings.BuyPricePerPoint.IsPositive() || !settings.UserValuePerPoint.IsPositive() {
		return store.Settings{}, ErrConfigInvalid
	}
	return settings, nil
}

func (s *LedgerService) broadcast(snapshot *walletSnapshot) {
	if snapshot == nil {
		return
	}
	s.hub.BroadcastWallet(snapshot.userID, snapshot.update)
}

func applyDeltas(wallet store.Wallet, pointsDelta, earningsDelta int64) (store.Wallet, error) {
	newPoints := wallet.PointsBalance + pointsDelta
	if newPoints < 0 {
		return store.Wallet{}, ErrInsufficientBalance
	}
	newEarnings := wallet.EarningsPoints + earningsDelta
	if newEarnings < 0 {
		return store.Wallet{}, ErrInsufficientEarnings
	}
	wallet.PointsBalance = newPoints
	wallet.EarningsPoints = newEarnings
	return wallet, nil
}

func walletUpdateFor(wallet store.Wallet) websocket.WalletUpdate {
	return websocket.WalletUpdate{
		PointsBalance:        wallet.PointsBalance,
		EarningsPoints:       wallet.EarningsPoints,
		LockedEarningsPoints: wallet.LockedEarningsPoints,
	}
}

func metadataJSON(metadata map[string]string) string {
	if len(metadata) == 0 {
		return "{}"
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// firstOfNextMonth is the payout cycle boundary: payouts are processed
// on the 1st of each month.
func firstOfNextMonth(now time.Time) time.Time {
	year, month, _ := now.UTC().Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
