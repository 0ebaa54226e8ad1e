package services

import (
	"context"
	"encoding/json"
	"time"

	"pointsledger/internal/pricing"
	"pointsledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreditEarning records a pending earning that matures at availableAt.
// Nothing hits the wallet until the entry is swept.
func (s *LedgerService) CreditEarning(ctx context.Context, userID, sourceType string, points int64, amountTTD *int64, availableAt time.Time, actorID string) (string, error) {
	if points <= 0 {
		return "", ErrInvalidPoints
	}
	if !store.ValidEarningSource(sourceType) {
		return "", ErrUnknownEarningSource
	}
	entryID := uuid.NewString()
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.earnings.Create(ctx, tx, store.EarningEntryInput{
			ID:          entryID,
			UserID:      userID,
			SourceType:  sourceType,
			Points:      points,
			AmountTTD:   amountTTD,
			AvailableAt: availableAt,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"entry_id":    entryID,
			"user_id":     userID,
			"source_type": sourceType,
		})
		return s.audit.Log(ctx, tx, actorID, "credit_earning", "earning", entryID, string(data))
	})
	if err != nil {
		return "", err
	}
	return entryID, nil
}

// MatureEarnings confirms the user's due pending earnings, up to limit
// entries, and credits the total to the wallet's earnings balance in one
// transaction. Each entry moves at most once: the conditional confirm
// skips entries another sweep already claimed, so re-running is safe.
func (s *LedgerService) MatureEarnings(ctx context.Context, userID string, limit int) (int, error) {
	matured := 0
	var snapshot *walletSnapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		matured = 0
		snapshot = nil
		due, err := s.earnings.DuePending(ctx, tx, userID, time.Now(), limit)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}
		var total int64
		for _, entry := range due {
			transactionID := uuid.NewString()
			rows, err := s.earnings.ConfirmPending(ctx, tx, entry.ID, transactionID)
			if err != nil {
				return err
			}
			if rows == 0 {
				continue
			}
			metadata, _ := json.Marshal(map[string]string{
				"earning_entry_id": entry.ID,
				"source_type":      entry.SourceType,
			})
			if err := s.transactions.Create(ctx, tx, store.TransactionInput{
				ID:                  transactionID,
				UserID:              userID,
				Type:                store.TxTypeEarningCredit,
				Status:              store.TxStatusVerified,
				EarningsPointsDelta: entry.Points,
				Metadata:            string(metadata),
			}); err != nil {
				return err
			}
			total += entry.Points
			matured++
		}
		if total == 0 {
			return nil
		}
		wallet, err := s.wallets.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		updated, err := applyDeltas(wallet, 0, total)
		if err != nil {
			return err
		}
		if err := s.wallets.UpdateBalances(ctx, tx, userID, updated.PointsBalance, updated.EarningsPoints, updated.LockedEarningsPoints); err != nil {
			return err
		}
		snapshot = &walletSnapshot{userID: userID, update: walletUpdateFor(updated)}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.broadcast(snapshot)
	return matured, nil
}

// ReverseEarning cancels a pending or confirmed earning. Locked entries
// belong to a payout sweep and can no longer be reversed.
func (s *LedgerService) ReverseEarning(ctx context.Context, entryID, actorID string) error {
	var snapshot *walletSnapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		snapshot = nil
		entry, err := s.earnings.GetForUpdate(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != store.EarningStatusPending && entry.Status != store.EarningStatusConfirmed {
			return ErrInvalidTransition
		}
		rows, err := s.earnings.MarkReversed(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidTransition
		}
		if entry.Status == store.EarningStatusConfirmed {
			wallet, err := s.wallets.GetForUpdate(ctx, tx, entry.UserID)
			if err != nil {
				return err
			}
			updated, err := applyDeltas(wallet, 0, -entry.Points)
			if err != nil {
				return err
			}
			if err := s.wallets.UpdateBalances(ctx, tx, entry.UserID, updated.PointsBalance, updated.EarningsPoints, updated.LockedEarningsPoints); err != nil {
				return err
			}
			snapshot = &walletSnapshot{userID: entry.UserID, update: walletUpdateFor(updated)}
			metadata, _ := json.Marshal(map[string]string{"earning_entry_id": entryID})
			if err := s.transactions.Create(ctx, tx, store.TransactionInput{
				ID:                  uuid.NewString(),
				UserID:              entry.UserID,
				Type:                store.TxTypeEarningReversal,
				Status:              store.TxStatusVerified,
				EarningsPointsDelta: -entry.Points,
				Metadata:            string(metadata),
			}); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]string{
			"entry_id": entryID,
			"user_id":  entry.UserID,
			"status":   entry.Status,
		})
		return s.audit.Log(ctx, tx, actorID, "reverse_earning", "earning", entryID, string(data))
	})
	if err != nil {
		return err
	}
	s.broadcast(snapshot)
	return nil
}

type PayoutResult struct {
	PayoutID     string
	Points       int64
	AmountTTD    int64
	ScheduledFor time.Time
}

// LockPayoutEligibleEarnings sweeps the user's confirmed earnings into a
// pending payout when they meet the minimum payout threshold, moving the
// points from earnings to locked so later earnings cannot join a payout
// already in flight. Returns nil when the balance is below the threshold.
func (s *LedgerService) LockPayoutEligibleEarnings(ctx context.Context, userID, actorID string) (*PayoutResult, error) {
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	threshold := pricing.MinPayoutPoints(settings.PayoutMinimumTTD, settings.UserValuePerPoint)
	var result *PayoutResult
	var snapshot *walletSnapshot
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = nil
		snapshot = nil
		wallet, err := s.wallets.GetForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		confirmed, err := s.earnings.SumConfirmed(ctx, tx, userID)
		if err != nil {
			return err
		}
		if confirmed != wallet.EarningsPoints {
			return ErrLedgerOutOfSync
		}
		if confirmed < threshold {
			return nil
		}
		payoutID := uuid.NewString()
		amount := pricing.PointsValueMinor(confirmed, settings.UserValuePerPoint)
		scheduled := firstOfNextMonth(time.Now())
		if err := s.payouts.Create(ctx, tx, store.PayoutInput{
			ID:           payoutID,
			UserID:       userID,
			Points:       confirmed,
			AmountTTD:    amount,
			ScheduledFor: scheduled,
			LockedPoints: confirmed,
		}); err != nil {
			return err
		}
		if _, err := s.earnings.LockConfirmed(ctx, tx, userID, payoutID); err != nil {
			return err
		}
		metadata, _ := json.Marshal(map[string]string{"payout_id": payoutID})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:                  uuid.NewString(),
			UserID:              userID,
			Type:                store.TxTypePayoutLock,
			Status:              store.TxStatusVerified,
			AmountTTD:           &amount,
			EarningsPointsDelta: -confirmed,
			Metadata:            string(metadata),
		}); err != nil {
			return err
		}
		wallet.EarningsPoints -= confirmed
		wallet.LockedEarningsPoints += confirmed
		if err := s.wallets.UpdateBalances(ctx, tx, userID, wallet.PointsBalance, wallet.EarningsPoints, wallet.LockedEarningsPoints); err != nil {
			return err
		}
		snapshot = &walletSnapshot{userID: userID, update: walletUpdateFor(wallet)}
		result = &PayoutResult{
			PayoutID:     payoutID,
			Points:       confirmed,
			AmountTTD:    amount,
			ScheduledFor: scheduled,
		}
		return s.audit.Log(ctx, tx, actorID, "lock_payout", "payout", payoutID, string(metadata))
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(snapshot)
	return result, nil
}

// MarkPayoutProcessing moves a pending payout into processing.
func (s *LedgerService) MarkPayoutProcessing(ctx context.Context, payoutID, actorID string) error {
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.payouts.UpdateStatus(ctx, tx, payoutID, store.PayoutStatusPending, store.PayoutStatusProcessing)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidTransition
		}
		data, _ := json.Marshal(map[string]string{"payout_id": payoutID})
		return s.audit.Log(ctx, tx, actorID, "process_payout", "payout", payoutID, string(data))
	})
}

// CompletePayout settles a processing payout: the locked points leave the
// wallet for good and a payout transaction records the cash outflow.
func (s *LedgerService) CompletePayout(ctx context.Context, payoutID, actorID string) error {
	var snapshot *walletSnapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		snapshot = nil
		payout, err := s.payouts.GetForUpdate(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != store.PayoutStatusProcessing {
			return ErrInvalidTransition
		}
		rows, err := s.payouts.UpdateStatus(ctx, tx, payoutID, store.PayoutStatusProcessing, store.PayoutStatusPaid)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidTransition
		}
		wallet, err := s.wallets.GetForUpdate(ctx, tx, payout.UserID)
		if err != nil {
			return err
		}
		if wallet.LockedEarningsPoints < payout.Points {
			return ErrLedgerOutOfSync
		}
		wallet.LockedEarningsPoints -= payout.Points
		if err := s.wallets.UpdateBalances(ctx, tx, payout.UserID, wallet.PointsBalance, wallet.EarningsPoints, wallet.LockedEarningsPoints); err != nil {
			return err
		}
		snapshot = &walletSnapshot{userID: payout.UserID, update: walletUpdateFor(wallet)}
		metadata, _ := json.Marshal(map[string]string{"payout_id": payoutID})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:        uuid.NewString(),
			UserID:    payout.UserID,
			Type:      store.TxTypePayout,
			Status:    store.TxStatusVerified,
			AmountTTD: &payout.AmountTTD,
			Metadata:  string(metadata),
		}); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "complete_payout", "payout", payoutID, string(metadata))
	})
	if err != nil {
		return err
	}
	s.broadcast(snapshot)
	return nil
}

// CancelPayout unwinds a payout that has not been paid: the locked
// entries go back to confirmed and the points return to the earnings
// balance.
func (s *LedgerService) CancelPayout(ctx context.Context, payoutID, actorID string) error {
	var snapshot *walletSnapshot
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		snapshot = nil
		payout, err := s.payouts.GetForUpdate(ctx, tx, payoutID)
		if err != nil {
			return err
		}
		if payout.Status != store.PayoutStatusPending && payout.Status != store.PayoutStatusProcessing {
			return ErrInvalidTransition
		}
		rows, err := s.payouts.UpdateStatus(ctx, tx, payoutID, payout.Status, store.PayoutStatusCancelled)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInvalidTransition
		}
		if _, err := s.earnings.ReleaseForPayout(ctx, tx, payoutID); err != nil {
			return err
		}
		wallet, err := s.wallets.GetForUpdate(ctx, tx, payout.UserID)
		if err != nil {
			return err
		}
		if wallet.LockedEarningsPoints < payout.Points {
			return ErrLedgerOutOfSync
		}
		wallet.LockedEarningsPoints -= payout.Points
		wallet.EarningsPoints += payout.Points
		if err := s.wallets.UpdateBalances(ctx, tx, payout.UserID, wallet.PointsBalance, wallet.EarningsPoints, wallet.LockedEarningsPoints); err != nil {
			return err
		}
		snapshot = &walletSnapshot{userID: payout.UserID, update: walletUpdateFor(wallet)}
		metadata, _ := json.Marshal(map[string]string{"payout_id": payoutID})
		if err := s.transactions.Create(ctx, tx, store.TransactionInput{
			ID:                  uuid.NewString(),
			UserID:              payout.UserID,
			Type:                store.TxTypePayoutRelease,
			Status:              store.TxStatusVerified,
			EarningsPointsDelta: payout.Points,
			Metadata:            string(metadata),
		}); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, actorID, "cancel_payout", "payout", payoutID, string(metadata))
	})
	if err != nil {
		return err
	}
	s.broadcast(snapshot)
	return nil
}
