package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"pointsledger/internal/store"
	"pointsledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubWalletStore struct {
	getForUpdateFn    func(ctx context.Context, tx store.Getter, userID string) (store.Wallet, error)
	updateBalancesFn  func(ctx context.Context, tx store.Execer, userID string, points, earnings, locked int64) error
	setNextTopupDueFn func(ctx context.Context, tx store.Execer, userID string, dueOn time.Time) error
}

func (s stubWalletStore) GetForUpdate(ctx context.Context, tx store.Getter, userID string) (store.Wallet, error) {
	if s.getForUpdateFn == nil {
		return store.Wallet{UserID: userID}, nil
	}
	return s.getForUpdateFn(ctx, tx, userID)
}

func (s stubWalletStore) UpdateBalances(ctx context.Context, tx store.Execer, userID string, points, earnings, locked int64) error {
	if s.updateBalancesFn == nil {
		return nil
	}
	return s.updateBalancesFn(ctx, tx, userID, points, earnings, locked)
}

func (s stubWalletStore) SetNextTopupDue(ctx context.Context, tx store.Execer, userID string, dueOn time.Time) error {
	if s.setNextTopupDueFn == nil {
		return nil
	}
	return s.setNextTopupDueFn(ctx, tx, userID, dueOn)
}

type stubTransactionStore struct {
	createFn       func(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	getForUpdateFn func(ctx context.Context, tx store.Getter, transactionID string) (store.TransactionRecord, error)
	updateStatusFn func(ctx context.Context, tx store.Execer, transactionID, fromStatus, toStatus string) (int64, error)
}

func (s stubTransactionStore) Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubTransactionStore) GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (store.TransactionRecord, error) {
	if s.getForUpdateFn == nil {
		return store.TransactionRecord{}, sql.ErrNoRows
	}
	return s.getForUpdateFn(ctx, tx, transactionID)
}

func (s stubTransactionStore) UpdateStatus(ctx context.Context, tx store.Execer, transactionID, fromStatus, toStatus string) (int64, error) {
	if s.updateStatusFn == nil {
		return 1, nil
	}
	return s.updateStatusFn(ctx, tx, transactionID, fromStatus, toStatus)
}

type stubEarningsStore struct {
	createFn           func(ctx context.Context, tx store.Execer, input store.EarningEntryInput) error
	getForUpdateFn     func(ctx context.Context, tx store.Getter, entryID string) (store.EarningEntry, error)
	duePendingFn       func(ctx context.Context, tx store.Selecter, userID string, now time.Time, limit int) ([]store.EarningEntry, error)
	confirmPendingFn   func(ctx context.Context, tx store.Execer, entryID, transactionID string) (int64, error)
	markReversedFn     func(ctx context.Context, tx store.Execer, entryID string) (int64, error)
	sumConfirmedFn     func(ctx context.Context, tx store.Getter, userID string) (int64, error)
	lockConfirmedFn    func(ctx context.Context, tx store.Execer, userID, payoutID string) (int64, error)
	releaseForPayoutFn func(ctx context.Context, tx store.Execer, payoutID string) (int64, error)
}

func (s stubEarningsStore) Create(ctx context.Context, tx store.Execer, input store.EarningEntryInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubEarningsStore) GetForUpdate(ctx context.Context, tx store.Getter, entryID string) (store.EarningEntry, error) {
	if s.getForUpdateFn == nil {
		return store.EarningEntry{}, sql.ErrNoRows
	}
	return s.getForUpdateFn(ctx, tx, entryID)
}

func (s stubEarningsStore) DuePending(ctx context.Context, tx store.Selecter, userID string, now time.Time, limit int) ([]store.EarningEntry, error) {
	if s.duePendingFn == nil {
		return nil, nil
	}
	return s.duePendingFn(ctx, tx, userID, now, limit)
}

func (s stubEarningsStore) ConfirmPending(ctx context.Context, tx store.Execer, entryID, transactionID string) (int64, error) {
	if s.confirmPendingFn == nil {
		return 1, nil
	}
	return s.confirmPendingFn(ctx, tx, entryID, transactionID)
}

func (s stubEarningsStore) MarkReversed(ctx context.Context, tx store.Execer, entryID string) (int64, error) {
	if s.markReversedFn == nil {
		return 1, nil
	}
	return s.markReversedFn(ctx, tx, entryID)
}

func (s stubEarningsStore) SumConfirmed(ctx context.Context, tx store.Getter, userID string) (int64, error) {
	if s.sumConfirmedFn == nil {
		return 0, nil
	}
	return s.sumConfirmedFn(ctx, tx, userID)
}

func (s stubEarningsStore) LockConfirmed(ctx context.Context, tx store.Execer, userID, payoutID string) (int64, error) {
	if s.lockConfirmedFn == nil {
		return 1, nil
	}
	return s.lockConfirmedFn(ctx, tx, userID, payoutID)
}

func (s stubEarningsStore) ReleaseForPayout(ctx context.Context, tx store.Execer, payoutID string) (int64, error) {
	if s.releaseForPayoutFn == nil {
		return 1, nil
	}
	return s.releaseForPayoutFn(ctx, tx, payoutID)
}

type stubPayoutStore struct {
	createFn       func(ctx context.Context, tx store.Execer, input store.PayoutInput) error
	getForUpdateFn func(ctx context.Context, tx store.Getter, payoutID string) (store.Payout, error)
	updateStatusFn func(ctx context.Context, tx store.Execer, payoutID, fromStatus, toStatus string) (int64, error)
}

func (s stubPayoutStore) Create(ctx context.Context, tx store.Execer, input store.PayoutInput) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubPayoutStore) GetForUpdate(ctx context.Context, tx store.Getter, payoutID string) (store.Payout, error) {
	if s.getForUpdateFn == nil {
		return store.Payout{}, sql.ErrNoRows
	}
	return s.getForUpdateFn(ctx, tx, payoutID)
}

func (s stubPayoutStore) UpdateStatus(ctx context.Context, tx store.Execer, payoutID, fromStatus, toStatus string) (int64, error) {
	if s.updateStatusFn == nil {
		return 1, nil
	}
	return s.updateStatusFn(ctx, tx, payoutID, fromStatus, toStatus)
}

type stubSettingsStore struct {
	getFn func(ctx context.Context) (store.Settings, error)
}

func (s stubSettingsStore) Get(ctx context.Context) (store.Settings, error) {
	if s.getFn == nil {
		return testSettings(), nil
	}
	return s.getFn(ctx)
}

func testSettings() store.Settings {
	return store.Settings{
		BuyPricePerPoint:    decimal.RequireFromString("2.00"),
		UserValuePerPoint:   decimal.RequireFromString("1.50"),
		PayoutMinimumTTD:    10000,
		MandatoryTopupTTD:   5000,
		ReferralBonusPoints: 10,
		ReferralMaxTopups:   3,
	}
}

type stubReferralStore struct {
	getByIDFn           func(ctx context.Context, referralID string) (store.Referral, error)
	getByReferredUserFn func(ctx context.Context, referredUserID string) (store.Referral, error)
	countBonusTopupsFn  func(ctx context.Context, tx store.Getter, referralID string) (int, error)
	createTopupFn       func(ctx context.Context, tx store.Execer, id, referralID, topupTransactionID string, bonusTransactionID *string) error
}

func (s stubReferralStore) GetByID(ctx context.Context, referralID string) (store.Referral, error) {
	if s.getByIDFn == nil {
		return store.Referral{}, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, referralID)
}

func (s stubReferralStore) GetByReferredUser(ctx context.Context, referredUserID string) (store.Referral, error) {
	if s.getByReferredUserFn == nil {
		return store.Referral{}, sql.ErrNoRows
	}
	return s.getByReferredUserFn(ctx, referredUserID)
}

func (s stubReferralStore) CountBonusTopups(ctx context.Context, tx store.Getter, referralID string) (int, error) {
	if s.countBonusTopupsFn == nil {
		return 0, nil
	}
	return s.countBonusTopupsFn(ctx, tx, referralID)
}

func (s stubReferralStore) CreateTopup(ctx context.Context, tx store.Execer, id, referralID, topupTransactionID string, bonusTransactionID *string) error {
	if s.createTopupFn == nil {
		return nil
	}
	return s.createTopupFn(ctx, tx, id, referralID, topupTransactionID, bonusTransactionID)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type stubHub struct {
	calls []websocket.WalletUpdate
}

func (s *stubHub) BroadcastWallet(_ string, update websocket.WalletUpdate) {
	s.calls = append(s.calls, update)
}

type serviceStubs struct {
	wallets      stubWalletStore
	transactions stubTransactionStore
	earnings     stubEarningsStore
	payouts      stubPayoutStore
	settings     stubSettingsStore
	referrals    stubReferralStore
	audit        stubAuditStore
}

func newTestService(stubs serviceStubs) (*LedgerService, *stubHub) {
	hub := &stubHub{}
	service := NewLedgerService(fakeTxRunner{}, stubs.wallets, stubs.transactions, stubs.earnings,
		stubs.payouts, stubs.settings, stubs.referrals, stubs.audit, hub)
	return service, hub
}

func TestSubmitTopUpProjectsPoints(t *testing.T) {
	var created store.TransactionInput
	balanceTouched := false
	service, hub := newTestService(serviceStubs{
		wallets: stubWalletStore{
			updateBalancesFn: func(context.Context, store.Execer, string, int64, int64, int64) error {
				balanceTouched = true
				return nil
			},
		},
		transactions: stubTransactionStore{
			createFn: func(_ context.Context, _ store.Execer, input store.TransactionInput) error {
				created = input
				return nil
			},
		},
	})
	submission, err := service.SubmitTopUp(context.Background(), "user-1", 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if submission.ProjectedPoints != 50 {
		t.Fatalf("expected 50 projected points, got %d", submission.ProjectedPoints)
	}
	if created.Type != store.TxTypeTopUp || created.Status != store.TxStatusPending {
		t.Fatalf("unexpected transaction: %#v", created)
	}
	if created.PointsDelta != 50 || created.AmountTTD == nil || *created.AmountTTD != 10000 {
		t.Fatalf("unexpected deltas: %#v", created)
	}
	if balanceTouched {
		t.Fatalf("pending top-up must not touch the wallet")
	}
	if len(hub.calls) != 0 {
		t.Fatalf("pending top-up must not broadcast, got %d", len(hub.calls))
	}
}

func TestSubmitTopUpInvalidAmount(t *testing.T) {
	service, _ := newTestService(serviceStubs{})
	if _, err := service.SubmitTopUp(context.Background(), "user-1", 0); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	// 1.00 TTD cannot buy a single 2.00 TTD point.
	if _, err := service.SubmitTopUp(context.Background(), "user-1", 100); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount for sub-point amount, got %v", err)
	}
}

func TestSubmitTopUpMissingSettings(t *testing.T) {
	service, _ := newTestService(serviceStubs{
		settings: stubSettingsStore{
			getFn: func(context.Context) (store.Settings, error) {
				return store.Settings{}, store.ErrConfigMissing
			},
		},
	})
	if _, err := service.SubmitTopUp(context.Background(), "user-1", 10000); err != store.ErrConfigMissing {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestVerifyTopUpCreditsWallet(t *testing.T) {
	amount := int64(10000)
	var balances []int64
	dueAdvanced := false
	service, hub := newTestService(serviceStubs{
		wallets: stubWalletStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Wallet, error) {
				return store.Wallet{UserID: userID, PointsBalance: 5}, nil
			},
			updateBalancesFn: func(_ context.Context, _ store.Execer, _ string, points, earnings, locked int64) error {
				balances = append(balances, points)
				return nil
			},
			setNextTopupDueFn: func(_ context.Context, _ store.Execer, _ string, dueOn time.Time) error {
				dueAdvanced = true
				if dueOn.Day() != 1 {
					t.Fatalf("expected due date on the 1st, got %v", dueOn)
				}
				return nil
			},
		},
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "user-1", Type: store.TxTypeTopUp,
					Status: store.TxStatusPending, PointsDelta: 50, AmountTTD: &amount,
				}, nil
			},
		},
	})
	if err := service.VerifyTopUp(context.Background(), "tx-1", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(balances) != 1 || balances[0] != 55 {
		t.Fatalf("unexpected balances: %#v", balances)
	}
	if !dueAdvanced {
		t.Fatalf("expected top-up due date to advance")
	}
	if len(hub.calls) != 1 || hub.calls[0].PointsBalance != 55 {
		t.Fatalf("unexpected broadcasts: %#v", hub.calls)
	}
}

func TestVerifyTopUpAlreadyVerified(t *testing.T) {
	service, _ := newTestService(serviceStubs{
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "user-1", Type: store.TxTypeTopUp, Status: store.TxStatusVerified,
				}, nil
			},
		},
	})
	if err := service.VerifyTopUp(context.Background(), "tx-1", "admin-1"); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestVerifyTopUpAwardsReferralBonus(t *testing.T) {
	amount := int64(10000)
	var bonusTx *store.TransactionInput
	var recordedBonusID *string
	service, hub := newTestService(serviceStubs{
		wallets: stubWalletStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Wallet, error) {
				return store.Wallet{UserID: userID}, nil
			},
		},
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "user-1", Type: store.TxTypeTopUp,
					Status: store.TxStatusPending, PointsDelta: 50, AmountTTD: &amount,
				}, nil
			},
			createFn: func(_ context.Context, _ store.Execer, input store.TransactionInput) error {
				if input.Type == store.TxTypeReferralBonus {
					bonusTx = &input
				}
				return nil
			},
		},
		referrals: stubReferralStore{
			getByReferredUserFn: func(context.Context, string) (store.Referral, error) {
				return store.Referral{ID: "ref-1", ReferrerUserID: "referrer-1", ReferredUserID: "user-1"}, nil
			},
			createTopupFn: func(_ context.Context, _ store.Execer, _, _, _ string, bonusTransactionID *string) error {
				recordedBonusID = bonusTransactionID
				return nil
			},
		},
	})
	if err := service.VerifyTopUp(context.Background(), "tx-1", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bonusTx == nil || bonusTx.PointsDelta != 10 || bonusTx.UserID != "referrer-1" {
		t.Fatalf("unexpected bonus transaction: %#v", bonusTx)
	}
	if recordedBonusID == nil {
		t.Fatalf("expected bonus transaction id on referral top-up record")
	}
	if len(hub.calls) != 2 {
		t.Fatalf("expected broadcasts for buyer and referrer, got %d", len(hub.calls))
	}
}

func TestVerifyTopUpReferralCapReached(t *testing.T) {
	amount := int64(10000)
	var recordedBonusID *string
	recorded := false
	service, hub := newTestService(serviceStubs{
		wallets: stubWalletStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Wallet, error) {
				if userID != "user-1" {
					t.Fatalf("referrer wallet must not be touched past the cap")
				}
				return store.Wallet{UserID: userID}, nil
			},
		},
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "user-1", Type: store.TxTypeTopUp,
					Status: store.TxStatusPending, PointsDelta: 50, AmountTTD: &amount,
				}, nil
			},
			createFn: func(_ context.Context, _ store.Execer, input store.TransactionInput) error {
				if input.Type == store.TxTypeReferralBonus {
					t.Fatalf("no bonus transaction past the cap")
				}
				return nil
			},
		},
		referrals: stubReferralStore{
			getByReferredUserFn: func(context.Context, string) (store.Referral, error) {
				return store.Referral{ID: "ref-1", ReferrerUserID: "referrer-1", ReferredUserID: "user-1"}, nil
			},
			countBonusTopupsFn: func(context.Context, store.Getter, string) (int, error) {
				return 3, nil
			},
			createTopupFn: func(_ context.Context, _ store.Execer, _, _, _ string, bonusTransactionID *string) error {
				recorded = true
				recordedBonusID = bonusTransactionID
				return nil
			},
		},
	})
	if err := service.VerifyTopUp(context.Background(), "tx-1", "admin-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !recorded || recordedBonusID != nil {
		t.Fatalf("expected top-up recorded without a bonus")
	}
	if len(hub.calls) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(hub.calls))
	}
}

func TestSpendPointsInsufficient(t *testing.T) {
	created := false
	service, hub := newTestService(serviceStubs{
		wallets: stubWalletStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Wallet, error) {
				return store.Wallet{UserID: userID, PointsBalance: 10}, nil
			},
			updateBalancesFn: func(context.Context, store.Execer, string, int64, int64, int64) error {
				t.Fatalf("wallet must not change on a failed spend")
				return nil
			},
		},
		transactions: stubTransactionStore{
			createFn: func(context.Context, store.Execer, store.TransactionInput) error {
				created = true
				return nil
			},
		},
	})
	_, err := service.SpendPoints(context.Background(), "user-1", 50, store.SpendCategoryVoiceNote)
	if err != ErrInsufficientBalance {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if created {
		t.Fatalf("no transaction row on a failed spend")
	}
	if len(hub.calls) != 0 {
		t.Fatalf("no broadcast on a failed spend")
	}
}

func TestSpendPointsUnknownCategory(t *testing.T) {
	service, _ := newTestService(serviceStubs{})
	if _, err := service.SpendPoints(context.Background(), "user-1", 5, "premium_sticker"); err != ErrUnknownSpendCategory {
		t.Fatalf("expected ErrUnknownSpendCategory, got %v", err)
	}
	if _, err := service.SpendPoints(context.Background(), "user-1", 0, store.SpendCategoryBoost); err != ErrInvalidPoints {
		t.Fatalf("expected ErrInvalidPoints, got %v", err)
	}
}

func TestSpendPointsSuccess(t *testing.T) {
	var created store.TransactionInput
	var newBalance int64
	service, hub := newTestService(serviceStubs{
		wallets: stubWalletStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Wallet, error) {
				return store.Wallet{UserID: userID, PointsBalance: 100}, nil
			},
			updateBalancesFn: func(_ context.Context, _ store.Execer, _ string, points, earnings, locked int64) error {
				newBalance = points
				return nil
			},
		},
		transactions: stubTransactionStore{
			createFn: func(_ context.Context, _ store.Execer, input store.TransactionInput) error {
				created = input
				return nil
			},
		},
	})
	id, err := service.SpendPoints(context.Background(), "user-1", 40, store.SpendCategoryVoiceNote)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" || created.PointsDelta != -40 || created.Status != store.TxStatusVerified {
		t.Fatalf("unexpected transaction: %#v", created)
	}
	if created.Category == nil || *created.Category != store.SpendCategoryVoiceNote {
		t.Fatalf("unexpected category: %#v", created.Category)
	}
	if newBalance != 60 {
		t.Fatalf("expected balance 60, got %d", newBalance)
	}
	if len(hub.calls) != 1 || hub.calls[0].PointsBalance != 60 {
		t.Fatalf("unexpected broadcasts: %#v", hub.calls)
	}
}

func TestRefundSpendRequiresVerifiedSpend(t *testing.T) {
	service, _ := newTestService(serviceStubs{
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{ID: transactionID, Type: store.TxTypeTopUp, Status: store.TxStatusVerified}, nil
			},
		},
	})
	if _, err := service.RefundSpend(context.Background(), "tx-1", "admin-1"); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRefundSpendRestoresPoints(t *testing.T) {
	category := store.SpendCategoryBoost
	var created store.TransactionInput
	var newBalance int64
	service, _ := newTestService(serviceStubs{
		wallets: stubWalletStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, userID string) (store.Wallet, error) {
				return store.Wallet{UserID: userID, PointsBalance: 60}, nil
			},
			updateBalancesFn: func(_ context.Context, _ store.Execer, _ string, points, earnings, locked int64) error {
				newBalance = points
				return nil
			},
		},
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "user-1", Type: store.TxTypePointSpend,
					Status: store.TxStatusVerified, PointsDelta: -40, Category: &category,
				}, nil
			},
			createFn: func(_ context.Context, _ store.Execer, input store.TransactionInput) error {
				created = input
				return nil
			},
		},
	})
	id, err := service.RefundSpend(context.Background(), "tx-1", "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" || created.Type != store.TxTypePointRefund || created.PointsDelta != 40 {
		t.Fatalf("unexpected refund transaction: %#v", created)
	}
	if newBalance != 100 {
		t.Fatalf("expected balance 100, got %d", newBalance)
	}
}

func TestRecordReferralTopupWrongUser(t *testing.T) {
	service, _ := newTestService(serviceStubs{
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "someone-else", Type: store.TxTypeTopUp, Status: store.TxStatusVerified,
				}, nil
			},
		},
		referrals: stubReferralStore{
			getByIDFn: func(context.Context, string) (store.Referral, error) {
				return store.Referral{ID: "ref-1", ReferrerUserID: "referrer-1", ReferredUserID: "user-1"}, nil
			},
		},
	})
	if _, err := service.RecordReferralTopup(context.Background(), "ref-1", "tx-1", "admin-1"); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestRecordReferralTopupCapReturnsNil(t *testing.T) {
	var recordedBonusID *string
	recorded := false
	service, _ := newTestService(serviceStubs{
		transactions: stubTransactionStore{
			getForUpdateFn: func(_ context.Context, _ store.Getter, transactionID string) (store.TransactionRecord, error) {
				return store.TransactionRecord{
					ID: transactionID, UserID: "user-1", Type: store.TxTypeTopUp, Status: store.TxStatusVerified,
				}, nil
			},
		},
		referrals: stubReferralStore{
			getByIDFn: func(context.Context, string) (store.Referral, error) {
				return store.Referral{ID: "ref-1", ReferrerUserID: "referrer-1", ReferredUserID: "user-1"}, nil
			},
			countBonusTopupsFn: func(context.Context, store.Getter, string) (int, error) {
				return 3, nil
			},
			createTopupFn: func(_ context.Context, _ store.Execer, _, _, _ string, bonusTransactionID *string) error {
				recorded = true
				recordedBonusID = bonusTransactionID
				return nil
			},
		},
	})
	result, err := service.RecordReferralTopup(context.Background(), "ref-1", "tx-1", "admin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result past the cap, got %#v", result)
	}
	if !recorded || recordedBonusID != nil {
		t.Fatalf("expected top-up recorded without a bonus")
	}
}
