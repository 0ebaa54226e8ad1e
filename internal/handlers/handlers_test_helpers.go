package handlers

import (
	"context"
	"database/sql"
	"time"

	"pointsledger/internal/config"
	"pointsledger/internal/services"
	"pointsledger/internal/store"
	"pointsledger/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type stubReconcileDB struct {
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubReconcileDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn            func(ctx context.Context, tx store.Execer, id, username, email, passwordHash, referralCode string) error
	getByEmailFn        func(ctx context.Context, email string) (map[string]any, error)
	getByUsernameFn     func(ctx context.Context, username string) (map[string]any, error)
	getByIDFn           func(ctx context.Context, userID string) (map[string]any, error)
	getByReferralCodeFn func(ctx context.Context, referralCode string) (map[string]any, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash, referralCode string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash, referralCode)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (map[string]any, error) {
	if s.getByEmailFn == nil {
		return nil, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (map[string]any, error) {
	if s.getByUsernameFn == nil {
		return nil, sql.ErrNoRows
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (map[string]any, error) {
	if s.getByIDFn == nil {
		return nil, sql.ErrNoRows
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) GetByReferralCode(ctx context.Context, referralCode string) (map[string]any, error) {
	if s.getByReferralCodeFn == nil {
		return nil, sql.ErrNoRows
	}
	return s.getByReferralCodeFn(ctx, referralCode)
}

type stubWalletStore struct {
	createFn    func(ctx context.Context, tx store.Execer, userID string, nextTopupDueOn time.Time) error
	getByUserFn func(ctx context.Context, userID string) (store.Wallet, error)
}

func (s stubWalletStore) Create(ctx context.Context, tx store.Execer, userID string, nextTopupDueOn time.Time) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, userID, nextTopupDueOn)
}

func (s stubWalletStore) GetByUser(ctx context.Context, userID string) (store.Wallet, error) {
	if s.getByUserFn == nil {
		return store.Wallet{UserID: userID}, nil
	}
	return s.getByUserFn(ctx, userID)
}

type stubTransactionStore struct {
	listByUserFn         func(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error)
	listAllFn            func(ctx context.Context, limit, offset int) ([]map[string]any, error)
	listPendingTopUpsFn  func(ctx context.Context, limit, offset int) ([]map[string]any, error)
	sumVerifiedDeltasFn  func(ctx context.Context, userID string) (store.VerifiedDeltaSums, error)
	pendingTopUpPointsFn func(ctx context.Context, userID string) (int64, error)
}

func (s stubTransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]map[string]any, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, txType, limit, offset)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

func (s stubTransactionStore) ListPendingTopUps(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listPendingTopUpsFn == nil {
		return nil, nil
	}
	return s.listPendingTopUpsFn(ctx, limit, offset)
}

func (s stubTransactionStore) SumVerifiedDeltas(ctx context.Context, userID string) (store.VerifiedDeltaSums, error) {
	if s.sumVerifiedDeltasFn == nil {
		return store.VerifiedDeltaSums{}, nil
	}
	return s.sumVerifiedDeltasFn(ctx, userID)
}

func (s stubTransactionStore) PendingTopUpPoints(ctx context.Context, userID string) (int64, error) {
	if s.pendingTopUpPointsFn == nil {
		return 0, nil
	}
	return s.pendingTopUpPointsFn(ctx, userID)
}

type stubEarningsStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error)
}

func (s stubEarningsStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

type stubPayoutStore struct {
	listByUserFn func(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error)
	listAllFn    func(ctx context.Context, status string, limit, offset int) ([]map[string]any, error)
}

func (s stubPayoutStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]map[string]any, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, limit, offset)
}

func (s stubPayoutStore) ListAll(ctx context.Context, status string, limit, offset int) ([]map[string]any, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, status, limit, offset)
}

type stubReferralStore struct {
	createFn               func(ctx context.Context, tx store.Execer, id, referrerUserID, referredUserID string) error
	listTopupsByReferrerFn func(ctx context.Context, referrerUserID string, limit, offset int) ([]map[string]any, error)
}

func (s stubReferralStore) Create(ctx context.Context, tx store.Execer, id, referrerUserID, referredUserID string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, referrerUserID, referredUserID)
}

func (s stubReferralStore) ListTopupsByReferrer(ctx context.Context, referrerUserID string, limit, offset int) ([]map[string]any, error) {
	if s.listTopupsByReferrerFn == nil {
		return nil, nil
	}
	return s.listTopupsByReferrerFn(ctx, referrerUserID, limit, offset)
}

type stubSettingsStore struct {
	getFn    func(ctx context.Context) (store.Settings, error)
	updateFn func(ctx context.Context, tx store.Execer, input store.SettingsInput) error
}

func (s stubSettingsStore) Get(ctx context.Context) (store.Settings, error) {
	if s.getFn == nil {
		return store.Settings{}, nil
	}
	return s.getFn(ctx)
}

func (s stubSettingsStore) Update(ctx context.Context, tx store.Execer, input store.SettingsInput) error {
	if s.updateFn == nil {
		return nil
	}
	return s.updateFn(ctx, tx, input)
}

type stubWithdrawalStore struct {
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubWithdrawalStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID, role string) (bool, error)
	createAdminFn func(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error
	grantRoleFn   func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return true, true, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return true, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, tx store.Execer, userID string, isSuper bool, createdBy *string) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, tx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubLedgerService struct {
	submitTopUpFn    func(ctx context.Context, userID string, amountMinor int64) (services.TopUpSubmission, error)
	verifyTopUpFn    func(ctx context.Context, transactionID, actorID string) error
	rejectTopUpFn    func(ctx context.Context, transactionID, actorID string) error
	spendPointsFn    func(ctx context.Context, userID string, points int64, category string) (string, error)
	refundSpendFn    func(ctx context.Context, transactionID, actorID string) (string, error)
	creditEarningFn  func(ctx context.Context, userID, sourceType string, points int64, amountTTD *int64, availableAt time.Time, actorID string) (string, error)
	matureEarningsFn func(ctx context.Context, userID string, limit int) (int, error)
	reverseEarningFn func(ctx context.Context, entryID, actorID string) error
	lockPayoutFn     func(ctx context.Context, userID, actorID string) (*services.PayoutResult, error)
	processPayoutFn  func(ctx context.Context, payoutID, actorID string) error
	completePayoutFn func(ctx context.Context, payoutID, actorID string) error
	cancelPayoutFn   func(ctx context.Context, payoutID, actorID string) error
	recordReferralFn func(ctx context.Context, referralID, topupTransactionID, actorID string) (*services.ReferralTopup, error)
}

func (s stubLedgerService) SubmitTopUp(ctx context.Context, userID string, amountMinor int64) (services.TopUpSubmission, error) {
	if s.submitTopUpFn == nil {
		return services.TopUpSubmission{}, nil
	}
	return s.submitTopUpFn(ctx, userID, amountMinor)
}

func (s stubLedgerService) VerifyTopUp(ctx context.Context, transactionID, actorID string) error {
	if s.verifyTopUpFn == nil {
		return nil
	}
	return s.verifyTopUpFn(ctx, transactionID, actorID)
}

func (s stubLedgerService) RejectTopUp(ctx context.Context, transactionID, actorID string) error {
	if s.rejectTopUpFn == nil {
		return nil
	}
	return s.rejectTopUpFn(ctx, transactionID, actorID)
}

func (s stubLedgerService) SpendPoints(ctx context.Context, userID string, points int64, category string) (string, error) {
	if s.spendPointsFn == nil {
		return "", nil
	}
	return s.spendPointsFn(ctx, userID, points, category)
}

func (s stubLedgerService) RefundSpend(ctx context.Context, transactionID, actorID string) (string, error) {
	if s.refundSpendFn == nil {
		return "", nil
	}
	return s.refundSpendFn(ctx, transactionID, actorID)
}

func (s stubLedgerService) CreditEarning(ctx context.Context, userID, sourceType string, points int64, amountTTD *int64, availableAt time.Time, actorID string) (string, error) {
	if s.creditEarningFn == nil {
		return "", nil
	}
	return s.creditEarningFn(ctx, userID, sourceType, points, amountTTD, availableAt, actorID)
}

func (s stubLedgerService) MatureEarnings(ctx context.Context, userID string, limit int) (int, error) {
	if s.matureEarningsFn == nil {
		return 0, nil
	}
	return s.matureEarningsFn(ctx, userID, limit)
}

func (s stubLedgerService) ReverseEarning(ctx context.Context, entryID, actorID string) error {
	if s.reverseEarningFn == nil {
		return nil
	}
	return s.reverseEarningFn(ctx, entryID, actorID)
}

func (s stubLedgerService) LockPayoutEligibleEarnings(ctx context.Context, userID, actorID string) (*services.PayoutResult, error) {
	if s.lockPayoutFn == nil {
		return nil, nil
	}
	return s.lockPayoutFn(ctx, userID, actorID)
}

func (s stubLedgerService) MarkPayoutProcessing(ctx context.Context, payoutID, actorID string) error {
	if s.processPayoutFn == nil {
		return nil
	}
	return s.processPayoutFn(ctx, payoutID, actorID)
}

func (s stubLedgerService) CompletePayout(ctx context.Context, payoutID, actorID string) error {
	if s.completePayoutFn == nil {
		return nil
	}
	return s.completePayoutFn(ctx, payoutID, actorID)
}

func (s stubLedgerService) CancelPayout(ctx context.Context, payoutID, actorID string) error {
	if s.cancelPayoutFn == nil {
		return nil
	}
	return s.cancelPayoutFn(ctx, payoutID, actorID)
}

func (s stubLedgerService) RecordReferralTopup(ctx context.Context, referralID, topupTransactionID, actorID string) (*services.ReferralTopup, error) {
	if s.recordReferralFn == nil {
		return nil, nil
	}
	return s.recordReferralFn(ctx, referralID, topupTransactionID, actorID)
}

type stubRevenueService struct {
	computeRevenueFn   func(ctx context.Context, rule string, from, to time.Time) (services.RevenueReport, error)
	recordWithdrawalFn func(ctx context.Context, amountMinor int64, note, actorID string) (string, error)
}

func (s stubRevenueService) ComputeRevenue(ctx context.Context, rule string, from, to time.Time) (services.RevenueReport, error) {
	if s.computeRevenueFn == nil {
		return services.RevenueReport{}, nil
	}
	return s.computeRevenueFn(ctx, rule, from, to)
}

func (s stubRevenueService) RecordWithdrawal(ctx context.Context, amountMinor int64, note, actorID string) (string, error) {
	if s.recordWithdrawalFn == nil {
		return "", nil
	}
	return s.recordWithdrawalFn(ctx, amountMinor, note, actorID)
}

type handlerStubs struct {
	reconcileDB  stubReconcileDB
	txRunner     fakeTxRunner
	users        stubUserStore
	wallets      stubWalletStore
	transactions stubTransactionStore
	earnings     stubEarningsStore
	payouts      stubPayoutStore
	referrals    stubReferralStore
	settings     stubSettingsStore
	withdrawals  stubWithdrawalStore
	admin        stubAdminStore
	audit        stubAuditStore
	ledger       stubLedgerService
	revenue      stubRevenueService
}

func newTestHandler(stubs handlerStubs) *Handler {
	cfg := config.Config{
		JWTSecret:     "secret",
		TokenTTL:      time.Minute,
		SweepEntryCap: 200,
	}
	return New(stubs.reconcileDB, stubs.txRunner, cfg, stubs.users, stubs.wallets, stubs.transactions,
		stubs.earnings, stubs.payouts, stubs.referrals, stubs.settings, stubs.withdrawals,
		stubs.admin, stubs.audit, stubs.ledger, stubs.revenue, websocket.NewHub())
}

func stringPtr(value string) *string {
	return &value
}
