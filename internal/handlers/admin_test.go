package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pointsledger/internal/middleware"
	"pointsledger/internal/services"
	"pointsledger/internal/store"

	"github.com/go-chi/chi/v5"
)

// adminServe routes the request through chi so URL params resolve, with
// the actor already authenticated.
func adminServe(method, pattern, path string, body []byte, handlerFn http.HandlerFunc) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handlerFn)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req = req.WithContext(middleware.WithUserID(req.Context(), "admin-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestAdminVerifyTopUp(t *testing.T) {
	var verifiedID, actor string
	handler := newTestHandler(handlerStubs{
		ledger: stubLedgerService{
			verifyTopUpFn: func(_ context.Context, transactionID, actorID string) error {
				verifiedID = transactionID
				actor = actorID
				return nil
			},
		},
	})
	rr := adminServe(http.MethodPost, "/topups/{id}/verify", "/topups/tx-1/verify", nil, handler.AdminVerifyTopUp)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if verifiedID != "tx-1" || actor != "admin-1" {
		t.Fatalf("unexpected verification: %s by %s", verifiedID, actor)
	}
}

func TestAdminVerifyTopUpInvalidState(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		ledger: stubLedgerService{
			verifyTopUpFn: func(context.Context, string, string) error {
				return services.ErrInvalidTransition
			},
		},
	})
	rr := adminServe(http.MethodPost, "/topups/{id}/verify", "/topups/tx-1/verify", nil, handler.AdminVerifyTopUp)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestAdminCreditEarning(t *testing.T) {
	var credited struct {
		userID     string
		sourceType string
		points     int64
		amount     *int64
		available  time.Time
	}
	handler := newTestHandler(handlerStubs{
		ledger: stubLedgerService{
			creditEarningFn: func(_ context.Context, userID, sourceType string, points int64, amountTTD *int64, availableAt time.Time, _ string) (string, error) {
				credited.userID = userID
				credited.sourceType = sourceType
				credited.points = points
				credited.amount = amountTTD
				credited.available = availableAt
				return "e-1", nil
			},
		},
	})
	body := []byte(`{"user_id":"user-1","source_type":"boost_reward","points":15,"amount":"22.50","available_at":"2024-07-04"}`)
	rr := adminServe(http.MethodPost, "/earnings/credit", "/earnings/credit", body, handler.AdminCreditEarning)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if credited.userID != "user-1" || credited.sourceType != "boost_reward" || credited.points != 15 {
		t.Fatalf("unexpected credit: %+v", credited)
	}
	if credited.amount == nil || *credited.amount != 2250 {
		t.Fatalf("unexpected amount: %v", credited.amount)
	}
	if credited.available.Format("2006-01-02") != "2024-07-04" {
		t.Fatalf("unexpected availability date: %v", credited.available)
	}
}

func TestAdminCreditEarningRequiresUser(t *testing.T) {
	handler := newTestHandler(handlerStubs{})
	body := []byte(`{"source_type":"boost_reward","points":15}`)
	rr := adminServe(http.MethodPost, "/earnings/credit", "/earnings/credit", body, handler.AdminCreditEarning)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminRevenueDefaultsToMarginRule(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		revenue: stubRevenueService{
			computeRevenueFn: func(_ context.Context, rule string, from, to time.Time) (services.RevenueReport, error) {
				if rule != services.RevenueRuleMargin {
					t.Fatalf("expected margin rule by default, got %s", rule)
				}
				if from.Day() != 1 || !to.Equal(from.AddDate(0, 1, 0)) {
					t.Fatalf("expected current-month window, got %v - %v", from, to)
				}
				return services.RevenueReport{
					Rule:            rule,
					From:            from,
					To:              to,
					GrossRevenueTTD: 2500,
					AvailableTTD:    2500,
				}, nil
			},
		},
	})
	rr := adminServe(http.MethodGet, "/revenue", "/revenue", nil, handler.AdminRevenue)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["gross_revenue"] != "25.00" || resp["available"] != "25.00" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestAdminRevenueUnknownRule(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		revenue: stubRevenueService{
			computeRevenueFn: func(context.Context, string, time.Time, time.Time) (services.RevenueReport, error) {
				return services.RevenueReport{}, services.ErrUnknownRevenueRule
			},
		},
	})
	rr := adminServe(http.MethodGet, "/revenue", "/revenue?rule=accrual", nil, handler.AdminRevenue)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminRecordWithdrawal(t *testing.T) {
	var recorded int64
	handler := newTestHandler(handlerStubs{
		revenue: stubRevenueService{
			recordWithdrawalFn: func(_ context.Context, amountMinor int64, note, actorID string) (string, error) {
				recorded = amountMinor
				if note != "June float" || actorID != "admin-1" {
					t.Fatalf("unexpected withdrawal: %q by %s", note, actorID)
				}
				return "w-1", nil
			},
		},
	})
	body := []byte(`{"amount":"25.00","note":"June float"}`)
	rr := adminServe(http.MethodPost, "/withdrawals", "/withdrawals", body, handler.AdminRecordWithdrawal)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if recorded != 2500 {
		t.Fatalf("expected 2500 minor units, got %d", recorded)
	}
}

func TestAdminUpdateSettingsRequiresSuper(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		admin: stubAdminStore{
			isAdminFn: func(context.Context, string) (bool, bool, error) {
				return true, false, nil
			},
		},
	})
	body := []byte(`{"buy_price_per_point":"2.00","user_value_per_point":"1.50","payout_minimum":"100.00","mandatory_topup":"50.00"}`)
	rr := adminServe(http.MethodPut, "/settings", "/settings", body, handler.AdminUpdateSettings)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestAdminUpdateSettings(t *testing.T) {
	var updated store.SettingsInput
	handler := newTestHandler(handlerStubs{
		settings: stubSettingsStore{
			updateFn: func(_ context.Context, _ store.Execer, input store.SettingsInput) error {
				updated = input
				return nil
			},
		},
	})
	body := []byte(`{"buy_price_per_point":"2","user_value_per_point":"1.5","payout_minimum":"100.00","mandatory_topup":"50.00","referral_bonus_points":10,"referral_max_topups":3}`)
	rr := adminServe(http.MethodPut, "/settings", "/settings", body, handler.AdminUpdateSettings)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if updated.BuyPricePerPoint != "2.00" || updated.UserValuePerPoint != "1.50" {
		t.Fatalf("expected normalized prices, got %+v", updated)
	}
	if updated.PayoutMinimumTTD != 10000 || updated.MandatoryTopupTTD != 5000 {
		t.Fatalf("unexpected amounts: %+v", updated)
	}
}

func TestAdminUpdateSettingsRejectsZeroPrice(t *testing.T) {
	handler := newTestHandler(handlerStubs{})
	body := []byte(`{"buy_price_per_point":"0","user_value_per_point":"1.50","payout_minimum":"100.00","mandatory_topup":"50.00"}`)
	rr := adminServe(http.MethodPut, "/settings", "/settings", body, handler.AdminUpdateSettings)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestAdminCancelPayout(t *testing.T) {
	var cancelled string
	handler := newTestHandler(handlerStubs{
		ledger: stubLedgerService{
			cancelPayoutFn: func(_ context.Context, payoutID, _ string) error {
				cancelled = payoutID
				return nil
			},
		},
	})
	rr := adminServe(http.MethodPost, "/payouts/{id}/cancel", "/payouts/p-1/cancel", nil, handler.AdminCancelPayout)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if cancelled != "p-1" {
		t.Fatalf("expected p-1 cancelled, got %s", cancelled)
	}
}

func TestReconcileExcludesLockedFromDrift(t *testing.T) {
	var captured string
	handler := newTestHandler(handlerStubs{
		reconcileDB: stubReconcileDB{
			selectFn: func(_ context.Context, _ any, query string, _ ...any) error {
				captured = query
				return nil
			},
		},
	})
	rr := adminServe(http.MethodGet, "/reconcile", "/reconcile", nil, handler.Reconcile)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(captured, "+ w.locked_earnings_points AS") {
		t.Fatalf("locked points must not be folded into the earnings comparison: %s", captured)
	}
	if !strings.Contains(captured, "w.earnings_points,") {
		t.Fatalf("expected earnings_points selected on its own: %s", captured)
	}
	if !strings.Contains(captured, "w.locked_earnings_points,") {
		t.Fatalf("expected locked balance reported alongside: %s", captured)
	}
}

func TestAdminRecordReferralTopup(t *testing.T) {
	bonusID := "tx-bonus"
	handler := newTestHandler(handlerStubs{
		ledger: stubLedgerService{
			recordReferralFn: func(_ context.Context, referralID, topupTransactionID, actorID string) (*services.ReferralTopup, error) {
				if referralID != "ref-1" || topupTransactionID != "tx-1" || actorID != "admin-1" {
					t.Fatalf("unexpected args: %s %s %s", referralID, topupTransactionID, actorID)
				}
				return &services.ReferralTopup{
					ID:                 "rt-1",
					ReferralID:         referralID,
					TopupTransactionID: topupTransactionID,
					BonusTransactionID: &bonusID,
				}, nil
			},
		},
	})
	body := []byte(`{"topup_transaction_id":"tx-1"}`)
	rr := adminServe(http.MethodPost, "/referrals/{id}/topups", "/referrals/ref-1/topups", body, handler.AdminRecordReferralTopup)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["bonus_awarded"] != true || resp["bonus_transaction_id"] != "tx-bonus" {
		t.Fatalf("expected bonus recorded, got %v", resp)
	}
}

func TestAdminRecordReferralTopupPastCap(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		ledger: stubLedgerService{
			recordReferralFn: func(context.Context, string, string, string) (*services.ReferralTopup, error) {
				return nil, nil
			},
		},
	})
	body := []byte(`{"topup_transaction_id":"tx-1"}`)
	rr := adminServe(http.MethodPost, "/referrals/{id}/topups", "/referrals/ref-1/topups", body, handler.AdminRecordReferralTopup)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["bonus_awarded"] != false {
		t.Fatalf("expected no bonus past the cap, got %v", resp)
	}
}

func TestAdminRecordReferralTopupRequiresTransaction(t *testing.T) {
	handler := newTestHandler(handlerStubs{})
	rr := adminServe(http.MethodPost, "/referrals/{id}/topups", "/referrals/ref-1/topups", []byte(`{}`), handler.AdminRecordReferralTopup)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
