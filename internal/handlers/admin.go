package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pointsledger/internal/auth"
	"pointsledger/internal/middleware"
	"pointsledger/internal/services"
	"pointsledger/internal/store"
	"pointsledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

func (h *Handler) AdminListPendingTopUps(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.transactions.ListPendingTopUps(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load top-ups")
		return
	}
	respondJSON(w, http.StatusOK, normalizeTransactions(rows))
}

func (h *Handler) AdminVerifyTopUp(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactionID := chi.URLParam(r, "id")
	if err := h.ledger.VerifyTopUp(r.Context(), transactionID, actorID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type recordReferralTopupRequest struct {
	TopupTransactionID string `json:"topup_transaction_id"`
}

// AdminRecordReferralTopup records a qualifying top-up against a referral
// and awards the bonus when the cap allows. Past the cap the top-up is
// still recorded and the response carries no bonus transaction.
func (h *Handler) AdminRecordReferralTopup(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	referralID := chi.URLParam(r, "id")
	var req recordReferralTopupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TopupTransactionID == "" {
		respondError(w, http.StatusBadRequest, "topup_transaction_id is required")
		return
	}
	record, err := h.ledger.RecordReferralTopup(r.Context(), referralID, req.TopupTransactionID, actorID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if record == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"referral_id":          referralID,
			"topup_transaction_id": req.TopupTransactionID,
			"bonus_awarded":        false,
		})
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":                   record.ID,
		"referral_id":          record.ReferralID,
		"topup_transaction_id": record.TopupTransactionID,
		"bonus_transaction_id": record.BonusTransactionID,
		"bonus_awarded":        record.BonusTransactionID != nil,
	})
}

func (h *Handler) AdminRejectTopUp(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactionID := chi.URLParam(r, "id")
	if err := h.ledger.RejectTopUp(r.Context(), transactionID, actorID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type creditEarningRequest struct {
	UserID      string `json:"user_id"`
	SourceType  string `json:"source_type"`
	Points      int64  `json:"points"`
	Amount      string `json:"amount"`
	AvailableAt string `json:"available_at"`
}

func (h *Handler) AdminCreditEarning(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req creditEarningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var amountMinor *int64
	if req.Amount != "" {
		amount, err := parseAmountMinor(req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		amountMinor = &amount
	}
	availableAt := parseDate(req.AvailableAt, time.Now().UTC())
	entryID, err := h.ledger.CreditEarning(r.Context(), req.UserID, req.SourceType, req.Points, amountMinor, availableAt, actorID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"entry_id": entryID, "status": "pending"})
}

func (h *Handler) AdminReverseEarning(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	entryID := chi.URLParam(r, "id")
	if err := h.ledger.ReverseEarning(r.Context(), entryID, actorID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reversed"})
}

func (h *Handler) AdminRefundSpend(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	transactionID := chi.URLParam(r, "id")
	refundID, err := h.ledger.RefundSpend(r.Context(), transactionID, actorID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": refundID})
}

func (h *Handler) AdminListPayouts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := query.Get("status")
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.payouts.ListAll(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load payouts")
		return
	}
	respondJSON(w, http.StatusOK, normalizePayouts(rows))
}

func (h *Handler) AdminProcessPayout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	payoutID := chi.URLParam(r, "id")
	if err := h.ledger.MarkPayoutProcessing(r.Context(), payoutID, actorID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "processing"})
}

func (h *Handler) AdminCompletePayout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	payoutID := chi.URLParam(r, "id")
	if err := h.ledger.CompletePayout(r.Context(), payoutID, actorID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

func (h *Handler) AdminCancelPayout(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	payoutID := chi.URLParam(r, "id")
	if err := h.ledger.CancelPayout(r.Context(), payoutID, actorID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// AdminRevenue reports revenue for [from, to) under the requested rule.
// Defaults to the margin rule over the current month.
func (h *Handler) AdminRevenue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rule := query.Get("rule")
	if rule == "" {
		rule = services.RevenueRuleMargin
	}
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	from := parseDate(query.Get("from"), monthStart)
	to := parseDate(query.Get("to"), monthStart.AddDate(0, 1, 0))
	report, err := h.revenue.ComputeRevenue(r.Context(), rule, from, to)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"rule":          report.Rule,
		"from":          report.From.Format("2006-01-02"),
		"to":            report.To.Format("2006-01-02"),
		"top_up_amount": valueToMoney(report.TopUpAmountTTD),
		"top_up_points": report.TopUpPoints,
		"spend_points":  report.SpendPoints,
		"gross_revenue": valueToMoney(report.GrossRevenueTTD),
		"user_earnings": valueToMoney(report.UserEarningsTTD),
		"withdrawn":     valueToMoney(report.WithdrawnTTD),
		"available":     valueToMoney(report.AvailableTTD),
	})
}

type withdrawalRequest struct {
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

func (h *Handler) AdminRecordWithdrawal(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	withdrawalID, err := h.revenue.RecordWithdrawal(r.Context(), amountMinor, req.Note, actorID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"withdrawal_id": withdrawalID})
}

func (h *Handler) AdminListWithdrawals(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.withdrawals.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load withdrawals")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) AdminGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"buy_price_per_point":   settings.BuyPricePerPoint.StringFixedBank(2),
		"user_value_per_point":  settings.UserValuePerPoint.StringFixedBank(2),
		"payout_minimum":        valueToMoney(settings.PayoutMinimumTTD),
		"mandatory_topup":       valueToMoney(settings.MandatoryTopupTTD),
		"referral_bonus_points": settings.ReferralBonusPoints,
		"referral_max_topups":   settings.ReferralMaxTopups,
	})
}

type updateSettingsRequest struct {
	BuyPricePerPoint    string `json:"buy_price_per_point"`
	UserValuePerPoint   string `json:"user_value_per_point"`
	PayoutMinimum       string `json:"payout_minimum"`
	MandatoryTopup      string `json:"mandatory_topup"`
	ReferralBonusPoints int64  `json:"referral_bonus_points"`
	ReferralMaxTopups   int    `json:"referral_max_topups"`
}

func (h *Handler) AdminUpdateSettings(w http.ResponseWriter, r *http.Request) {
	actorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), actorID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	buyPrice, err := decimal.NewFromString(req.BuyPricePerPoint)
	if err != nil || !buyPrice.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_buy_price")
		return
	}
	userValue, err := decimal.NewFromString(req.UserValuePerPoint)
	if err != nil || !userValue.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_user_value")
		return
	}
	payoutMinimum, err := parseAmountMinor(req.PayoutMinimum)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payout_minimum")
		return
	}
	mandatoryTopup, err := parseAmountMinor(req.MandatoryTopup)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_mandatory_topup")
		return
	}
	if req.ReferralBonusPoints < 0 || req.ReferralMaxTopups < 0 {
		respondError(w, http.StatusBadRequest, "invalid_referral_settings")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.settings.Update(r.Context(), tx, store.SettingsInput{
			BuyPricePerPoint:    buyPrice.StringFixedBank(2),
			UserValuePerPoint:   userValue.StringFixedBank(2),
			PayoutMinimumTTD:    payoutMinimum,
			MandatoryTopupTTD:   mandatoryTopup,
			ReferralBonusPoints: req.ReferralBonusPoints,
			ReferralMaxTopups:   req.ReferralMaxTopups,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"buy_price_per_point":  buyPrice.StringFixedBank(2),
			"user_value_per_point": userValue.StringFixedBank(2),
		})
		return h.audit.Log(r.Context(), tx, actorID, "update_settings", "settings", "1", string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update settings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.transactions.ListAll(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, normalizeTransactions(rows))
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile compares every wallet against the verified transaction sums.
// Non-zero differences mean a balance was written outside the service.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	type reconRow struct {
		UserID         string `db:"user_id"`
		PointsBalance  int64  `db:"points_balance"`
		EarningsPoints int64  `db:"earnings_points"`
		LockedPoints   int64  `db:"locked_earnings_points"`
		PointsSum      int64  `db:"points_sum"`
		EarningsSum    int64  `db:"earnings_sum"`
	}
	var rows []reconRow
	// payout_lock already debits the earnings delta, so the verified sum
	// tracks earnings_points without the locked balance.
	query := `
		SELECT w.user_id,
		       w.points_balance,
		       w.earnings_points,
		       w.locked_earnings_points,
		       COALESCE(SUM(t.points_delta) FILTER (WHERE t.status = 'verified'), 0) AS points_sum,
		       COALESCE(SUM(t.earnings_points_delta) FILTER (WHERE t.status = 'verified'), 0) AS earnings_sum
		FROM wallets w
		LEFT JOIN transactions t ON t.user_id = w.user_id
		GROUP BY w.user_id, w.points_balance, w.earnings_points, w.locked_earnings_points
		ORDER BY w.user_id
	`
	if err := h.reconcileDB.SelectContext(r.Context(), &rows, query); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"user_id":                row.UserID,
			"points_balance":         row.PointsBalance,
			"points_sum":             row.PointsSum,
			"points_difference":      row.PointsBalance - row.PointsSum,
			"earnings_points":        row.EarningsPoints,
			"earnings_sum":           row.EarningsSum,
			"earnings_difference":    row.EarningsPoints - row.EarningsSum,
			"locked_earnings_points": row.LockedPoints,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var username string
	var email string
	if strings.Contains(req.Identifier, "@") {
		email = req.Identifier
	} else {
		username = req.Identifier
	}
	targetUserID, err := h.resolveUserID(r.Context(), username, email)
	if err != nil {
		if err == sql.ErrNoRows {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.CreateAdmin(r.Context(), tx, targetUserID, false, &userID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"target_user_id": targetUserID,
		})
		return h.audit.Log(r.Context(), tx, userID, "promote_admin", "admin", targetUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	_, isSuper, err := h.admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return
	}
	var req grantRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AdminUserID == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, userID, "grant_role", "admin_role", req.AdminUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) WSWallet(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}
