package handlers

import (
	"net/http"

	"pointsledger/internal/middleware"
)

func (h *Handler) ListEarnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	entries, err := h.earnings.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load earnings")
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) MatureEarnings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	matured, err := h.ledger.MatureEarnings(r.Context(), userID, h.cfg.SweepEntryCap)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matured": matured})
}

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	payouts, err := h.payouts.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load payouts")
		return
	}
	respondJSON(w, http.StatusOK, normalizePayouts(payouts))
}

// RequestPayout sweeps the caller's confirmed earnings into a payout when
// the balance meets the minimum. Below the threshold nothing is locked.
func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := h.ledger.LockPayoutEligibleEarnings(r.Context(), userID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if result == nil {
		respondError(w, http.StatusBadRequest, "below_payout_minimum")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"payout_id":     result.PayoutID,
		"points":        result.Points,
		"amount":        valueToMoney(result.AmountTTD),
		"scheduled_for": result.ScheduledFor.Format("2006-01-02"),
		"status":        "pending",
	})
}

func normalizePayouts(rows []map[string]any) []map[string]any {
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":            valueToString(row["id"]),
			"user_id":       valueToString(row["user_id"]),
			"username":      valueToString(row["username"]),
			"points":        row["points"],
			"amount":        valueToMoney(row["amount_ttd"]),
			"status":        valueToString(row["status"]),
			"scheduled_for": row["scheduled_for"],
			"locked_points": row["locked_points"],
			"created_at":    row["created_at"],
			"processed_at":  row["processed_at"],
		})
	}
	return normalized
}

func (h *Handler) ListReferralTopups(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	history, err := h.referrals.ListTopupsByReferrer(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load referrals")
		return
	}
	respondJSON(w, http.StatusOK, history)
}
