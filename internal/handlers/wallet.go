package handlers

import (
	"log"
	"net/http"

	"pointsledger/internal/middleware"
)

// GetWallet returns the caller's balances. Due earnings are matured
// opportunistically first, so a wallet read never shows stale pending
// earnings even between sweeps.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if _, err := h.ledger.MatureEarnings(r.Context(), userID, h.cfg.SweepEntryCap); err != nil {
		log.Printf("wallet: maturing earnings for user %s: %v", userID, err)
	}
	wallet, err := h.wallets.GetByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	projected, err := h.transactions.PendingTopUpPoints(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load wallet")
		return
	}
	var nextDue any
	if wallet.NextTopupDueOn != nil {
		nextDue = wallet.NextTopupDueOn.Format("2006-01-02")
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":                wallet.UserID,
		"points_balance":         wallet.PointsBalance,
		"earnings_points":        wallet.EarningsPoints,
		"locked_earnings_points": wallet.LockedEarningsPoints,
		"projected_points":       projected,
		"next_topup_due_on":      nextDue,
	})
}

// SelfCheck recomputes the caller's balances from the verified
// transaction log and reports any drift against the wallet row.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	wallet, err := h.wallets.GetByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	sums, err := h.transactions.SumVerifiedDeltas(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to self_check")
		return
	}
	// payout_lock debits the earnings delta when points move to locked,
	// so the verified sum tracks earnings_points alone. Locked points are
	// reported but excluded from the drift comparison.
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":                userID,
		"points_balance":         wallet.PointsBalance,
		"points_sum":             sums.PointsDelta,
		"points_difference":      wallet.PointsBalance - sums.PointsDelta,
		"earnings_points":        wallet.EarningsPoints,
		"earnings_sum":           sums.EarningsPointsDelta,
		"earnings_difference":    wallet.EarningsPoints - sums.EarningsPointsDelta,
		"locked_earnings_points": wallet.LockedEarningsPoints,
	})
}
