package handlers

import (
	"encoding/json"
	"net/http"

	"pointsledger/internal/middleware"
)

type topUpRequest struct {
	Amount  string `json:"amount"`
	Confirm bool   `json:"confirm"`
}

func (h *Handler) SubmitTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !req.Confirm {
		respondError(w, http.StatusBadRequest, "confirmation_required")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	submission, err := h.ledger.SubmitTopUp(r.Context(), userID, amountMinor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"transaction_id":   submission.TransactionID,
		"amount":           valueToMoney(submission.AmountTTD),
		"projected_points": submission.ProjectedPoints,
		"status":           "pending",
	})
}

type spendRequest struct {
	Points   int64  `json:"points"`
	Category string `json:"category"`
}

func (h *Handler) SpendPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	transactionID, err := h.ledger.SpendPoints(r.Context(), userID, req.Points, req.Category)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"transaction_id": transactionID})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	query := r.URL.Query()
	txType := query.Get("type")
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	transactions, err := h.transactions.ListByUser(r.Context(), userID, txType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, normalizeTransactions(transactions))
}

func normalizeTransactions(rows []map[string]any) []map[string]any {
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		var amount any
		if row["amount_ttd"] != nil {
			amount = valueToMoney(row["amount_ttd"])
		}
		normalized = append(normalized, map[string]any{
			"id":                    valueToString(row["id"]),
			"user_id":               valueToString(row["user_id"]),
			"username":              valueToString(row["username"]),
			"type":                  valueToString(row["type"]),
			"status":                valueToString(row["status"]),
			"amount":                amount,
			"points_delta":          row["points_delta"],
			"earnings_points_delta": row["earnings_points_delta"],
			"category":              valueToString(row["category"]),
			"recipient_user_id":     valueToString(row["recipient_user_id"]),
			"sender_user_id":        valueToString(row["sender_user_id"]),
			"metadata":              row["metadata"],
			"created_at":            row["created_at"],
		})
	}
	return normalized
}
