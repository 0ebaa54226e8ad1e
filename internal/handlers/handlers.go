package handlers

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"pointsledger/internal/money"
	"pointsledger/internal/services"
	"pointsledger/internal/store"

	"github.com/lib/pq"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps ledger errors onto HTTP statuses. Anything
// unrecognized is a 500 without leaking the underlying error.
func respondServiceError(w http.ResponseWriter, err error) {
	switch err {
	case services.ErrInsufficientBalance:
		respondError(w, http.StatusBadRequest, "insufficient_balance")
	case services.ErrInsufficientEarnings:
		respondError(w, http.StatusBadRequest, "insufficient_earnings")
	case services.ErrInvalidTransition:
		respondError(w, http.StatusConflict, "invalid_state")
	case services.ErrInvalidAmount:
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case services.ErrInvalidPoints:
		respondError(w, http.StatusBadRequest, "invalid_points")
	case services.ErrUnknownTransactionType:
		respondError(w, http.StatusBadRequest, "unknown_transaction_type")
	case services.ErrUnknownSpendCategory:
		respondError(w, http.StatusBadRequest, "unknown_spend_category")
	case services.ErrUnknownEarningSource:
		respondError(w, http.StatusBadRequest, "unknown_earning_source")
	case services.ErrUnknownRevenueRule:
		respondError(w, http.StatusBadRequest, "unknown_revenue_rule")
	case services.ErrLedgerOutOfSync:
		respondError(w, http.StatusInternalServerError, "ledger_out_of_sync")
	case services.ErrConfigInvalid, store.ErrConfigMissing:
		respondError(w, http.StatusInternalServerError, "settings_unavailable")
	case sql.ErrNoRows:
		respondError(w, http.StatusNotFound, "not_found")
	default:
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "duplicate_request")
			return
		}
		respondError(w, http.StatusInternalServerError, "operation_failed")
	}
}

func valueToString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func valueToMoney(value any) string {
	return money.FormatMinor(money.ValueToInt64(value))
}
