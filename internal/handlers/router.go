package handlers

import (
	"net/http"

	"pointsledger/internal/config"
	"pointsledger/internal/db"
	"pointsledger/internal/middleware"
	"pointsledger/internal/store"
	"pointsledger/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	reconcileDB  store.Selecter
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	wallets      WalletStore
	transactions TransactionStore
	earnings     EarningsStore
	payouts      PayoutStore
	referrals    ReferralStore
	settings     SettingsStore
	withdrawals  WithdrawalStore
	admin        AdminStore
	audit        AuditStore
	ledger       LedgerService
	revenue      RevenueService
	hub          *websocket.Hub
}

func New(reconcileDB store.Selecter, txRunner db.TxRunner, cfg config.Config, users UserStore, wallets WalletStore, transactions TransactionStore, earnings EarningsStore, payouts PayoutStore, referrals ReferralStore, settings SettingsStore, withdrawals WithdrawalStore, admin AdminStore, audit AuditStore, ledger LedgerService, revenue RevenueService, hub *websocket.Hub) *Handler {
	return &Handler{
		reconcileDB:  reconcileDB,
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		wallets:      wallets,
		transactions: transactions,
		earnings:     earnings,
		payouts:      payouts,
		referrals:    referrals,
		settings:     settings,
		withdrawals:  withdrawals,
		admin:        admin,
		audit:        audit,
		ledger:       ledger,
		revenue:      revenue,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/wallet", h.GetWallet)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/wallet/self-check", h.SelfCheck)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/transactions/topup", h.SubmitTopUp)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/transactions/spend", h.SpendPoints)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/transactions", h.ListTransactions)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/earnings", h.ListEarnings)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/earnings/mature", h.MatureEarnings)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/payouts", h.ListPayouts)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Post("/payouts/request", h.RequestPayout)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/referrals", h.ListReferralTopups)
	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/users/username/{username}", h.GetUserByUsername)
	router.Get("/ws/wallet", h.WSWallet)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, "CanVerifyTopups")).Get("/topups", h.AdminListPendingTopUps)
		r.With(middleware.RequireAdmin(h.admin, "CanVerifyTopups")).Post("/topups/{id}/verify", h.AdminVerifyTopUp)
		r.With(middleware.RequireAdmin(h.admin, "CanVerifyTopups")).Post("/topups/{id}/reject", h.AdminRejectTopUp)
		r.With(middleware.RequireAdmin(h.admin, "CanVerifyTopups")).Post("/referrals/{id}/topups", h.AdminRecordReferralTopup)
		r.With(middleware.RequireAdmin(h.admin, "CanManageEarnings")).Post("/earnings/credit", h.AdminCreditEarning)
		r.With(middleware.RequireAdmin(h.admin, "CanManageEarnings")).Post("/earnings/{id}/reverse", h.AdminReverseEarning)
		r.With(middleware.RequireAdmin(h.admin, "CanManageEarnings")).Post("/transactions/{id}/refund", h.AdminRefundSpend)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePayouts")).Get("/payouts", h.AdminListPayouts)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePayouts")).Post("/payouts/{id}/process", h.AdminProcessPayout)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePayouts")).Post("/payouts/{id}/complete", h.AdminCompletePayout)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePayouts")).Post("/payouts/{id}/cancel", h.AdminCancelPayout)
		r.With(middleware.RequireAdmin(h.admin, "CanManageRevenue")).Get("/revenue", h.AdminRevenue)
		r.With(middleware.RequireAdmin(h.admin, "CanManageRevenue")).Get("/withdrawals", h.AdminListWithdrawals)
		r.With(middleware.RequireAdmin(h.admin, "CanManageRevenue")).Post("/withdrawals", h.AdminRecordWithdrawal)
		r.With(middleware.RequireAdmin(h.admin, "")).Get("/settings", h.AdminGetSettings)
		r.With(middleware.RequireAdmin(h.admin, "")).Put("/settings", h.AdminUpdateSettings)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/transactions", h.AdminListTransactions)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
