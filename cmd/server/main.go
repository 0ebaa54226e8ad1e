package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pointsledger/internal/config"
	"pointsledger/internal/db"
	"pointsledger/internal/handlers"
	"pointsledger/internal/services"
	"pointsledger/internal/store"
	"pointsledger/internal/sweep"
	"pointsledger/internal/websocket"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	wallets := store.NewWalletStore(database)
	transactions := store.NewTransactionStore(database)
	earnings := store.NewEarningsStore(database)
	payouts := store.NewPayoutStore(database)
	settings := store.NewSettingsStore(database)
	referrals := store.NewReferralStore(database)
	withdrawals := store.NewWithdrawalStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	ledger := services.NewLedgerService(txRunner, wallets, transactions, earnings, payouts, settings, referrals, audit, hub)
	revenue := services.NewRevenueService(txRunner, transactions, withdrawals, settings, audit)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweeper := sweep.New(ledger, earnings, cfg.SweepInterval, cfg.SweepUserBatch, cfg.SweepEntryCap)
	go sweeper.Run(sweepCtx)

	handler := handlers.New(database, txRunner, cfg, users, wallets, transactions, earnings, payouts, referrals, settings, withdrawals, admin, audit, ledger, revenue, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("points ledger API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
