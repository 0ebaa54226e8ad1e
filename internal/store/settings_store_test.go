package store

import (
	"context"
	"database/sql"
	"testing"
)

func TestSettingsStoreGet(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			*dest.(*settingsRow) = settingsRow{
				BuyPricePerPoint:    "2.00",
				UserValuePerPoint:   "1.50",
				PayoutMinimumTTD:    10000,
				MandatoryTopupTTD:   5000,
				ReferralBonusPoints: 10,
				ReferralMaxTopups:   3,
			}
			return nil
		},
	})
	settings, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.BuyPricePerPoint.String() != "2" || settings.UserValuePerPoint.String() != "1.5" {
		t.Fatalf("unexpected prices: %#v", settings)
	}
	if settings.PayoutMinimumTTD != 10000 || settings.ReferralMaxTopups != 3 {
		t.Fatalf("unexpected settings: %#v", settings)
	}
}

func TestSettingsStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	})
	if _, err := store.Get(ctx); err != ErrConfigMissing {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

func TestSettingsStoreGetMalformedPrice(t *testing.T) {
	ctx := context.Background()
	store := NewSettingsStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			*dest.(*settingsRow) = settingsRow{BuyPricePerPoint: "not-a-number", UserValuePerPoint: "1.50"}
			return nil
		},
	})
	if _, err := store.Get(ctx); err != ErrConfigMissing {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}
