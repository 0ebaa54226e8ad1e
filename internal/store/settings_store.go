package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrConfigMissing signals that the platform settings row is absent.
// Pricing math must fail loudly rather than fall back to defaults.
var ErrConfigMissing = errors.New("platform settings not configured")

type SettingsStore struct {
	db DB
}

type Settings struct {
	BuyPricePerPoint    decimal.Decimal
	UserValuePerPoint   decimal.Decimal
	PayoutMinimumTTD    int64
	MandatoryTopupTTD   int64
	ReferralBonusPoints int64
	ReferralMaxTopups   int
}

type settingsRow struct {
	BuyPricePerPoint    string `db:"buy_price_per_point"`
	UserValuePerPoint   string `db:"user_value_per_point"`
	PayoutMinimumTTD    int64  `db:"payout_minimum_ttd"`
	MandatoryTopupTTD   int64  `db:"mandatory_topup_ttd"`
	ReferralBonusPoints int64  `db:"referral_bonus_points"`
	ReferralMaxTopups   int    `db:"referral_max_topups"`
}

type SettingsInput struct {
	BuyPricePerPoint    string
	UserValuePerPoint   string
	PayoutMinimumTTD    int64
	MandatoryTopupTTD   int64
	ReferralBonusPoints int64
	ReferralMaxTopups   int
}

func NewSettingsStore(db DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(ctx context.Context) (Settings, error) {
	var row settingsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT buy_price_per_point, user_value_per_point, payout_minimum_ttd,
		       mandatory_topup_ttd, referral_bonus_points, referral_max_topups
		FROM platform_settings
		WHERE id = 1
	`)
	if err != nil {
		if err == sql.ErrNoRows {
			return Settings{}, ErrConfigMissing
		}
		return Settings{}, err
	}
	buyPrice, err := decimal.NewFromString(row.BuyPricePerPoint)
	if err != nil {
		return Settings{}, ErrConfigMissing
	}
	userValue, err := decimal.NewFromString(row.UserValuePerPoint)
	if err != nil {
		return Settings{}, ErrConfigMissing
	}
	return Settings{
		BuyPricePerPoint:    buyPrice,
		UserValuePerPoint:   userValue,
		PayoutMinimumTTD:    row.PayoutMinimumTTD,
		MandatoryTopupTTD:   row.MandatoryTopupTTD,
		ReferralBonusPoints: row.ReferralBonusPoints,
		ReferralMaxTopups:   row.ReferralMaxTopups,
	}, nil
}

func (s *SettingsStore) Update(ctx context.Context, tx Execer, input SettingsInput) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE platform_settings
		SET buy_price_per_point = $1, user_value_per_point = $2, payout_minimum_ttd = $3,
		    mandatory_topup_ttd = $4, referral_bonus_points = $5, referral_max_topups = $6,
		    updated_at = NOW()
		WHERE id = 1
	`, input.BuyPricePerPoint, input.UserValuePerPoint, input.PayoutMinimumTTD,
		input.MandatoryTopupTTD, input.ReferralBonusPoints, input.ReferralMaxTopups)
	return err
}
