package store

// Transaction types. The log is append-only: corrections happen through
// point_refund and earning_reversal entries, never by editing history.
const (
	TxTypeTopUp           = "top_up"
	TxTypePayout          = "payout"
	TxTypePayoutLock      = "payout_lock"
	TxTypePayoutRelease   = "payout_release"
	TxTypePointSpend      = "point_spend"
	TxTypePointRefund     = "point_refund"
	TxTypeEarningCredit   = "earning_credit"
	TxTypeEarningReversal = "earning_reversal"
	TxTypeReferralBonus   = "referral_bonus"
)

const (
	TxStatusPending  = "pending"
	TxStatusVerified = "verified"
	TxStatusRejected = "rejected"
)

const (
	EarningStatusPending   = "pending"
	EarningStatusConfirmed = "confirmed"
	EarningStatusLocked    = "locked"
	EarningStatusReversed  = "reversed"
)

const (
	EarningSourceBoostReward      = "boost_reward"
	EarningSourceLiveRegistration = "live_registration"
	EarningSourceStorageCredit    = "storage_credit"
	EarningSourceManualAdjustment = "manual_adjustment"
)

const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusPaid       = "paid"
	PayoutStatusCancelled  = "cancelled"
)

const (
	SpendCategoryVoiceNote = "voice_note"
	SpendCategoryLiveEvent = "live_event"
	SpendCategoryBoost     = "boost"
	SpendCategoryStorage   = "storage"
)

func ValidTransactionType(txType string) bool {
	switch txType {
	case TxTypeTopUp, TxTypePayout, TxTypePayoutLock, TxTypePayoutRelease,
		TxTypePointSpend, TxTypePointRefund, TxTypeEarningCredit,
		TxTypeEarningReversal, TxTypeReferralBonus:
		return true
	}
	return false
}

func ValidEarningSource(sourceType string) bool {
	switch sourceType {
	case EarningSourceBoostReward, EarningSourceLiveRegistration,
		EarningSourceStorageCredit, EarningSourceManualAdjustment:
		return true
	}
	return false
}

func ValidSpendCategory(category string) bool {
	switch category {
	case SpendCategoryVoiceNote, SpendCategoryLiveEvent,
		SpendCategoryBoost, SpendCategoryStorage:
		return true
	}
	return false
}
