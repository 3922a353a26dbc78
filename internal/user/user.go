package user

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User carries the wallet balance, the materialized sum of all SUCCESS
// wallet-transaction deltas for the user. Only the wallet repository's
// balance mutator may write WalletBalance.
type User struct {
	ID               uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	Name             string          `json:"name"`
	Username         string          `gorm:"uniqueIndex" json:"username"`
	Email            string          `gorm:"uniqueIndex" json:"email"`
	WalletBalance    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"wallet_balance"`
	ReferralCode     *string         `gorm:"uniqueIndex" json:"referral_code,omitempty"`
	ReferredByUserID *uuid.UUID      `gorm:"type:uuid" json:"referred_by_user_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
