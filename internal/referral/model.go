package referral

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Milestone string

const (
	ReferredFirstOrder  Milestone = "REFERRED_FIRST_ORDER"
	ReferrerFirstOrder  Milestone = "REFERRER_FIRST_ORDER"
	ReferrerSecondOrder Milestone = "REFERRER_SECOND_ORDER"
)

// ReferralPayout records one awarded milestone. The uniqueness on
// (referred_user_id, milestone) is what makes awards idempotent across
// repeated paid-order processing.
type ReferralPayout struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	ReferredUserID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_referral_milestone" json:"referred_user_id"`
	Milestone         Milestone       `gorm:"not null;uniqueIndex:idx_referral_milestone" json:"milestone"`
	BeneficiaryUserID uuid.UUID       `gorm:"type:uuid;not null;index" json:"beneficiary_user_id"`
	OrderID           uuid.UUID       `gorm:"type:uuid;not null" json:"order_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	CreatedAt         time.Time       `json:"created_at"`
}
