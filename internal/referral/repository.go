package referral

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/database"
)

type Repository interface {
	// AwardMilestone is the atomic check-lock-credit-record unit. It reports
	// false without error when the (referred user, milestone) pair was
	// already awarded.
	AwardMilestone(payout *ReferralPayout) (bool, error)

	ListPayoutsForBeneficiary(beneficiaryID string) ([]ReferralPayout, error)
	SumPayoutsForBeneficiary(beneficiaryID string) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) AwardMilestone(payout *ReferralPayout) (bool, error) {
	awarded := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing ReferralPayout
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("referred_user_id = ? AND milestone = ?", payout.ReferredUserID, payout.Milestone).
			First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(payout).Error; err != nil {
			// concurrent award of the same milestone: the other writer won
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil
			}
			return err
		}

		_, err = wallet.ApplyDeltaTx(tx, payout.BeneficiaryUserID.String(), payout.Amount, wallet.LedgerEntry{
			Type:        wallet.TypeReferralBonus,
			Description: "Referral bonus: " + string(payout.Milestone),
			Metadata: database.JSONMap{
				"milestone":        string(payout.Milestone),
				"referred_user_id": payout.ReferredUserID.String(),
				"order_id":         payout.OrderID.String(),
			},
		})
		if err != nil {
			return err
		}

		awarded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return awarded, nil
}

func (r *repository) ListPayoutsForBeneficiary(beneficiaryID string) ([]ReferralPayout, error) {
	var payouts []ReferralPayout
	err := r.db.Where("beneficiary_user_id = ?", beneficiaryID).
		Order("created_at desc").
		Find(&payouts).Error
	return payouts, err
}

func (r *repository) SumPayoutsForBeneficiary(beneficiaryID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.Model(&ReferralPayout{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("beneficiary_user_id = ?", beneficiaryID).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}
