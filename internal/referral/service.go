package referral

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/notification"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/id"
	"github.com/grovia/settlement/pkg/logger"
)

// PaidOrderCounter reports a user's lifetime count of paid orders. Satisfied
// by the checkout repository.
type PaidOrderCounter interface {
	CountPaidOrders(userID string) (int64, error)
}

type Service struct {
	cfg      config.Config
	repo     Repository
	users    user.Repository
	orders   PaidOrderCounter
	notifier notification.Notifier
	refs     *id.Generator
}

func NewService(cfg config.Config, repo Repository, users user.Repository, orders PaidOrderCounter, notifier notification.Notifier, refs *id.Generator) *Service {
	return &Service{
		cfg:      cfg,
		repo:     repo,
		users:    users,
		orders:   orders,
		notifier: notifier,
		refs:     refs,
	}
}

// ApplyRewardsForPaidOrder awards any milestones the order owner's paid-order
// count has unlocked. Safe to call on every paid order: already-awarded
// milestones are skipped by the payout uniqueness.
//
// Runs post-commit and best-effort: an award failure is logged, never
// propagated to the payment path.
func (s *Service) ApplyRewardsForPaidOrder(ctx context.Context, orderOwnerID string, orderID string) {
	owner, err := s.users.FindByID(orderOwnerID)
	if err != nil {
		logger.Error("Referral rewards: owner lookup failed", logger.Fields{
			"user_id":       orderOwnerID,
			logger.ErrorKey: err.Error(),
		})
		return
	}

	if owner.ReferredByUserID == nil {
		return
	}
	referrerID := *owner.ReferredByUserID

	paidOrders, err := s.orders.CountPaidOrders(orderOwnerID)
	if err != nil {
		logger.Error("Referral rewards: paid order count failed", logger.Fields{
			"user_id":       orderOwnerID,
			logger.ErrorKey: err.Error(),
		})
		return
	}

	oid, err := uuid.Parse(orderID)
	if err != nil {
		logger.Error("Referral rewards: bad order id", logger.Fields{"order_id": orderID})
		return
	}

	if paidOrders >= 1 {
		s.award(ctx, ReferredFirstOrder, owner.ID, owner.ID, oid, s.cfg.ReferredFirstOrderReward)
		s.award(ctx, ReferrerFirstOrder, owner.ID, referrerID, oid, s.cfg.ReferrerFirstOrderReward)
	}
	if paidOrders >= 2 {
		s.award(ctx, ReferrerSecondOrder, owner.ID, referrerID, oid, s.cfg.ReferrerSecondOrderReward)
	}
}

func (s *Service) award(ctx context.Context, milestone Milestone, referredUserID, beneficiaryID, orderID uuid.UUID, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}

	payout := &ReferralPayout{
		ReferredUserID:    referredUserID,
		Milestone:         milestone,
		BeneficiaryUserID: beneficiaryID,
		OrderID:           orderID,
		Amount:            amount,
	}

	awarded, err := s.repo.AwardMilestone(payout)
	if err != nil {
		logger.Error("Referral rewards: award failed", logger.Fields{
			"milestone":     string(milestone),
			"user_id":       referredUserID.String(),
			logger.ErrorKey: err.Error(),
		})
		return
	}
	if !awarded {
		return
	}

	s.notifier.SendAccountActivity(ctx, beneficiaryID.String(),
		"Referral bonus earned",
		fmt.Sprintf("You earned a %s %s referral bonus.", s.cfg.Currency, amount.StringFixed(2)),
		map[string]interface{}{
			"milestone": string(milestone),
			"amount":    amount.StringFixed(2),
		},
		[]string{notification.ChannelInApp, notification.ChannelPush},
	)
}

type ReferredUserSummary struct {
	UserID   uuid.UUID       `json:"user_id"`
	Name     string          `json:"name"`
	Earnings decimal.Decimal `json:"earnings"`
}

type Summary struct {
	ReferralCode  string                `json:"referral_code"`
	TotalEarned   decimal.Decimal       `json:"total_earned"`
	ReferredCount int                   `json:"referred_count"`
	ReferredUsers []ReferredUserSummary `json:"referred_users"`
}

// Summarize builds the referral dashboard for a user, creating their invite
// code on first access.
func (s *Service) Summarize(userID string) (*Summary, error) {
	usr, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}

	code, err := s.EnsureReferralCode(usr)
	if err != nil {
		return nil, err
	}

	total, err := s.repo.SumPayoutsForBeneficiary(userID)
	if err != nil {
		return nil, err
	}

	referred, err := s.users.ListReferredBy(userID)
	if err != nil {
		return nil, err
	}

	payouts, err := s.repo.ListPayoutsForBeneficiary(userID)
	if err != nil {
		return nil, err
	}

	perReferred := map[uuid.UUID]decimal.Decimal{}
	for _, payout := range payouts {
		perReferred[payout.ReferredUserID] = perReferred[payout.ReferredUserID].Add(payout.Amount)
	}

	summaries := make([]ReferredUserSummary, 0, len(referred))
	for _, ru := range referred {
		summaries = append(summaries, ReferredUserSummary{
			UserID:   ru.ID,
			Name:     ru.Name,
			Earnings: perReferred[ru.ID],
		})
	}

	return &Summary{
		ReferralCode:  code,
		TotalEarned:   total,
		ReferredCount: len(referred),
		ReferredUsers: summaries,
	}, nil
}

// EnsureReferralCode returns the user's invite code, generating one if they
// have none yet. Retries on a code collision.
func (s *Service) EnsureReferralCode(usr *user.User) (string, error) {
	if usr.ReferralCode != nil && *usr.ReferralCode != "" {
		return *usr.ReferralCode, nil
	}

	for attempt := 0; attempt < 3; attempt++ {
		code := s.refs.ReferralCode()
		err := s.users.UpdateReferralCode(usr.ID.String(), code)
		if err == nil {
			usr.ReferralCode = &code
			return code, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", err
		}
	}
	return "", errors.New("could not allocate a referral code")
}

// LookupReferrer resolves an invite code to its owner.
func (s *Service) LookupReferrer(code string) (*user.User, error) {
	return s.users.FindByReferralCode(code)
}
