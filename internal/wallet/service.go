package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/notification"
	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/id"
	"github.com/grovia/settlement/pkg/logger"
)

var (
	// ErrBelowMinimum rejects deposits/withdrawals under the configured floor.
	ErrBelowMinimum = errors.New("amount is below the minimum")

	// ErrAccountNameMismatch means the resolved bank account name did not
	// match the name the client supplied.
	ErrAccountNameMismatch = errors.New("account name verification failed")
)

type Service struct {
	cfg      config.Config
	repo     Repository
	gateway  paystack.Gateway
	notifier notification.Notifier
	refs     *id.Generator
}

func NewService(cfg config.Config, repo Repository, gateway paystack.Gateway, notifier notification.Notifier, refs *id.Generator) *Service {
	return &Service{cfg: cfg, repo: repo, gateway: gateway, notifier: notifier, refs: refs}
}

type DepositInit struct {
	Reused           bool
	Payment          *WalletPaymentTransaction
	AuthorizationURL string
	AccessCode       string
}

type WithdrawResult struct {
	Reused  bool
	Payment *WalletPaymentTransaction
	Balance decimal.Decimal
}

func (s *Service) Balance(userID string) (decimal.Decimal, error) {
	return s.repo.Balance(userID)
}

func (s *Service) History(userID string, limit, offset int) ([]WalletTransaction, int64, error) {
	txs, err := s.repo.ListTransactions(userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.repo.CountTransactions(userID)
	if err != nil {
		return nil, 0, err
	}
	return txs, count, nil
}

// InitializeDeposit starts a gateway-hosted deposit. The payment row is
// created before the gateway call; replays with the same idempotency key
// return the original session untouched.
func (s *Service) InitializeDeposit(ctx context.Context, usr *user.User, amount decimal.Decimal, idempotencyKey string) (*DepositInit, error) {
	if amount.LessThan(s.cfg.MinDeposit) {
		return nil, fmt.Errorf("%w: minimum deposit is %s %s", ErrBelowMinimum, s.cfg.MinDeposit.StringFixed(2), s.cfg.Currency)
	}

	if existing, err := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), PaymentDeposit, idempotencyKey); err == nil {
		return reusedDeposit(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	payment := &WalletPaymentTransaction{
		UserID:         usr.ID,
		Direction:      PaymentDeposit,
		Gateway:        "paystack",
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		Status:         PaymentInitialized,
	}

	if err := s.repo.CreatePayment(payment); err != nil {
		// lost the insert race: the winning request's session is the answer
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), PaymentDeposit, idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			return reusedDeposit(existing), nil
		}
		return nil, err
	}

	reference := s.refs.WalletReference("WDP")

	init, err := s.gateway.InitializeTransaction(ctx, usr.Email, reference, amount, map[string]interface{}{
		"wallet_payment_transaction_id": payment.ID.String(),
		"user_id":                       usr.ID.String(),
		"type":                          "wallet_deposit",
	})
	if err != nil {
		s.repo.MarkPaymentFailed(payment.ID.String(), &reference, database.JSONMap{"message": err.Error()})
		return nil, err
	}

	if err := s.repo.MarkPaymentInitialized(payment.ID.String(), reference, init.Raw); err != nil {
		return nil, err
	}

	payment.Reference = &reference
	payment.GatewayResponse = init.Raw

	return &DepositInit{
		Reused:           false,
		Payment:          payment,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
	}, nil
}

// VerifyDeposit runs the same reconciliation the webhook does, triggered by
// the client.
func (s *Service) VerifyDeposit(ctx context.Context, usr *user.User, reference string) (*WalletPaymentTransaction, decimal.Decimal, error) {
	payment, err := s.repo.FindUserPaymentByReference(usr.ID.String(), PaymentDeposit, reference)
	if err != nil {
		return nil, decimal.Zero, err
	}

	verified, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, decimal.Zero, err
	}

	event := "manual_verify"
	if verified.Status == "success" {
		payment, err = s.ApplyDepositSuccess(ctx, payment.ID.String(), verified.Raw, &event)
	} else {
		payment, err = s.ApplyDepositFailure(ctx, payment.ID.String(), verified.Raw, &event)
	}
	if err != nil {
		return nil, decimal.Zero, err
	}

	balance, err := s.repo.Balance(usr.ID.String())
	if err != nil {
		return nil, decimal.Zero, err
	}
	return payment, balance, nil
}

func (s *Service) ListBanks(ctx context.Context) ([]paystack.Bank, error) {
	return s.gateway.ListBanks(ctx)
}

func (s *Service) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*paystack.ResolvedAccount, error) {
	return s.gateway.ResolveBankAccount(ctx, accountNumber, bankCode)
}

// Withdraw reserves the amount locally first, then attempts the external
// transfer. A failed or timed-out transfer immediately takes the reversal
// path so the reservation never leaks.
func (s *Service) Withdraw(ctx context.Context, usr *user.User, amount decimal.Decimal, idempotencyKey, bankCode, accountNumber, accountName, reason string) (*WithdrawResult, error) {
	if amount.LessThan(s.cfg.MinWithdrawal) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s %s", ErrBelowMinimum, s.cfg.MinWithdrawal.StringFixed(2), s.cfg.Currency)
	}

	if existing, err := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), PaymentWithdrawal, idempotencyKey); err == nil {
		return s.reusedWithdrawal(usr, existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	resolved, err := s.gateway.ResolveBankAccount(ctx, accountNumber, bankCode)
	if err != nil {
		return nil, err
	}

	if !namesMatch(resolved.AccountName, accountName) {
		return nil, ErrAccountNameMismatch
	}

	payment := &WalletPaymentTransaction{
		UserID:         usr.ID,
		Direction:      PaymentWithdrawal,
		Gateway:        "paystack",
		IdempotencyKey: idempotencyKey,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		Status:         PaymentInitialized,
		BankCode:       &bankCode,
		AccountNumber:  &accountNumber,
		AccountName:    &resolved.AccountName,
	}

	if _, err := s.repo.InitiateWithdrawal(payment, "Wallet withdrawal initiated."); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), PaymentWithdrawal, idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			return s.reusedWithdrawal(usr, existing)
		}
		return nil, err
	}

	reference := s.refs.WalletReference("WWD")

	recipientCode, err := s.gateway.CreateTransferRecipient(ctx, resolved.AccountName, accountNumber, bankCode)
	if err != nil {
		return nil, s.failWithdrawalInitiation(ctx, payment, err)
	}

	transfer, err := s.gateway.InitiateTransfer(ctx, recipientCode, reference, amount, reason)
	if err != nil {
		return nil, s.failWithdrawalInitiation(ctx, payment, err)
	}

	if err := s.repo.MarkWithdrawalPending(payment.ID.String(), recipientCode, reference, transfer); err != nil {
		return nil, err
	}

	payment.RecipientCode = &recipientCode
	payment.Reference = &reference
	payment.Status = PaymentPending
	payment.GatewayResponse = transfer

	s.notifier.SendAccountActivity(ctx, usr.ID.String(),
		"Withdrawal initiated",
		fmt.Sprintf("Your wallet withdrawal request of %s %s has been initiated.", s.cfg.Currency, amount.StringFixed(2)),
		map[string]interface{}{
			"reference": reference,
			"status":    PaymentPending,
			"amount":    amount.StringFixed(2),
		},
		[]string{notification.ChannelInApp, notification.ChannelPush},
	)

	balance, err := s.repo.Balance(usr.ID.String())
	if err != nil {
		return nil, err
	}

	return &WithdrawResult{Reused: false, Payment: payment, Balance: balance}, nil
}

// failWithdrawalInitiation runs the compensating reversal synchronously when
// the gateway call that should move the money never succeeded.
func (s *Service) failWithdrawalInitiation(ctx context.Context, payment *WalletPaymentTransaction, cause error) error {
	event := "initiate_failed"
	if _, err := s.ApplyWithdrawalFailure(ctx, payment.ID.String(), database.JSONMap{"message": cause.Error()}, &event); err != nil {
		logger.Error("failed to reverse withdrawal after initiation failure", logger.Fields{
			"payment_id":    payment.ID.String(),
			logger.ErrorKey: err.Error(),
		})
	}
	return cause
}

func (s *Service) ApplyDepositSuccess(ctx context.Context, paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, error) {
	payment, changed, err := s.repo.ApplyDepositSuccess(paymentID, payload, event)
	if err != nil {
		return nil, err
	}

	if changed {
		balance, _ := s.repo.Balance(payment.UserID.String())
		s.notifier.SendAccountActivity(ctx, payment.UserID.String(),
			"Deposit successful",
			fmt.Sprintf("Your wallet was credited with %s %s.", payment.Currency, payment.Amount.StringFixed(2)),
			map[string]interface{}{
				"reference":     derefOrEmpty(payment.Reference),
				"status":        PaymentSuccess,
				"amount":        payment.Amount.StringFixed(2),
				"balance_after": balance.StringFixed(2),
			},
			[]string{notification.ChannelInApp, notification.ChannelPush, notification.ChannelEmail},
		)
	}
	return payment, nil
}

func (s *Service) ApplyDepositFailure(ctx context.Context, paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, error) {
	payment, changed, err := s.repo.ApplyDepositFailure(paymentID, payload, event)
	if err != nil {
		return nil, err
	}

	if changed {
		s.notifier.SendAccountActivity(ctx, payment.UserID.String(),
			"Deposit failed",
			"Your wallet deposit could not be completed. Please try again.",
			map[string]interface{}{
				"reference": derefOrEmpty(payment.Reference),
				"status":    PaymentFailed,
				"amount":    payment.Amount.StringFixed(2),
			},
			[]string{notification.ChannelInApp, notification.ChannelPush},
		)
	}
	return payment, nil
}

func (s *Service) ApplyWithdrawalSuccess(ctx context.Context, paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, error) {
	payment, changed, err := s.repo.ApplyWithdrawalSuccess(paymentID, payload, event)
	if err != nil {
		return nil, err
	}

	if changed {
		s.notifier.SendAccountActivity(ctx, payment.UserID.String(),
			"Withdrawal successful",
			fmt.Sprintf("Your wallet withdrawal of %s %s was successful.", payment.Currency, payment.Amount.StringFixed(2)),
			map[string]interface{}{
				"reference": derefOrEmpty(payment.Reference),
				"status":    PaymentSuccess,
				"amount":    payment.Amount.StringFixed(2),
			},
			[]string{notification.ChannelInApp, notification.ChannelPush, notification.ChannelEmail},
		)
	}
	return payment, nil
}

func (s *Service) ApplyWithdrawalFailure(ctx context.Context, paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, error) {
	payment, changed, err := s.repo.ApplyWithdrawalFailure(paymentID, payload, event)
	if err != nil {
		return nil, err
	}

	if changed {
		s.notifier.SendAccountActivity(ctx, payment.UserID.String(),
			"Withdrawal failed",
			"Your wallet withdrawal failed and any debited amount has been reversed.",
			map[string]interface{}{
				"reference": derefOrEmpty(payment.Reference),
				"status":    PaymentFailed,
				"amount":    payment.Amount.StringFixed(2),
				"reversed":  true,
			},
			[]string{notification.ChannelInApp, notification.ChannelPush},
		)
	}
	return payment, nil
}

func (s *Service) reusedWithdrawal(usr *user.User, payment *WalletPaymentTransaction) (*WithdrawResult, error) {
	balance, err := s.repo.Balance(usr.ID.String())
	if err != nil {
		return nil, err
	}
	return &WithdrawResult{Reused: true, Payment: payment, Balance: balance}, nil
}

func reusedDeposit(payment *WalletPaymentTransaction) *DepositInit {
	authURL, accessCode := AuthorizationData(payment.GatewayResponse)
	return &DepositInit{
		Reused:           true,
		Payment:          payment,
		AuthorizationURL: authURL,
		AccessCode:       accessCode,
	}
}

// AuthorizationData extracts the hosted-checkout coordinates from a stored
// gateway response.
func AuthorizationData(response database.JSONMap) (string, string) {
	data, _ := response["data"].(map[string]interface{})
	authURL, _ := data["authorization_url"].(string)
	accessCode, _ := data["access_code"].(string)
	return authURL, accessCode
}

// namesMatch compares bank account names ignoring case and whitespace;
// containment in either direction counts as a match.
func namesMatch(resolved, provided string) bool {
	a := normalizeName(resolved)
	b := normalizeName(provided)

	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
