package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grovia/settlement/pkg/database"
)

type TransactionType string

const (
	TypeDeposit            TransactionType = "DEPOSIT"
	TypeWithdrawal         TransactionType = "WITHDRAWAL"
	TypeWithdrawalReversal TransactionType = "WITHDRAWAL_REVERSAL"
	TypeOrderPayment       TransactionType = "ORDER_PAYMENT"
	TypeReferralBonus      TransactionType = "REFERRAL_BONUS"
)

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

type LedgerStatus string

const (
	LedgerPending  LedgerStatus = "PENDING"
	LedgerSuccess  LedgerStatus = "SUCCESS"
	LedgerFailed   LedgerStatus = "FAILED"
	LedgerReversed LedgerStatus = "REVERSED"
)

// WalletTransaction is an append-only ledger row. Rows in a terminal status
// are never mutated again; the balance_before/balance_after pair is the audit
// trail of the balance at write time.
type WalletTransaction struct {
	ID                         uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID                     uuid.UUID        `gorm:"type:uuid;not null;index:idx_ledger_user_created" json:"user_id"`
	WalletPaymentTransactionID *uuid.UUID       `gorm:"type:uuid;index" json:"wallet_payment_transaction_id,omitempty"`
	Type                       TransactionType  `gorm:"not null" json:"type"`
	Direction                  Direction        `gorm:"not null" json:"direction"`
	Amount                     decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	BalanceBefore              decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"balance_before"`
	BalanceAfter               decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"balance_after"`
	Status                     LedgerStatus     `gorm:"not null;default:SUCCESS" json:"status"`
	Reference                  *string          `json:"reference,omitempty"`
	Description                string           `json:"description"`
	Metadata                   database.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt                  time.Time        `gorm:"index:idx_ledger_user_created" json:"created_at"`
	UpdatedAt                  time.Time        `json:"updated_at"`
}

// SignedAmount is the delta this row applied to the balance.
func (t WalletTransaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

type PaymentDirection string

const (
	PaymentDeposit    PaymentDirection = "DEPOSIT"
	PaymentWithdrawal PaymentDirection = "WITHDRAWAL"
)

type PaymentStatus string

const (
	PaymentInitialized PaymentStatus = "INITIALIZED"
	PaymentPending     PaymentStatus = "PENDING"
	PaymentSuccess     PaymentStatus = "SUCCESS"
	PaymentFailed      PaymentStatus = "FAILED"
)

// WalletPaymentTransaction tracks a standalone deposit or withdrawal against
// the gateway. SUCCESS and FAILED are terminal; the unique
// (user, direction, idempotency key) index is the at-most-once guard for
// client retries.
type WalletPaymentTransaction struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primary_key" json:"id"`
	UserID           uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_wallet_payment_idem" json:"user_id"`
	Direction        PaymentDirection `gorm:"not null;uniqueIndex:idx_wallet_payment_idem" json:"direction"`
	Gateway          string           `gorm:"not null;default:paystack" json:"gateway"`
	IdempotencyKey   string           `gorm:"not null;uniqueIndex:idx_wallet_payment_idem" json:"idempotency_key"`
	Reference        *string          `gorm:"uniqueIndex" json:"reference,omitempty"`
	Amount           decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"amount"`
	Currency         string           `gorm:"type:varchar(3);not null;default:NGN" json:"currency"`
	Status           PaymentStatus    `gorm:"not null;default:INITIALIZED" json:"status"`
	RecipientCode    *string          `json:"recipient_code,omitempty"`
	BankCode         *string          `json:"bank_code,omitempty"`
	AccountNumber    *string          `json:"account_number,omitempty"`
	AccountName      *string          `json:"account_name,omitempty"`
	LastWebhookEvent *string          `json:"last_webhook_event,omitempty"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
	GatewayResponse  database.JSONMap `gorm:"type:jsonb" json:"gateway_response,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Terminal reports whether no further status transition is permitted.
func (p WalletPaymentTransaction) Terminal() bool {
	return p.Status == PaymentSuccess || p.Status == PaymentFailed
}
