package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/database"
)

// ErrInsufficientFunds is returned when a debit would drive the wallet
// balance negative.
var ErrInsufficientFunds = errors.New("insufficient wallet balance")

// ErrInvalidAmount guards the balance mutator against non-positive amounts.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// LedgerEntry describes the ledger row the balance mutator writes alongside
// a balance change.
type LedgerEntry struct {
	Type        TransactionType
	PaymentID   *uuid.UUID
	Reference   *string
	Description string
	Metadata    database.JSONMap
}

type Repository interface {
	// ApplyDelta is the only code path that changes a user's wallet balance.
	// It locks the user row, applies the signed delta, and writes a SUCCESS
	// ledger row in the same transaction.
	ApplyDelta(userID string, delta decimal.Decimal, entry LedgerEntry) (*WalletTransaction, error)

	Balance(userID string) (decimal.Decimal, error)
	SumSuccessfulEntries(userID string) (decimal.Decimal, error)

	CreatePayment(p *WalletPaymentTransaction) error
	FindPaymentByIdempotencyKey(userID string, direction PaymentDirection, key string) (*WalletPaymentTransaction, error)
	FindPaymentByReference(reference string) (*WalletPaymentTransaction, error)
	FindUserPaymentByReference(userID string, direction PaymentDirection, reference string) (*WalletPaymentTransaction, error)
	MarkPaymentInitialized(paymentID, reference string, response database.JSONMap) error
	MarkWithdrawalPending(paymentID, recipientCode, reference string, response database.JSONMap) error
	MarkPaymentFailed(paymentID string, reference *string, response database.JSONMap) error

	InitiateWithdrawal(p *WalletPaymentTransaction, description string) (*WalletTransaction, error)

	ApplyDepositSuccess(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error)
	ApplyDepositFailure(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error)
	ApplyWithdrawalSuccess(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error)
	ApplyWithdrawalFailure(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error)

	ListTransactions(userID string, limit, offset int) ([]WalletTransaction, error)
	CountTransactions(userID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ApplyDelta(userID string, delta decimal.Decimal, entry LedgerEntry) (*WalletTransaction, error) {
	var ledgerRow *WalletTransaction

	err := r.db.Transaction(func(tx *gorm.DB) error {
		row, err := applyDelta(tx, userID, delta, entry)
		if err != nil {
			return err
		}
		ledgerRow = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ledgerRow, nil
}

// ApplyDeltaTx runs the balance mutator inside a caller-owned transaction so
// an order debit or a referral credit commits together with the caller's own
// rows.
func ApplyDeltaTx(tx *gorm.DB, userID string, delta decimal.Decimal, entry LedgerEntry) (*WalletTransaction, error) {
	return applyDelta(tx, userID, delta, entry)
}

// applyDelta is the balance mutator body, shared with the transactions that
// need a balance change as part of a larger atomic unit.
func applyDelta(tx *gorm.DB, userID string, delta decimal.Decimal, entry LedgerEntry) (*WalletTransaction, error) {
	if delta.IsZero() {
		return nil, ErrInvalidAmount
	}

	usr, err := lockUser(tx, userID)
	if err != nil {
		return nil, err
	}

	before := usr.WalletBalance
	after := before.Add(delta)

	if after.IsNegative() {
		return nil, ErrInsufficientFunds
	}

	if err := tx.Model(&user.User{}).Where("id = ?", usr.ID).
		Update("wallet_balance", after).Error; err != nil {
		return nil, err
	}

	direction := DirectionCredit
	if delta.IsNegative() {
		direction = DirectionDebit
	}

	row := &WalletTransaction{
		UserID:                     usr.ID,
		WalletPaymentTransactionID: entry.PaymentID,
		Type:                       entry.Type,
		Direction:                  direction,
		Amount:                     delta.Abs(),
		BalanceBefore:              before,
		BalanceAfter:               after,
		Status:                     LedgerSuccess,
		Reference:                  entry.Reference,
		Description:                entry.Description,
		Metadata:                   entry.Metadata,
	}

	if err := tx.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func lockUser(tx *gorm.DB, userID string) (*user.User, error) {
	var usr user.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", userID).
		First(&usr).Error
	if err != nil {
		return nil, err
	}
	return &usr, nil
}

func (r *repository) Balance(userID string) (decimal.Decimal, error) {
	var usr user.User
	if err := r.db.Select("wallet_balance").Where("id = ?", userID).First(&usr).Error; err != nil {
		return decimal.Zero, err
	}
	return usr.WalletBalance, nil
}

func (r *repository) SumSuccessfulEntries(userID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.Model(&WalletTransaction{}).
		Select("COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE -amount END), 0)", DirectionCredit).
		Where("user_id = ? AND status = ?", userID, LedgerSuccess).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total.Decimal, nil
}

func (r *repository) CreatePayment(p *WalletPaymentTransaction) error {
	return r.db.Create(p).Error
}

func (r *repository) FindPaymentByIdempotencyKey(userID string, direction PaymentDirection, key string) (*WalletPaymentTransaction, error) {
	var p WalletPaymentTransaction
	err := r.db.Where("user_id = ? AND direction = ? AND idempotency_key = ?", userID, direction, key).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindPaymentByReference(reference string) (*WalletPaymentTransaction, error) {
	var p WalletPaymentTransaction
	if err := r.db.Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindUserPaymentByReference(userID string, direction PaymentDirection, reference string) (*WalletPaymentTransaction, error) {
	var p WalletPaymentTransaction
	err := r.db.Where("user_id = ? AND direction = ? AND reference = ?", userID, direction, reference).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) MarkPaymentInitialized(paymentID, reference string, response database.JSONMap) error {
	return r.db.Model(&WalletPaymentTransaction{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"reference":        reference,
			"gateway_response": response,
			"status":           PaymentInitialized,
		}).Error
}

func (r *repository) MarkWithdrawalPending(paymentID, recipientCode, reference string, response database.JSONMap) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&WalletPaymentTransaction{}).
			Where("id = ?", paymentID).
			Updates(map[string]interface{}{
				"recipient_code":   recipientCode,
				"reference":        reference,
				"status":           PaymentPending,
				"gateway_response": response,
			}).Error
		if err != nil {
			return err
		}

		return tx.Model(&WalletTransaction{}).
			Where("wallet_payment_transaction_id = ? AND type = ?", paymentID, TypeWithdrawal).
			Updates(map[string]interface{}{
				"reference": reference,
				"metadata":  database.JSONMap{"recipient_code": recipientCode},
			}).Error
	})
}

func (r *repository) MarkPaymentFailed(paymentID string, reference *string, response database.JSONMap) error {
	updates := map[string]interface{}{
		"status":           PaymentFailed,
		"gateway_response": response,
	}
	if reference != nil {
		updates["reference"] = *reference
	}

	return r.db.Model(&WalletPaymentTransaction{}).
		Where("id = ? AND status NOT IN ?", paymentID, []PaymentStatus{PaymentSuccess, PaymentFailed}).
		Updates(updates).Error
}

// InitiateWithdrawal reserves the funds before the external transfer is
// attempted: lock user row, verify balance, debit with a PENDING ledger row
// and create the INITIALIZED payment, all in one transaction.
func (r *repository) InitiateWithdrawal(p *WalletPaymentTransaction, description string) (*WalletTransaction, error) {
	var ledgerRow *WalletTransaction

	err := r.db.Transaction(func(tx *gorm.DB) error {
		usr, err := lockUser(tx, p.UserID.String())
		if err != nil {
			return err
		}

		before := usr.WalletBalance
		after := before.Sub(p.Amount)

		if after.IsNegative() {
			return ErrInsufficientFunds
		}

		if err := tx.Create(p).Error; err != nil {
			return err
		}

		if err := tx.Model(&user.User{}).Where("id = ?", usr.ID).
			Update("wallet_balance", after).Error; err != nil {
			return err
		}

		ledgerRow = &WalletTransaction{
			UserID:                     usr.ID,
			WalletPaymentTransactionID: &p.ID,
			Type:                       TypeWithdrawal,
			Direction:                  DirectionDebit,
			Amount:                     p.Amount,
			BalanceBefore:              before,
			BalanceAfter:               after,
			Status:                     LedgerPending,
			Description:                description,
		}
		return tx.Create(ledgerRow).Error
	})
	if err != nil {
		return nil, err
	}
	return ledgerRow, nil
}

func (r *repository) ApplyDepositSuccess(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error) {
	var result *WalletPaymentTransaction
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}

		// the locked payment row is the replay guard: the credit and the
		// SUCCESS status commit together, so a replay sees SUCCESS and stops
		if p.Status == PaymentSuccess {
			result = p
			return nil
		}

		if _, err := applyDelta(tx, p.UserID.String(), p.Amount, LedgerEntry{
			Type:        TypeDeposit,
			PaymentID:   &p.ID,
			Reference:   p.Reference,
			Description: "Wallet deposit successful.",
		}); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":             PaymentSuccess,
			"last_webhook_event": event,
			"processed_at":       now,
			"gateway_response":   payload,
		}
		if err := tx.Model(p).Updates(updates).Error; err != nil {
			return err
		}

		result = p
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (r *repository) ApplyDepositFailure(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error) {
	var result *WalletPaymentTransaction
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}

		if p.Terminal() {
			result = p
			return nil
		}

		updates := map[string]interface{}{
			"status":             PaymentFailed,
			"last_webhook_event": event,
			"gateway_response":   payload,
		}
		if err := tx.Model(p).Updates(updates).Error; err != nil {
			return err
		}

		result = p
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func (r *repository) ApplyWithdrawalSuccess(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error) {
	var result *WalletPaymentTransaction
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}

		if p.Status == PaymentSuccess {
			result = p
			return nil
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":             PaymentSuccess,
			"last_webhook_event": event,
			"processed_at":       now,
			"gateway_response":   payload,
		}
		if err := tx.Model(p).Updates(updates).Error; err != nil {
			return err
		}

		// the pre-debit row moves PENDING -> SUCCESS; money already left the wallet
		err = tx.Model(&WalletTransaction{}).
			Where("wallet_payment_transaction_id = ? AND type = ? AND status <> ?",
				p.ID, TypeWithdrawal, LedgerSuccess).
			Updates(map[string]interface{}{
				"status":      LedgerSuccess,
				"reference":   p.Reference,
				"description": "Wallet withdrawal successful.",
			}).Error
		if err != nil {
			return err
		}

		result = p
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// ApplyWithdrawalFailure marks the payment FAILED and reverses the pre-debit
// exactly once. A replay finds the debit row already REVERSED and only
// performs the terminal-status write.
func (r *repository) ApplyWithdrawalFailure(paymentID string, payload database.JSONMap, event *string) (*WalletPaymentTransaction, bool, error) {
	var result *WalletPaymentTransaction
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}

		if p.Terminal() {
			result = p
			return nil
		}

		var debitRow WalletTransaction
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("wallet_payment_transaction_id = ? AND type = ?", p.ID, TypeWithdrawal).
			Order("created_at desc").
			First(&debitRow).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil && debitRow.Status != LedgerReversed {
			if err := tx.Model(&debitRow).Updates(map[string]interface{}{
				"status":      LedgerReversed,
				"description": "Wallet withdrawal reversed after failure.",
			}).Error; err != nil {
				return err
			}

			if _, err := applyDelta(tx, p.UserID.String(), p.Amount, LedgerEntry{
				Type:        TypeWithdrawalReversal,
				PaymentID:   &p.ID,
				Reference:   p.Reference,
				Description: "Wallet withdrawal reversal credit.",
				Metadata:    database.JSONMap{"reason": "withdrawal_failed"},
			}); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":             PaymentFailed,
			"last_webhook_event": event,
			"processed_at":       now,
			"gateway_response":   payload,
		}
		if err := tx.Model(p).Updates(updates).Error; err != nil {
			return err
		}

		result = p
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

func lockPayment(tx *gorm.DB, paymentID string) (*WalletPaymentTransaction, error) {
	var p WalletPaymentTransaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListTransactions(userID string, limit, offset int) ([]WalletTransaction, error) {
	var txs []WalletTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&txs).Error
	return txs, err
}

func (r *repository) CountTransactions(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&WalletTransaction{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
