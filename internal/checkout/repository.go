package checkout

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/database"
)

type Repository interface {
	FindPaymentByIdempotencyKey(userID string, method PaymentMethod, key string) (*PaymentTransaction, error)
	FindPaymentByReference(reference string) (*PaymentTransaction, error)
	FindOrderByID(orderID string) (*Order, error)

	// CreateWalletOrder is the wallet-path atomic unit: lock the user row,
	// verify the balance covers the total, create the order, its items, the
	// debit ledger row and a terminal SUCCESS payment in one transaction.
	CreateWalletOrder(order *Order, items []OrderItem, payment *PaymentTransaction) error

	// CreateGatewayOrder persists the order, items and an INITIALIZED payment.
	// The gateway call happens outside, after this commits.
	CreateGatewayOrder(order *Order, items []OrderItem, payment *PaymentTransaction) error

	MarkPaymentInitialized(paymentID, reference string, response database.JSONMap) error
	MarkPaymentFailed(paymentID string, response database.JSONMap, event *string) (bool, error)

	// ApplyPaymentSuccess settles a gateway payment: payment SUCCESS, order
	// PAID, AWAITING_PAYMENT advanced to IN_TRANSIT. Replays are no-ops.
	ApplyPaymentSuccess(paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, bool, error)

	// ApplyPaymentFailure marks the payment FAILED and the order's payment
	// status FAILED unless the order already got paid through another path.
	ApplyPaymentFailure(paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, bool, error)

	CountPaidOrders(userID string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindPaymentByIdempotencyKey(userID string, method PaymentMethod, key string) (*PaymentTransaction, error) {
	var p PaymentTransaction
	err := r.db.Where("user_id = ? AND method = ? AND idempotency_key = ?", userID, method, key).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindPaymentByReference(reference string) (*PaymentTransaction, error) {
	var p PaymentTransaction
	if err := r.db.Where("reference = ?", reference).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindOrderByID(orderID string) (*Order, error) {
	var order Order
	err := r.db.Preload("Items").Where("id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateWalletOrder(order *Order, items []OrderItem, payment *PaymentTransaction) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		payment.OrderID = order.ID
		if err := tx.Create(payment).Error; err != nil {
			return err
		}

		// balance check happens inside the mutator, under the user row lock
		_, err := wallet.ApplyDeltaTx(tx, order.UserID.String(), order.Total.Neg(), wallet.LedgerEntry{
			Type:        wallet.TypeOrderPayment,
			Reference:   payment.Reference,
			Description: "Order payment from wallet.",
			Metadata: database.JSONMap{
				"order_id":     order.ID.String(),
				"order_number": order.OrderNumber,
			},
		})
		return err
	})
}

func (r *repository) CreateGatewayOrder(order *Order, items []OrderItem, payment *PaymentTransaction) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
		}
		if len(items) > 0 {
			if err := tx.Create(&items).Error; err != nil {
				return err
			}
		}

		payment.OrderID = order.ID
		return tx.Create(payment).Error
	})
}

func (r *repository) MarkPaymentInitialized(paymentID, reference string, response database.JSONMap) error {
	return r.db.Model(&PaymentTransaction{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"reference":        reference,
			"gateway_response": response,
			"status":           PaymentInitialized,
		}).Error
}

func (r *repository) MarkPaymentFailed(paymentID string, response database.JSONMap, event *string) (bool, error) {
	result := r.db.Model(&PaymentTransaction{}).
		Where("id = ? AND status = ?", paymentID, PaymentInitialized).
		Updates(map[string]interface{}{
			"status":             PaymentFailed,
			"gateway_response":   response,
			"last_webhook_event": event,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *repository) ApplyPaymentSuccess(paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, bool, error) {
	var (
		payment *PaymentTransaction
		order   *Order
	)
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}

		o, err := lockOrder(tx, p.OrderID.String())
		if err != nil {
			return err
		}

		if p.Status == PaymentSuccess {
			payment, order = p, o
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(p).Updates(map[string]interface{}{
			"status":             PaymentSuccess,
			"last_webhook_event": event,
			"processed_at":       now,
			"gateway_response":   payload,
		}).Error; err != nil {
			return err
		}

		orderUpdates := map[string]interface{}{"payment_status": OrderPaymentPaid}
		if o.Status == OrderAwaitingPayment {
			orderUpdates["status"] = OrderInTransit
			o.Status = OrderInTransit
		}
		if err := tx.Model(o).Updates(orderUpdates).Error; err != nil {
			return err
		}
		o.PaymentStatus = OrderPaymentPaid

		payment, order = p, o
		changed = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return payment, order, changed, nil
}

func (r *repository) ApplyPaymentFailure(paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, bool, error) {
	var (
		payment *PaymentTransaction
		order   *Order
	)
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		p, err := lockPayment(tx, paymentID)
		if err != nil {
			return err
		}

		o, err := lockOrder(tx, p.OrderID.String())
		if err != nil {
			return err
		}

		if p.Terminal() {
			payment, order = p, o
			return nil
		}

		if err := tx.Model(p).Updates(map[string]interface{}{
			"status":             PaymentFailed,
			"last_webhook_event": event,
			"gateway_response":   payload,
		}).Error; err != nil {
			return err
		}

		// a late failure never overrides a payment that already succeeded
		if o.PaymentStatus != OrderPaymentPaid {
			if err := tx.Model(o).Update("payment_status", OrderPaymentFailed).Error; err != nil {
				return err
			}
			o.PaymentStatus = OrderPaymentFailed
		}

		payment, order = p, o
		changed = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return payment, order, changed, nil
}

func (r *repository) CountPaidOrders(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&Order{}).
		Where("user_id = ? AND payment_status = ?", userID, OrderPaymentPaid).
		Count(&count).Error
	return count, err
}

func lockPayment(tx *gorm.DB, paymentID string) (*PaymentTransaction, error) {
	var p PaymentTransaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", paymentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func lockOrder(tx *gorm.DB, orderID string) (*Order, error) {
	var o Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", orderID).
		First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}
