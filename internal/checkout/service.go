package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/cart"
	"github.com/grovia/settlement/internal/notification"
	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/id"
	"github.com/grovia/settlement/pkg/logger"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// RewardEngine hands a freshly paid order to the referral payouts. Implemented
// by the referral service; declared here to keep the dependency one-way.
type RewardEngine interface {
	ApplyRewardsForPaidOrder(ctx context.Context, orderOwnerID string, orderID string)
}

type Service struct {
	cfg      config.Config
	repo     Repository
	carts    cart.Repository
	gateway  paystack.Gateway
	rewards  RewardEngine
	notifier notification.Notifier
	refs     *id.Generator
}

func NewService(cfg config.Config, repo Repository, carts cart.Repository, gateway paystack.Gateway, rewards RewardEngine, notifier notification.Notifier, refs *id.Generator) *Service {
	return &Service{
		cfg:      cfg,
		repo:     repo,
		carts:    carts,
		gateway:  gateway,
		rewards:  rewards,
		notifier: notifier,
		refs:     refs,
	}
}

type DeliveryDetails struct {
	Address string
	Phone   string
	Note    *string
}

type CheckoutResult struct {
	Reused           bool
	Order            *Order
	Payment          *PaymentTransaction
	AuthorizationURL string
	AccessCode       string
}

// Checkout places an order from the user's cart snapshot. Replays with the
// same idempotency key return the original order untouched, whatever the cart
// holds now.
func (s *Service) Checkout(ctx context.Context, usr *user.User, method PaymentMethod, idempotencyKey string, delivery DeliveryDetails) (*CheckoutResult, error) {
	if method != MethodWallet && method != MethodGateway {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	if existing, err := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), method, idempotencyKey); err == nil {
		return s.reused(existing)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	items, err := s.carts.ListItems(usr.ID.String())
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	summary := cart.Summarize(items)
	order := s.buildOrder(usr, method, summary, delivery)
	orderItems := buildOrderItems(items)
	reference := s.refs.PaymentReference(order.OrderNumber)

	payment := &PaymentTransaction{
		UserID:         usr.ID,
		Method:         method,
		IdempotencyKey: idempotencyKey,
		Reference:      &reference,
		Amount:         order.Total,
		Currency:       s.cfg.Currency,
		Status:         PaymentInitialized,
	}

	if method == MethodWallet {
		return s.walletCheckout(ctx, usr, order, orderItems, payment)
	}
	return s.gatewayCheckout(ctx, usr, order, orderItems, payment)
}

func (s *Service) walletCheckout(ctx context.Context, usr *user.User, order *Order, items []OrderItem, payment *PaymentTransaction) (*CheckoutResult, error) {
	order.Status = OrderInTransit
	order.PaymentStatus = OrderPaymentPaid
	payment.Status = PaymentSuccess

	if err := s.repo.CreateWalletOrder(order, items, payment); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), MethodWallet, payment.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			return s.reused(existing)
		}
		return nil, err
	}

	if err := s.carts.Clear(usr.ID.String()); err != nil {
		logger.Error("Failed to clear cart after checkout", logger.Fields{
			"user_id":       usr.ID.String(),
			"order_id":      order.ID.String(),
			logger.ErrorKey: err.Error(),
		})
	}

	s.afterOrderPaid(ctx, order)

	return &CheckoutResult{Reused: false, Order: order, Payment: payment}, nil
}

func (s *Service) gatewayCheckout(ctx context.Context, usr *user.User, order *Order, items []OrderItem, payment *PaymentTransaction) (*CheckoutResult, error) {
	order.Status = OrderAwaitingPayment
	order.PaymentStatus = OrderPaymentPending

	if err := s.repo.CreateGatewayOrder(order, items, payment); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.FindPaymentByIdempotencyKey(usr.ID.String(), MethodGateway, payment.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			return s.reused(existing)
		}
		return nil, err
	}

	// network I/O happens after the transaction; the order stays
	// AWAITING_PAYMENT on failure and the cart is kept for a retry
	init, err := s.gateway.InitializeTransaction(ctx, usr.Email, *payment.Reference, order.Total, map[string]interface{}{
		"payment_transaction_id": payment.ID.String(),
		"order_id":               order.ID.String(),
		"user_id":                usr.ID.String(),
		"type":                   "order_payment",
	})
	if err != nil {
		event := "initialize_failed"
		if _, markErr := s.repo.MarkPaymentFailed(payment.ID.String(), database.JSONMap{"message": err.Error()}, &event); markErr != nil {
			logger.Error("Failed to mark order payment failed", logger.Fields{
				"payment_id":    payment.ID.String(),
				logger.ErrorKey: markErr.Error(),
			})
		}
		return nil, err
	}

	if err := s.repo.MarkPaymentInitialized(payment.ID.String(), *payment.Reference, init.Raw); err != nil {
		return nil, err
	}
	payment.GatewayResponse = init.Raw

	if err := s.carts.Clear(usr.ID.String()); err != nil {
		logger.Error("Failed to clear cart after checkout", logger.Fields{
			"user_id":       usr.ID.String(),
			"order_id":      order.ID.String(),
			logger.ErrorKey: err.Error(),
		})
	}

	return &CheckoutResult{
		Reused:           false,
		Order:            order,
		Payment:          payment,
		AuthorizationURL: init.AuthorizationURL,
		AccessCode:       init.AccessCode,
	}, nil
}

// VerifyPayment runs the gateway-side confirmation a client can trigger while
// waiting for the webhook.
func (s *Service) VerifyPayment(ctx context.Context, usr *user.User, reference string) (*PaymentTransaction, *Order, error) {
	payment, err := s.repo.FindPaymentByReference(reference)
	if err != nil {
		return nil, nil, err
	}
	if payment.UserID != usr.ID {
		return nil, nil, gorm.ErrRecordNotFound
	}

	verified, err := s.gateway.VerifyTransaction(ctx, reference)
	if err != nil {
		return nil, nil, err
	}

	event := "manual_verify"
	if verified.Status == "success" {
		return s.ApplyPaymentSuccess(ctx, payment.ID.String(), verified.Raw, &event)
	}
	return s.ApplyPaymentFailure(ctx, payment.ID.String(), verified.Raw, &event)
}

func (s *Service) ApplyPaymentSuccess(ctx context.Context, paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, error) {
	payment, order, changed, err := s.repo.ApplyPaymentSuccess(paymentID, payload, event)
	if err != nil {
		return nil, nil, err
	}

	if changed {
		s.afterOrderPaid(ctx, order)
	}
	return payment, order, nil
}

func (s *Service) ApplyPaymentFailure(ctx context.Context, paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, error) {
	payment, order, changed, err := s.repo.ApplyPaymentFailure(paymentID, payload, event)
	if err != nil {
		return nil, nil, err
	}

	if changed {
		s.notifier.SendAccountActivity(ctx, order.UserID.String(),
			"Order payment failed",
			fmt.Sprintf("Payment for order %s could not be completed. You can try checking out again.", order.OrderNumber),
			map[string]interface{}{
				"order_id":     order.ID.String(),
				"order_number": order.OrderNumber,
				"status":       OrderPaymentFailed,
			},
			[]string{notification.ChannelInApp, notification.ChannelPush},
		)
	}
	return payment, order, nil
}

func (s *Service) FindOrder(orderID string) (*Order, error) {
	return s.repo.FindOrderByID(orderID)
}

// afterOrderPaid runs the post-commit effects: referral payouts and the owner
// notification, both outside any lock.
func (s *Service) afterOrderPaid(ctx context.Context, order *Order) {
	s.rewards.ApplyRewardsForPaidOrder(ctx, order.UserID.String(), order.ID.String())

	s.notifier.SendAccountActivity(ctx, order.UserID.String(),
		"Order confirmed",
		fmt.Sprintf("Your order %s has been paid and is on its way.", order.OrderNumber),
		map[string]interface{}{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"total":        order.Total.StringFixed(2),
			"status":       order.Status,
		},
		[]string{notification.ChannelInApp, notification.ChannelPush, notification.ChannelEmail},
	)
}

func (s *Service) buildOrder(usr *user.User, method PaymentMethod, summary cart.Summary, delivery DeliveryDetails) *Order {
	affiliate := s.cfg.AffiliateFee

	total := summary.Subtotal.Add(s.cfg.DeliveryFee).Add(s.cfg.ServiceFee).Sub(affiliate)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return &Order{
		OrderNumber:       s.refs.OrderNumber(),
		UserID:            usr.ID,
		PaymentMethod:     method,
		Subtotal:          summary.Subtotal,
		DeliveryFee:       s.cfg.DeliveryFee,
		ServiceFee:        s.cfg.ServiceFee,
		AffiliateDiscount: affiliate,
		Total:             total,
		DeliveryAddress:   delivery.Address,
		DeliveryPhone:     delivery.Phone,
		DeliveryNote:      delivery.Note,
	}
}

func buildOrderItems(items []cart.CartItem) []OrderItem {
	out := make([]OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItem{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			ImageURL:     item.ImageURL,
			UnitPrice:    item.UnitPrice,
			UnitDiscount: item.UnitDiscount,
			Quantity:     item.Quantity,
			LineTotal:    item.LineTotal(),
		})
	}
	return out
}

func (s *Service) reused(payment *PaymentTransaction) (*CheckoutResult, error) {
	order, err := s.repo.FindOrderByID(payment.OrderID.String())
	if err != nil {
		return nil, err
	}

	result := &CheckoutResult{Reused: true, Order: order, Payment: payment}
	if payment.Method == MethodGateway {
		data, _ := payment.GatewayResponse["data"].(map[string]interface{})
		result.AuthorizationURL, _ = data["authorization_url"].(string)
		result.AccessCode, _ = data["access_code"].(string)
	}
	return result, nil
}
