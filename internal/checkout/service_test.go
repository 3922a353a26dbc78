package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/cart"
	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/id"
)

type fakeRepo struct {
	balances map[string]decimal.Decimal
	payments map[string]*PaymentTransaction
	orders   map[string]*Order
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		balances: map[string]decimal.Decimal{},
		payments: map[string]*PaymentTransaction{},
		orders:   map[string]*Order{},
	}
}

func (f *fakeRepo) FindPaymentByIdempotencyKey(userID string, method PaymentMethod, key string) (*PaymentTransaction, error) {
	for _, p := range f.payments {
		if p.UserID.String() == userID && p.Method == method && p.IdempotencyKey == key {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindPaymentByReference(reference string) (*PaymentTransaction, error) {
	for _, p := range f.payments {
		if p.Reference != nil && *p.Reference == reference {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindOrderByID(orderID string) (*Order, error) {
	if o, ok := f.orders[orderID]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) duplicate(p *PaymentTransaction) bool {
	for _, existing := range f.payments {
		if existing.UserID == p.UserID && existing.Method == p.Method &&
			existing.IdempotencyKey == p.IdempotencyKey {
			return true
		}
	}
	return false
}

func (f *fakeRepo) store(order *Order, items []OrderItem, payment *PaymentTransaction) {
	order.ID = uuid.New()
	for i := range items {
		items[i].OrderID = order.ID
	}
	order.Items = items
	payment.ID = uuid.New()
	payment.OrderID = order.ID
	f.orders[order.ID.String()] = order
	f.payments[payment.ID.String()] = payment
}

func (f *fakeRepo) CreateWalletOrder(order *Order, items []OrderItem, payment *PaymentTransaction) error {
	if f.duplicate(payment) {
		return gorm.ErrDuplicatedKey
	}
	balance := f.balances[order.UserID.String()]
	if balance.LessThan(order.Total) {
		return wallet.ErrInsufficientFunds
	}
	f.balances[order.UserID.String()] = balance.Sub(order.Total)
	f.store(order, items, payment)
	return nil
}

func (f *fakeRepo) CreateGatewayOrder(order *Order, items []OrderItem, payment *PaymentTransaction) error {
	if f.duplicate(payment) {
		return gorm.ErrDuplicatedKey
	}
	f.store(order, items, payment)
	return nil
}

func (f *fakeRepo) MarkPaymentInitialized(paymentID, reference string, response database.JSONMap) error {
	p := f.payments[paymentID]
	p.Reference = &reference
	p.GatewayResponse = response
	p.Status = PaymentInitialized
	return nil
}

func (f *fakeRepo) MarkPaymentFailed(paymentID string, response database.JSONMap, event *string) (bool, error) {
	p := f.payments[paymentID]
	if p.Terminal() {
		return false, nil
	}
	p.Status = PaymentFailed
	p.GatewayResponse = response
	p.LastWebhookEvent = event
	return true, nil
}

func (f *fakeRepo) ApplyPaymentSuccess(paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, bool, error) {
	p := f.payments[paymentID]
	o := f.orders[p.OrderID.String()]
	if p.Status == PaymentSuccess {
		return p, o, false, nil
	}
	p.Status = PaymentSuccess
	p.LastWebhookEvent = event
	p.GatewayResponse = payload
	o.PaymentStatus = OrderPaymentPaid
	if o.Status == OrderAwaitingPayment {
		o.Status = OrderInTransit
	}
	return p, o, true, nil
}

func (f *fakeRepo) ApplyPaymentFailure(paymentID string, payload database.JSONMap, event *string) (*PaymentTransaction, *Order, bool, error) {
	p := f.payments[paymentID]
	o := f.orders[p.OrderID.String()]
	if p.Terminal() {
		return p, o, false, nil
	}
	p.Status = PaymentFailed
	p.LastWebhookEvent = event
	p.GatewayResponse = payload
	if o.PaymentStatus != OrderPaymentPaid {
		o.PaymentStatus = OrderPaymentFailed
	}
	return p, o, true, nil
}

func (f *fakeRepo) CountPaidOrders(userID string) (int64, error) {
	var count int64
	for _, o := range f.orders {
		if o.UserID.String() == userID && o.PaymentStatus == OrderPaymentPaid {
			count++
		}
	}
	return count, nil
}

type fakeCartRepo struct {
	items   map[string][]cart.CartItem
	cleared int
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{items: map[string][]cart.CartItem{}}
}

func (f *fakeCartRepo) ListItems(userID string) ([]cart.CartItem, error) {
	return f.items[userID], nil
}

func (f *fakeCartRepo) Upsert(item *cart.CartItem) error {
	f.items[item.UserID.String()] = append(f.items[item.UserID.String()], *item)
	return nil
}

func (f *fakeCartRepo) Clear(userID string) error {
	delete(f.items, userID)
	f.cleared++
	return nil
}

type fakeGateway struct {
	initCalls int
	initErr   error
	verify    *paystack.VerifiedTransaction
}

func (g *fakeGateway) InitializeTransaction(ctx context.Context, email, reference string, amount decimal.Decimal, metadata map[string]interface{}) (*paystack.InitializedTransaction, error) {
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &paystack.InitializedTransaction{
		AuthorizationURL: "https://checkout.example/" + reference,
		AccessCode:       "AC_" + reference,
		Reference:        reference,
		Raw: map[string]interface{}{
			"data": map[string]interface{}{
				"authorization_url": "https://checkout.example/" + reference,
				"access_code":       "AC_" + reference,
			},
		},
	}, nil
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (*paystack.VerifiedTransaction, error) {
	return g.verify, nil
}

func (g *fakeGateway) ListBanks(ctx context.Context) ([]paystack.Bank, error) { return nil, nil }

func (g *fakeGateway) ResolveBankAccount(ctx context.Context, accountNumber, bankCode string) (*paystack.ResolvedAccount, error) {
	return nil, nil
}

func (g *fakeGateway) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	return "", nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, recipientCode, reference string, amount decimal.Decimal, reason string) (map[string]interface{}, error) {
	return nil, nil
}

func (g *fakeGateway) VerifyWebhookSignature(payload []byte, signature string) bool { return true }

type fakeRewards struct {
	calls []string
}

func (r *fakeRewards) ApplyRewardsForPaidOrder(ctx context.Context, orderOwnerID string, orderID string) {
	r.calls = append(r.calls, orderID)
}

type fakeNotifier struct {
	titles []string
}

func (n *fakeNotifier) SendAccountActivity(ctx context.Context, userID, title, message string, data map[string]interface{}, channels []string) {
	n.titles = append(n.titles, title)
}

type fixture struct {
	repo     *fakeRepo
	carts    *fakeCartRepo
	gateway  *fakeGateway
	rewards  *fakeRewards
	notifier *fakeNotifier
	service  *Service
	user     *user.User
}

func newFixture(cfg config.Config, balance int64) *fixture {
	repo := newFakeRepo()
	carts := newFakeCartRepo()
	gateway := &fakeGateway{}
	rewards := &fakeRewards{}
	notifier := &fakeNotifier{}

	usr := &user.User{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}
	repo.balances[usr.ID.String()] = decimal.NewFromInt(balance)

	return &fixture{
		repo:     repo,
		carts:    carts,
		gateway:  gateway,
		rewards:  rewards,
		notifier: notifier,
		service:  NewService(cfg, repo, carts, gateway, rewards, notifier, id.NewGenerator()),
		user:     usr,
	}
}

func (fx *fixture) fillCart(t *testing.T, unitPrice int64, quantity int) {
	t.Helper()
	err := fx.carts.Upsert(&cart.CartItem{
		UserID:      fx.user.ID,
		ProductID:   uuid.New(),
		ProductName: "Jollof rice bundle",
		UnitPrice:   decimal.NewFromInt(unitPrice),
		Quantity:    quantity,
	})
	require.NoError(t, err)
}

func zeroFeeConfig() config.Config {
	return config.Config{Currency: "NGN"}
}

var delivery = DeliveryDetails{Address: "12 Allen Avenue, Ikeja", Phone: "+2348012345678"}

func TestCheckout_WalletPath(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 10000)
	fx.fillCart(t, 2800, 2) // subtotal 5600

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	assert.False(t, result.Reused)
	assert.Equal(t, "5600.00", result.Order.Total.StringFixed(2))
	assert.Equal(t, OrderPaymentPaid, result.Order.PaymentStatus)
	assert.Equal(t, OrderInTransit, result.Order.Status)
	assert.Equal(t, PaymentSuccess, result.Payment.Status)
	assert.Contains(t, result.Order.OrderNumber, "ORD-")
	require.NotNil(t, result.Payment.Reference)
	assert.Contains(t, *result.Payment.Reference, "GRV-"+result.Order.OrderNumber)

	assert.Equal(t, "4400.00", fx.repo.balances[fx.user.ID.String()].StringFixed(2))
	assert.Empty(t, fx.carts.items[fx.user.ID.String()], "cart cleared after commit")
	assert.Equal(t, []string{result.Order.ID.String()}, fx.rewards.calls)
	assert.Contains(t, fx.notifier.titles, "Order confirmed")
}

func TestCheckout_EmptyCart(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 10000)

	_, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_UnsupportedMethod(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 10000)

	_, err := fx.service.Checkout(context.Background(), fx.user, PaymentMethod("cash"), "key-1", delivery)
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
}

func TestCheckout_WalletInsufficientFunds(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 1000)
	fx.fillCart(t, 2800, 2)

	_, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)

	assert.Equal(t, "1000", fx.repo.balances[fx.user.ID.String()].String())
	assert.NotEmpty(t, fx.carts.items[fx.user.ID.String()], "cart kept for a retry")
	assert.Empty(t, fx.rewards.calls)
}

func TestCheckout_ReplayReturnsOriginalOrder(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 20000)
	fx.fillCart(t, 2800, 2)

	first, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	// cart refilled between requests; the replay must ignore it
	fx.fillCart(t, 9999, 1)

	second, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Payment.Reference, second.Payment.Reference)
	assert.Equal(t, "14400.00", fx.repo.balances[fx.user.ID.String()].StringFixed(2), "debited once")
	assert.Equal(t, 1, fx.carts.cleared, "cart cleared only once")
	assert.Len(t, fx.rewards.calls, 1)
}

func TestCheckout_AppliesFees(t *testing.T) {
	cfg := config.Config{
		Currency:    "NGN",
		DeliveryFee: decimal.NewFromInt(500),
		ServiceFee:  decimal.NewFromInt(100),
	}
	fx := newFixture(cfg, 10000)
	fx.fillCart(t, 2800, 2)

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	assert.Equal(t, "6200.00", result.Order.Total.StringFixed(2))
	assert.Equal(t, "500.00", result.Order.DeliveryFee.StringFixed(2))
	assert.Equal(t, "100.00", result.Order.ServiceFee.StringFixed(2))
}

func TestCheckout_AffiliateDiscountAppliesToAllOrders(t *testing.T) {
	cfg := config.Config{Currency: "NGN", AffiliateFee: decimal.NewFromInt(100)}
	fx := newFixture(cfg, 10000)
	fx.fillCart(t, 2800, 2) // subtotal 5600

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	assert.Equal(t, "5500.00", result.Order.Total.StringFixed(2))
	assert.Equal(t, "100.00", result.Order.AffiliateDiscount.StringFixed(2))
}

func TestCheckout_AffiliateDiscountFloorsAtZero(t *testing.T) {
	cfg := config.Config{Currency: "NGN", AffiliateFee: decimal.NewFromInt(10000)}
	fx := newFixture(cfg, 10000)
	fx.fillCart(t, 2800, 2)

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	assert.Equal(t, "0.00", result.Order.Total.StringFixed(2))
}

func TestCheckout_GatewayPath(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 0)
	fx.fillCart(t, 2800, 2)

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodGateway, "key-1", delivery)
	require.NoError(t, err)

	assert.Equal(t, OrderAwaitingPayment, result.Order.Status)
	assert.Equal(t, OrderPaymentPending, result.Order.PaymentStatus)
	assert.Equal(t, PaymentInitialized, result.Payment.Status)
	assert.NotEmpty(t, result.AuthorizationURL)
	assert.Empty(t, fx.carts.items[fx.user.ID.String()], "cart cleared after session created")
	assert.Empty(t, fx.rewards.calls, "no rewards before the payment lands")
}

func TestCheckout_GatewayInitFailureKeepsCart(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 0)
	fx.gateway.initErr = paystack.ErrUnavailable
	fx.fillCart(t, 2800, 2)

	_, err := fx.service.Checkout(context.Background(), fx.user, MethodGateway, "key-1", delivery)
	assert.ErrorIs(t, err, paystack.ErrUnavailable)

	assert.NotEmpty(t, fx.carts.items[fx.user.ID.String()], "cart kept for re-checkout")

	payment, findErr := fx.repo.FindPaymentByIdempotencyKey(fx.user.ID.String(), MethodGateway, "key-1")
	require.NoError(t, findErr)
	assert.Equal(t, PaymentFailed, payment.Status)

	order := fx.repo.orders[payment.OrderID.String()]
	assert.Equal(t, OrderAwaitingPayment, order.Status, "order records the intent")
}

func TestApplyPaymentSuccess_ReplaySafe(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 0)
	fx.fillCart(t, 2800, 2)

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodGateway, "key-1", delivery)
	require.NoError(t, err)

	event := "charge.success"
	_, order, err := fx.service.ApplyPaymentSuccess(context.Background(), result.Payment.ID.String(), database.JSONMap{}, &event)
	require.NoError(t, err)
	assert.Equal(t, OrderPaymentPaid, order.PaymentStatus)
	assert.Equal(t, OrderInTransit, order.Status)

	_, _, err = fx.service.ApplyPaymentSuccess(context.Background(), result.Payment.ID.String(), database.JSONMap{}, &event)
	require.NoError(t, err)

	assert.Len(t, fx.rewards.calls, 1, "replay awards nothing new")
}

func TestApplyPaymentFailure_NeverOverridesPaid(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 0)
	fx.fillCart(t, 2800, 2)

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodGateway, "key-1", delivery)
	require.NoError(t, err)

	// order got paid independently before the stale failure arrives
	fx.repo.orders[result.Order.ID.String()].PaymentStatus = OrderPaymentPaid

	event := "charge.failed"
	_, order, err := fx.service.ApplyPaymentFailure(context.Background(), result.Payment.ID.String(), database.JSONMap{}, &event)
	require.NoError(t, err)

	assert.Equal(t, OrderPaymentPaid, order.PaymentStatus)
}

func TestVerifyPayment_RejectsForeignReference(t *testing.T) {
	fx := newFixture(zeroFeeConfig(), 10000)
	fx.fillCart(t, 2800, 2)

	result, err := fx.service.Checkout(context.Background(), fx.user, MethodWallet, "key-1", delivery)
	require.NoError(t, err)

	stranger := &user.User{ID: uuid.New()}
	_, _, err = fx.service.VerifyPayment(context.Background(), stranger, *result.Payment.Reference)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
