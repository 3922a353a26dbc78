package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/checkout"
	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/config"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/id"
)

type stubGateway struct {
	paystack.Gateway
	sigValid bool
}

func (g *stubGateway) VerifyWebhookSignature(payload []byte, signature string) bool {
	return g.sigValid
}

type stubCheckoutRepo struct {
	checkout.Repository
	payment   *checkout.PaymentTransaction
	order     *checkout.Order
	lookups   int
	successes int
	failures  int
}

func (r *stubCheckoutRepo) FindPaymentByReference(reference string) (*checkout.PaymentTransaction, error) {
	r.lookups++
	if r.payment != nil && r.payment.Reference != nil && *r.payment.Reference == reference {
		return r.payment, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubCheckoutRepo) ApplyPaymentSuccess(paymentID string, payload database.JSONMap, event *string) (*checkout.PaymentTransaction, *checkout.Order, bool, error) {
	r.successes++
	return r.payment, r.order, true, nil
}

func (r *stubCheckoutRepo) ApplyPaymentFailure(paymentID string, payload database.JSONMap, event *string) (*checkout.PaymentTransaction, *checkout.Order, bool, error) {
	r.failures++
	return r.payment, r.order, true, nil
}

type stubWalletRepo struct {
	wallet.Repository
	payment   *wallet.WalletPaymentTransaction
	lookups   int
	reversals int
	successes int
}

func (r *stubWalletRepo) FindPaymentByReference(reference string) (*wallet.WalletPaymentTransaction, error) {
	r.lookups++
	if r.payment != nil && r.payment.Reference != nil && *r.payment.Reference == reference {
		return r.payment, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubWalletRepo) ApplyWithdrawalSuccess(paymentID string, payload database.JSONMap, event *string) (*wallet.WalletPaymentTransaction, bool, error) {
	r.successes++
	return r.payment, true, nil
}

func (r *stubWalletRepo) ApplyWithdrawalFailure(paymentID string, payload database.JSONMap, event *string) (*wallet.WalletPaymentTransaction, bool, error) {
	r.reversals++
	return r.payment, true, nil
}

type stubRewards struct {
	calls int
}

func (r *stubRewards) ApplyRewardsForPaidOrder(ctx context.Context, orderOwnerID, orderID string) {
	r.calls++
}

type stubNotifier struct {
	titles []string
}

func (n *stubNotifier) SendAccountActivity(ctx context.Context, userID, title, message string, data map[string]interface{}, channels []string) {
	n.titles = append(n.titles, title)
}

func newStubHandler(sigValid bool) (*Handler, *stubCheckoutRepo, *stubWalletRepo) {
	checkoutRepo := &stubCheckoutRepo{}
	walletRepo := &stubWalletRepo{}
	h := NewHandler(&stubGateway{sigValid: sigValid}, nil, nil, checkoutRepo, walletRepo)
	return h, checkoutRepo, walletRepo
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/webhooks/paystack", strings.NewReader(body))
	req.Header.Set("x-paystack-signature", "sig")
	rr := httptest.NewRecorder()
	h.HandlePaystack(rr, req)
	return rr
}

func TestHandlePaystack_BadSignatureHasNoSideEffects(t *testing.T) {
	h, checkoutRepo, walletRepo := newStubHandler(false)

	rr := post(h, `{"event":"charge.success","data":{"reference":"GRV-X","status":"success"}}`)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, checkoutRepo.lookups)
	assert.Zero(t, walletRepo.lookups)
}

func TestHandlePaystack_MalformedBody(t *testing.T) {
	h, _, _ := newStubHandler(true)

	rr := post(h, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlePaystack_UnknownReferenceAcknowledged(t *testing.T) {
	h, checkoutRepo, walletRepo := newStubHandler(true)

	rr := post(h, `{"event":"charge.success","data":{"reference":"GRV-UNKNOWN","status":"success"}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, checkoutRepo.lookups)
	assert.Equal(t, 1, walletRepo.lookups)
}

func newRoutedHandler(checkoutRepo *stubCheckoutRepo, walletRepo *stubWalletRepo) (*Handler, *stubRewards, *stubNotifier) {
	rewards := &stubRewards{}
	notifier := &stubNotifier{}
	refs := id.NewGenerator()

	checkouts := checkout.NewService(config.Config{}, checkoutRepo, nil, nil, rewards, notifier, refs)
	wallets := wallet.NewService(config.Config{}, walletRepo, nil, notifier, refs)

	h := NewHandler(&stubGateway{sigValid: true}, checkouts, wallets, checkoutRepo, walletRepo)
	return h, rewards, notifier
}

func TestHandlePaystack_RoutesChargeSuccessToOrderReconciler(t *testing.T) {
	reference := "GRV-ORD-20260901-AAAAAAAA-ABC123"
	order := &checkout.Order{ID: uuid.New(), UserID: uuid.New(), OrderNumber: "ORD-20260901-AAAAAAAA", Status: checkout.OrderInTransit}
	checkoutRepo := &stubCheckoutRepo{
		payment: &checkout.PaymentTransaction{ID: uuid.New(), UserID: order.UserID, OrderID: order.ID, Reference: &reference},
		order:   order,
	}
	walletRepo := &stubWalletRepo{}
	h, rewards, notifier := newRoutedHandler(checkoutRepo, walletRepo)

	rr := post(h, `{"event":"charge.success","data":{"reference":"`+reference+`","status":"success"}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, checkoutRepo.successes)
	assert.Zero(t, checkoutRepo.failures)
	assert.Equal(t, 1, rewards.calls)
	assert.Contains(t, notifier.titles, "Order confirmed")
	assert.Zero(t, walletRepo.lookups, "order reference never reaches the wallet reconciler")
}

func TestHandlePaystack_RoutesTransferFailureToWithdrawalReversal(t *testing.T) {
	reference := "WWD-20260901123045-BBBBBBBB"
	checkoutRepo := &stubCheckoutRepo{}
	walletRepo := &stubWalletRepo{
		payment: &wallet.WalletPaymentTransaction{
			ID:        uuid.New(),
			UserID:    uuid.New(),
			Direction: wallet.PaymentWithdrawal,
			Reference: &reference,
		},
	}
	h, rewards, notifier := newRoutedHandler(checkoutRepo, walletRepo)

	rr := post(h, `{"event":"transfer.failed","data":{"reference":"`+reference+`","status":"failed"}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, walletRepo.reversals)
	assert.Zero(t, walletRepo.successes)
	assert.Equal(t, 1, checkoutRepo.lookups, "order payments are checked first")
	assert.Zero(t, rewards.calls)
	assert.Contains(t, notifier.titles, "Withdrawal failed")
}

func TestHandlePaystack_MissingReferenceAcknowledged(t *testing.T) {
	h, checkoutRepo, _ := newStubHandler(true)

	rr := post(h, `{"event":"charge.success","data":{}}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, checkoutRepo.lookups, "no lookup without a reference")
}
