package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/checkout"
	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/database"
	"github.com/grovia/settlement/pkg/logger"
)

// Handler receives gateway webhooks and routes each event to the matching
// reconciler: order payments by reference first, then standalone wallet
// deposits and withdrawals.
type Handler struct {
	gateway      paystack.Gateway
	checkouts    *checkout.Service
	wallets      *wallet.Service
	checkoutRepo checkout.Repository
	walletRepo   wallet.Repository
}

func NewHandler(gateway paystack.Gateway, checkouts *checkout.Service, wallets *wallet.Service, checkoutRepo checkout.Repository, walletRepo wallet.Repository) *Handler {
	return &Handler{
		gateway:      gateway,
		checkouts:    checkouts,
		wallets:      wallets,
		checkoutRepo: checkoutRepo,
		walletRepo:   walletRepo,
	}
}

type gatewayEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
	} `json:"data"`
}

// HandlePaystack godoc
// @Summary Paystack webhook receiver
// @Tags webhook
// @Accept json
// @Success 200
// @Router /api/webhooks/paystack [post]
func (h *Handler) HandlePaystack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// signature first: an unsigned payload never reaches any state mutation
	signature := r.Header.Get("x-paystack-signature")
	if !h.gateway.VerifyWebhookSignature(body, signature) {
		logger.Warn("Webhook signature rejected", logger.Fields{"remote_addr": r.RemoteAddr})
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event gatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if event.Data.Reference == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload database.JSONMap
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.dispatch(r, event, payload); err != nil {
		logger.Error("Webhook processing failed", logger.Fields{
			"event":         event.Event,
			"reference":     event.Data.Reference,
			logger.ErrorKey: err.Error(),
		})
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) dispatch(r *http.Request, event gatewayEvent, payload database.JSONMap) error {
	ctx := r.Context()
	reference := event.Data.Reference
	eventTag := event.Event

	if orderPayment, err := h.checkoutRepo.FindPaymentByReference(reference); err == nil {
		if !strings.HasPrefix(event.Event, "charge.") {
			return nil
		}
		if isSuccess(event) {
			_, _, err := h.checkouts.ApplyPaymentSuccess(ctx, orderPayment.ID.String(), payload, &eventTag)
			return err
		}
		_, _, err := h.checkouts.ApplyPaymentFailure(ctx, orderPayment.ID.String(), payload, &eventTag)
		return err
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if walletPayment, err := h.walletRepo.FindPaymentByReference(reference); err == nil {
		switch walletPayment.Direction {
		case wallet.PaymentDeposit:
			if !strings.HasPrefix(event.Event, "charge.") {
				return nil
			}
			if isSuccess(event) {
				_, err := h.wallets.ApplyDepositSuccess(ctx, walletPayment.ID.String(), payload, &eventTag)
				return err
			}
			_, err := h.wallets.ApplyDepositFailure(ctx, walletPayment.ID.String(), payload, &eventTag)
			return err
		case wallet.PaymentWithdrawal:
			if !strings.HasPrefix(event.Event, "transfer.") {
				return nil
			}
			if event.Event == "transfer.success" {
				_, err := h.wallets.ApplyWithdrawalSuccess(ctx, walletPayment.ID.String(), payload, &eventTag)
				return err
			}
			// transfer.failed and transfer.reversed both take the reversal path
			_, err := h.wallets.ApplyWithdrawalFailure(ctx, walletPayment.ID.String(), payload, &eventTag)
			return err
		}
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	// unknown reference: acknowledge so the gateway stops retrying
	logger.Info("Webhook for unknown reference acknowledged", logger.Fields{
		"event":     event.Event,
		"reference": reference,
	})
	return nil
}

func isSuccess(event gatewayEvent) bool {
	return event.Event == "charge.success" && event.Data.Status != "failed"
}
