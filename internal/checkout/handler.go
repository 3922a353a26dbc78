package checkout

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/internal/wallet"
	"github.com/grovia/settlement/pkg/logger"
	"github.com/grovia/settlement/pkg/utils"
	"github.com/grovia/settlement/pkg/validation"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type CheckoutRequest struct {
	PaymentMethod   string  `json:"payment_method" validate:"required,oneof=wallet gateway"`
	DeliveryAddress string  `json:"delivery_address" validate:"required"`
	DeliveryPhone   string  `json:"delivery_phone" validate:"required"`
	DeliveryNote    *string `json:"delivery_note"`
}

// Checkout godoc
// @Summary Place an order from the current cart
// @Tags checkout
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Success 201 {object} utils.APIResponse
// @Router /api/checkout [post]
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	key, err := utils.IdempotencyKey(r)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	var req CheckoutRequest
	if !validation.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Checkout(r.Context(), &usr, PaymentMethod(req.PaymentMethod), key, DeliveryDetails{
		Address: req.DeliveryAddress,
		Phone:   req.DeliveryPhone,
		Note:    req.DeliveryNote,
	})
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	status := http.StatusCreated
	message := "Order placed"
	if result.Reused {
		status = http.StatusOK
		message = "Order already placed"
	}

	data := map[string]interface{}{
		"order":               result.Order,
		"payment_transaction": result.Payment,
	}
	if result.Order.PaymentMethod == MethodGateway {
		data["authorization_url"] = result.AuthorizationURL
		data["access_code"] = result.AccessCode
	}

	utils.BuildSuccessResponse(w, status, message, data)
}

// VerifyPayment godoc
// @Summary Verify an order payment against the gateway
// @Tags checkout
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} utils.APIResponse
// @Router /api/checkout/verify/{reference} [get]
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	reference := mux.Vars(r)["reference"]

	payment, order, err := h.service.VerifyPayment(r.Context(), &usr, reference)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Payment verified", map[string]interface{}{
		"order":               order,
		"payment_transaction": payment,
	})
}

func writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrUnsupportedMethod),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, paystack.ErrRejected):
		utils.BuildErrorResponse(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, paystack.ErrUnavailable):
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Payment gateway unavailable", nil)
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, "Not found", nil)
	default:
		logger.Error("Checkout operation failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}
