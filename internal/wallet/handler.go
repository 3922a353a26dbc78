package wallet

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/paystack"
	"github.com/grovia/settlement/internal/user"
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

// GetBalance godoc
// @Summary Get wallet balance
// @Tags wallet
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/wallet/balance [get]
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	balance, err := h.service.Balance(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch balance", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet balance", map[string]interface{}{
		"balance":  balance.StringFixed(2),
		"currency": h.service.cfg.Currency,
	})
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// InitializeDeposit godoc
// @Summary Initialize a wallet deposit
// @Tags wallet
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Success 201 {object} utils.APIResponse
// @Router /api/wallet/deposit [post]
func (h *Handler) InitializeDeposit(w http.ResponseWriter, r *http.Request) {
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

	var req DepositRequest
	if !validation.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.InitializeDeposit(r.Context(), &usr, req.Amount, key)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	status := http.StatusCreated
	message := "Deposit initialized"
	if result.Reused {
		status = http.StatusOK
		message = "Deposit already initialized"
	}

	utils.BuildSuccessResponse(w, status, message, map[string]interface{}{
		"payment_transaction": result.Payment,
		"authorization_url":   result.AuthorizationURL,
		"access_code":         result.AccessCode,
	})
}

// VerifyDeposit godoc
// @Summary Verify a deposit against the gateway
// @Tags wallet
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} utils.APIResponse
// @Router /api/wallet/deposit/verify/{reference} [get]
func (h *Handler) VerifyDeposit(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	reference := mux.Vars(r)["reference"]

	payment, balance, err := h.service.VerifyDeposit(r.Context(), &usr, reference)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Deposit verified", map[string]interface{}{
		"payment_transaction": payment,
		"balance":             balance.StringFixed(2),
	})
}

// ListBanks godoc
// @Summary List supported banks
// @Tags wallet
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/wallet/banks [get]
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.service.ListBanks(r.Context())
	if err != nil {
		writeWalletError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Banks", map[string]interface{}{
		"banks": banks,
	})
}

type ResolveAccountRequest struct {
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	BankCode      string `json:"bank_code" validate:"required"`
}

// ResolveAccount godoc
// @Summary Resolve a bank account name
// @Tags wallet
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/wallet/banks/resolve [post]
func (h *Handler) ResolveAccount(w http.ResponseWriter, r *http.Request) {
	var req ResolveAccountRequest
	if !validation.DecodeAndValidate(w, r, &req) {
		return
	}

	resolved, err := h.service.ResolveAccount(r.Context(), req.AccountNumber, req.BankCode)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Account resolved", map[string]interface{}{
		"account_name":   resolved.AccountName,
		"account_number": resolved.AccountNumber,
	})
}

type WithdrawRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"required"`
	BankCode      string          `json:"bank_code" validate:"required"`
	AccountNumber string          `json:"account_number" validate:"required,len=10,numeric"`
	AccountName   string          `json:"account_name" validate:"required"`
	Reason        string          `json:"reason"`
}

// Withdraw godoc
// @Summary Withdraw wallet funds to a bank account
// @Tags wallet
// @Accept json
// @Produce json
// @Param Idempotency-Key header string true "Idempotency key"
// @Success 201 {object} utils.APIResponse
// @Router /api/wallet/withdraw [post]
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
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

	var req WithdrawRequest
	if !validation.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.service.Withdraw(r.Context(), &usr, req.Amount, key,
		req.BankCode, req.AccountNumber, req.AccountName, req.Reason)
	if err != nil {
		writeWalletError(w, err)
		return
	}

	status := http.StatusCreated
	message := "Withdrawal initiated"
	if result.Reused {
		status = http.StatusOK
		message = "Withdrawal already initiated"
	}

	utils.BuildSuccessResponse(w, status, message, map[string]interface{}{
		"payment_transaction": result.Payment,
		"balance":             result.Balance.StringFixed(2),
	})
}

// GetTransactions godoc
// @Summary Wallet transaction history
// @Tags wallet
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} utils.APIResponse
// @Router /api/wallet/transactions [get]
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)

	txs, count, err := h.service.History(usr.ID.String(), limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch transactions", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction history", map[string]interface{}{
		"transactions": txs,
		"meta":         utils.PaginationMeta(count, limit, page),
	})
}

// writeWalletError maps service errors onto HTTP statuses: business rejections
// are 422, upstream gateway faults are 502.
func writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBelowMinimum),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrAccountNameMismatch),
		errors.Is(err, paystack.ErrRejected):
		utils.BuildErrorResponse(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, paystack.ErrUnavailable):
		utils.BuildErrorResponse(w, http.StatusBadGateway, "Payment gateway unavailable", nil)
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.BuildErrorResponse(w, http.StatusNotFound, "Not found", nil)
	default:
		logger.Error("Wallet operation failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Something went wrong", nil)
	}
}
