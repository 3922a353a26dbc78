package cart

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/utils"
	"github.com/grovia/settlement/pkg/validation"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// GetCart godoc
// @Summary Current cart contents with subtotal
// @Tags cart
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/cart [get]
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	items, err := h.repo.ListItems(usr.ID.String())
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch cart", nil)
		return
	}

	summary := Summarize(items)
	utils.BuildSuccessResponse(w, http.StatusOK, "Cart", map[string]interface{}{
		"items":    summary.Items,
		"subtotal": summary.Subtotal.StringFixed(2),
	})
}

type UpsertItemRequest struct {
	ProductID    string          `json:"product_id" validate:"required,uuid4"`
	ProductName  string          `json:"product_name" validate:"required"`
	ImageURL     *string         `json:"image_url"`
	UnitPrice    decimal.Decimal `json:"unit_price" validate:"required"`
	UnitDiscount decimal.Decimal `json:"unit_discount"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
}

// UpsertItem godoc
// @Summary Add or update a cart line
// @Tags cart
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/cart/items [post]
func (h *Handler) UpsertItem(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	var req UpsertItemRequest
	if !validation.DecodeAndValidate(w, r, &req) {
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid product id", nil)
		return
	}

	item := &CartItem{
		UserID:       usr.ID,
		ProductID:    productID,
		ProductName:  req.ProductName,
		ImageURL:     req.ImageURL,
		UnitPrice:    req.UnitPrice,
		UnitDiscount: req.UnitDiscount,
		Quantity:     req.Quantity,
	}

	if err := h.repo.Upsert(item); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to update cart", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Cart updated", item)
}

// ClearCart godoc
// @Summary Empty the cart
// @Tags cart
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/cart [delete]
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	if err := h.repo.Clear(usr.ID.String()); err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to clear cart", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Cart cleared", nil)
}
