package referral

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/logger"
	"github.com/grovia/settlement/pkg/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// GetSummary godoc
// @Summary Referral dashboard for the current user
// @Tags referral
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/referrals/summary [get]
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	summary, err := h.service.Summarize(usr.ID.String())
	if err != nil {
		logger.Error("Referral summary failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to build referral summary", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Referral summary", summary)
}

// GetReferralCode godoc
// @Summary Get (or create) the current user's referral code
// @Tags referral
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/referrals/code [get]
func (h *Handler) GetReferralCode(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	code, err := h.service.EnsureReferralCode(&usr)
	if err != nil {
		logger.Error("Referral code allocation failed", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to allocate referral code", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Referral code", map[string]interface{}{
		"referral_code": code,
	})
}

// LookupCode godoc
// @Summary Resolve a referral code to its owner
// @Tags referral
// @Produce json
// @Param code path string true "Referral code"
// @Success 200 {object} utils.APIResponse
// @Router /api/referrals/lookup/{code} [get]
func (h *Handler) LookupCode(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	referrer, err := h.service.LookupReferrer(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.BuildErrorResponse(w, http.StatusNotFound, "Unknown referral code", nil)
			return
		}
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to resolve referral code", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Referral code resolved", map[string]interface{}{
		"user_id": referrer.ID,
		"name":    referrer.Name,
	})
}
