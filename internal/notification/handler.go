package notification

import (
	"net/http"

	"github.com/grovia/settlement/internal/user"
	"github.com/grovia/settlement/pkg/utils"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// ListNotifications godoc
// @Summary In-app notifications for the current user
// @Tags notifications
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} utils.APIResponse
// @Router /api/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	usr, ok := r.Context().Value(utils.UserKey).(user.User)
	if !ok {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)

	items, err := h.repo.ListForUser(usr.ID.String(), limit, offset)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Failed to fetch notifications", nil)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Notifications", map[string]interface{}{
		"notifications": items,
		"meta": map[string]interface{}{
			"current_page": page,
			"limit":        limit,
		},
	})
}
