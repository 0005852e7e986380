package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/harborapp/backend/internal/services/auth"
	swipesvc "github.com/harborapp/backend/internal/services/swipes"
	"github.com/harborapp/backend/internal/transport/http/dto"
	httperrors "github.com/harborapp/backend/internal/transport/http/errors"
)

type QuotaHandler struct {
	service *swipesvc.Service
}

func NewQuotaHandler(service *swipesvc.Service) *QuotaHandler {
	return &QuotaHandler{service: service}
}

func (h *QuotaHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	quota, err := h.service.RecentSwipeCount(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, swipesvc.ErrValidation) {
			writeBadRequest(w, "VALIDATION_ERROR", "invalid quota request")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to load quota")
		return
	}

	httperrors.Write(w, http.StatusOK, dto.QuotaResponse{
		Used: quota.Used,
		Cap:  quota.Cap,
	})
}
