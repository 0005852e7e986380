package handlers

import (
	"errors"
	"net/http"
	"strings"

	authsvc "github.com/harborapp/backend/internal/services/auth"
	swipesvc "github.com/harborapp/backend/internal/services/swipes"
	"github.com/harborapp/backend/internal/transport/http/dto"
	httperrors "github.com/harborapp/backend/internal/transport/http/errors"
)

type SwipeHandler struct {
	service *swipesvc.Service
}

func NewSwipeHandler(service *swipesvc.Service) *SwipeHandler {
	return &SwipeHandler{service: service}
}

func (h *SwipeHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "SWIPE_SERVICE_UNAVAILABLE", "swipe service is unavailable")
		return
	}

	var req dto.SwipeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.TargetID <= 0 || strings.TrimSpace(req.Direction) == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "target_id and direction are required")
		return
	}

	result, err := h.service.RecordSwipe(r.Context(), identity.UserID, req.TargetID, req.Direction)
	if err != nil {
		switch {
		case errors.Is(err, swipesvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid swipe request")
		case errors.Is(err, swipesvc.ErrUnsupportedDirection):
			writeBadRequest(w, "VALIDATION_ERROR", "unsupported swipe direction")
		case errors.Is(err, swipesvc.ErrTargetNotFound):
			writeNotFound(w, "NOT_FOUND", "target user not found")
		case errors.Is(err, swipesvc.ErrDailyLimit):
			httperrors.Write(w, http.StatusTooManyRequests, httperrors.APIError{
				Code:    "SWIPE_LIMIT_REACHED",
				Message: "daily swipe limit reached",
			})
		default:
			if tf, ok := swipesvc.IsTooFast(err); ok {
				httperrors.Write(w, http.StatusTooManyRequests, httperrors.RateLimitError{
					Code:          "TOO_FAST",
					Message:       "too many swipes, slow down",
					RetryAfterSec: tf.RetryAfter(),
				})
				return
			}
			writeInternal(w, "INTERNAL_ERROR", "failed to process swipe")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SwipeResponse{
		OK:            true,
		SwipeID:       result.SwipeID,
		MatchPossible: result.MatchPossible,
		Matched:       result.Matched,
		MatchID:       result.MatchID,
		Quota: dto.QuotaResponse{
			Used: result.Quota.Used,
			Cap:  result.Quota.Cap,
		},
	})
}
