package handlers

import (
	"errors"
	"net/http"

	authsvc "github.com/harborapp/backend/internal/services/auth"
	revealsvc "github.com/harborapp/backend/internal/services/reveal"
	"github.com/harborapp/backend/internal/transport/http/dto"
	httperrors "github.com/harborapp/backend/internal/transport/http/errors"
)

type ConsentHandler struct {
	service *revealsvc.Service
}

func NewConsentHandler(service *revealsvc.Service) *ConsentHandler {
	return &ConsentHandler{service: service}
}

func (h *ConsentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "REVEAL_SERVICE_UNAVAILABLE", "reveal service is unavailable")
		return
	}

	var req dto.ConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.MatchID <= 0 || req.Agreed == nil {
		writeBadRequest(w, "VALIDATION_ERROR", "match_id and agreed are required")
		return
	}

	result, err := h.service.RecordConsent(r.Context(), req.MatchID, identity.UserID, *req.Agreed)
	if err != nil {
		switch {
		case errors.Is(err, revealsvc.ErrValidation):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid consent request")
		case errors.Is(err, revealsvc.ErrNotFound):
			writeNotFound(w, "NOT_FOUND", "match not found")
		case errors.Is(err, revealsvc.ErrWarningPending):
			writeConflict(w, "CONSENT_NOT_REQUESTED", "consent warning has not been shown yet")
		case errors.Is(err, revealsvc.ErrAlreadyResolved):
			writeConflict(w, "ALREADY_RESOLVED", "consent is already resolved")
		case errors.Is(err, revealsvc.ErrMatchClosed):
			writeConflict(w, "MATCH_CLOSED", "match is closed")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to record consent")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ConsentResponse{
		OK:          true,
		BothAgreed:  result.BothAgreed,
		BlurPercent: result.BlurPercent,
		MatchClosed: result.MatchClosed,
	})
}
