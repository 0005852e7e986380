package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	pgrepo "github.com/harborapp/backend/internal/repo/postgres"
	revealsvc "github.com/harborapp/backend/internal/services/reveal"
	"github.com/harborapp/backend/internal/transport/http/dto"
	httperrors "github.com/harborapp/backend/internal/transport/http/errors"
)

// WebhookSecretHeader carries the shared secret the messaging provider is
// configured to send with every delivery.
const WebhookSecretHeader = "X-Webhook-Secret"

// ChannelResolver maps a provider channel back to the match it belongs to.
type ChannelResolver interface {
	GetByChannelID(ctx context.Context, channelID string) (pgrepo.MatchRecord, error)
}

type MessageHookHandler struct {
	service  *revealsvc.Service
	resolver ChannelResolver
	secret   string
}

func NewMessageHookHandler(service *revealsvc.Service, resolver ChannelResolver, secret string) *MessageHookHandler {
	return &MessageHookHandler{service: service, resolver: resolver, secret: secret}
}

// Handle ingests a message.new delivery from the messaging provider and
// advances the match's reveal state. Other event types are acknowledged and
// ignored so the provider does not retry them.
func (h *MessageHookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(r.Header.Get(WebhookSecretHeader)), []byte(h.secret)) != 1 {
		writeUnauthorized(w, "UNAUTHORIZED", "invalid webhook secret")
		return
	}
	if h.service == nil || h.resolver == nil {
		writeInternal(w, "REVEAL_SERVICE_UNAVAILABLE", "reveal service is unavailable")
		return
	}

	var req dto.MessageHookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if req.Type != "" && req.Type != "message.new" {
		httperrors.Write(w, http.StatusOK, dto.MessageHookResponse{OK: true})
		return
	}
	if strings.TrimSpace(req.ChannelID) == "" {
		writeBadRequest(w, "VALIDATION_ERROR", "channel_id is required")
		return
	}

	rec, err := h.resolver.GetByChannelID(r.Context(), req.ChannelID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMatchNotFound) {
			writeNotFound(w, "NOT_FOUND", "channel is not attached to a match")
			return
		}
		writeInternal(w, "INTERNAL_ERROR", "failed to resolve channel")
		return
	}

	state, err := h.service.OnNewMessage(r.Context(), rec.ID)
	if err != nil {
		switch {
		case errors.Is(err, revealsvc.ErrNotFound):
			writeNotFound(w, "NOT_FOUND", "match not found")
		case errors.Is(err, revealsvc.ErrMatchClosed):
			writeConflict(w, "MATCH_CLOSED", "match is closed")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to process message event")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.MessageHookResponse{
		OK:           true,
		MessageCount: state.MessageCount,
		BlurPercent:  state.BlurPercent,
		ShowWarning:  state.ShouldShowWarning,
		Phase:        string(state.Phase),
	})
}
