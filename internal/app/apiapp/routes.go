package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harborapp/backend/internal/config"
	authsvc "github.com/harborapp/backend/internal/services/auth"
	matchessvc "github.com/harborapp/backend/internal/services/matches"
	revealsvc "github.com/harborapp/backend/internal/services/reveal"
	swipesvc "github.com/harborapp/backend/internal/services/swipes"
	"github.com/harborapp/backend/internal/transport/http/handlers"
)

type Dependencies struct {
	AuthService     *authsvc.Service
	SwipeService    *swipesvc.Service
	MatchService    *matchessvc.Service
	RevealService   *revealsvc.Service
	ChannelResolver handlers.ChannelResolver
	Logger          *zap.Logger
	Config          config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	swipeHandler := handlers.NewSwipeHandler(deps.SwipeService)
	quotaHandler := handlers.NewQuotaHandler(deps.SwipeService)
	matchesHandler := handlers.NewMatchesHandler(deps.MatchService)
	consentHandler := handlers.NewConsentHandler(deps.RevealService)
	messageHookHandler := handlers.NewMessageHookHandler(
		deps.RevealService,
		deps.ChannelResolver,
		deps.Config.Stream.WebhookSecret,
	)
	authMW := AuthMiddleware(deps.AuthService, deps.Logger)

	r.Get("/healthz", healthHandler.Get)

	r.Route("/v1", func(r chi.Router) {
		r.With(authMW).Post("/swipes", swipeHandler.Handle)
		r.With(authMW).Get("/quota", quotaHandler.Handle)
		r.With(authMW).Get("/matches", matchesHandler.Handle)
		r.With(authMW).Post("/unmatch", matchesHandler.Unmatch)
		r.With(authMW).Post("/matches/consent", consentHandler.Handle)
		r.Post("/hooks/message", messageHookHandler.Handle)
	})
}
