package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/harborapp/backend/internal/config"
	"github.com/harborapp/backend/internal/domain/rules"
	"github.com/harborapp/backend/internal/infra/stream"
	pgrepo "github.com/harborapp/backend/internal/repo/postgres"
	redrepo "github.com/harborapp/backend/internal/repo/redis"
	authsvc "github.com/harborapp/backend/internal/services/auth"
	matchessvc "github.com/harborapp/backend/internal/services/matches"
	ratesvc "github.com/harborapp/backend/internal/services/rate"
	revealsvc "github.com/harborapp/backend/internal/services/reveal"
	swipesvc "github.com/harborapp/backend/internal/services/swipes"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	rateRepo := redrepo.NewRateRepo(redisClient)
	tokenRepo := redrepo.NewTokenRepo(redisClient)
	swipeRepo := pgrepo.NewSwipeRepo(pool)
	matchRepo := pgrepo.NewMatchRepo(pool)
	userRepo := pgrepo.NewUserRepo(pool)

	var channels matchessvc.ChannelProvider
	if cfg.Stream.APIKey != "" && cfg.Stream.APISecret != "" {
		if client, err := stream.New(stream.Config{
			BaseURL:   cfg.Stream.BaseURL,
			APIKey:    cfg.Stream.APIKey,
			APISecret: cfg.Stream.APISecret,
			Timeout:   cfg.Stream.Timeout,
		}); err != nil {
			log.Warn("stream init failed, continuing without messaging", zap.Error(err))
		} else {
			channels = client
		}
	} else {
		log.Warn("stream credentials missing, continuing without messaging")
	}

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager, tokenRepo)
	rateLimiter := ratesvc.NewLimiter(
		rateRepo,
		cfg.Remote.Limits.RatePerMinute,
		cfg.Remote.Limits.RatePer10Seconds,
	)
	revealRules := rules.RevealConfig{
		WarningThreshold: cfg.Remote.Reveal.WarningThreshold,
		EarlyRate:        cfg.Remote.Reveal.EarlyRatePercent,
		LateRate:         cfg.Remote.Reveal.LateRatePercent,
	}
	matchService := matchessvc.NewService(matchessvc.Dependencies{
		Pool:       pool,
		MatchStore: matchRepo,
		UserStore:  userRepo,
		Channels:   channels,
		Logger:     log,
	}, matchessvc.Config{
		MaxActiveMatches: cfg.Remote.MaxActiveMatches,
		Reveal:           revealRules,
	})
	swipeService := swipesvc.NewService(swipesvc.Dependencies{
		Pool:        pool,
		SwipeStore:  swipeRepo,
		MatchGate:   matchService,
		RateLimiter: rateLimiter,
	}, swipesvc.Config{
		SwipesPerDay: cfg.Remote.Limits.SwipesPerDay,
	})
	revealService := revealsvc.NewService(revealsvc.Dependencies{
		Pool:       pool,
		MatchStore: matchRepo,
		Closer:     matchService,
	}, revealRules)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		AuthService:     authService,
		SwipeService:    swipeService,
		MatchService:    matchService,
		RevealService:   revealService,
		ChannelResolver: matchRepo,
		Logger:          log,
		Config:          cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
