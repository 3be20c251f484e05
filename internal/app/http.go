package app

import (
	"context"
	"fmt"
	"net/http"

	"identity-service/internal/auth/confirm"
	"identity-service/internal/auth/credentials"
	"identity-service/internal/auth/handler"
	"identity-service/internal/auth/linker"
	"identity-service/internal/auth/orchestrator"
	"identity-service/internal/auth/provider"
	"identity-service/internal/auth/provider/github"
	"identity-service/internal/auth/provider/google"
	"identity-service/internal/auth/provider/keycloak"
	"identity-service/internal/auth/resolver"
	"identity-service/internal/auth/store"
	"identity-service/internal/auth/verification"
	"identity-service/internal/config"
	"identity-service/internal/middleware"
	"identity-service/internal/notify"
	"identity-service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	router, err := buildRouter(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	return router, infra.Close, nil
}

func buildRouter(ctx context.Context, cfg config.Config, infra *Infra) (*gin.Engine, error) {

	// ----------------------------
	// Providers + verification
	// ----------------------------

	registry, err := buildProviders(ctx, cfg)
	if err != nil {
		return nil, err
	}

	policy := verification.DefaultPolicy()
	if err := policy.Require(registry.Names()); err != nil {
		return nil, err
	}

	// ----------------------------
	// Flow
	// ----------------------------

	fields, err := linker.ParseFields(cfg.ProfileMergeFields)
	if err != nil {
		return nil, err
	}
	mode, err := orchestrator.ParseConnectMode(cfg.ConnectUnverified)
	if err != nil {
		return nil, err
	}

	var tokens *confirm.Issuer
	if cfg.ConfirmationSecret != "" {
		tokens, err = confirm.NewIssuer(cfg.ConfirmationSecret, cfg.ConfirmationTTL, nil)
		if err != nil {
			return nil, err
		}
	}

	var notifier orchestrator.Notifier = notify.LogNotifier{}
	if cfg.NotifyChannel != "" {
		notifier = notify.NewRedisPublisher(infra.Redis.Client, cfg.NotifyChannel)
	}

	accounts := store.New(infra.DB)
	flow, err := orchestrator.New(orchestrator.Deps{
		Store:    accounts,
		Policy:   policy,
		Resolver: resolver.NewAccountResolver(credentials.NewHasher().Unusable),
		Linker:   linker.New(fields),
		Tokens:   tokens,
		Notifier: notifier,
	}, orchestrator.Options{
		ConnectUnverified:        mode,
		DenyEmailLinkedElsewhere: cfg.DenyEmailLinkedElsewhere,
	})
	if err != nil {
		return nil, err
	}

	// ----------------------------
	// Router
	// ----------------------------

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	authMiddleware := middleware.NewAuthMiddleware(sessionStore, cfg.CookieSecure)

	authHandler := handler.NewHandler(registry, sessionStore, flow, accounts, handler.Options{
		SessionTTL:   cfg.SessionTTL,
		CookieSecure: cfg.CookieSecure,
	})

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	authHandler.RegisterRoutes(router, authMiddleware)

	router.GET("/health", func(c *gin.Context) {
		if err := infra.DB.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router, nil
}

// buildProviders constructs only the enabled providers, in configured order.
func buildProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	list := make([]provider.OAuthProvider, 0, len(cfg.EnabledProviders))

	for _, name := range cfg.EnabledProviders {
		var (
			p   provider.OAuthProvider
			err error
		)
		switch name {
		case "google":
			p, err = google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		case "keycloak":
			p, err = keycloak.New(ctx, cfg.KeycloakIssuer, cfg.KeycloakClientID, cfg.KeycloakRedirectURL, cfg.KeycloakPublicBaseURL)
		case "github":
			p, err = github.New(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL)
		default:
			err = fmt.Errorf("unknown oauth provider %q", name)
		}
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	return provider.NewRegistry(list...)
}

// withCORS lets the listed browser origins call the API with the session
// cookie. No origins means same-origin only.
func withCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(h)
}
