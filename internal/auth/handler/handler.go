package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/auth/orchestrator"
	"identity-service/internal/auth/provider"
	"identity-service/internal/logger"
	"identity-service/internal/middleware"
	"identity-service/internal/session"

	"github.com/gin-gonic/gin"
)

// Flow is the OAuth orchestration the handler drives.
type Flow interface {
	Handle(ctx context.Context, req orchestrator.Request) (orchestrator.Outcome, error)
	Confirm(ctx context.Context, token string) (*auth.Account, error)
}

// Accounts reads the signed-in account for /api/me.
type Accounts interface {
	GetAccount(ctx context.Context, id string) (*auth.Account, error)
	ListIdentities(ctx context.Context, accountID string) ([]auth.Identity, error)
}

type Options struct {
	SessionTTL   time.Duration
	CookieSecure bool
}

type Handler struct {
	providers    *provider.Registry
	sessionStore session.Store
	flow         Flow
	accounts     Accounts
	opts         Options
	now          func() time.Time
}

func NewHandler(
	registry *provider.Registry,
	sessionStore session.Store,
	flow Flow,
	accounts Accounts,
	opts Options,
) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	return &Handler{
		providers:    registry,
		sessionStore: sessionStore,
		flow:         flow,
		accounts:     accounts,
		opts:         opts,
		now:          time.Now,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, authMW *middleware.AuthMiddleware) {
	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", middleware.GinOptionalAuth(authMW), h.callback)
	r.GET("/auth/confirm", h.confirm)
	r.POST("/auth/logout", h.Logout)

	api := r.Group("/api")
	api.Use(middleware.GinRequireAuth(authMW))
	api.GET("/me", h.me)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := h.generateState(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start oauth flow"})
		return
	}
	_, codeChallenge, err := h.generatePKCE(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start oauth flow"})
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.FromContext(ctx)
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}
	h.clearFlowCookies(c)

	// the provider refused or the user cancelled; start a fresh flow
	if errParam := c.Query("error"); errParam != "" {
		log.Warn("oauth callback returned error",
			"provider", providerName,
			"error", errParam,
			"desc", c.Query("error_description"),
		)
		c.Redirect(http.StatusFound, "/login")
		return
	}

	code := c.Query("code")
	if code == "" {
		log.Error("oauth callback missing code and error", "provider", providerName)
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	codeVerifier := getPKCEVerifier(c)
	if codeVerifier == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing pkce verifier",
		})
		return
	}

	assertion, err := p.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		log.Warn("oauth code exchange failed", "provider", providerName, "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	currentAccountID, _ := middleware.AccountIDFromContext(ctx)

	out, err := h.flow.Handle(ctx, orchestrator.Request{
		Assertion:        *assertion,
		CurrentAccountID: currentAccountID,
	})
	if err != nil {
		h.writeFlowError(c, err)
		return
	}

	if out.Session == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":                 "connected",
			"provider":               providerName,
			"confirmation_requested": out.ConfirmationRequested,
		})
		return
	}

	if err := h.startSession(c, out.Session.AccountID); err != nil {
		log.Error("failed to persist session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to create session",
		})
		return
	}

	log.Info("login succeeded",
		"account_id", out.Account.ID,
		"provider", providerName,
		"resolution", string(out.Resolution),
		"ip", c.ClientIP(),
	)

	c.JSON(http.StatusOK, gin.H{
		"status":      "authenticated",
		"new_account": out.NewAccount,
	})
}

func (h *Handler) startSession(c *gin.Context, accountID string) error {
	sessionID, err := session.GenerateID()
	if err != nil {
		return err
	}

	now := h.now()
	absoluteExpiry := now.Add(h.opts.SessionTTL)

	sess := session.Session{
		SessionID:         sessionID,
		AccountID:         accountID,
		CreatedAt:         now,
		AbsoluteExpiresAt: absoluteExpiry,
		ExpiresAt:         absoluteExpiry,
	}
	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		return err
	}

	session.SetCookie(c.Writer, sessionID, absoluteExpiry, h.cookieOptions())
	return nil
}

// writeFlowError maps orchestration failures to responses. Denials expose
// only the message key and provider name.
func (h *Handler) writeFlowError(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context())

	var (
		denial      auth.Denial
		unsupported *auth.UnsupportedProviderError
	)
	switch {
	case errors.As(err, &denial):
		c.JSON(http.StatusForbidden, gin.H{
			"error":    denial.MessageKey(),
			"provider": denial.ProviderName(),
		})
	case errors.As(err, &unsupported):
		log.Error("provider has no verification rule", "provider", unsupported.Provider)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": auth.MessageProviderMisconfigured,
		})
	case errors.Is(err, auth.ErrMalformedAssertion):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
	case errors.Is(err, auth.ErrNotFound):
		// the session points at an account that no longer exists
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "unauthorized",
		})
	default:
		log.Error("oauth flow failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to resolve account",
		})
	}
}

func (h *Handler) Logout(c *gin.Context) {
	if id, ok := session.IDFromRequest(c.Request, h.opts.CookieSecure); ok {
		// best-effort
		_ = h.sessionStore.Delete(c.Request.Context(), id)
		logger.FromContext(c.Request.Context()).Info("logout", "ip", c.ClientIP())
	}

	session.ClearCookie(c.Writer, h.cookieOptions())

	// idempotent
	c.Status(http.StatusNoContent)
}

func (h *Handler) cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
