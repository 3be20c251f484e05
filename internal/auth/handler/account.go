package handler

import (
	"errors"
	"net/http"
	"time"

	"identity-service/internal/auth"
	"identity-service/internal/auth/confirm"
	"identity-service/internal/logger"
	"identity-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type identityView struct {
	Provider string    `json:"provider"`
	UID      string    `json:"uid"`
	LinkedAt time.Time `json:"linked_at"`
}

type accountView struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"display_name"`
	AvatarURL   string         `json:"avatar_url,omitempty"`
	Confirmed   bool           `json:"confirmed"`
	Identities  []identityView `json:"identities"`
}

func (h *Handler) me(c *gin.Context) {
	ctx := c.Request.Context()
	accountID, _ := middleware.AccountIDFromContext(ctx)

	account, err := h.accounts.GetAccount(ctx, accountID)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		logger.FromContext(ctx).Error("load account failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	identities, err := h.accounts.ListIdentities(ctx, accountID)
	if err != nil {
		logger.FromContext(ctx).Error("list identities failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	view := accountView{
		ID:          account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		AvatarURL:   account.AvatarURL,
		Confirmed:   account.Confirmed(),
		Identities:  make([]identityView, 0, len(identities)),
	}
	for _, i := range identities {
		view.Identities = append(view.Identities, identityView{
			Provider: i.Provider,
			UID:      i.UID,
			LinkedAt: i.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) confirm(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation.invalid_token"})
		return
	}

	account, err := h.flow.Confirm(c.Request.Context(), token)
	switch {
	case errors.Is(err, confirm.ErrExpiredToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation.expired_token"})
		return
	case errors.Is(err, confirm.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation.invalid_token"})
		return
	case err != nil:
		logger.FromContext(c.Request.Context()).Error("confirm account failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm account"})
		return
	}

	logger.FromContext(c.Request.Context()).Info("account confirmed", "account_id", account.ID)
	c.JSON(http.StatusOK, gin.H{"status": "confirmed"})
}
