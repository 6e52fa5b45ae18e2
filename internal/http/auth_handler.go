package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anwesha-auth/internal/domain"
)

// Verifier es la parte del directorio de identidad que gestiona la verificacion de email.
type Verifier interface {
	RequestVerification(ctx context.Context, id string) (time.Time, error)
	ConfirmVerification(ctx context.Context, id, code string) (domain.Credential, error)
}

// AuthHandler expone registro, login y logout sobre el SessionStore de la sesion.
type AuthHandler struct {
	logger   *zap.Logger
	verifier Verifier
}

func NewAuthHandler(logger *zap.Logger, verifier Verifier) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		verifier: verifier,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": session.ID, "state": session.Store.State()})
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := session.Store.RegisterUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err, "could not register")
		return
	}
	if user == nil {
		// el motivo ya quedo en la bandeja de avisos de la sesion
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := session.Store.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err, "could not login")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout maneja POST /auth/logout. El estado local siempre queda limpio.
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	if err := session.Store.LogoutUser(c.Request.Context()); err != nil {
		h.logger.Warn("logout remote cleanup failed", zap.String("sid", session.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// RequestVerification maneja POST /auth/verify/request.
func (h *AuthHandler) RequestVerification(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	user := session.Store.CurrentUser()
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	expiresAt, err := h.verifier.RequestVerification(c.Request.Context(), user.UID)
	if err != nil {
		writeError(c, h.logger, err, "could not request verification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "code_sent", "expires_at": expiresAt})
}

// ConfirmVerification maneja POST /auth/verify/confirm.
func (h *AuthHandler) ConfirmVerification(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid verify confirm request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	user := session.Store.CurrentUser()
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	if _, err := h.verifier.ConfirmVerification(c.Request.Context(), user.UID, req.Code); err != nil {
		writeError(c, h.logger, err, "could not verify email")
		return
	}
	updated, err := session.Store.UpdateUser(c.Request.Context(), user.UID, domain.Fields{"emailVerified": true})
	if err != nil {
		writeError(c, h.logger, err, "could not update profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": updated})
}
