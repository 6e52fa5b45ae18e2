package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"anwesha-auth/internal/service"
)

// SessionHandler emite y cierra sesiones de cliente.
type SessionHandler struct {
	logger   *zap.Logger
	jwtServ  *service.JWTService
	registry *service.SessionRegistry
}

func NewSessionHandler(logger *zap.Logger, jwtServ *service.JWTService, registry *service.SessionRegistry) *SessionHandler {
	return &SessionHandler{
		logger:   logger,
		jwtServ:  jwtServ,
		registry: registry,
	}
}

// Create maneja POST /sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	sid := uuid.NewString()
	tokens, err := h.jwtServ.GeneratePair(sid)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	if _, err := h.registry.Get(c.Request.Context(), sid); err != nil {
		h.logger.Error("session init failed", zap.String("sid", sid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start session"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session_id": sid, "tokens": tokens})
}

// Refresh maneja POST /sessions/refresh.
func (h *SessionHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	tokens, sid, err := h.jwtServ.RefreshPair(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sid, "tokens": tokens})
}

// End maneja DELETE /sessions: revoca el refresh token y libera la sesion en memoria.
func (h *SessionHandler) End(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid end session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	sid, err := h.jwtServ.RevokeRefresh(req.RefreshToken)
	if err != nil {
		h.logger.Warn("revoke refresh failed", zap.Error(err))
	}
	if sid != "" {
		h.registry.Drop(sid)
	}
	c.Status(http.StatusNoContent)
}
