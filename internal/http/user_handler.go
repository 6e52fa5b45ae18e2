package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anwesha-auth/internal/domain"
	"anwesha-auth/internal/service"
)

// UserHandler mantiene los endpoints de perfil del usuario de la sesion.
type UserHandler struct {
	logger *zap.Logger
}

func NewUserHandler(logger *zap.Logger) *UserHandler {
	return &UserHandler{logger: logger}
}

// ownProfile valida que :id sea el usuario autenticado de la sesion.
func (h *UserHandler) ownProfile(c *gin.Context) (*service.Session, string, bool) {
	session, ok := mustSession(c)
	if !ok {
		return nil, "", false
	}
	user := session.Store.CurrentUser()
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return nil, "", false
	}
	if c.Param("id") != user.UID {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot modify another user"})
		return nil, "", false
	}
	return session, user.UID, true
}

// Update maneja PATCH /users/:id con una actualizacion parcial.
func (h *UserHandler) Update(c *gin.Context) {
	session, uid, ok := h.ownProfile(c)
	if !ok {
		return
	}
	var fields domain.Fields
	if err := c.ShouldBindJSON(&fields); err != nil || len(fields) == 0 {
		h.logger.Warn("invalid update user request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := session.Store.UpdateUser(c.Request.Context(), uid, fields)
	if err != nil {
		writeError(c, h.logger, err, "could not update user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Finalize maneja POST /users/:id/finalize: asigna el anweshaId y completa el registro.
func (h *UserHandler) Finalize(c *gin.Context) {
	session, uid, ok := h.ownProfile(c)
	if !ok {
		return
	}
	var formData domain.Fields
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&formData); err != nil {
			h.logger.Warn("invalid finalize request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	code, err := session.Store.FinalizeRegistration(c.Request.Context(), uid, formData)
	if err != nil {
		writeError(c, h.logger, err, "could not finalize registration")
		return
	}
	c.JSON(http.StatusOK, gin.H{"anweshaId": code, "user": session.Store.CurrentUser()})
}
