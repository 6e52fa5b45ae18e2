package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NavHandler expone la barra de navegacion y la bandeja de avisos de la sesion.
type NavHandler struct {
	logger *zap.Logger
}

func NewNavHandler(logger *zap.Logger) *NavHandler {
	return &NavHandler{logger: logger}
}

// Menu maneja GET /nav?path=/ruta/actual.
func (h *NavHandler) Menu(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	path := c.DefaultQuery("path", "/")
	c.JSON(http.StatusOK, gin.H{"menu": session.Nav.Menu(path)})
}

// ToggleDrawer maneja POST /nav/drawer.
func (h *NavHandler) ToggleDrawer(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"drawerOpen": session.Nav.ToggleDrawer()})
}

// Logout maneja POST /nav/logout.
func (h *NavHandler) Logout(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	if err := session.Nav.Logout(c.Request.Context()); err != nil {
		h.logger.Warn("nav logout remote cleanup failed", zap.String("sid", session.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"menu": session.Nav.Menu(c.DefaultQuery("path", "/"))})
}

// Notifications maneja GET /notifications y vacia la bandeja.
func (h *NavHandler) Notifications(c *gin.Context) {
	session, ok := mustSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": session.Inbox.Drain()})
}
