package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"anwesha-auth/internal/service"
)

// Handlers agrupa los handlers que monta el router.
type Handlers struct {
	Sessions *SessionHandler
	Auth     *AuthHandler
	Users    *UserHandler
	Nav      *NavHandler
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	registry *service.SessionRegistry,
	h Handlers,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	sessions := r.Group("/sessions")
	sessions.POST("", h.Sessions.Create)
	sessions.POST("/refresh", h.Sessions.Refresh)
	sessions.DELETE("", h.Sessions.End)

	protected := r.Group("")
	protected.Use(SessionMiddleware(jwtSvc, registry))

	auth := protected.Group("/auth")
	auth.GET("/me", h.Auth.Me)
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/logout", h.Auth.Logout)
	auth.POST("/verify/request", h.Auth.RequestVerification)
	auth.POST("/verify/confirm", h.Auth.ConfirmVerification)

	users := protected.Group("/users")
	users.PATCH("/:id", h.Users.Update)
	users.POST("/:id/finalize", h.Users.Finalize)

	nav := protected.Group("/nav")
	nav.GET("", h.Nav.Menu)
	nav.POST("/drawer", h.Nav.ToggleDrawer)
	nav.POST("/logout", h.Nav.Logout)

	protected.GET("/notifications", h.Nav.Notifications)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
