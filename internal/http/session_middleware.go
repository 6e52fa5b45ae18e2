package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"anwesha-auth/internal/service"
)

const (
	sessionKey       = "client_session"
	sessionClaimsKey = "session_claims"
)

// SessionMiddleware valida el access token y carga la sesion de cliente a la que pertenece.
func SessionMiddleware(jwtSvc *service.JWTService, registry *service.SessionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtSvc == nil || registry == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
			c.Abort()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		token := strings.TrimSpace(header[len("Bearer "):])
		claims, err := jwtSvc.ParseAccessToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, service.ErrJWTExpired) {
				msg = "token expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			c.Abort()
			return
		}

		session, err := registry.Get(c.Request.Context(), claims.SessionID)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
			c.Abort()
			return
		}

		c.Set(sessionClaimsKey, claims)
		c.Set(sessionKey, session)
		c.Next()
	}
}

// GetSession obtiene la sesion de cliente cargada por SessionMiddleware.
func GetSession(c *gin.Context) (*service.Session, bool) {
	val, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := val.(*service.Session)
	return session, ok
}

// GetSessionClaims obtiene los claims del access token desde el contexto.
func GetSessionClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(sessionClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}

func mustSession(c *gin.Context) (*service.Session, bool) {
	session, ok := GetSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return nil, false
	}
	return session, true
}
