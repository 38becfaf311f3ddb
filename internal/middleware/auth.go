package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"

	"github.com/thomasmilici/domux-backend/internal/platform/logger"
	"github.com/thomasmilici/domux-backend/internal/requestdata"
)

type AuthMiddleware struct {
	log        *logger.Logger
	authClient *auth.Client
}

func NewAuthMiddleware(log *logger.Logger, authClient *auth.Client) *AuthMiddleware {
	return &AuthMiddleware{
		log:        log.With("middleware", "AuthMiddleware"),
		authClient: authClient,
	}
}

// RequireAuth verifies the Firebase ID token on the Authorization header and
// attaches the caller's identity to the request context.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization token"})
			c.Abort()
			return
		}

		decoded, err := m.authClient.VerifyIDToken(c.Request.Context(), token)
		if err != nil {
			m.log.Warn("ID token verification failed", "error", err.Error())
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		rd := &requestdata.RequestData{UserID: decoded.UID}
		if email, ok := decoded.Claims["email"].(string); ok {
			rd.Email = email
		}
		if name, ok := decoded.Claims["name"].(string); ok {
			rd.DisplayName = name
		}

		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") && len(header) > 7 {
		return header[7:]
	}
	return ""
}
