package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"bip-service/internal/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: msg, Code: "unauthorized"})
}

// authenticate validates a JWT and stores the user id in the context.
func (h *Handler) authenticate(c *gin.Context, token string) bool {
	claims, err := auth.ValidateToken(token, h.jwtSecret)
	if err != nil {
		unauthorized(c, "Token inválido ou expirado")
		return false
	}
	userID, _ := claims.UserID()
	c.Set(userIDKey, userID)
	return true
}

// requireJWT guards dashboard routes.
func (h *Handler) requireJWT() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Cabeçalho Authorization Bearer obrigatório")
			return
		}
		if !h.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// requireWebhookAuth accepts the shared API token or a JWT.
func (h *Handler) requireWebhookAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "Cabeçalho Authorization Bearer obrigatório")
			return
		}
		if h.apiToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.apiToken)) == 1 {
			c.Next()
			return
		}
		if !h.authenticate(c, token) {
			return
		}
		c.Next()
	}
}

// currentUserID returns the authenticated user id, nil for API-token calls.
func currentUserID(c *gin.Context) *int64 {
	v, ok := c.Get(userIDKey)
	if !ok {
		return nil
	}
	id, ok := v.(int64)
	if !ok {
		return nil
	}
	return &id
}
