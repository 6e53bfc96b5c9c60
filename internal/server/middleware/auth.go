package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/tea-assistant/internal/auth"
)

// StaffIDKey is the gin context key holding the authenticated staff id
const StaffIDKey = "staff_id"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// AbortWithError writes an ErrorResponse and stops the chain.
func AbortWithError(c *gin.Context, status int, message, errType, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	})
}

// AuthMiddleware guards the staff API with bearer JWTs
type AuthMiddleware struct {
	jwtManager func() *auth.JWTManager
}

// NewAuthMiddleware takes a getter so a reloaded secret applies to the next request
func NewAuthMiddleware(jwtManager func() *auth.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// StaffAuthMiddleware requires "Authorization: Bearer <staff token>"
func (am *AuthMiddleware) StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		manager := am.jwtManager()
		if !manager.Enabled() {
			AbortWithError(c, http.StatusServiceUnavailable, "Admin API is disabled: no JWT secret configured", "api_error", "admin_disabled")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, http.StatusUnauthorized, "Authorization header required", "invalid_request_error", "")
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			AbortWithError(c, http.StatusUnauthorized, "Invalid authorization header format. Expected: 'Bearer <token>'", "invalid_request_error", "")
			return
		}

		claims, err := manager.ValidateToken(tokenParts[1])
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) {
				logrus.Warnf("Staff token check failed: %v", err)
			}
			AbortWithError(c, http.StatusUnauthorized, "Invalid authentication token", "invalid_request_error", "invalid_token")
			return
		}

		c.Set(StaffIDKey, claims.StaffID)
		c.Next()
	}
}
