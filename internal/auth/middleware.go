package auth

import (
	"net/http"

	"github.com/askwhyharsh/caddate/internal/user"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/gin-gonic/gin"
)

const (
	ContextUserID = "user_id"
	ContextEmail  = "email"
)

// Authenticate verifies the bearer token and, when users is non-nil, that the
// token's owner still exists and is active.
func Authenticate(tokens *TokenService, users user.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := TokenFromRequest(c.Request)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		if users != nil {
			u, err := users.FindByID(c.Request.Context(), claims.UserID)
			if err != nil && !apperrors.IsNotFound(err) {
				appErr := apperrors.As(err)
				c.AbortWithStatusJSON(appErr.HTTPStatus(), errorBody(appErr.Message, appErr.Code()))
				return
			}
			if !u.Available() {
				abortUnauthorized(c, apperrors.Unauthorized(apperrors.ErrUserNotFound))
				return
			}
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextEmail, claims.Email)
		c.Next()
	}
}

// UserID returns the authenticated user id set by Authenticate.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(err.Error(), "UNAUTHORIZED"))
}

func errorBody(message, code string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"message": message,
			"code":    code,
		},
	}
}
