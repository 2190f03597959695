package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"toolbox/internal/auth"
	"toolbox/internal/utils"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "token"

// usernameKey is the gin context key for the authenticated username.
const usernameKey = "username"

// RequireAuth guards gated routes. It reads the session cookie, verifies the
// token and stores the username in the request context. Every gated route
// goes through this one guard; handlers never re-check credentials.
func RequireAuth(a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			utils.Error(c, http.StatusUnauthorized, auth.ErrMissingToken.Error())
			c.Abort()
			return
		}

		claims, err := a.Verify(token)
		if err != nil {
			utils.Error(c, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
			c.Abort()
			return
		}

		c.Set(usernameKey, claims.Username)
		c.Next()
	}
}
