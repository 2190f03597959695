package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"toolbox/internal/utils"
)

// cookieMaxAge matches the token TTL (7 days, in seconds).
const cookieMaxAge = 7 * 24 * 60 * 60

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login verifies the credential pair and sets the session cookie.
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		h.log.WithField("username", req.Username).Warn("login rejected")
		h.writeError(c, err)
		return
	}

	h.setSessionCookie(c, token, cookieMaxAge)
	h.log.WithField("username", req.Username).Info("login successful")
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// logout clears the session by issuing an already-expired cookie.
func (h *Handler) logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// authStatus reports whether the current session cookie is valid.
func (h *Handler) authStatus(c *gin.Context) {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}

	claims, err := h.auth.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          claims.Username,
	})
}

// setSessionCookie writes the session cookie. HTTP-only and Secure, with
// SameSite=None so the dashboard can call the API cross-site.
func (h *Handler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(SessionCookie, token, maxAge, "/", "", true, true)
}
