package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const oauthStateCookie = "oauth_state"

type GoogleAuthRequest struct {
	Credential string `json:"credential" binding:"required"`
	RequestURI string `json:"requestUri"`
}

// GoogleAuthWithCredential signs in with a Google Identity Services credential.
func (h *Handler) GoogleAuthWithCredential(c *gin.Context) {
	var req GoogleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.auth.LoginWithGoogle(c.Request.Context(), req.Credential, req.RequestURI)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issue(c, http.StatusOK, sess)
}

// GetGoogleAuthURL starts the authorization code flow.
func (h *Handler) GetGoogleAuthURL(c *gin.Context) {
	state := uuid.NewString()
	url, err := h.auth.GoogleAuthURL(state)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.SetCookie(oauthStateCookie, state, 600, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// GoogleOAuthCallback finishes the authorization code flow.
func (h *Handler) GoogleOAuthCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authorization code missing"})
		return
	}
	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OAuth state"})
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", false, true)

	sess, err := h.auth.ExchangeGoogleCode(c.Request.Context(), code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issue(c, http.StatusOK, sess)
}
