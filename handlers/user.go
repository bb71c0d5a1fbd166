package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialsync/media"
	"socialsync/models"
)

func (h *Handler) GetMyProfile(c *gin.Context) {
	sess := sessionOf(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	user, err := h.users.GetProfile(c.Request.Context(), sess, sess.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateMyProfile(c *gin.Context) {
	var req models.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), sessionOf(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UploadPhoto replaces the caller's profile photo with the "photo" form file.
func (h *Handler) UploadPhoto(c *gin.Context) {
	file, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No photo provided"})
		return
	}
	if file.Size > media.MaxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Photo is too large"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
		return
	}
	defer f.Close()

	url, err := h.users.UpdatePhoto(c.Request.Context(), sessionOf(c), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photoUrl": url})
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.users.GetProfile(c.Request.Context(), sessionOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context(), sessionOf(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// GetUserNames resolves ?ids=a,b,c to names, in the order given.
func (h *Handler) GetUserNames(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids is required"})
		return
	}

	names, err := h.users.GetUserNames(c.Request.Context(), sessionOf(c), ids)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, names)
}

func (h *Handler) Follow(c *gin.Context) {
	sess := sessionOf(c)
	target := c.Param("id")
	if err := h.users.Follow(c.Request.Context(), sess, target); err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Debug("follow", zap.String("user", sess.UserID), zap.String("target", target))
	h.notifier.Followed(target, sess.DisplayName)
	if h.hub != nil {
		h.hub.SendToUser(target, "users/followed", gin.H{"userId": sess.UserID})
	}
	c.JSON(http.StatusOK, gin.H{"following": sess.Following})
}

func (h *Handler) Unfollow(c *gin.Context) {
	sess := sessionOf(c)
	if err := h.users.Unfollow(c.Request.Context(), sess, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": sess.Following})
}
