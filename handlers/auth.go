package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialsync/media"
	"socialsync/models"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SignupForm struct {
	Email     string `form:"email" binding:"required,email"`
	Password  string `form:"password" binding:"required,min=6"`
	FirstName string `form:"firstName"`
	LastName  string `form:"lastName"`
}

// Signup accepts a JSON body or a multipart form with an optional "photo" file.
func (h *Handler) Signup(c *gin.Context) {
	var form SignupForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := models.RegisterRequest{
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	}
	if file, err := c.FormFile("photo"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
			return
		}
		defer f.Close()
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(f, media.MaxUploadBytes+1)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read photo"})
			return
		}
		req.Photo = buf.Bytes()
	}

	sess, err := h.auth.Register(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("user registered", zap.String("user", sess.UserID))
	h.issue(c, http.StatusCreated, sess)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.issue(c, http.StatusOK, sess)
}

func (h *Handler) Logout(c *gin.Context) {
	sess := sessionOf(c)
	if err := h.auth.Logout(c.Request.Context(), sess); err != nil {
		h.respondError(c, err)
		return
	}
	if sess != nil {
		h.feeds.Forget(sess.ID)
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
