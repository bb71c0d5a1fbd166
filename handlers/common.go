package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialsync/middleware"
	"socialsync/models"
	"socialsync/notify"
	"socialsync/remote"
	"socialsync/services"
	"socialsync/viewstate"
)

// Broadcaster pushes messages to connected browsers.
type Broadcaster interface {
	Broadcast(msgType string, payload any)
	SendToUser(userID, msgType string, payload any)
	SendToSession(sessionID, msgType string, payload any)
}

// Handler serves the HTTP API.
type Handler struct {
	auth     *services.AuthService
	posts    *services.PostService
	users    *services.UserService
	tokens   *middleware.Tokens
	notifier *notify.Notifier
	hub      Broadcaster
	feeds    *viewstate.Registry[models.Post]
	logger   *zap.Logger
}

type Options struct {
	Auth     *services.AuthService
	Posts    *services.PostService
	Users    *services.UserService
	Tokens   *middleware.Tokens
	Notifier *notify.Notifier
	Hub      Broadcaster
	Logger   *zap.Logger
}

// New returns a Handler. Feed state is kept per session, and every action
// applied to it is forwarded to that session's websocket connections.
func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(notify.NewMemorySubscriptions(), notify.Config{}, logger)
	}
	h := &Handler{
		auth:     opts.Auth,
		posts:    opts.Posts,
		users:    opts.Users,
		tokens:   opts.Tokens,
		notifier: notifier,
		hub:      opts.Hub,
		feeds:    viewstate.NewRegistry[models.Post]("posts"),
		logger:   logger,
	}
	if h.hub != nil {
		h.feeds.Subscribe(func(sessionID string, a viewstate.Action[models.Post]) {
			if sessionID == "" {
				return
			}
			msg := h.feeds.Message(a)
			h.hub.SendToSession(sessionID, msg.Type, msg.Payload)
		})
	}
	return h
}

// Feeds exposes the per-session feed state.
func (h *Handler) Feeds() *viewstate.Registry[models.Post] { return h.feeds }

// statusClientClosedRequest is reported when the caller went away mid-request.
const statusClientClosedRequest = 499

// respondError maps a service error to a status and the {"error": msg} body.
func (h *Handler) respondError(c *gin.Context, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func statusOf(err error) (int, string) {
	var re *remote.Error
	switch {
	case errors.Is(err, services.ErrAuthRequired):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, services.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.As(err, &re):
		msg := re.Message
		if msg == "" {
			msg = re.Status
		}
		if re.StatusCode == http.StatusUnauthorized || re.StatusCode == http.StatusForbidden {
			return re.StatusCode, msg
		}
		return http.StatusBadGateway, msg
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Request timed out"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "Request cancelled"
	case errors.Is(err, services.ErrGoogleDisabled):
		return http.StatusServiceUnavailable, "Google OAuth not configured"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// sessionOf returns the caller's session; the services reject a nil one.
func sessionOf(c *gin.Context) *models.Session {
	return middleware.SessionFrom(c)
}

func (h *Handler) issue(c *gin.Context, status int, sess *models.Session) {
	token, err := h.tokens.Issue(sess)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(status, gin.H{
		"token":   token,
		"userId":  sess.UserID,
		"session": sess,
	})
}
