package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/models"
	"socialsync/remote"
	"socialsync/services"
	"socialsync/viewstate"
)

func TestStatusOf(t *testing.T) {
	notFound := &remote.Error{StatusCode: 404, Status: "NOT_FOUND", Message: "no such doc"}

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"auth required", services.ErrAuthRequired, http.StatusUnauthorized, "Authentication required"},
		{"invalid", fmt.Errorf("%w: content is required", services.ErrInvalidArgument), http.StatusBadRequest, "invalid argument: content is required"},
		{"not found wins over remote", fmt.Errorf("get: %w: %w", services.ErrNotFound, notFound), http.StatusNotFound, "Not found"},
		{"permission denied passes through", &remote.Error{StatusCode: 403, Message: "Missing or insufficient permissions."}, http.StatusForbidden, "Missing or insufficient permissions."},
		{"unauthenticated passes through", fmt.Errorf("list: %w", &remote.Error{StatusCode: 401, Status: "UNAUTHENTICATED"}), http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"other remote is a bad gateway", &remote.Error{StatusCode: 500, Message: "backend error"}, http.StatusBadGateway, "backend error"},
		{"request deadline", fmt.Errorf("list posts: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "Request timed out"},
		{"caller went away", fmt.Errorf("like post: %w", context.Canceled), statusClientClosedRequest, "Request cancelled"},
		{"google disabled", services.ErrGoogleDisabled, http.StatusServiceUnavailable, "Google OAuth not configured"},
		{"anything else", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusOf(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, msg)
		})
	}
}

type sent struct {
	to      string
	msgType string
	payload any
}

type recordingHub struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingHub) Broadcast(msgType string, payload any) {
	r.SendToUser("", msgType, payload)
}

func (r *recordingHub) SendToUser(userID, msgType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{"user:" + userID, msgType, payload})
}

func (r *recordingHub) SendToSession(sessionID, msgType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{sessionID, msgType, payload})
}

func TestFeedActionsReachTheHub(t *testing.T) {
	hub := &recordingHub{}
	h := New(Options{Hub: hub})

	post := models.Post{ID: "p1", Title: "t"}
	h.Feeds().Dispatch("s1", viewstate.Success([]models.Post{post}))
	h.Feeds().Dispatch("s2", viewstate.Start[models.Post]())

	post.Title = "t2"
	h.Feeds().DispatchAll(viewstate.Update(post))

	hub.mu.Lock()
	defer hub.mu.Unlock()
	require.Len(t, hub.sent, 4)
	assert.Equal(t, sent{"s1", "posts/fetchSuccess", []models.Post{{ID: "p1", Title: "t"}}}, hub.sent[0])
	assert.Equal(t, "posts/fetchStart", hub.sent[1].msgType)

	var updated []string
	for _, s := range hub.sent[2:] {
		assert.Equal(t, "posts/updateOne", s.msgType)
		updated = append(updated, s.to)
	}
	assert.ElementsMatch(t, []string{"s1", "s2"}, updated)
	assert.Equal(t, "t2", h.Feeds().Get("s1").State().Items[0].Title)
}
