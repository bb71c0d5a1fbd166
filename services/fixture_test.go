package services

import (
	"context"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"socialsync/docstore"
	"socialsync/docstore/docstoretest"
	"socialsync/models"
	"socialsync/session"
)

var testNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	srv      *docstoretest.Server
	client   *docstore.Client
	sessions *session.MemoryStore
	logs     *observer.ObservedLogs
	posts    *PostService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := docstoretest.NewServer(t)
	client := docstore.NewClient(srv.BaseURL(), docstoretest.Project, docstoretest.Database, srv.Client(), nil)
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	sessions := session.NewMemoryStore()

	cfg := SyncConfig{PageSize: 2, MaxAttempts: 10}
	posts := NewPostService(client, cfg, logger)
	posts.now = func() time.Time { return testNow }
	users := NewUserService(client, sessions, fakePhotos{url: "https://img.example/u.jpg"}, cfg, logger)
	users.now = func() time.Time { return testNow }

	return &fixture{
		srv:      srv,
		client:   client,
		sessions: sessions,
		logs:     logs,
		posts:    posts,
		users:    users,
	}
}

func newSession(userID string, following ...string) *models.Session {
	if following == nil {
		following = []string{}
	}
	return &models.Session{
		ID:          "sess-" + userID,
		Token:       "tok-" + userID,
		UserID:      userID,
		FirstName:   "First" + userID,
		LastName:    "Last",
		DisplayName: "First" + userID + " Last",
		PhotoURL:    "https://img.example/" + userID,
		Following:   following,
	}
}

func (f *fixture) putUser(id, first, last string, following, followers []string) {
	fields := newUserFields(id+"@example.com", first, last, "", testNow)
	fields["following"] = docstore.Strings(following)
	fields["followers"] = docstore.Strings(followers)
	f.srv.Put(usersCollection, id, fields)
}

func (f *fixture) putPost(id, author string, created time.Time) {
	f.srv.Put(postsCollection, id, docstore.Fields{
		"title":      docstore.String("title " + id),
		"content":    docstore.String("content " + id),
		"userId":     docstore.String(author),
		"authorName": docstore.String("Author " + author),
		"createdAt":  docstore.Timestamp(created),
		"likes":      docstore.Array(),
		"comments":   docstore.Array(),
	})
}

type fakePhotos struct {
	url string
	err error
}

func (p fakePhotos) Process(_ context.Context, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	if p.err != nil {
		return "", p.err
	}
	return p.url, nil
}
