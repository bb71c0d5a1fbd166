package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"socialsync/docstore"
	"socialsync/models"
	"socialsync/remote"
)

func TestNoSessionSendsNoRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	anon := &models.Session{UserID: "u1"} // no token

	_, err := f.posts.CreatePost(ctx, nil, "t", "c")
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = f.posts.GetPosts(ctx, anon, ScopeAll)
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = f.posts.UpdatePost(ctx, nil, "p1", models.PostPatch{})
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.ErrorIs(t, f.posts.DeletePost(ctx, nil, "p1"), ErrAuthRequired)
	_, err = f.posts.LikePost(ctx, nil, "p1")
	assert.ErrorIs(t, err, ErrAuthRequired)
	_, err = f.posts.AddComment(ctx, nil, "p1", "hi")
	assert.ErrorIs(t, err, ErrAuthRequired)
	assert.ErrorIs(t, f.users.Follow(ctx, nil, "u2"), ErrAuthRequired)
	assert.ErrorIs(t, f.users.Unfollow(ctx, anon, "u2"), ErrAuthRequired)
	_, err = f.users.ListUsers(ctx, nil)
	assert.ErrorIs(t, err, ErrAuthRequired)

	assert.Zero(t, f.srv.Requests())
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	sess := newSession("u1")

	post, err := f.posts.CreatePost(context.Background(), sess, "Hello", "first post")
	require.NoError(t, err)

	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "first post", post.Content)
	assert.Equal(t, "u1", post.AuthorID)
	assert.Equal(t, "Firstu1 Last", post.AuthorName)
	assert.Equal(t, sess.PhotoURL, post.AuthorPhoto)
	assert.True(t, testNow.Equal(post.CreatedAt))
	assert.Equal(t, []string{}, post.Likes)
	assert.Equal(t, []models.Comment{}, post.Comments)

	stored := f.srv.Fields(postsCollection, post.ID)
	assert.Equal(t, docstore.KindArray, stored["likes"].Kind())
	assert.Equal(t, "u1", stored.String("userId"))

	_, err = f.posts.CreatePost(context.Background(), sess, "t", "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestGetPostsScope(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.putPost("p1", "u1", base.Add(1*time.Hour))
	f.putPost("p2", "u2", base.Add(3*time.Hour))
	f.putPost("p3", "u3", base.Add(2*time.Hour))
	f.putPost("p4", "u2", base)

	sess := newSession("u1", "u2")
	ctx := context.Background()

	ids := func(posts []models.Post) []string {
		out := make([]string, 0, len(posts))
		for _, p := range posts {
			out = append(out, p.ID)
		}
		return out
	}

	t.Run("following keeps followed authors and self", func(t *testing.T) {
		posts, err := f.posts.GetPosts(ctx, sess, ScopeFollowing)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p1", "p4"}, ids(posts))
	})

	t.Run("all is newest first", func(t *testing.T) {
		posts, err := f.posts.GetPosts(ctx, sess, ScopeAll)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p3", "p1", "p4"}, ids(posts))
		for i := 1; i < len(posts); i++ {
			assert.False(t, posts[i].CreatedAt.After(posts[i-1].CreatedAt))
		}
	})

	t.Run("user posts", func(t *testing.T) {
		posts, err := f.posts.GetUserPosts(ctx, sess, "u2")
		require.NoError(t, err)
		assert.Equal(t, []string{"p2", "p4"}, ids(posts))
	})
}

func TestGetPostsDecoding(t *testing.T) {
	f := newFixture(t)
	f.srv.Put(postsCollection, "bare", docstore.Fields{"content": docstore.String("x")})
	f.putPost("ok", "u2", testNow.Add(-time.Hour))
	f.srv.PutRaw(postsCollection, "broken", `{"name":"projects/test-project/databases/(default)/documents/posts/broken","fields":{"likes":{"oddValue":true}}}`)

	posts, err := f.posts.GetPosts(context.Background(), newSession("u1"), ScopeAll)
	require.NoError(t, err)
	require.Len(t, posts, 2)

	bare := posts[0]
	assert.Equal(t, "bare", bare.ID)
	assert.Equal(t, []string{}, bare.Likes, "missing likes decode to an empty set")
	assert.Equal(t, models.Anonymous, bare.AuthorName)
	assert.True(t, testNow.Equal(bare.CreatedAt))

	warnings := f.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].ContextMap()["name"], "posts/broken")
}

func TestUpdatePost(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u1", testNow)
	sess := newSession("u1")
	ctx := context.Background()

	title := "new title"
	post, err := f.posts.UpdatePost(ctx, sess, "p1", models.PostPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "new title", post.Title)
	assert.Equal(t, "content p1", post.Content)

	comments := []models.Comment{{Content: "only", AuthorID: "u2", AuthorName: "B", CreatedAt: testNow}}
	post, err = f.posts.UpdatePost(ctx, sess, "p1", models.PostPatch{Comments: &comments})
	require.NoError(t, err)
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "only", post.Comments[0].Content)
	assert.Equal(t, "new title", post.Title)

	_, err = f.posts.UpdatePost(ctx, sess, "p1", models.PostPatch{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.posts.UpdatePost(ctx, sess, "missing", models.PostPatch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, f.srv.Fields(postsCollection, "missing"))
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u1", testNow)
	sess := newSession("u1")

	require.NoError(t, f.posts.DeletePost(context.Background(), sess, "p1"))
	assert.Nil(t, f.srv.Fields(postsCollection, "p1"))
	assert.NoError(t, f.posts.DeletePost(context.Background(), sess, "p1"))
}

func TestLikePostToggle(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u2", testNow)
	f.srv.Put(postsCollection, "p2", docstore.Fields{"userId": docstore.String("u2")})
	sess := newSession("u1")
	ctx := context.Background()

	post, err := f.posts.LikePost(ctx, sess, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, post.Likes)

	post, err = f.posts.LikePost(ctx, sess, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{}, post.Likes)

	t.Run("post without likes field", func(t *testing.T) {
		post, err := f.posts.LikePost(ctx, sess, "p2")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, post.Likes)
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := f.posts.LikePost(ctx, sess, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLikePostConcurrentUsers(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u0", testNow)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.posts.LikePost(context.Background(), newSession(fmt.Sprintf("u%d", i+1)), "p1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, []string{"u1", "u2", "u3", "u4", "u5", "u6"},
		f.srv.Fields(postsCollection, "p1").Strings("likes"))
}

// racingStore lets another writer change the post between the read and the
// write of the first like attempt.
type racingStore struct {
	DocumentStore
	once  sync.Once
	raced func()
}

func (r *racingStore) Get(ctx context.Context, token, collection, id string) (*docstore.Document, error) {
	doc, err := r.DocumentStore.Get(ctx, token, collection, id)
	r.once.Do(r.raced)
	return doc, err
}

func TestLikePostRetriesOnConflict(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u0", testNow)
	race := func() {
		f.srv.Put(postsCollection, "p1", docstore.Fields{
			"userId": docstore.String("u0"),
			"likes":  docstore.Strings([]string{"u9"}),
		})
	}

	t.Run("retry keeps the concurrent like", func(t *testing.T) {
		svc := NewPostService(&racingStore{DocumentStore: f.client, raced: race}, SyncConfig{MaxAttempts: 3}, nil)
		post, err := svc.LikePost(context.Background(), newSession("u1"), "p1")
		require.NoError(t, err)
		assert.Equal(t, []string{"u9", "u1"}, post.Likes)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		f.putPost("p1", "u0", testNow)
		svc := NewPostService(&racingStore{DocumentStore: f.client, raced: race}, SyncConfig{MaxAttempts: 1}, nil)
		_, err := svc.LikePost(context.Background(), newSession("u1"), "p1")
		require.Error(t, err)
		assert.True(t, remote.IsConflict(err))
		assert.Equal(t, []string{"u9"}, f.srv.Fields(postsCollection, "p1").Strings("likes"))
	})
}

// gatedStore holds the first Get until release is closed.
type gatedStore struct {
	DocumentStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	gets    atomic.Int32
}

func (g *gatedStore) Get(ctx context.Context, token, collection, id string) (*docstore.Document, error) {
	if g.gets.Add(1) == 1 {
		g.once.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.DocumentStore.Get(ctx, token, collection, id)
}

func TestLikePostSharedToggleSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u0", testNow)
	store := &gatedStore{DocumentStore: f.client, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewPostService(store, SyncConfig{MaxAttempts: 3}, nil)
	sess := newSession("u1")

	ctx1, cancel1 := context.WithCancel(context.Background())
	err1 := make(chan error, 1)
	go func() {
		_, err := svc.LikePost(ctx1, sess, "p1")
		err1 <- err
	}()
	<-store.entered

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	type result struct {
		post models.Post
		err  error
	}
	res2 := make(chan result, 1)
	go func() {
		post, err := svc.LikePost(ctx2, sess, "p1")
		res2 <- result{post, err}
	}()
	// let the second caller join the in-flight toggle
	time.Sleep(50 * time.Millisecond)

	cancel1()
	assert.ErrorIs(t, <-err1, context.Canceled)

	close(store.release)
	got := <-res2
	require.NoError(t, got.err)
	assert.Equal(t, []string{"u1"}, got.post.Likes)
	assert.NoError(t, ctx2.Err())
	assert.EqualValues(t, 1, store.gets.Load(), "both callers share one toggle")
	assert.Equal(t, []string{"u1"}, f.srv.Fields(postsCollection, "p1").Strings("likes"))
}

func TestAddCommentIdenticalCommentsMerge(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u2", testNow)
	sess := newSession("u1")
	ctx := context.Background()

	_, err := f.posts.AddComment(ctx, sess, "p1", "same")
	require.NoError(t, err)
	post, err := f.posts.AddComment(ctx, sess, "p1", "same")
	require.NoError(t, err)
	assert.Len(t, post.Comments, 1, "same author, text and timestamp append once")

	f.posts.now = func() time.Time { return testNow.Add(time.Nanosecond) }
	post, err = f.posts.AddComment(ctx, sess, "p1", "same")
	require.NoError(t, err)
	assert.Len(t, post.Comments, 2, "a later timestamp is a distinct comment")
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	f.putPost("p1", "u2", testNow)
	sess := newSession("u1")
	ctx := context.Background()

	post, err := f.posts.AddComment(ctx, sess, "p1", "  hello ")
	require.NoError(t, err)
	require.Len(t, post.Comments, 1)

	c := post.Comments[0]
	assert.Equal(t, "hello", c.Content)
	assert.Equal(t, "u1", c.AuthorID)
	assert.Equal(t, "Firstu1 Last", c.AuthorName)
	assert.True(t, testNow.Equal(c.CreatedAt))
	assert.Equal(t, "content p1", post.Content)

	_, err = f.posts.AddComment(ctx, sess, "p1", "   ")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.posts.AddComment(ctx, sess, "missing", "hello")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, f.srv.Fields(postsCollection, "missing"))
}

func TestRemoteErrorsPassThrough(t *testing.T) {
	f := newFixture(t)
	f.srv.FailNext(403, "Missing or insufficient permissions.")

	_, err := f.posts.GetPosts(context.Background(), newSession("u1"), ScopeAll)
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 403, re.StatusCode)
	assert.Equal(t, "Missing or insufficient permissions.", re.Message)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, s)

	s, err = ParseScope("Following")
	require.NoError(t, err)
	assert.Equal(t, ScopeFollowing, s)

	_, err = ParseScope("friends")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
