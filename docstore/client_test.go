package docstore_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"socialsync/docstore"
	"socialsync/docstore/docstoretest"
	"socialsync/remote"
)

func newClient(t *testing.T) (*docstore.Client, *docstoretest.Server) {
	srv := docstoretest.NewServer(t)
	return docstore.NewClient(srv.BaseURL(), docstoretest.Project, docstoretest.Database, srv.Client(), nil), srv
}

func TestClientCRUD(t *testing.T) {
	ctx := context.Background()
	c, srv := newClient(t)
	srv.RequireToken("tok")

	created, err := c.Create(ctx, "tok", "posts", "", docstore.Fields{
		"title": docstore.String("first"),
		"likes": docstore.Array(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID())
	assert.False(t, created.UpdateTime.IsZero())

	got, err := c.Get(ctx, "tok", "posts", created.ID())
	require.NoError(t, err)
	assert.Equal(t, "first", got.Fields.String("title"))

	t.Run("masked patch leaves other fields", func(t *testing.T) {
		patched, err := c.Patch(ctx, "tok", "posts", created.ID(),
			docstore.Fields{"title": docstore.String("second")},
			docstore.WithMask("title"))
		require.NoError(t, err)
		assert.Equal(t, "second", patched.Fields.String("title"))
		assert.True(t, patched.Fields.Has("likes"))
	})

	t.Run("stale update time is a conflict", func(t *testing.T) {
		_, err := c.Patch(ctx, "tok", "posts", created.ID(),
			docstore.Fields{"title": docstore.String("third")},
			docstore.WithMask("title"),
			docstore.WithPrecondition(docstore.UpdatedAt(created.UpdateTime)))
		require.Error(t, err)
		assert.True(t, remote.IsConflict(err))
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		_, err := c.Get(ctx, "other", "posts", created.ID())
		assert.True(t, remote.IsUnauthorized(err))
	})

	require.NoError(t, c.Delete(ctx, "tok", "posts", created.ID()))
	_, err = c.Get(ctx, "tok", "posts", created.ID())
	assert.True(t, remote.IsNotFound(err))

	// deleting again still succeeds
	assert.NoError(t, c.Delete(ctx, "tok", "posts", created.ID()))
}

func TestClientListPagesAndSkips(t *testing.T) {
	ctx := context.Background()
	c, srv := newClient(t)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		srv.Put("posts", id, docstore.Fields{"title": docstore.String(id)})
	}
	srv.PutRaw("posts", "bad", `{"name":"projects/x/databases/(default)/documents/posts/bad","fields":{"title":{"weirdValue":1}}}`)

	result, err := c.List(ctx, "", "posts", 2)
	require.NoError(t, err)
	assert.Len(t, result.Documents, 5)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "bad", docstore.DocumentID(result.Skipped[0].Name))
}

func TestClientCommitTransforms(t *testing.T) {
	ctx := context.Background()
	c, srv := newClient(t)
	srv.Put("users", "u1", docstore.Fields{"following": docstore.Strings([]string{"u3"})})
	srv.Put("users", "u2", docstore.Fields{})

	_, err := c.Commit(ctx, "",
		c.TransformWrite("users", "u1", docstore.AppendMissing("following", docstore.String("u2"))).If(docstore.MustExist()),
		c.TransformWrite("users", "u2", docstore.AppendMissing("followers", docstore.String("u1"))).If(docstore.MustExist()),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"u3", "u2"}, srv.Fields("users", "u1").Strings("following"))
	assert.Equal(t, []string{"u1"}, srv.Fields("users", "u2").Strings("followers"))

	t.Run("a failed precondition applies nothing", func(t *testing.T) {
		_, err := c.Commit(ctx, "",
			c.TransformWrite("users", "u1", docstore.RemoveAll("following", docstore.String("u2"))).If(docstore.MustExist()),
			c.TransformWrite("users", "ghost", docstore.RemoveAll("followers", docstore.String("u1"))).If(docstore.MustExist()),
		)
		require.Error(t, err)
		assert.True(t, remote.IsNotFound(err))
		assert.Equal(t, []string{"u3", "u2"}, srv.Fields("users", "u1").Strings("following"))
	})
}

func TestClientCommitMaskedUpdate(t *testing.T) {
	ctx := context.Background()
	c, srv := newClient(t)
	srv.Put("users", "u1", docstore.Fields{
		"bio":       docstore.String("old"),
		"followers": docstore.Strings([]string{"u2"}),
	})

	write := c.UpdateWrite("users", "u1", docstore.Fields{"bio": docstore.String("new")}, "bio").
		WithTransforms(docstore.ServerTime("updatedAt")).
		If(docstore.MustExist())
	result, err := c.Commit(ctx, "", write)
	require.NoError(t, err)
	require.Len(t, result.WriteResults, 1)

	fields := srv.Fields("users", "u1")
	assert.Equal(t, "new", fields.String("bio"))
	assert.Equal(t, []string{"u2"}, fields.Strings("followers"), "fields outside the mask are kept")
	stamped, ok := fields.Time("updatedAt")
	require.True(t, ok)
	assert.True(t, stamped.Equal(result.CommitTime))

	t.Run("missing document", func(t *testing.T) {
		_, err := c.Commit(ctx, "", c.UpdateWrite("users", "ghost", docstore.Fields{}, "bio").If(docstore.MustExist()))
		assert.True(t, remote.IsNotFound(err))
		assert.Nil(t, srv.Fields("users", "ghost"))
	})
}

func TestClientRemoteErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"Missing or insufficient permissions.","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	c := docstore.NewClient(srv.URL, "p", "", srv.Client(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := c.Get(ctx, "tok", "posts", "x")
	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusForbidden, re.StatusCode)
	assert.Equal(t, "Missing or insufficient permissions.", re.Message)
}
