package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"socialsync/docstore"
	"socialsync/models"
	"socialsync/remote"
)

// Scope selects which posts GetPosts returns.
type Scope int

const (
	ScopeAll       Scope = iota // every post
	ScopeFollowing              // posts by followed users and the caller
)

// ParseScope maps "all" and "following"; empty means all.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ScopeAll, nil
	case "following":
		return ScopeFollowing, nil
	}
	return ScopeAll, invalid(fmt.Sprintf("unknown scope %q", s))
}

type PostService struct {
	store  DocumentStore
	cfg    SyncConfig
	logger *zap.Logger
	now    func() time.Time

	likes singleflight.Group
}

func NewPostService(store DocumentStore, cfg SyncConfig, logger *zap.Logger) *PostService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// CreatePost stores a new post authored by the session user.
func (s *PostService) CreatePost(ctx context.Context, sess *models.Session, title, content string) (models.Post, error) {
	if err := requireSession(sess); err != nil {
		return models.Post{}, err
	}
	if strings.TrimSpace(content) == "" {
		return models.Post{}, invalid("content is required")
	}

	doc, err := s.store.Create(ctx, sess.Token, postsCollection, "", newPostFields(title, content, sess, s.now()))
	if err != nil {
		return models.Post{}, wrap("create post", err)
	}
	post, err := decodePost(doc, s.now())
	if err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// GetPosts returns the posts in scope, newest first.
func (s *PostService) GetPosts(ctx context.Context, sess *models.Session, scope Scope) ([]models.Post, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	var keep func(models.Post) bool
	if scope == ScopeFollowing {
		keep = func(p models.Post) bool {
			return p.AuthorID == sess.UserID || sess.Follows(p.AuthorID)
		}
	}
	return s.list(ctx, sess, keep)
}

// GetUserPosts returns the posts written by authorID, newest first.
func (s *PostService) GetUserPosts(ctx context.Context, sess *models.Session, authorID string) ([]models.Post, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.list(ctx, sess, func(p models.Post) bool { return p.AuthorID == authorID })
}

func (s *PostService) list(ctx context.Context, sess *models.Session, keep func(models.Post) bool) ([]models.Post, error) {
	result, err := s.store.List(ctx, sess.Token, postsCollection, s.cfg.PageSize)
	if err != nil {
		return nil, wrap("list posts", err)
	}
	for _, sk := range result.Skipped {
		s.skip(&DecodeSkip{Name: sk.Name, Err: sk.Err})
	}

	now := s.now()
	posts := make([]models.Post, 0, len(result.Documents))
	for _, doc := range result.Documents {
		post, err := decodePost(doc, now)
		if err != nil {
			s.skip(&DecodeSkip{Name: doc.Name, Err: err})
			continue
		}
		if keep == nil || keep(post) {
			posts = append(posts, post)
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

func (s *PostService) skip(d *DecodeSkip) {
	s.logger.Warn("skipping undecodable post", zap.String("name", d.Name), zap.Error(d.Err))
}

// UpdatePost writes only the fields set in patch. Supplied comments replace
// the whole list.
func (s *PostService) UpdatePost(ctx context.Context, sess *models.Session, postID string, patch models.PostPatch) (models.Post, error) {
	if err := requireSession(sess); err != nil {
		return models.Post{}, err
	}
	if postID == "" {
		return models.Post{}, invalid("post id is required")
	}
	if patch.Empty() {
		return models.Post{}, invalid("nothing to update")
	}

	fields := docstore.Fields{}
	var mask []string
	if patch.Title != nil {
		fields["title"] = docstore.String(*patch.Title)
		mask = append(mask, "title")
	}
	if patch.Content != nil {
		fields["content"] = docstore.String(*patch.Content)
		mask = append(mask, "content")
	}
	if patch.Comments != nil {
		fields["comments"] = commentsValue(*patch.Comments)
		mask = append(mask, "comments")
	}

	doc, err := s.store.Patch(ctx, sess.Token, postsCollection, postID, fields,
		docstore.WithMask(mask...),
		docstore.WithPrecondition(docstore.MustExist()))
	if err != nil {
		return models.Post{}, wrap("update post", err)
	}
	return decodePost(doc, s.now())
}

// DeletePost removes the post. Deleting a missing post succeeds.
func (s *PostService) DeletePost(ctx context.Context, sess *models.Session, postID string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if postID == "" {
		return invalid("post id is required")
	}
	if err := s.store.Delete(ctx, sess.Token, postsCollection, postID); err != nil {
		return wrap("delete post", err)
	}
	return nil
}

// LikePost toggles the session user's like. Concurrent toggles by the same
// user on the same post share one result.
func (s *PostService) LikePost(ctx context.Context, sess *models.Session, postID string) (models.Post, error) {
	if err := requireSession(sess); err != nil {
		return models.Post{}, err
	}
	if postID == "" {
		return models.Post{}, invalid("post id is required")
	}

	// The shared toggle outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := s.likes.DoChan(sess.UserID+"/"+postID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
		defer cancel()
		return s.toggleLike(ctx, sess, postID)
	})
	select {
	case <-ctx.Done():
		return models.Post{}, fmt.Errorf("like post: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return models.Post{}, res.Err
		}
		return res.Val.(models.Post), nil
	}
}

// toggleLike writes likes guarded by the update time it read, and starts over
// when another writer got there first.
func (s *PostService) toggleLike(ctx context.Context, sess *models.Session, postID string) (models.Post, error) {
	for attempt := 1; ; attempt++ {
		doc, err := s.store.Get(ctx, sess.Token, postsCollection, postID)
		if err != nil {
			return models.Post{}, wrap("like post", err)
		}

		likes := toggle(doc.Fields.Strings("likes"), sess.UserID)
		updated, err := s.store.Patch(ctx, sess.Token, postsCollection, postID,
			docstore.Fields{"likes": docstore.Strings(likes)},
			docstore.WithMask("likes"),
			docstore.WithPrecondition(docstore.UpdatedAt(doc.UpdateTime)))
		if err == nil {
			return decodePost(updated, s.now())
		}
		if !remote.IsConflict(err) || attempt >= s.cfg.MaxAttempts {
			return models.Post{}, wrap("like post", err)
		}
		if ctx.Err() != nil {
			return models.Post{}, ctx.Err()
		}
		s.logger.Debug("like conflict, retrying",
			zap.String("post", postID),
			zap.Int("attempt", attempt),
		)
	}
}

// AddComment appends a comment by the session user and returns the post.
func (s *PostService) AddComment(ctx context.Context, sess *models.Session, postID, text string) (models.Post, error) {
	if err := requireSession(sess); err != nil {
		return models.Post{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Post{}, invalid("comment text is required")
	}
	if postID == "" {
		return models.Post{}, invalid("post id is required")
	}

	comment := models.Comment{
		Content:     text,
		AuthorID:    sess.UserID,
		AuthorName:  authorName(sess.FirstName, sess.LastName),
		AuthorPhoto: sess.PhotoURL,
		CreatedAt:   s.now().UTC(),
	}
	write := s.store.TransformWrite(postsCollection, postID,
		docstore.AppendMissing("comments", commentValue(comment))).
		If(docstore.MustExist())
	if _, err := s.store.Commit(ctx, sess.Token, write); err != nil {
		return models.Post{}, wrap("add comment", err)
	}

	doc, err := s.store.Get(ctx, sess.Token, postsCollection, postID)
	if err != nil {
		return models.Post{}, wrap("add comment", err)
	}
	return decodePost(doc, s.now())
}
