package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"socialsync/models"
	"socialsync/services"
	"socialsync/viewstate"
)

type CreatePostRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

type CommentRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := sessionOf(c)
	post, err := h.posts.CreatePost(c.Request.Context(), sess, req.Title, req.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.feeds.Dispatch(sess.ID, viewstate.Add(post))
	if h.hub != nil {
		h.hub.Broadcast("posts/created", gin.H{"id": post.ID, "authorId": post.AuthorID})
	}
	c.JSON(http.StatusCreated, post)
}

// GetPosts lists posts; ?scope=following narrows to followed authors.
func (h *Handler) GetPosts(c *gin.Context) {
	scope, err := services.ParseScope(c.DefaultQuery("scope", "all"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.listInto(c, scope)
}

// GetFeed is the home feed: the caller's posts and those of followed users.
func (h *Handler) GetFeed(c *gin.Context) {
	h.listInto(c, services.ScopeFollowing)
}

// listInto fetches posts and records the fetch in the caller's feed state.
func (h *Handler) listInto(c *gin.Context, scope services.Scope) {
	sess := sessionOf(c)
	key := ""
	if sess != nil {
		key = sess.ID
		h.feeds.Dispatch(key, viewstate.Start[models.Post]())
	}

	posts, err := h.posts.GetPosts(c.Request.Context(), sess, scope)
	if err != nil {
		if key != "" {
			_, msg := statusOf(err)
			h.feeds.Dispatch(key, viewstate.Failure[models.Post](msg))
		}
		h.respondError(c, err)
		return
	}
	if key != "" {
		h.feeds.Dispatch(key, viewstate.Success(posts))
	}
	c.JSON(http.StatusOK, posts)
}

// GetFeedState returns the caller's feed view state.
func (h *Handler) GetFeedState(c *gin.Context) {
	sess := sessionOf(c)
	c.JSON(http.StatusOK, h.feeds.Get(sess.ID).State())
}

func (h *Handler) GetUserPosts(c *gin.Context) {
	posts, err := h.posts.GetUserPosts(c.Request.Context(), sessionOf(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *Handler) UpdatePost(c *gin.Context) {
	var patch models.PostPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.posts.UpdatePost(c.Request.Context(), sessionOf(c), c.Param("id"), patch)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.feeds.DispatchAll(viewstate.Update(post))
	c.JSON(http.StatusOK, post)
}

func (h *Handler) DeletePost(c *gin.Context) {
	id := c.Param("id")
	if err := h.posts.DeletePost(c.Request.Context(), sessionOf(c), id); err != nil {
		h.respondError(c, err)
		return
	}
	h.feeds.DispatchAll(viewstate.Remove[models.Post](id))
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

// LikePost toggles the caller's like.
func (h *Handler) LikePost(c *gin.Context) {
	sess := sessionOf(c)
	post, err := h.posts.LikePost(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.feeds.DispatchAll(viewstate.Update(post))
	if post.LikedBy(sess.UserID) && post.AuthorID != sess.UserID {
		h.notifier.Liked(post.AuthorID, sess.DisplayName, post.ID)
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handler) AddComment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := sessionOf(c)
	post, err := h.posts.AddComment(c.Request.Context(), sess, c.Param("id"), req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.feeds.DispatchAll(viewstate.Update(post))
	if post.AuthorID != sess.UserID {
		h.notifier.Commented(post.AuthorID, sess.DisplayName, post.ID, req.Text)
	}
	c.JSON(http.StatusCreated, post)
}
