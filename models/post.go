package models

import "time"

// Anonymous is the author name of posts and comments written without one.
const Anonymous = "Anonymous"

type Post struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorPhoto string    `json:"authorPhoto"`
	CreatedAt   time.Time `json:"createdAt"`
	Likes       []string  `json:"likes"`
	Comments    []Comment `json:"comments"`
}

// GetID makes Post usable in view state lists.
func (p Post) GetID() string { return p.ID }

// LikedBy reports whether userID is in the like set.
func (p Post) LikedBy(userID string) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}

// Comment has no id of its own; it is identified by its position in Post.Comments.
type Comment struct {
	Content     string    `json:"content"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	AuthorPhoto string    `json:"authorPhoto"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PostPatch carries the fields of an update. Nil fields are left untouched.
type PostPatch struct {
	Title    *string    `json:"title,omitempty"`
	Content  *string    `json:"content,omitempty"`
	Comments *[]Comment `json:"comments,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Comments == nil
}
