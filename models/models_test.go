package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", DisplayName("Ada", "Lovelace"))
	assert.Equal(t, "Ada", DisplayName(" Ada ", ""))
	assert.Equal(t, "Lovelace", DisplayName("", "Lovelace"))
	assert.Equal(t, UnknownUser, DisplayName("", "  "))
}

func TestSessionHelpers(t *testing.T) {
	var nilSession *Session
	assert.False(t, nilSession.Valid())
	assert.False(t, nilSession.Follows("u2"))

	s := &Session{Token: "tok", UserID: "u1", Following: []string{"u2"}}
	assert.True(t, s.Valid())
	assert.True(t, s.Follows("u2"))
	assert.False(t, s.Follows("u3"))
	assert.False(t, (&Session{UserID: "u1"}).Valid())
}

func TestPostHelpers(t *testing.T) {
	p := Post{Likes: []string{"u1"}}
	assert.True(t, p.LikedBy("u1"))
	assert.False(t, p.LikedBy("u2"))

	title := "t"
	assert.True(t, PostPatch{}.Empty())
	assert.False(t, PostPatch{Title: &title}.Empty())
}
