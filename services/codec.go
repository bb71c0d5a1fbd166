package services

import (
	"errors"
	"strings"
	"time"

	"socialsync/docstore"
	"socialsync/models"
)

var errNoName = errors.New("document has no name")

func authorName(firstName, lastName string) string {
	return strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
}

func newPostFields(title, content string, sess *models.Session, now time.Time) docstore.Fields {
	return docstore.Fields{
		"title":       docstore.String(title),
		"content":     docstore.String(content),
		"userId":      docstore.String(sess.UserID),
		"authorName":  docstore.String(authorName(sess.FirstName, sess.LastName)),
		"authorPhoto": docstore.String(sess.PhotoURL),
		"createdAt":   docstore.Timestamp(now),
		"likes":       docstore.Array(),
		"comments":    docstore.Array(),
	}
}

func commentValue(c models.Comment) docstore.Value {
	return docstore.Map(docstore.Fields{
		"content":     docstore.String(c.Content),
		"authorId":    docstore.String(c.AuthorID),
		"authorName":  docstore.String(c.AuthorName),
		"authorPhoto": docstore.String(c.AuthorPhoto),
		"createdAt":   docstore.Timestamp(c.CreatedAt),
	})
}

func commentsValue(comments []models.Comment) docstore.Value {
	values := make([]docstore.Value, 0, len(comments))
	for _, c := range comments {
		values = append(values, commentValue(c))
	}
	return docstore.Array(values...)
}

func timeOr(f docstore.Fields, name string, fallback time.Time) time.Time {
	if t, ok := f.Time(name); ok {
		return t
	}
	return fallback
}

func decodeComment(f docstore.Fields, now time.Time) models.Comment {
	return models.Comment{
		Content:     f.String("content"),
		AuthorID:    f.String("authorId"),
		AuthorName:  f.StringOr("authorName", models.Anonymous),
		AuthorPhoto: f.String("authorPhoto"),
		CreatedAt:   timeOr(f, "createdAt", now),
	}
}

// decodePost maps a post document. Missing fields decode to zero values and a
// missing createdAt to now.
func decodePost(doc *docstore.Document, now time.Time) (models.Post, error) {
	if doc == nil || doc.Name == "" {
		return models.Post{}, errNoName
	}
	f := doc.Fields
	post := models.Post{
		ID:          doc.ID(),
		Title:       f.String("title"),
		Content:     f.String("content"),
		AuthorID:    f.String("userId"),
		AuthorName:  f.StringOr("authorName", models.Anonymous),
		AuthorPhoto: f.String("authorPhoto"),
		CreatedAt:   timeOr(f, "createdAt", now),
		Likes:       f.Strings("likes"),
		Comments:    []models.Comment{},
	}
	for _, v := range f.Array("comments") {
		if v.Kind() != docstore.KindMap {
			continue
		}
		post.Comments = append(post.Comments, decodeComment(v.MapValue(), now))
	}
	return post, nil
}

func decodeUser(doc *docstore.Document) (models.User, error) {
	if doc == nil || doc.Name == "" {
		return models.User{}, errNoName
	}
	f := doc.Fields
	created, _ := f.Time("createdAt")
	updated, _ := f.Time("updatedAt")
	return models.User{
		ID:          doc.ID(),
		Email:       f.String("email"),
		FirstName:   f.String("firstName"),
		LastName:    f.String("lastName"),
		DisplayName: models.DisplayName(f.String("firstName"), f.String("lastName")),
		PhotoURL:    f.String("photoUrl"),
		Bio:         f.String("bio"),
		Skills:      f.Strings("skills"),
		Github:      f.String("github"),
		Linkedin:    f.String("linkedin"),
		Followers:   f.Strings("followers"),
		Following:   f.Strings("following"),
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}

func newUserFields(email, firstName, lastName, photoURL string, now time.Time) docstore.Fields {
	return docstore.Fields{
		"email":     docstore.String(email),
		"firstName": docstore.String(firstName),
		"lastName":  docstore.String(lastName),
		"photoUrl":  docstore.String(photoURL),
		"bio":       docstore.String(""),
		"skills":    docstore.Array(),
		"github":    docstore.String(""),
		"linkedin":  docstore.String(""),
		"followers": docstore.Array(),
		"following": docstore.Array(),
		"createdAt": docstore.Timestamp(now),
	}
}

func profileFields(p models.ProfileUpdate) docstore.Fields {
	return docstore.Fields{
		"firstName": docstore.String(p.FirstName),
		"lastName":  docstore.String(p.LastName),
		"bio":       docstore.String(p.Bio),
		"skills":    docstore.Strings(p.Skills),
		"github":    docstore.String(p.Github),
		"linkedin":  docstore.String(p.Linkedin),
	}
}

var profileMask = []string{"firstName", "lastName", "bio", "skills", "github", "linkedin"}

// toggle removes id from set if present and appends it otherwise.
func toggle(set []string, id string) []string {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, v := range set {
		if v == id {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, id)
	}
	return out
}
