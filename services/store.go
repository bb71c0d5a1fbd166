package services

import (
	"context"
	"time"

	"socialsync/docstore"
)

const (
	postsCollection = "posts"
	usersCollection = "users"
)

// DocumentStore is the subset of docstore.Client the sync layer uses.
type DocumentStore interface {
	Get(ctx context.Context, token, collection, id string) (*docstore.Document, error)
	List(ctx context.Context, token, collection string, pageSize int) (*docstore.ListResult, error)
	Create(ctx context.Context, token, collection, id string, fields docstore.Fields) (*docstore.Document, error)
	Patch(ctx context.Context, token, collection, id string, fields docstore.Fields, opts ...docstore.PatchOption) (*docstore.Document, error)
	Delete(ctx context.Context, token, collection, id string) error
	Commit(ctx context.Context, token string, writes ...docstore.Write) (*docstore.CommitResult, error)
	UpdateWrite(collection, id string, fields docstore.Fields, mask ...string) docstore.Write
	TransformWrite(collection, id string, transforms ...docstore.FieldTransform) docstore.Write
}

// SyncConfig tunes remote access.
type SyncConfig struct {
	PageSize    int // documents per list page
	MaxAttempts int // tries of a like toggle that hits a concurrent write
	Concurrency int // parallel lookups in GetUserNames

	// WriteTimeout bounds a like toggle shared by concurrent callers.
	WriteTimeout time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}
