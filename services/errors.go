// Package services is the entity sync layer: every read and mutation of posts,
// comments, likes and the follow graph goes through here on behalf of an
// explicit session.
package services

import (
	"errors"
	"fmt"

	"socialsync/models"
	"socialsync/remote"
)

var (
	ErrAuthRequired    = errors.New("authentication required")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
)

// DecodeSkip is a listed document that could not be decoded. It is logged and
// the rest of the batch is kept.
type DecodeSkip struct {
	Name string
	Err  error
}

func (d *DecodeSkip) Error() string {
	return fmt.Sprintf("skipping document %q: %v", d.Name, d.Err)
}

func (d *DecodeSkip) Unwrap() error { return d.Err }

func requireSession(sess *models.Session) error {
	if !sess.Valid() {
		return ErrAuthRequired
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// wrap annotates a remote failure with op. Remote 404s also match ErrNotFound.
func wrap(op string, err error) error {
	if remote.IsNotFound(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
