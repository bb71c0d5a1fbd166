package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"socialsync/docstore"
	"socialsync/media"
	"socialsync/models"
	"socialsync/session"
)

type UserService struct {
	store    DocumentStore
	sessions session.Store
	photos   media.Processor
	cfg      SyncConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewUserService(store DocumentStore, sessions session.Store, photos media.Processor, cfg SyncConfig, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		store:    store,
		sessions: sessions,
		photos:   photos,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// GetProfile loads userID's profile.
func (s *UserService) GetProfile(ctx context.Context, sess *models.Session, userID string) (models.User, error) {
	if err := requireSession(sess); err != nil {
		return models.User{}, err
	}
	if userID == "" {
		return models.User{}, invalid("user id is required")
	}
	doc, err := s.store.Get(ctx, sess.Token, usersCollection, userID)
	if err != nil {
		return models.User{}, wrap("get profile", err)
	}
	user, err := decodeUser(doc)
	if err != nil {
		return models.User{}, fmt.Errorf("get profile: %w", err)
	}
	user.IsFollowing = sess.Follows(user.ID)
	return user, nil
}

// ListUsers returns every user but the caller, marked with whether the caller
// follows them.
func (s *UserService) ListUsers(ctx context.Context, sess *models.Session) ([]models.User, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	result, err := s.store.List(ctx, sess.Token, usersCollection, s.cfg.PageSize)
	if err != nil {
		return nil, wrap("list users", err)
	}
	for _, sk := range result.Skipped {
		s.skip(&DecodeSkip{Name: sk.Name, Err: sk.Err})
	}

	users := make([]models.User, 0, len(result.Documents))
	for _, doc := range result.Documents {
		user, err := decodeUser(doc)
		if err != nil {
			s.skip(&DecodeSkip{Name: doc.Name, Err: err})
			continue
		}
		if user.ID == sess.UserID {
			continue
		}
		user.IsFollowing = sess.Follows(user.ID)
		users = append(users, user)
	}
	return users, nil
}

func (s *UserService) skip(d *DecodeSkip) {
	s.logger.Warn("skipping undecodable user", zap.String("name", d.Name), zap.Error(d.Err))
}

// GetUserNames looks up ids in parallel and returns their names in input order.
// One failed lookup fails the call.
func (s *UserService) GetUserNames(ctx context.Context, sess *models.Session, ids []string) ([]models.UserName, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	names := make([]models.UserName, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			doc, err := s.store.Get(gctx, sess.Token, usersCollection, id)
			if err != nil {
				return wrap("get user "+id, err)
			}
			f := doc.Fields
			names[i] = models.UserName{
				ID:          id,
				FirstName:   f.String("firstName"),
				LastName:    f.String("lastName"),
				DisplayName: models.DisplayName(f.String("firstName"), f.String("lastName")),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

// UpdateProfile writes the editable profile fields and refreshes the session's
// display fields.
func (s *UserService) UpdateProfile(ctx context.Context, sess *models.Session, update models.ProfileUpdate) (models.User, error) {
	if err := requireSession(sess); err != nil {
		return models.User{}, err
	}
	if update.Skills == nil {
		update.Skills = []string{}
	}

	write := s.store.UpdateWrite(usersCollection, sess.UserID, profileFields(update), profileMask...).
		WithTransforms(docstore.ServerTime("updatedAt")).
		If(docstore.MustExist())
	if _, err := s.store.Commit(ctx, sess.Token, write); err != nil {
		return models.User{}, wrap("update profile", err)
	}
	doc, err := s.store.Get(ctx, sess.Token, usersCollection, sess.UserID)
	if err != nil {
		return models.User{}, wrap("update profile", err)
	}
	user, err := decodeUser(doc)
	if err != nil {
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}

	sess.FirstName = update.FirstName
	sess.LastName = update.LastName
	sess.DisplayName = models.DisplayName(update.FirstName, update.LastName)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return models.User{}, fmt.Errorf("update profile: save session: %w", err)
	}
	return user, nil
}

// UpdatePhoto stores a new profile photo and returns its URL.
func (s *UserService) UpdatePhoto(ctx context.Context, sess *models.Session, photo io.Reader) (string, error) {
	if err := requireSession(sess); err != nil {
		return "", err
	}
	url, err := s.photos.Process(ctx, sess.UserID, photo)
	if err != nil {
		if errors.Is(err, media.ErrInvalidImage) {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return "", fmt.Errorf("update photo: %w", err)
	}

	_, err = s.store.Patch(ctx, sess.Token, usersCollection, sess.UserID,
		docstore.Fields{"photoUrl": docstore.String(url)},
		docstore.WithMask("photoUrl"),
		docstore.WithPrecondition(docstore.MustExist()))
	if err != nil {
		return "", wrap("update photo", err)
	}

	sess.PhotoURL = url
	if err := s.sessions.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("update photo: save session: %w", err)
	}
	return url, nil
}

// Follow makes the session user follow targetID. Both sides of the relation
// change in one atomic commit.
func (s *UserService) Follow(ctx context.Context, sess *models.Session, targetID string) error {
	return s.setFollow(ctx, sess, targetID, true)
}

// Unfollow reverses Follow.
func (s *UserService) Unfollow(ctx context.Context, sess *models.Session, targetID string) error {
	return s.setFollow(ctx, sess, targetID, false)
}

func (s *UserService) setFollow(ctx context.Context, sess *models.Session, targetID string, follow bool) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if targetID == "" {
		return invalid("user id is required")
	}
	if targetID == sess.UserID {
		return invalid("cannot follow yourself")
	}

	change := docstore.RemoveAll
	op := "unfollow"
	if follow {
		change = docstore.AppendMissing
		op = "follow"
	}
	_, err := s.store.Commit(ctx, sess.Token,
		s.store.TransformWrite(usersCollection, sess.UserID, change("following", docstore.String(targetID))).If(docstore.MustExist()),
		s.store.TransformWrite(usersCollection, targetID, change("followers", docstore.String(sess.UserID))).If(docstore.MustExist()),
	)
	if err != nil {
		return wrap(op, err)
	}

	following := make([]string, 0, len(sess.Following)+1)
	for _, id := range sess.Following {
		if id != targetID {
			following = append(following, id)
		}
	}
	if follow {
		following = append(following, targetID)
	}
	sess.Following = following
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("%s: save session: %w", op, err)
	}
	return nil
}
