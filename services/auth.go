package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"socialsync/identity"
	"socialsync/media"
	"socialsync/models"
	"socialsync/remote"
	"socialsync/session"
)

// IdentityProvider checks credentials and returns account tokens.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Credentials, error)
	SignUp(ctx context.Context, email, password string) (*identity.Credentials, error)
	SignInWithIdp(ctx context.Context, providerID, idToken, requestURI string) (*identity.Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Credentials, error)
}

const (
	// tokenLifetime applies when the identity provider omits expiresIn.
	tokenLifetime  = time.Hour
	// refreshLeeway renews a token this long before it expires.
	refreshLeeway  = time.Minute
	refreshTimeout = 15 * time.Second
)

// ErrGoogleDisabled is returned by the Google code flow when no OAuth client
// is configured.
var ErrGoogleDisabled = errors.New("google sign-in is not configured")

// AuthService creates and destroys sessions.
type AuthService struct {
	identity IdentityProvider
	store    DocumentStore
	sessions session.Store
	photos   media.Processor
	google   *oauth2.Config
	logger   *zap.Logger
	now      func() time.Time

	refreshes singleflight.Group
}

// NewAuthService wires sign-in. google may be nil, which disables the
// authorization code flow but not credential sign-in.
func NewAuthService(idp IdentityProvider, store DocumentStore, sessions session.Store, photos media.Processor, google *oauth2.Config, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		identity: idp,
		store:    store,
		sessions: sessions,
		photos:   photos,
		google:   google,
		logger:   logger,
		now:      time.Now,
	}
}

// Login signs in with email and password and loads the user's profile and
// follow list into a new session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, invalid("email and password are required")
	}
	creds, err := s.identity.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	doc, err := s.store.Get(ctx, creds.IDToken, usersCollection, creds.LocalID)
	if err != nil {
		return nil, wrap("login: fetch profile", err)
	}
	user, err := decodeUser(doc)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if user.Email == "" {
		user.Email = creds.Email
	}
	return s.start(ctx, creds, user)
}

// Register creates an account, its profile document and a session.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.Email == "" || req.Password == "" {
		return nil, invalid("email and password are required")
	}
	if req.FirstName == "" || req.LastName == "" {
		return nil, invalid("first and last name are required")
	}

	creds, err := s.identity.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	photoURL := ""
	if len(req.Photo) > 0 {
		photoURL, err = s.photos.Process(ctx, creds.LocalID, bytes.NewReader(req.Photo))
		if err != nil {
			if errors.Is(err, media.ErrInvalidImage) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
			}
			return nil, fmt.Errorf("register: %w", err)
		}
	}

	fields := newUserFields(req.Email, req.FirstName, req.LastName, photoURL, s.now())
	doc, err := s.store.Patch(ctx, creds.IDToken, usersCollection, creds.LocalID, fields)
	if err != nil {
		return nil, wrap("register: write profile", err)
	}
	user, err := decodeUser(doc)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return s.start(ctx, creds, user)
}

// LoginWithGoogle signs in with a Google ID token. The profile document is
// created from the Google account on first sign-in.
func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken, requestURI string) (*models.Session, error) {
	if idToken == "" {
		return nil, invalid("google credential is required")
	}
	creds, err := s.identity.SignInWithIdp(ctx, identity.GoogleProvider, idToken, requestURI)
	if err != nil {
		return nil, fmt.Errorf("google login: %w", err)
	}

	doc, err := s.store.Get(ctx, creds.IDToken, usersCollection, creds.LocalID)
	switch {
	case remote.IsNotFound(err):
		first, last, photo := googleProfile(creds, idToken)
		fields := newUserFields(creds.Email, first, last, photo, s.now())
		doc, err = s.store.Patch(ctx, creds.IDToken, usersCollection, creds.LocalID, fields)
		if err != nil {
			return nil, wrap("google login: write profile", err)
		}
		s.logger.Info("created profile for google account", zap.String("user", creds.LocalID))
	case err != nil:
		return nil, wrap("google login: fetch profile", err)
	}

	user, err := decodeUser(doc)
	if err != nil {
		return nil, fmt.Errorf("google login: %w", err)
	}
	return s.start(ctx, creds, user)
}

// googleProfile picks the name and photo for a new Google account, from the
// identity response first and the unverified credential claims second. The
// credential has already been checked by the identity provider.
func googleProfile(creds *identity.Credentials, idToken string) (first, last, photo string) {
	first, last, photo = creds.FirstName, creds.LastName, creds.PhotoURL

	token, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	if err == nil {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if first == "" {
				first, _ = claims["given_name"].(string)
			}
			if last == "" {
				last, _ = claims["family_name"].(string)
			}
			if photo == "" {
				photo, _ = claims["picture"].(string)
			}
		}
	}
	if first == "" && last == "" && creds.DisplayName != "" {
		first, last, _ = strings.Cut(creds.DisplayName, " ")
	}
	return first, last, photo
}

// GoogleAuthURL is where the browser is sent to start the code flow.
func (s *AuthService) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", ErrGoogleDisabled
	}
	return s.google.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// ExchangeGoogleCode completes the code flow and signs in with the returned
// ID token.
func (s *AuthService) ExchangeGoogleCode(ctx context.Context, code string) (*models.Session, error) {
	if s.google == nil {
		return nil, ErrGoogleDisabled
	}
	if code == "" {
		return nil, invalid("authorization code is required")
	}
	token, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange: %w", err)
	}
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, errors.New("google code exchange: no id_token in response")
	}
	return s.LoginWithGoogle(ctx, idToken, s.google.RedirectURL)
}

// Logout deletes the session.
func (s *AuthService) Logout(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return ErrAuthRequired
	}
	if err := s.sessions.Delete(ctx, sess.ID); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Resolve loads a stored session by id. A session whose ID token is about to
// expire is refreshed and saved before it is returned; one whose refresh token
// was rejected is deleted.
func (s *AuthService) Resolve(ctx context.Context, id string) (*models.Session, error) {
	sess, err := s.sessions.Load(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrAuthRequired
	}
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if sess.TokenExpiry.IsZero() || s.now().Before(sess.TokenExpiry.Add(-refreshLeeway)) {
		return sess, nil
	}

	ch := s.refreshes.DoChan(sess.ID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return s.refresh(ctx, sess)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve session: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// copy so callers sharing a flight do not share a session
		refreshed := *res.Val.(*models.Session)
		return &refreshed, nil
	}
}

func (s *AuthService) refresh(ctx context.Context, sess *models.Session) (*models.Session, error) {
	if sess.RefreshToken == "" {
		return nil, s.expire(ctx, sess, "no refresh token")
	}
	creds, err := s.identity.Refresh(ctx, sess.RefreshToken)
	var re *remote.Error
	if errors.As(err, &re) && re.StatusCode < http.StatusInternalServerError {
		return nil, s.expire(ctx, sess, re.Message)
	}
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}

	sess.Token = creds.IDToken
	if creds.RefreshToken != "" {
		sess.RefreshToken = creds.RefreshToken
	}
	sess.TokenExpiry = s.expiry(creds.ExpiresIn)
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Debug("session token refreshed", zap.String("session", sess.ID))
	return sess, nil
}

// expire deletes a session that can no longer be refreshed.
func (s *AuthService) expire(ctx context.Context, sess *models.Session, reason string) error {
	s.logger.Info("session expired", zap.String("session", sess.ID), zap.String("reason", reason))
	if err := s.sessions.Delete(ctx, sess.ID); err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("expire session: %w", err)
	}
	return ErrAuthRequired
}

// expiry turns an expiresIn value in seconds into a deadline.
func (s *AuthService) expiry(expiresIn string) time.Time {
	lifetime := tokenLifetime
	if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
		lifetime = time.Duration(secs) * time.Second
	}
	return s.now().Add(lifetime).UTC()
}

func (s *AuthService) start(ctx context.Context, creds *identity.Credentials, user models.User) (*models.Session, error) {
	sess := &models.Session{
		ID:           uuid.NewString(),
		Token:        creds.IDToken,
		RefreshToken: creds.RefreshToken,
		TokenExpiry:  s.expiry(creds.ExpiresIn),
		UserID:       creds.LocalID,
		Email:        user.Email,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		DisplayName:  user.DisplayName,
		PhotoURL:     user.PhotoURL,
		Following:    user.Following,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("session started", zap.String("user", sess.UserID), zap.String("session", sess.ID))
	return sess, nil
}
