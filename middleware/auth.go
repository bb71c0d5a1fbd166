package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"socialsync/models"
)

const (
	sessionKey = "session"
	userIDKey  = "userId"
)

// Claims is the payload of the tokens socialsync issues. The token id (jti)
// is the session id.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for sess.
func (t *Tokens) Issue(sess *models.Session) (string, error) {
	now := t.now()
	claims := Claims{
		UserID: sess.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies token and returns its claims.
func (t *Tokens) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid || claims.ID == "" {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// SessionResolver loads the session a token refers to.
type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string) (*models.Session, error)
}

// Authenticate resolves a raw token to its session.
func Authenticate(ctx context.Context, tokens *Tokens, sessions SessionResolver, token string) (*models.Session, error) {
	claims, err := tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	sess, err := sessions.Resolve(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, errors.New("token does not match session")
	}
	return sess, nil
}

// JWTAuthMiddleware requires a Bearer token, or ?token=, that resolves to a
// live session, and stores the session on the context.
func JWTAuthMiddleware(tokens *Tokens, sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip middleware for OPTIONS requests (CORS preflight)
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			token := c.Query("token")
			if token == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "Authentication required",
					"message": "No authorization token provided",
				})
				return
			}
			authHeader = "Bearer " + token
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid authorization header",
				"message": "Format should be: Bearer <token>",
			})
			return
		}

		sess, err := Authenticate(c.Request.Context(), tokens, sessions, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token",
				"message": "Token validation failed",
			})
			return
		}

		c.Set(sessionKey, sess)
		c.Set(userIDKey, sess.UserID)
		c.Next()
	}
}

// SessionFrom returns the session stored by JWTAuthMiddleware, or nil.
func SessionFrom(c *gin.Context) *models.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*models.Session)
	return sess
}
