package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialsync/handlers"
	"socialsync/middleware"
	"socialsync/websocket"
)

type Options struct {
	Handler        *handlers.Handler
	Sessions       middleware.SessionResolver
	Tokens         *middleware.Tokens
	Hub            *websocket.Manager // nil disables /ws
	Limiter        *middleware.IPRateLimiter
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func SetupRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Logger != nil {
		router.Use(middleware.RequestLogger(opts.Logger))
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	if opts.Hub != nil {
		auth := func(r *http.Request, token string) (websocket.Identity, error) {
			sess, err := middleware.Authenticate(r.Context(), opts.Tokens, opts.Sessions, token)
			if err != nil {
				return websocket.Identity{}, err
			}
			return websocket.Identity{UserID: sess.UserID, SessionID: sess.ID}, nil
		}
		router.GET("/ws", gin.WrapF(websocket.Handler(opts.Hub, auth)))
	}

	h := opts.Handler
	api := router.Group("/api")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(opts.Limiter))
	}
	if opts.RequestTimeout > 0 {
		api.Use(middleware.RequestTimeout(opts.RequestTimeout))
	}

	// Public routes (no auth required)
	api.POST("/signup", h.Signup)
	api.POST("/login", h.Login)
	api.POST("/google-auth", h.GoogleAuthWithCredential)
	api.GET("/google/auth-url", h.GetGoogleAuthURL)
	api.GET("/google/callback", h.GoogleOAuthCallback)
	api.GET("/vapid-public-key", h.GetVapidPublicKey)

	protected := api.Group("")
	protected.Use(middleware.JWTAuthMiddleware(opts.Tokens, opts.Sessions))

	protected.POST("/logout", h.Logout)

	// Profile
	protected.GET("/me", h.GetMyProfile)
	protected.PUT("/me", h.UpdateMyProfile)
	protected.POST("/me/photo", h.UploadPhoto)

	// Users
	protected.GET("/users", h.ListUsers)
	protected.GET("/users/names", h.GetUserNames)
	protected.GET("/user/:id", h.GetUser)
	protected.GET("/user/:id/posts", h.GetUserPosts)
	protected.POST("/user/:id/follow", h.Follow)
	protected.DELETE("/user/:id/follow", h.Unfollow)

	// Posts
	protected.POST("/posts", h.CreatePost)
	protected.GET("/posts", h.GetPosts)
	protected.GET("/feed", h.GetFeed)
	protected.GET("/feed/state", h.GetFeedState)
	protected.PATCH("/posts/:id", h.UpdatePost)
	protected.DELETE("/posts/:id", h.DeletePost)
	protected.POST("/posts/:id/like", h.LikePost)
	protected.POST("/posts/:id/comments", h.AddComment)

	// Push subscriptions
	protected.POST("/subscribe", h.SubscribePush)

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
