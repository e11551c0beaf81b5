// Package server exposes the kinship services over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kinship/internal/cache"
	"kinship/internal/config"
	"kinship/internal/database"
	"kinship/internal/middleware"
	"kinship/internal/models"
	"kinship/internal/repository"
	"kinship/internal/service"
	"kinship/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	blobs          storage.BlobStore
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	limiter        *middleware.LocalLimiter
	stopSweeper    chan struct{}

	users    *service.UserService
	posts    *service.PostService
	comments *service.CommentService
	replies  *service.ReplyService
	ledger   *service.Ledger
	feeds    *service.FeedService
}

// NewServer connects to the database, Redis and the blob store described by
// cfg and builds a Server on top of them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	blobs, err := storage.NewBlobStoreFromConfig(ctx, cfg, db)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	return NewServerWithDeps(cfg, db, cache.GetClient(), blobs)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
// A nil redisClient disables the profile cache and Redis-backed rate limits.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, blobs storage.BlobStore) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}

	deps := service.Deps{
		Repos:          repository.NewRepositories(db),
		Tx:             repository.NewTransactor(db),
		Blobs:          blobs,
		Locks:          service.NewKeyedMutex(),
		MaxUploadBytes: cfg.ImageMaxUploadBytes(),
	}

	return &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		blobs:          blobs,
		promMiddleware: middleware.InitMetrics("kinship-api"),
		limiter:        middleware.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		users:          service.NewUserService(deps),
		posts:          service.NewPostService(deps),
		comments:       service.NewCommentService(deps),
		replies:        service.NewReplyService(deps),
		ledger:         service.NewLedger(deps),
		feeds:          service.NewFeedService(deps),
	}, nil
}

// NewApp builds a Fiber app with the error handler, middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Kinship API",
		BodyLimit: int(s.config.ImageMaxUploadBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		// Images are served to other origins.
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(middleware.LocalRateLimit(s.limiter))
}

// SetupRoutes configures all routes for the application.
// Specific routes are registered before the parameterised routes they shadow.
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	auth := s.AuthRequired()

	authRoutes := api.Group("/auth")
	authRoutes.Post("/signup", middleware.RateLimit(s.redis, 5, 10*time.Minute, "signup"), s.Signup)
	authRoutes.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)

	users := api.Group("/users")
	users.Get("/", s.ListUsers)
	users.Get("/others", auth, s.ListOtherUsers)
	users.Get("/me", auth, s.GetMe)
	users.Put("/me/credentials", auth, s.UpdateCredentials)
	users.Put("/me/profile", auth, s.UpdateProfile)
	users.Delete("/me", auth, s.DeleteMe)
	users.Get("/:id/image", s.GetUserImage)
	users.Post("/:username/follow", auth, s.ToggleFollow)
	users.Get("/:username/follow", auth, s.IsFollowing)
	users.Get("/:username/followers/count", s.CountFollowers)
	users.Get("/:username/followers", s.GetFollowers)
	users.Get("/:username/followings/count", s.CountFollowings)
	users.Get("/:username/followings", s.GetFollowings)
	users.Get("/:username/posts/count", s.CountUserPosts)
	users.Get("/:username/posts", s.GetUserPosts)
	users.Get("/:username", s.GetUser)

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", auth, s.CreatePost)
	posts.Get("/:id/image", s.GetPostImage)
	posts.Post("/:id/like", auth, s.toggleRelation(models.RelationPostLike))
	posts.Get("/:id/like", auth, s.checkRelation(models.RelationPostLike))
	posts.Get("/:id/likes/count", s.countRelation(models.RelationPostLike))
	posts.Post("/:id/save", auth, s.toggleRelation(models.RelationPostSave))
	posts.Get("/:id/save", auth, s.checkRelation(models.RelationPostSave))
	posts.Get("/:id/saves/count", s.countRelation(models.RelationPostSave))
	posts.Get("/:id/comments/count", s.CountComments)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", auth, s.CreateComment)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", auth, s.UpdatePost)
	posts.Delete("/:id", auth, s.DeletePost)

	comments := api.Group("/comments")
	comments.Post("/:id/like", auth, s.toggleRelation(models.RelationCommentLike))
	comments.Get("/:id/like", auth, s.checkRelation(models.RelationCommentLike))
	comments.Get("/:id/likes/count", s.countRelation(models.RelationCommentLike))
	comments.Get("/:id/replies/count", s.CountReplies)
	comments.Get("/:id/replies", s.GetReplies)
	comments.Post("/:id/replies", auth, s.CreateReply)
	comments.Put("/:id", auth, s.UpdateComment)
	comments.Delete("/:id", auth, s.DeleteComment)

	replies := api.Group("/replies")
	replies.Post("/:id/like", auth, s.toggleRelation(models.RelationReplyLike))
	replies.Get("/:id/like", auth, s.checkRelation(models.RelationReplyLike))
	replies.Get("/:id/likes/count", s.countRelation(models.RelationReplyLike))
	replies.Put("/:id", auth, s.UpdateReply)
	replies.Delete("/:id", auth, s.DeleteReply)

	feed := api.Group("/feed", auth)
	feed.Get("/explore", s.ExploreFeed)
	feed.Get("/following", s.FollowingFeed)
	feed.Get("/liked", s.LikedFeed)
	feed.Get("/saved", s.SavedFeed)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional: without
// it the profile cache is bypassed, so it only degrades readiness when configured
// and unreachable.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database":   dbStatus,
			"redis":      redisStatus,
			"blob_store": s.blobs.Name(),
		},
		"time": time.Now(),
	})
}

// Start builds the app and listens on the configured port. It blocks until
// the listener stops.
func (s *Server) Start() error {
	s.app = s.NewApp()
	s.stopSweeper = make(chan struct{})
	go s.limiter.Run(s.stopSweeper)

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}
	if s.stopSweeper != nil {
		close(s.stopSweeper)
		s.stopSweeper = nil
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
