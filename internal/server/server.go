package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nvisust/authserver/config"
	"github.com/nvisust/authserver/internal/db"
	"github.com/nvisust/authserver/internal/events"
	"github.com/nvisust/authserver/internal/handlers"
	"github.com/nvisust/authserver/internal/services"
	"github.com/nvisust/authserver/internal/storage"
	"github.com/nvisust/authserver/internal/store"
	"github.com/nvisust/authserver/internal/tokens"
)

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	closers    []io.Closer
}

// New constructs a fully wired Server from config.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	srv := &Server{db: dbConn}

	jwtSecret := strings.TrimSpace(cfg.JWT.Secret)
	if jwtSecret == "" {
		jwtSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	}
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	blacklist, err := srv.newBlacklist(ctx, cfg)
	if err != nil {
		_ = srv.closeResources()
		return nil, err
	}

	tokenManager := tokens.NewManager(
		jwtSecret,
		cfg.JWT.Issuer,
		time.Duration(cfg.JWT.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWT.RefreshTTLHours)*time.Hour,
		blacklist,
	)

	publisher, err := srv.newPublisher(ctx, cfg)
	if err != nil {
		_ = srv.closeResources()
		return nil, err
	}

	avatars, err := srv.newAvatars(ctx, cfg)
	if err != nil {
		_ = srv.closeResources()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	userService := services.NewUserService(userRepo)

	authMiddleware := handlers.NewAuthMiddleware(tokenManager, userService)
	authHandler := handlers.NewAuthHandler(userService, tokenManager, publisher)
	userHandler := handlers.NewUserHandler(userService, authHandler, publisher)
	profileHandler := handlers.NewProfileHandler(userService, userHandler, avatars)
	tokenHandler := handlers.NewTokenHandler(tokenManager)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authMiddleware)
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userHandler, authMiddleware)
		})
		r.Route("/profile", func(r chi.Router) {
			handlers.ProfileRouter(r, profileHandler, authMiddleware)
		})
	})
	router.Route("/token", func(r chi.Router) {
		handlers.TokenRouter(r, tokenHandler)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	srv.router = router
	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

// newBlacklist picks the Redis-backed revocation list when configured,
// otherwise the process-local one.
func (s *Server) newBlacklist(ctx context.Context, cfg config.Config) (tokens.Blacklist, error) {
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		log.Println("REDIS_URL not set; using in-process token blacklist")
		return tokens.NewMemoryBlacklist(), nil
	}
	blacklist, err := tokens.NewRedisBlacklist(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	s.closers = append(s.closers, blacklist)
	return blacklist, nil
}

// newPublisher constructs the configured event broker. Publishing is
// optional; an empty backend disables it.
func (s *Server) newPublisher(ctx context.Context, cfg config.Config) (*events.Publisher, error) {
	var broker events.Broker
	var err error
	switch cfg.MQ.Backend {
	case "":
		return nil, nil
	case "rabbitmq":
		broker, err = events.NewRabbitMQBroker(cfg.MQ.RabbitMQ)
	case "pubsub":
		broker, err = events.NewPubSubBroker(ctx, cfg.MQ.PubSub)
	default:
		err = fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
	if err != nil {
		return nil, err
	}
	publisher := events.NewPublisher(broker, cfg.MQ.Channel)
	s.closers = append(s.closers, publisher)
	return publisher, nil
}

// newAvatars constructs the configured avatar store. Avatar uploads are
// optional; an empty backend disables them.
func (s *Server) newAvatars(ctx context.Context, cfg config.Config) (*storage.Avatars, error) {
	var backend storage.ObjectStorage
	var err error
	switch cfg.Storage.Backend {
	case "":
		return nil, nil
	case "minio":
		backend, err = storage.NewMinioClient(cfg.Storage.Minio)
	case "gcs":
		backend, err = storage.NewGCSClient(ctx, cfg.Storage.GCS)
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	avatars := storage.NewAvatars(backend)
	if err := avatars.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure avatar bucket: %w", err)
	}
	return avatars, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the server and every resource it owns.
func (s *Server) Shutdown() error {
	_ = s.closeResources()
	return s.httpServer.Close()
}

func (s *Server) closeResources() error {
	for _, closer := range s.closers {
		_ = closer.Close()
	}
	s.closers = nil
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
