package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/warbler/internal/api/handlers"
	"github.com/isdelr/warbler/internal/auth"
	"github.com/isdelr/warbler/internal/monitoring"
	"github.com/isdelr/warbler/internal/ratelimit"
	"github.com/isdelr/warbler/internal/services"
	"github.com/isdelr/warbler/internal/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures a new Chi router.
func NewRouter(
	db *sql.DB,
	hub *websocket.Hub,
	authenticator *auth.Authenticator,
	limiter *ratelimit.KeyedLimiter,
	allowedOrigins []string,
	trustProxyHeaders bool,
	userService services.UserServiceProvider,
	messageService services.MessageServiceProvider,
	eventService services.EventServiceProvider,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	if trustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(monitoring.InstrumentHandler)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(authenticator.LoadUser)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, authenticator)
	userHandler := handlers.NewUserHandler(userService, messageService, authenticator.Sessions())
	messageHandler := handlers.NewMessageHandler(messageService)
	eventHandler := handlers.NewEventHandler(eventService)
	wsHandler := handlers.NewWebSocketHandler(hub, userService, allowedOrigins)
	healthHandler := handlers.NewHealthHandler(db)

	r.Get("/healthz", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", userHandler.Home)
	r.Get("/signup", authHandler.SignupForm)
	r.Get("/login", authHandler.LoginForm)
	r.Get("/logout", authHandler.Logout)
	r.Post("/logout", authHandler.Logout)
	r.Get("/users", userHandler.List)
	r.Get("/users/{id}", userHandler.Show)
	r.Get("/messages/{id}", messageHandler.Get)
	r.Get("/ws", wsHandler.ServeGlobal)
	r.Get("/ws/users/{id}", wsHandler.ServeUser)

	// Credential endpoints are rate limited per client IP.
	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/signup", authHandler.Signup)
		r.Post("/login", authHandler.Login)
		r.Post("/api/token", authHandler.Token)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authenticator.RequireUser)

		r.Get("/users/{id}/following", userHandler.Following)
		r.Get("/users/{id}/followers", userHandler.Followers)
		r.Post("/users/follow/{id}", userHandler.Follow)
		r.Post("/users/stop-following/{id}", userHandler.StopFollowing)
		r.Get("/users/profile", userHandler.Profile)
		r.Post("/users/profile", userHandler.UpdateProfile)
		r.Post("/users/delete", userHandler.Delete)

		r.Post("/messages/new", messageHandler.Create)
		r.Post("/messages/{id}/delete", messageHandler.Delete)

		r.Get("/api/events", eventHandler.GetRecent)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not found", http.StatusNotFound)
	})

	return r
}
