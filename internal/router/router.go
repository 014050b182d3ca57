package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"nexus-backend/internal/handlers"
	"nexus-backend/internal/hub"
	"nexus-backend/internal/live"
	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authHandler *handlers.AuthHandler,
	faceHandler *handlers.FaceHandler,
	messageHandler *handlers.MessageHandler,
	announcementHandler *handlers.AnnouncementHandler,
	documentHandler *handlers.DocumentHandler,
	chatHub *hub.Hub,
	sseHandler *live.SSEHandler,
	storagePath string,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Stored document files
	r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(storagePath))))

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/login", authHandler.Login)
		})

		// ──── Face Enrollment Routes ────
		r.Route("/face", func(r chi.Router) {
			r.Get("/public-key", faceHandler.PublicKey) // Public

			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Middleware)
				r.Post("/register", faceHandler.Register)
			})
		})

		// ──── Group Routes ────
		r.Route("/groups/{groupID}", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Get("/messages", messageHandler.List)
			r.Get("/announcements", announcementHandler.List)
			r.Get("/documents", documentHandler.List)

			// Lecturer-only surfaces
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleLecturer))
				r.Post("/announcements", announcementHandler.Create)
				r.Delete("/announcements/{annID}", announcementHandler.Delete)
				r.Post("/documents", documentHandler.Upload)
				r.Delete("/documents/{documentID}", documentHandler.Delete)
			})
		})

		// ──── Document Signing ────
		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Use(middleware.RequireRole(models.RoleStudent))
			r.Post("/sign", documentHandler.Sign)
		})
	})

	// Token travels as a query parameter on both streaming endpoints; the
	// handlers validate it before upgrading or subscribing.
	r.Get("/ws/group/{groupID}", chatHub.HandleWebSocket)
	r.Get("/sse/groups/{groupID}/feed", sseHandler.HandleFeed)

	return r
}
