package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/handlers"
	"chargeway/backend/services/charging-service/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Auth         *handlers.AuthHandlers
	Stations     *handlers.StationsHandlers
	Charging     *handlers.ChargingHandlers
	Vehicles     *handlers.VehiclesHandlers
	History      *handlers.HistoryHandlers
	Profile      *handlers.ProfileHandlers
	Admin        *handlers.AdminHandlers
	Progress     http.Handler
	Health       http.HandlerFunc
	Metrics      http.Handler
	RequireUser  func(http.Handler) http.Handler
	RequireAdmin func(http.Handler) http.Handler
	RateLimit    func(http.Handler) http.Handler
	CORSOrigins  []string
	Logger       *zap.Logger
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", deps.Health)
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics)
	}

	protected := []func(http.Handler) http.Handler{deps.RequireUser}
	if deps.RateLimit != nil {
		protected = append(protected, deps.RateLimit)
	}

	router.With(deps.RequireUser).Get("/ws/charging-progress", deps.Progress.ServeHTTP)

	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", deps.Auth.Signup)
			r.Post("/login", deps.Auth.Login)
			r.Post("/logout", deps.Auth.Logout)
			r.With(protected...).Get("/me", deps.Auth.Me)
		})

		r.Route("/stations", func(r chi.Router) {
			r.Get("/", deps.Stations.List)
			r.Get("/{stationId}", deps.Stations.Get)

			r.Group(func(r chi.Router) {
				r.Use(protected...)
				r.Get("/{stationId}/active-ticket", deps.Charging.ActiveTicket)
				r.Post("/request-ticket", deps.Charging.RequestTicket)
				r.Post("/start-charging", deps.Charging.StartCharging)
				r.Post("/update-progress", deps.Charging.UpdateProgress)
				r.Post("/complete-charging", deps.Charging.CompleteCharging)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(protected...)
			r.Get("/vehicles", deps.Vehicles.List)
			r.Post("/vehicles", deps.Vehicles.Create)
			r.Post("/vehicles/{vehicleId}/activate", deps.Vehicles.Activate)
			r.Get("/history", deps.History.List)

			r.Get("/profile", deps.Profile.Get)
			r.Patch("/profile/update-profile", deps.Profile.UpdateProfile)
			r.Patch("/profile/update-password", deps.Profile.UpdatePassword)

			r.With(deps.RequireAdmin).Get("/admin/users", deps.Admin.ListUsers)
			r.With(deps.RequireAdmin).Patch("/admin/users/{userId}", deps.Admin.UpdateUser)
		})
	})

	return router
}
