package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/SomaOhm/Goal-Tracking-App/internal/authz"
	"github.com/SomaOhm/Goal-Tracking-App/internal/handlers"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

// Deps are the handlers and settings the router is built from.
type Deps struct {
	JWTSecret     string
	Health        http.HandlerFunc
	Metrics       http.Handler
	Sync          *handlers.SyncHandler
	UserMetrics   *handlers.MetricsHandler
	Notifications *handlers.NotificationHandler
}

// NewRouter sets up the API routes. Everything under /api requires a bearer token.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", d.Health).Methods(http.MethodGet)
	if d.Metrics != nil {
		router.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authz.JWTMiddleware(d.JWTSecret))

	admin := authz.RequireRole(models.RoleAdmin)
	mentor := authz.RequireRole(models.RoleMentor)

	api.Handle("/sync/watermarks", admin(http.HandlerFunc(d.Sync.ListWatermarks))).Methods(http.MethodGet)
	api.Handle("/sync/runs", admin(http.HandlerFunc(d.Sync.TriggerRun))).Methods(http.MethodPost)
	api.Handle("/sync/runs/{runID}", admin(http.HandlerFunc(d.Sync.GetRun))).Methods(http.MethodGet)

	api.Handle("/users/at-risk", mentor(http.HandlerFunc(d.UserMetrics.AtRisk))).Methods(http.MethodGet)
	api.HandleFunc("/users/{userID}/metrics", d.UserMetrics.UserMetrics).Methods(http.MethodGet)

	api.Handle("/notifications", admin(http.HandlerFunc(d.Notifications.List))).Methods(http.MethodGet)
	api.Handle("/notifications/{notificationID}/read", admin(http.HandlerFunc(d.Notifications.MarkRead))).Methods(http.MethodPut)

	return router
}
