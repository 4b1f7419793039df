package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/SomaOhm/Goal-Tracking-App/internal/authz"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

type MetricsReader interface {
	UserMetrics(ctx context.Context, userID string) (*models.UserMetrics, error)
	UsersAtRisk(ctx context.Context, level string, limit int) ([]models.RiskMetric, error)
}

type MetricsHandler struct {
	reader MetricsReader
	logger zerolog.Logger
}

func NewMetricsHandler(reader MetricsReader, logger zerolog.Logger) *MetricsHandler {
	return &MetricsHandler{
		reader: reader,
		logger: logger.With().Str("handler", "metrics").Logger(),
	}
}

// UserMetrics returns adherence, streak and risk of one user. Users may read their own metrics;
// mentors and admins may read anyone's.
func (h *MetricsHandler) UserMetrics(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(mux.Vars(r)["userID"])
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}
	if !authz.CanActFor(r, userID) {
		http.Error(w, "insufficient permissions", http.StatusForbidden)
		return
	}

	m, err := h.reader.UserMetrics(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read user metrics")
		http.Error(w, "Failed to read metrics", http.StatusInternalServerError)
		return
	}
	if m.Adherence == nil && m.Streak == nil && m.Risk == nil {
		http.Error(w, "No metrics for user", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MetricsHandler) AtRisk(w http.ResponseWriter, r *http.Request) {
	level := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("level")))
	if level == "" {
		level = models.RiskHigh
	}
	switch level {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		http.Error(w, "level must be low, medium or high", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	users, err := h.reader.UsersAtRisk(r.Context(), level, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("level", level).Msg("failed to list users at risk")
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []models.RiskMetric{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level": level,
		"users": users,
	})
}
