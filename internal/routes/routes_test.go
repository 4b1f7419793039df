package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"

	"github.com/SomaOhm/Goal-Tracking-App/internal/handlers"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

const secret = "router-secret"

type emptyStore struct{}

func (emptyStore) List(context.Context) ([]models.SyncWatermark, error) { return nil, nil }

type startedRun struct {
	client.WorkflowRun
}

func (startedRun) GetID() string    { return "goal-sync-sync-manual" }
func (startedRun) GetRunID() string { return "run-1" }

func (emptyStore) ExecuteWorkflow(context.Context, client.StartWorkflowOptions, interface{}, ...interface{}) (client.WorkflowRun, error) {
	return startedRun{}, nil
}

func (emptyStore) DescribeWorkflowExecution(context.Context, string, string) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{Status: enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING},
	}, nil
}

func (emptyStore) GetWorkflow(context.Context, string, string) client.WorkflowRun {
	return startedRun{}
}

func (emptyStore) UserMetrics(_ context.Context, userID string) (*models.UserMetrics, error) {
	return &models.UserMetrics{UserID: userID, Streak: &models.StreakMetric{UserID: userID}}, nil
}

func (emptyStore) UsersAtRisk(context.Context, string, int) ([]models.RiskMetric, error) {
	return nil, nil
}

func newTestRouter() http.Handler {
	store := emptyStore{}
	return NewRouter(Deps{
		JWTSecret:   secret,
		Health:      handlers.Health(nil),
		Sync:        handlers.NewSyncHandler(store, store, "GOAL_SYNC", zerolog.Nop()),
		UserMetrics: handlers.NewMetricsHandler(store, zerolog.Nop()),
	})
}

func token(t *testing.T, sub string, role models.UserRole) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func do(router http.Handler, method, path, bearer string) int {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouterAccess(t *testing.T) {
	router := newTestRouter()
	user := token(t, "u-1", models.RoleUser)
	mentor := token(t, "m-1", models.RoleMentor)
	admin := token(t, "a-1", models.RoleAdmin)

	tests := []struct {
		method, path, bearer string
		want                 int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/sync/watermarks", "", http.StatusUnauthorized},
		{http.MethodGet, "/api/sync/watermarks", user, http.StatusForbidden},
		{http.MethodGet, "/api/sync/watermarks", mentor, http.StatusForbidden},
		{http.MethodGet, "/api/sync/watermarks", admin, http.StatusOK},
		{http.MethodPost, "/api/sync/runs", admin, http.StatusAccepted},
		{http.MethodPost, "/api/sync/runs", mentor, http.StatusForbidden},
		{http.MethodGet, "/api/sync/runs/0b7f3c9a-4d2e-4f61-8a5b-9c0d1e2f3a4b", admin, http.StatusOK},
		{http.MethodGet, "/api/sync/runs/0b7f3c9a-4d2e-4f61-8a5b-9c0d1e2f3a4b", user, http.StatusForbidden},
		{http.MethodGet, "/api/sync/runs", admin, http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/users/u-1/metrics", user, http.StatusOK},
		{http.MethodGet, "/api/users/u-2/metrics", user, http.StatusForbidden},
		{http.MethodGet, "/api/users/u-2/metrics", mentor, http.StatusOK},
		{http.MethodGet, "/api/users/at-risk", user, http.StatusForbidden},
		{http.MethodGet, "/api/users/at-risk?level=high", mentor, http.StatusOK},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, do(router, tc.method, tc.path, tc.bearer), "%s %s", tc.method, tc.path)
	}
}
