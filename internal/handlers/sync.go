package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
)

type WatermarkLister interface {
	List(ctx context.Context) ([]models.SyncWatermark, error)
}

// RunStarter starts sync workflows and reads back their outcome. A Temporal client.Client
// satisfies it.
type RunStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	DescribeWorkflowExecution(ctx context.Context, workflowID, runID string) (*workflowservice.DescribeWorkflowExecutionResponse, error)
	GetWorkflow(ctx context.Context, workflowID string, runID string) client.WorkflowRun
}

type SyncHandler struct {
	watermarks WatermarkLister
	runs       RunStarter
	taskQueue  string
	logger     zerolog.Logger
}

func NewSyncHandler(watermarks WatermarkLister, runs RunStarter, taskQueue string, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		watermarks: watermarks,
		runs:       runs,
		taskQueue:  taskQueue,
		logger:     logger.With().Str("handler", "sync").Logger(),
	}
}

func (h *SyncHandler) ListWatermarks(w http.ResponseWriter, r *http.Request) {
	marks, err := h.watermarks.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list watermarks")
		http.Error(w, "Failed to list watermarks", http.StatusInternalServerError)
		return
	}
	if marks == nil {
		marks = []models.SyncWatermark{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"watermarks": marks,
	})
}

// TriggerRun starts a sync workflow on the worker and returns its IDs without waiting for it.
func (h *SyncHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.ExecuteWorkflow(r.Context(), client.StartWorkflowOptions{
		ID:                                       temporal.ManualSyncWorkflowID,
		TaskQueue:                                h.taskQueue,
		WorkflowIDConflictPolicy:                 enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, temporal.SyncWorkflowName)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			http.Error(w, "A sync run is already in progress", http.StatusConflict)
			return
		}
		h.logger.Error().Err(err).Msg("failed to start sync workflow")
		http.Error(w, "Failed to start sync run", http.StatusBadGateway)
		return
	}

	h.logger.Info().Str("workflow_id", run.GetID()).Str("run_id", run.GetRunID()).Msg("sync run started")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"workflow_id": run.GetID(),
		"run_id":      run.GetRunID(),
		"status":      "running",
	})
}

// GetRun reports the state of an API-triggered run, with its summary once it has completed.
func (h *SyncHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["runID"]
	if _, err := uuid.Parse(runID); err != nil {
		http.Error(w, "Invalid run ID", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	desc, err := h.runs.DescribeWorkflowExecution(ctx, temporal.ManualSyncWorkflowID, runID)
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			http.Error(w, "Sync run not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to describe sync workflow")
		http.Error(w, "Failed to read sync run", http.StatusBadGateway)
		return
	}

	resp := map[string]interface{}{
		"workflow_id": temporal.ManualSyncWorkflowID,
		"run_id":      runID,
	}
	switch desc.GetWorkflowExecutionInfo().GetStatus() {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING:
		resp["status"] = "running"
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		var summary models.RunSummary
		if err := h.runs.GetWorkflow(ctx, temporal.ManualSyncWorkflowID, runID).Get(ctx, &summary); err != nil {
			h.logger.Error().Err(err).Str("run_id", runID).Msg("failed to read sync workflow result")
			http.Error(w, "Failed to read sync run", http.StatusBadGateway)
			return
		}
		resp["status"] = "completed"
		resp["summary"] = &summary
	default:
		resp["status"] = "failed"
		if err := h.runs.GetWorkflow(ctx, temporal.ManualSyncWorkflowID, runID).Get(ctx, nil); err != nil {
			var appErr *sdktemporal.ApplicationError
			if errors.As(err, &appErr) {
				resp["error"] = appErr.Message()
				resp["error_type"] = appErr.Type()
			} else {
				resp["error"] = err.Error()
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
