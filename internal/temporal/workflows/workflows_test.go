package workflows

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/SomaOhm/Goal-Tracking-App/internal/analytics"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/pipeline"
	gtemporal "github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal/activities"
)

type stubRunner struct {
	summary *models.RunSummary
	err     error
}

func (r stubRunner) Run(context.Context) (*models.RunSummary, error) {
	return r.summary, r.err
}

type stubComputer struct {
	job models.AnalyticsJob
}

func (c stubComputer) Job() models.AnalyticsJob { return c.job }

func (c stubComputer) Compute(context.Context) (*models.AnalyticsResult, error) {
	return &models.AnalyticsResult{Job: c.job, UsersUpdated: 42}, nil
}

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
}

func (s *WorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *WorkflowSuite) TestSyncWorkflowCompleted() {
	s.env.RegisterActivity(&activities.Activities{Sync: stubRunner{summary: &models.RunSummary{
		RunID:     "01J0RUN",
		Status:    models.RunStatusCompleted,
		Attempts:  1,
		TotalRows: 7,
		Tables: []models.TableResult{
			{Table: "check_ins", Status: models.SyncStatusOK, Rows: 7},
			{Table: "goals", Status: models.SyncStatusError, Error: "boom"},
		},
	}}})

	s.env.ExecuteWorkflow(SyncWorkflow)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var summary models.RunSummary
	s.NoError(s.env.GetWorkflowResult(&summary))
	s.Equal("01J0RUN", summary.RunID)
	s.Equal(7, summary.TotalRows)
	s.Len(summary.Failed(), 1)
}

func (s *WorkflowSuite) TestSyncWorkflowFatalRunFails() {
	s.env.RegisterActivity(&activities.Activities{Sync: stubRunner{summary: &models.RunSummary{
		RunID:    "01J0RUN",
		Status:   models.RunStatusFatalError,
		Attempts: 6,
		Error:    "reach operational store: connection refused",
	}}})

	s.env.ExecuteWorkflow(SyncWorkflow)

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal(gtemporal.SyncRunFatalError, appErr.Type())
	s.True(appErr.NonRetryable())
	s.Contains(appErr.Error(), "connection refused")
}

func (s *WorkflowSuite) TestSyncWorkflowRunInProgress() {
	s.env.RegisterActivity(&activities.Activities{Sync: stubRunner{err: pipeline.ErrRunInProgress}})

	s.env.ExecuteWorkflow(SyncWorkflow)

	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	var appErr *temporal.ApplicationError
	s.Require().True(errors.As(err, &appErr))
	s.Equal(gtemporal.RunInProgressError, appErr.Type())
}

func (s *WorkflowSuite) TestAnalyticsWorkflowCompleted() {
	s.env.RegisterActivity(&activities.Activities{Computers: map[models.AnalyticsJob]analytics.Computer{
		models.AnalyticsJobStreak: stubComputer{job: models.AnalyticsJobStreak},
	}})

	s.env.ExecuteWorkflow(AnalyticsWorkflow, models.AnalyticsJobStreak)

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var result models.AnalyticsResult
	s.NoError(s.env.GetWorkflowResult(&result))
	s.Equal(models.AnalyticsJobStreak, result.Job)
	s.Equal(42, result.UsersUpdated)
}

func (s *WorkflowSuite) TestAnalyticsWorkflowUnknownJob() {
	s.env.RegisterActivity(&activities.Activities{})

	s.env.ExecuteWorkflow(AnalyticsWorkflow, models.AnalyticsJob("churn"))

	s.Error(s.env.GetWorkflowError())
}

func (s *WorkflowSuite) TestAnalyticsWorkflowFailureNotifies() {
	var a *activities.Activities
	s.env.RegisterActivity(&activities.Activities{})
	s.env.OnActivity(a.ComputeAnalyticsActivity, mock.Anything, models.AnalyticsJobRisk).
		Return(nil, errors.New("warehouse locked")).Times(3)
	s.env.OnActivity(a.NotifyAnalyticsFailedActivity, mock.Anything, models.AnalyticsJobRisk, mock.Anything).
		Return(nil).Once()

	s.env.ExecuteWorkflow(AnalyticsWorkflow, models.AnalyticsJobRisk)

	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Require().Error(err)
	s.Contains(err.Error(), "warehouse locked")
}
