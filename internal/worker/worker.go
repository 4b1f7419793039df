// Package worker wires the sync and analytics workflows onto a Temporal worker.
package worker

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal/activities"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal/workflows"
)

// Registrar is the part of worker.Worker used for registration.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the workflows and activities to r.
func Register(r Registrar, acts *activities.Activities) {
	r.RegisterWorkflowWithOptions(workflows.SyncWorkflow, workflow.RegisterOptions{Name: temporal.SyncWorkflowName})
	r.RegisterWorkflowWithOptions(workflows.AnalyticsWorkflow, workflow.RegisterOptions{Name: temporal.AnalyticsWorkflowName})
	r.RegisterActivityWithOptions(acts, activity.RegisterOptions{})
}

// New returns a worker polling taskQueue with everything registered.
func New(c client.Client, taskQueue string, acts *activities.Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize: 4,
	})
	Register(w, acts)
	return w
}
