package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal"
	"github.com/SomaOhm/Goal-Tracking-App/internal/temporal/activities"
)

type recordingRegistrar struct {
	workflows  []string
	activities []interface{}
}

func (r *recordingRegistrar) RegisterWorkflowWithOptions(_ interface{}, options workflow.RegisterOptions) {
	r.workflows = append(r.workflows, options.Name)
}

func (r *recordingRegistrar) RegisterActivityWithOptions(a interface{}, _ activity.RegisterOptions) {
	r.activities = append(r.activities, a)
}

func TestRegister(t *testing.T) {
	acts := &activities.Activities{}
	r := &recordingRegistrar{}
	Register(r, acts)

	assert.Equal(t, []string{temporal.SyncWorkflowName, temporal.AnalyticsWorkflowName}, r.workflows)
	assert.Equal(t, []interface{}{acts}, r.activities)
}
