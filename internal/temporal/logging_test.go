package temporal

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(zerolog.New(&buf))

	logger.Warn("activity failed", "ActivityType", "SyncTablesActivity", "Attempt", 2, "Error", errors.New("boom"), 7, "seven", "dangling")
	out := buf.String()
	assert.Contains(t, out, `"component":"temporal-sdk"`)
	assert.Contains(t, out, `"ActivityType":"SyncTablesActivity"`)
	assert.Contains(t, out, `"Attempt":2`)
	assert.Contains(t, out, `"Error":"boom"`)
	assert.Contains(t, out, `"7":"seven"`)
	assert.Contains(t, out, `"dangling":"MISSING_VALUE"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(zerolog.New(&buf))

	withLogger, ok := base.(log.WithLogger)
	require.True(t, ok)
	child := withLogger.With("WorkflowID", "goal-sync-sync")
	child.Info("started")
	assert.Contains(t, buf.String(), `"WorkflowID":"goal-sync-sync"`)

	buf.Reset()
	base.Info("plain")
	assert.NotContains(t, buf.String(), "WorkflowID")
}

func TestScheduleAndWorkflowIDs(t *testing.T) {
	assert.Equal(t, "goal-sync-schedule-risk", ScheduleID("risk"))
	assert.Equal(t, "goal-sync-sync", WorkflowID(SyncJobName))
}
