package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SomaOhm/Goal-Tracking-App/internal/config"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/warehouse"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CheckinTotals(ctx context.Context, since time.Time) ([]models.CheckinTotals, error) {
	args := m.Called(ctx, since)
	totals, _ := args.Get(0).([]models.CheckinTotals)
	return totals, args.Error(1)
}

func (m *mockStore) UpsertAdherence(ctx context.Context, metricDate time.Time, window int, rows []models.AdherenceMetric) error {
	return m.Called(ctx, metricDate, window, rows).Error(0)
}

func (m *mockStore) RiskInputs(ctx context.Context, since3d, since7d time.Time) ([]models.RiskInput, error) {
	args := m.Called(ctx, since3d, since7d)
	inputs, _ := args.Get(0).([]models.RiskInput)
	return inputs, args.Error(1)
}

func (m *mockStore) UpsertRisk(ctx context.Context, rows []models.RiskMetric) error {
	return m.Called(ctx, rows).Error(0)
}

func (m *mockStore) CheckinHistories(ctx context.Context) ([]models.CheckinHistory, error) {
	args := m.Called(ctx)
	histories, _ := args.Get(0).([]models.CheckinHistory)
	return histories, args.Error(1)
}

func (m *mockStore) UpsertStreaks(ctx context.Context, rows []models.StreakMetric) error {
	return m.Called(ctx, rows).Error(0)
}

func TestAdherenceComputer(t *testing.T) {
	store := new(mockStore)
	ctx := mock.Anything
	store.On("CheckinTotals", ctx, now.AddDate(0, 0, -7)).
		Return([]models.CheckinTotals{{UserID: "u1", Total: 3, Completed: 2}, {UserID: "u2"}}, nil)
	store.On("CheckinTotals", ctx, now.AddDate(0, 0, -30)).
		Return([]models.CheckinTotals{{UserID: "u1", Total: 10, Completed: 10}, {UserID: "u2", Total: 1}}, nil)
	store.On("CheckinTotals", ctx, now.AddDate(0, 0, -90)).
		Return([]models.CheckinTotals{{UserID: "u1", Total: 20, Completed: 15}, {UserID: "u2", Total: 4, Completed: 1}, {UserID: "u3", Total: 1, Completed: 1}}, nil)

	store.On("UpsertAdherence", ctx, now, 7, []models.AdherenceMetric{
		{UserID: "u1", Percentage: 66.67, Completed: 2, Total: 3},
		{UserID: "u2", Percentage: 0},
	}).Return(nil).Once()
	store.On("UpsertAdherence", ctx, now, 30, []models.AdherenceMetric{
		{UserID: "u1", Percentage: 100, Completed: 10, Total: 10},
		{UserID: "u2", Percentage: 0, Total: 1},
	}).Return(nil).Once()
	store.On("UpsertAdherence", ctx, now, 90, []models.AdherenceMetric{
		{UserID: "u1", Percentage: 75, Completed: 15, Total: 20},
		{UserID: "u2", Percentage: 25, Completed: 1, Total: 4},
		{UserID: "u3", Percentage: 100, Completed: 1, Total: 1},
	}).Return(nil).Once()

	res, err := NewAdherenceComputer(store, WithClock(fixedClock)).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AnalyticsJobAdherence, res.Job)
	assert.Equal(t, 3, res.UsersUpdated)
	assert.Equal(t, now, res.ComputedAt)
	store.AssertExpectations(t)
}

func TestAdherenceComputerStopsOnWriteFailure(t *testing.T) {
	store := new(mockStore)
	store.On("CheckinTotals", mock.Anything, mock.Anything).Return([]models.CheckinTotals{{UserID: "u1", Total: 1}}, nil)
	store.On("UpsertAdherence", mock.Anything, mock.Anything, 7, mock.Anything).Return(errors.New("disk full"))

	_, err := NewAdherenceComputer(store, WithClock(fixedClock)).Compute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compute adherence")
	assert.Contains(t, err.Error(), "disk full")
	store.AssertNumberOfCalls(t, "UpsertAdherence", 1)
}

func TestRiskComputer(t *testing.T) {
	recent := now.Add(-26 * time.Hour)
	stale := now.AddDate(0, 0, -5)
	store := new(mockStore)
	store.On("RiskInputs", mock.Anything, now.AddDate(0, 0, -3), now.AddDate(0, 0, -7)).Return([]models.RiskInput{
		{UserID: "steady", LastCheckinAt: &recent},
		{UserID: "slipping", Missed3d: 1, Missed7d: 2, LastCheckinAt: &recent},
		{UserID: "gone", LastCheckinAt: &stale},
		{UserID: "unknown", Missed7d: 5},
	}, nil)

	var written []models.RiskMetric
	store.On("UpsertRisk", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		written = args.Get(1).([]models.RiskMetric)
	}).Return(nil)

	res, err := NewRiskComputer(store, WithClock(fixedClock)).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.UsersUpdated)
	require.Len(t, written, 4)

	assert.Equal(t, models.RiskLow, written[0].Level)
	assert.Equal(t, 1, written[0].LastCheckinDaysAgo)

	assert.Equal(t, models.RiskMedium, written[1].Level)
	assert.InDelta(t, 0.7, written[1].Score, 1e-9)
	assert.Equal(t, 1, written[1].Missed3d)

	assert.Equal(t, models.RiskHigh, written[2].Level)
	assert.InDelta(t, 0.7, written[2].Score, 1e-9)
	assert.Equal(t, 5, written[2].LastCheckinDaysAgo)

	assert.Equal(t, models.RiskHigh, written[3].Level)
	assert.InDelta(t, 0.85, written[3].Score, 1e-9)
	assert.Equal(t, UnknownDaysSince, written[3].LastCheckinDaysAgo)

	for _, m := range written {
		assert.Equal(t, now, m.EvaluatedAt)
	}
}

func TestRiskComputerReadFailure(t *testing.T) {
	store := new(mockStore)
	store.On("RiskInputs", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("table fact_checkins does not exist"))

	_, err := NewRiskComputer(store, WithClock(fixedClock)).Compute(context.Background())
	require.Error(t, err)
	store.AssertNotCalled(t, "UpsertRisk", mock.Anything, mock.Anything)
}

func TestStreakComputer(t *testing.T) {
	last := now.Add(-time.Hour)
	store := new(mockStore)
	store.On("CheckinHistories", mock.Anything).Return([]models.CheckinHistory{
		{UserID: "u1", Completed: []bool{true, true, false, true}, LastCompletion: &last},
		{UserID: "u2", Completed: []bool{false}},
	}, nil)
	store.On("UpsertStreaks", mock.Anything, []models.StreakMetric{
		{UserID: "u1", CurrentStreak: 2, LongestStreak: 2, LastCompletion: &last, UpdatedAt: now},
		{UserID: "u2", UpdatedAt: now},
	}).Return(nil)

	res, err := NewStreakComputer(store, WithClock(fixedClock)).Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.UsersUpdated)
	store.AssertExpectations(t)
}

func TestNewComputersCoversEveryJob(t *testing.T) {
	computers := NewComputers(new(mockStore), WithLogger(zerolog.Nop()))
	for _, job := range models.AnalyticsJobs {
		c, ok := computers[job]
		require.True(t, ok, job)
		assert.Equal(t, job, c.Job())
	}
}

func TestComputersAgainstWarehouse(t *testing.T) {
	ctx := context.Background()
	w, err := warehouse.Open(ctx, config.WarehouseConfig{}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	require.NoError(t, w.EnsureSchema(ctx))

	// Synced tables carry every column as text.
	_, err = w.SQL().ExecContext(ctx, `CREATE TABLE fact_checkins (id VARCHAR PRIMARY KEY, user_id VARCHAR, completed VARCHAR, "timestamp" VARCHAR)`)
	require.NoError(t, err)

	checkins := []struct {
		user      string
		completed bool
		daysAgo   int
	}{
		{"alice", true, 0},
		{"alice", true, 1},
		{"alice", false, 2},
		{"alice", true, 3},
		{"alice", true, 4},
		{"alice", true, 5},
		{"bob", false, 1},
		{"bob", false, 2},
		{"bob", false, 3},
		{"bob", false, 4},
		{"bob", true, 20},
	}
	for i, c := range checkins {
		ts := now.AddDate(0, 0, -c.daysAgo).Add(-time.Hour).Format("2006-01-02T15:04:05")
		_, err := w.SQL().ExecContext(ctx, `INSERT INTO fact_checkins VALUES (?, ?, ?, ?)`,
			fmt.Sprint(i), c.user, fmt.Sprint(c.completed), ts)
		require.NoError(t, err)
	}

	store := warehouse.NewMetricsRepository(w, config.AnalyticsConfig{
		CheckinsTable:   "fact_checkins",
		UserColumn:      "user_id",
		CompletedColumn: "completed",
		TimestampColumn: "timestamp",
	})
	for _, job := range models.AnalyticsJobs {
		res, err := NewComputers(store, WithClock(fixedClock))[job].Compute(ctx)
		require.NoError(t, err, job)
		assert.Equal(t, 2, res.UsersUpdated, job)
	}

	alice, err := store.UserMetrics(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice.Adherence)
	require.NotNil(t, alice.Adherence.Adherence7d)
	assert.InDelta(t, 83.33, *alice.Adherence.Adherence7d, 1e-9)
	require.NotNil(t, alice.Streak)
	assert.Equal(t, 2, alice.Streak.CurrentStreak)
	assert.Equal(t, 3, alice.Streak.LongestStreak)
	require.NotNil(t, alice.Risk)
	assert.Equal(t, models.RiskLow, alice.Risk.Level)

	atRisk, err := store.UsersAtRisk(ctx, models.RiskHigh, 10)
	require.NoError(t, err)
	require.Len(t, atRisk, 1)
	assert.Equal(t, "bob", atRisk[0].UserID)
	assert.Equal(t, 4, atRisk[0].Missed7d)
	assert.InDelta(t, 0.8, atRisk[0].Score, 1e-9)
}
