package warehouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SomaOhm/Goal-Tracking-App/internal/config"
	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

var analyticsCfg = config.AnalyticsConfig{
	CheckinsTable:   "fact_checkins",
	UserColumn:      "user_id",
	CompletedColumn: "completed",
	TimestampColumn: "timestamp",
}

var refNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// seedCheckins lands check-ins the way a sync run would: as VARCHAR columns.
func seedCheckins(t *testing.T, w *DB, facts ...[3]string) {
	t.Helper()
	ctx := context.Background()
	s, err := w.Session(ctx)
	require.NoError(t, err)
	defer s.Close()

	rows := make([]models.Row, 0, len(facts))
	for i, f := range facts {
		rows = append(rows, models.Row{
			Columns: []string{"checkin_id", "user_id", "completed", "timestamp"},
			Values:  []any{i, f[0], f[1], f[2]},
		})
	}
	require.NoError(t, s.Upsert(ctx, "fact_checkins", rows, []string{"checkin_id"}))
	require.NoError(t, w.EnsureSchema(ctx))
}

func daysAgo(d int) string {
	return refNow.AddDate(0, 0, -d).Format("2006-01-02T15:04:05")
}

func TestCheckinTotals(t *testing.T) {
	w := openTestDB(t)
	seedCheckins(t, w,
		[3]string{"alice", "true", daysAgo(1)},
		[3]string{"alice", "false", daysAgo(2)},
		[3]string{"alice", "true", daysAgo(20)},
		[3]string{"bob", "true", daysAgo(40)},
	)
	repo := NewMetricsRepository(w, analyticsCfg)

	totals, err := repo.CheckinTotals(context.Background(), refNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, []models.CheckinTotals{
		{UserID: "alice", Total: 2, Completed: 1},
		{UserID: "bob", Total: 0, Completed: 0},
	}, totals)
}

func TestUpsertAdherenceUpdatesOnlyWindowColumn(t *testing.T) {
	w := openTestDB(t)
	seedCheckins(t, w, [3]string{"alice", "true", daysAgo(1)})
	repo := NewMetricsRepository(w, analyticsCfg)
	ctx := context.Background()

	require.NoError(t, repo.UpsertAdherence(ctx, refNow, 7, []models.AdherenceMetric{
		{UserID: "alice", Percentage: 50, Completed: 1, Total: 2},
	}))
	require.NoError(t, repo.UpsertAdherence(ctx, refNow, 30, []models.AdherenceMetric{
		{UserID: "alice", Percentage: 66.67},
	}))
	require.NoError(t, repo.UpsertAdherence(ctx, refNow, 30, []models.AdherenceMetric{
		{UserID: "alice", Percentage: 66.67},
	}))

	got, err := repo.UserMetrics(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got.Adherence)
	require.NotNil(t, got.Adherence.Adherence7d)
	require.NotNil(t, got.Adherence.Adherence30d)
	assert.Equal(t, 50.0, *got.Adherence.Adherence7d)
	assert.Equal(t, 66.67, *got.Adherence.Adherence30d)
	assert.Nil(t, got.Adherence.Adherence90d)

	var n int
	require.NoError(t, w.SQL().QueryRow(`SELECT COUNT(*) FROM metrics_adherence`).Scan(&n))
	assert.Equal(t, 1, n)

	assert.Error(t, repo.UpsertAdherence(ctx, refNow, 14, []models.AdherenceMetric{{UserID: "alice"}}))
}

func TestRiskInputs(t *testing.T) {
	w := openTestDB(t)
	seedCheckins(t, w,
		[3]string{"alice", "false", daysAgo(1)},
		[3]string{"alice", "false", daysAgo(5)},
		[3]string{"alice", "true", daysAgo(6)},
		[3]string{"bob", "false", daysAgo(30)},
	)
	repo := NewMetricsRepository(w, analyticsCfg)

	inputs, err := repo.RiskInputs(context.Background(), refNow.AddDate(0, 0, -3), refNow.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, inputs, 2)

	assert.Equal(t, "alice", inputs[0].UserID)
	assert.Equal(t, 1, inputs[0].Missed3d)
	assert.Equal(t, 2, inputs[0].Missed7d)
	require.NotNil(t, inputs[0].LastCheckinAt)
	assert.True(t, refNow.AddDate(0, 0, -1).Equal(*inputs[0].LastCheckinAt))

	assert.Equal(t, "bob", inputs[1].UserID)
	assert.Zero(t, inputs[1].Missed7d)
}

func TestCheckinHistoriesNewestFirst(t *testing.T) {
	w := openTestDB(t)
	seedCheckins(t, w,
		[3]string{"alice", "true", daysAgo(3)},
		[3]string{"alice", "false", daysAgo(2)},
		[3]string{"alice", "true", daysAgo(1)},
		[3]string{"bob", "false", daysAgo(1)},
	)
	repo := NewMetricsRepository(w, analyticsCfg)

	hist, err := repo.CheckinHistories(context.Background())
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, []bool{true, false, true}, hist[0].Completed)
	require.NotNil(t, hist[0].LastCompletion)
	assert.True(t, refNow.AddDate(0, 0, -1).Equal(*hist[0].LastCompletion))
	assert.Equal(t, []bool{false}, hist[1].Completed)
	assert.Nil(t, hist[1].LastCompletion)
}

func TestRiskAndStreakUpsertsAndReads(t *testing.T) {
	w := openTestDB(t)
	seedCheckins(t, w, [3]string{"alice", "true", daysAgo(1)})
	repo := NewMetricsRepository(w, analyticsCfg)
	ctx := context.Background()

	risk := []models.RiskMetric{
		{UserID: "alice", Level: models.RiskHigh, Score: 0.95, Missed3d: 2, Missed7d: 7, LastCheckinDaysAgo: 1, EvaluatedAt: refNow},
		{UserID: "bob", Level: models.RiskLow, Score: 0, LastCheckinDaysAgo: 999, EvaluatedAt: refNow},
	}
	require.NoError(t, repo.UpsertRisk(ctx, risk))
	require.NoError(t, repo.UpsertRisk(ctx, risk))

	last := refNow.AddDate(0, 0, -1)
	require.NoError(t, repo.UpsertStreaks(ctx, []models.StreakMetric{
		{UserID: "alice", CurrentStreak: 3, LongestStreak: 5, LastCompletion: &last, UpdatedAt: refNow},
	}))

	got, err := repo.UserMetrics(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, got.Risk)
	assert.Equal(t, models.RiskHigh, got.Risk.Level)
	assert.Equal(t, 0.95, got.Risk.Score)
	require.NotNil(t, got.Streak)
	assert.Equal(t, 3, got.Streak.CurrentStreak)
	assert.Equal(t, 5, got.Streak.LongestStreak)
	assert.Nil(t, got.Adherence)

	high, err := repo.UsersAtRisk(ctx, models.RiskHigh, 10)
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, "alice", high[0].UserID)

	none, err := repo.UserMetrics(ctx, "carol")
	require.NoError(t, err)
	assert.Nil(t, none.Risk)
	assert.Nil(t, none.Streak)
}
