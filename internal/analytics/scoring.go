package analytics

import (
	"math"
	"time"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

// UnknownDaysSince is stored as last_checkin_days_ago for users without any check-in time.
const UnknownDaysSince = 999

// AdherencePct is the completed share of total as a percentage rounded to two decimals.
func AdherencePct(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(10000*float64(completed)/float64(total)) / 100
}

// ScoreRisk derives a risk level and score from the misses of the last seven days and the days
// since the latest check-in, nil when unknown.
func ScoreRisk(missed7d int, daysSince *int) (string, float64) {
	level, score := models.RiskLow, 0.0
	switch {
	case missed7d >= 4:
		level = models.RiskHigh
		score = 0.8 + float64(min(missed7d-4, 3))*0.05
	case missed7d >= 2:
		level = models.RiskMedium
		score = 0.5 + float64(missed7d)*0.1
	}
	if daysSince != nil && *daysSince > 3 {
		level = models.RiskHigh
		score = math.Max(score, 0.7)
	}
	return level, math.Min(math.Max(score, 0), 1)
}

// Streak walks outcomes newest first. current counts completions up to the first miss and
// longest is the longest run anywhere in the history.
func Streak(newestFirst []bool) (current, longest int) {
	run, broken := 0, false
	for _, completed := range newestFirst {
		if completed {
			run++
			if !broken {
				current = run
			}
			continue
		}
		broken = true
		longest = max(longest, run)
		run = 0
	}
	return current, max(longest, run)
}

// DaysBetween counts UTC calendar-day boundaries from then to now.
func DaysBetween(then, now time.Time) int {
	y1, m1, d1 := then.UTC().Date()
	y2, m2, d2 := now.UTC().Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
