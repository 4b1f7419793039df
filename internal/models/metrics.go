package models

import "time"

// AnalyticsJob names one of the warehouse metric computations.
type AnalyticsJob string

const (
	AnalyticsJobAdherence AnalyticsJob = "adherence"
	AnalyticsJobRisk      AnalyticsJob = "risk"
	AnalyticsJobStreak    AnalyticsJob = "streak"
)

// AnalyticsJobs lists every computation in the order the CLI runs them.
var AnalyticsJobs = []AnalyticsJob{AnalyticsJobAdherence, AnalyticsJobStreak, AnalyticsJobRisk}

// AnalyticsResult reports what a computation wrote.
type AnalyticsResult struct {
	Job          AnalyticsJob `json:"job"`
	UsersUpdated int          `json:"users_updated"`
	ComputedAt   time.Time    `json:"computed_at"`
}

// Risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// CheckinTotals is the per-user check-in count within a trailing window.
type CheckinTotals struct {
	UserID    string
	Total     int
	Completed int
}

// AdherenceMetric is one window's adherence for a user on a metric date.
type AdherenceMetric struct {
	UserID     string
	Percentage float64
	Completed  int
	Total      int
}

// RiskInput holds the warehouse facts risk scoring is derived from.
type RiskInput struct {
	UserID        string
	Missed3d      int
	Missed7d      int
	LastCheckinAt *time.Time
}

// RiskMetric is a user's stored risk assessment.
type RiskMetric struct {
	UserID             string    `json:"user_id"`
	Level              string    `json:"risk_level"`
	Score              float64   `json:"risk_score"`
	Missed3d           int       `json:"missed_count_3d"`
	Missed7d           int       `json:"missed_count_7d"`
	LastCheckinDaysAgo int       `json:"last_checkin_days_ago"`
	EvaluatedAt        time.Time `json:"last_evaluated"`
}

// CheckinHistory is a user's check-in outcomes ordered newest first.
type CheckinHistory struct {
	UserID         string
	Completed      []bool
	LastCompletion *time.Time
}

// StreakMetric is a user's stored streak.
type StreakMetric struct {
	UserID         string     `json:"user_id"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastCompletion *time.Time `json:"last_completion,omitempty"`
	UpdatedAt      time.Time  `json:"last_updated"`
}

// AdherenceSnapshot is the latest adherence row of a user.
type AdherenceSnapshot struct {
	MetricDate   time.Time `json:"metric_date"`
	Adherence7d  *float64  `json:"adherence_7d"`
	Adherence30d *float64  `json:"adherence_30d"`
	Adherence90d *float64  `json:"adherence_90d"`
}

// UserMetrics bundles the metric families read back for the coaching API.
type UserMetrics struct {
	UserID    string             `json:"user_id"`
	Adherence *AdherenceSnapshot `json:"adherence,omitempty"`
	Streak    *StreakMetric      `json:"streak,omitempty"`
	Risk      *RiskMetric        `json:"risk,omitempty"`
}
