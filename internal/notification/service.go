package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
	"github.com/SomaOhm/Goal-Tracking-App/internal/repository"
)

const (
	SourceSync      = "sync"
	SourceAnalytics = "analytics"
)

type Event struct {
	Source   string
	Event    models.NotificationEvent
	Severity models.NotificationSeverity
	Title    string
	Message  string
	Metadata map[string]interface{}
}

type Service interface {
	Publish(ctx context.Context, evt Event) (models.Notification, error)
	NotifyTableSyncFailed(ctx context.Context, table, reason string) error
	NotifySyncRunFatal(ctx context.Context, runID, reason string) error
	NotifyAnalyticsFailed(ctx context.Context, job models.AnalyticsJob, reason string) error
	ListRecent(ctx context.Context, limit int, unreadOnly bool) ([]models.Notification, error)
	MarkRead(ctx context.Context, notificationID string) (models.Notification, error)
}

type service struct {
	repo      repository.NotificationRepository
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	return &service{
		repo:      repo,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Publish(ctx context.Context, evt Event) (models.Notification, error) {
	if evt.Event == "" {
		return models.Notification{}, errors.New("event type is required")
	}
	if evt.Severity == "" {
		evt.Severity = models.NotificationSeverityInfo
	}
	title := strings.TrimSpace(evt.Title)
	message := strings.TrimSpace(evt.Message)
	if title == "" {
		title = string(evt.Event)
	}
	params := repository.CreateNotificationParams{
		Event:    evt.Event,
		Severity: evt.Severity,
		Title:    title,
		Message:  message,
		Metadata: evt.Metadata,
	}
	if src := strings.TrimSpace(evt.Source); src != "" {
		params.Source = &src
	}

	notif, err := s.repo.Create(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", string(evt.Event)).Msg("failed to persist notification")
		return models.Notification{}, err
	}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, notif); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), notif)
		}
	}
	return notif, nil
}

func (s *service) NotifyTableSyncFailed(ctx context.Context, table, reason string) error {
	if strings.TrimSpace(table) == "" {
		return errors.New("table is required for sync notifications")
	}
	reason = fallbackReason(reason)
	_, err := s.Publish(ctx, Event{
		Source:   SourceSync,
		Event:    models.NotificationEventTableSyncFailed,
		Severity: models.NotificationSeverityWarning,
		Title:    fmt.Sprintf("Table sync failed: %s", table),
		Message:  fmt.Sprintf("Syncing %s failed and will be retried on the next run: %s", table, reason),
		Metadata: map[string]interface{}{
			"table":  table,
			"reason": reason,
		},
	})
	return err
}

func (s *service) NotifySyncRunFatal(ctx context.Context, runID, reason string) error {
	reason = fallbackReason(reason)
	_, err := s.Publish(ctx, Event{
		Source:   SourceSync,
		Event:    models.NotificationEventSyncRunFatal,
		Severity: models.NotificationSeverityError,
		Title:    "Sync run failed",
		Message:  fmt.Sprintf("Sync run %s gave up after retries: %s", runID, reason),
		Metadata: map[string]interface{}{
			"run_id": runID,
			"reason": reason,
		},
	})
	return err
}

func (s *service) NotifyAnalyticsFailed(ctx context.Context, job models.AnalyticsJob, reason string) error {
	reason = fallbackReason(reason)
	_, err := s.Publish(ctx, Event{
		Source:   SourceAnalytics,
		Event:    models.NotificationEventAnalyticsFailed,
		Severity: models.NotificationSeverityError,
		Title:    fmt.Sprintf("Analytics failed: %s", job),
		Message:  fmt.Sprintf("Computing %s metrics failed: %s", job, reason),
		Metadata: map[string]interface{}{
			"job":    string(job),
			"reason": reason,
		},
	})
	return err
}

func (s *service) ListRecent(ctx context.Context, limit int, unreadOnly bool) ([]models.Notification, error) {
	return s.repo.ListRecent(ctx, limit, unreadOnly)
}

func (s *service) MarkRead(ctx context.Context, notificationID string) (models.Notification, error) {
	return s.repo.MarkRead(ctx, notificationID)
}

func fallbackReason(reason string) string {
	if trimmed := strings.TrimSpace(reason); trimmed != "" {
		return trimmed
	}
	return "Unknown error"
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}
