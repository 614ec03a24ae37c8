package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/purpura/api/onboarding-events-engine/internal/apperrors"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/integration"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/model"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/observer"
	"gitlab.com/purpura/api/onboarding-events-engine/internal/storage"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/logger"
	"gitlab.com/purpura/api/onboarding-events-engine/pkg/utils"
)

// Reminder run modes.
const (
	ReminderModeToday    = "today"
	ReminderModeTomorrow = "tomorrow"
)

// ReminderRunSummary aggregates the outcome of one reminder batch run.
type ReminderRunSummary struct {
	Mode       string `json:"mode"`
	DryRun     bool   `json:"dry_run"`
	TargetDate string `json:"target_date"`
	Processed  int    `json:"processed"`
	Sent       int    `json:"sent"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// ReminderService runs reminder batches against due schedules. Exactly-once
// sending rests on the reservation insert, not on run scheduling: overlapping
// runs race on the reservation and exactly one wins each slot.
type ReminderService struct {
	repo     storage.ReminderRepo
	sender   *integration.WhatsAppClient
	location *time.Location
}

// NewReminderService creates the reminder service. An unloadable timezone
// falls back to UTC.
func NewReminderService(repo storage.ReminderRepo, sender *integration.WhatsAppClient, timezone string) *ReminderService {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Log.Warn("Failed to load reminder timezone, falling back to UTC",
			zap.String("timezone", timezone), zap.Error(err))
		loc = time.UTC
	}
	return &ReminderService{repo: repo, sender: sender, location: loc}
}

// Run executes one reminder batch for the given mode. dryRun reserves slots
// without sending; a disabled or unconfigured sender forces dry-run behavior.
func (s *ReminderService) Run(ctx context.Context, mode string, dryRun bool) (*ReminderRunSummary, error) {
	if mode != ReminderModeToday && mode != ReminderModeTomorrow {
		return nil, fmt.Errorf("%w: unknown reminder mode %q", apperrors.ErrBadRequest, mode)
	}

	if s.sender == nil || !s.sender.Enabled() {
		if !dryRun {
			logger.FromContext(ctx).Info("Sender disabled, forcing dry-run mode")
		}
		dryRun = true
	}

	targetDate := s.targetDate(mode)
	summary := &ReminderRunSummary{
		Mode:       mode,
		DryRun:     dryRun,
		TargetDate: targetDate.Format("2006-01-02"),
	}
	observer.IncReminderRun(mode, dryRun)

	schedules, err := s.repo.ListDueSchedules(ctx, targetDate)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With(
		zap.String("mode", mode),
		zap.Bool("dry_run", dryRun),
		zap.String("target_date", summary.TargetDate),
	)
	log.Info("Starting reminder run", zap.Int("due_schedules", len(schedules)))

	for _, schedule := range schedules {
		outcome := s.processSchedule(ctx, schedule, targetDate, dryRun)
		observer.IncReminderOutcome(outcome)
		switch outcome {
		case "sent":
			summary.Processed++
			summary.Sent++
		case "dry_run":
			summary.Processed++
		case "skipped":
			summary.Skipped++
		case "failed":
			summary.Processed++
			summary.Failed++
		}
	}

	log.Info("Reminder run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("sent", summary.Sent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// processSchedule handles one due schedule and returns its outcome label.
func (s *ReminderService) processSchedule(ctx context.Context, schedule model.ReminderSchedule, targetDate time.Time, dryRun bool) string {
	log := logger.FromContext(ctx).With(
		zap.String("schedule_id", schedule.ID),
		zap.String("phone", schedule.Phone),
		zap.String("reminder_type", schedule.ReminderType),
	)

	intent := model.ReminderStatusSent
	if dryRun {
		intent = model.ReminderStatusDryRun
	}

	reminderLog := &model.ReminderLog{
		ClientID:     schedule.ClientID,
		Phone:        schedule.Phone,
		RemindDate:   targetDate,
		ReminderType: schedule.ReminderType,
		Status:       intent,
		Payload: datatypes.JSON(utils.MustMarshalJSON(map[string]string{
			"schedule_id": schedule.ID,
		})),
	}

	reserved, err := s.repo.ReserveReminder(ctx, reminderLog)
	if err != nil {
		log.Error("Failed to reserve reminder slot", zap.Error(err))
		return "failed"
	}
	if !reserved {
		log.Debug("Reminder slot already held, skipping")
		return "skipped"
	}

	if dryRun {
		log.Info("Dry-run reminder reserved, no message sent")
		return "dry_run"
	}

	providerMessageID, sendErr := s.sender.SendTemplate(ctx, schedule.Phone, nil)
	if sendErr != nil {
		log.Error("Failed to send reminder", zap.Error(sendErr))
		// The failed row falls outside the reservation index, so the slot
		// reopens for a later run.
		if markErr := s.repo.MarkReminderFailed(ctx, reminderLog.ID, observer.SanitizeErrorType(sendErr.Error())+": "+truncateSummary(sendErr.Error())); markErr != nil {
			log.Error("Failed to mark reminder as failed", zap.Error(markErr))
		}
		return "failed"
	}

	if markErr := s.repo.MarkReminderSent(ctx, reminderLog.ID, providerMessageID); markErr != nil {
		// The message went out; the reservation stays held either way.
		log.Error("Failed to record sent reminder", zap.Error(markErr))
	}
	return "sent"
}

// targetDate resolves the run mode to a calendar date in the business
// timezone, truncated to midnight UTC for the date-typed column.
func (s *ReminderService) targetDate(mode string) time.Time {
	now := time.Now().In(s.location)
	if mode == ReminderModeTomorrow {
		now = now.AddDate(0, 0, 1)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateSummary(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}
