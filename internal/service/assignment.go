package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tolkdesk/dispatch/internal/errs"
	"github.com/tolkdesk/dispatch/internal/model"
	"github.com/tolkdesk/dispatch/internal/timepolicy"
	"go.uber.org/zap"
)

// AssignmentLedger владеет инвариантом «не более одного активного назначения
// на заказ»: атомарный приём, переназначение с сохранением истории, закрытие
type AssignmentLedger struct {
	jobs        JobStore
	assignments AssignmentStore
	users       UserStore
	notifier    Notifier
	clock       timepolicy.Clock
	logger      *zap.Logger
}

func NewAssignmentLedger(jobs JobStore, assignments AssignmentStore, users UserStore, notifier Notifier, clock timepolicy.Clock, logger *zap.Logger) *AssignmentLedger {
	return &AssignmentLedger{
		jobs:        jobs,
		assignments: assignments,
		users:       users,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
	}
}

// Accept приём заказа толком. Из двух конкурентных вызовов на один заказ
// выигрывает ровно один, второй получает отказ
func (l *AssignmentLedger) Accept(ctx context.Context, jobID, translatorID int64) (*Result, error) {
	job, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, errs.ErrNotFound
	}

	language, err := l.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}

	booked, err := l.assignments.HasOverlapping(ctx, translatorID, job.Due, job.Due.Add(time.Duration(job.Duration)*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("check double booking: %w", err)
	}
	if booked {
		return fail(fmt.Sprintf("Du har redan en bokning den tiden %s. Du har inte fått denna tolkning", job.Due.Format(dueLayout))), nil
	}

	if job.Status != model.JobStatusPending {
		return fail(fmt.Sprintf("Denna %stolkning %dmin %s har redan accepterats av annan tolk. Du har inte fått denna tolkning",
			language, job.Duration, job.Due.Format(dueLayout))), nil
	}

	_, err = l.assignments.Accept(ctx, jobID, translatorID)
	if err != nil {
		if errors.Is(err, errs.ErrAlreadyAssigned) {
			return fail(fmt.Sprintf("Denna %stolkning %dmin %s har redan accepterats av annan tolk. Du har inte fått denna tolkning",
				language, job.Duration, job.Due.Format(dueLayout))), nil
		}
		return nil, fmt.Errorf("accept job: %w", err)
	}
	job.Status = model.JobStatusAssigned

	l.logger.Info("Job accepted",
		zap.Int64("job_id", jobID),
		zap.Int64("translator_id", translatorID),
	)

	// уведомления только после зафиксированного приёма
	customer, err := l.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if customer != nil {
		l.notifier.MailJobAccepted(ctx, job, customer)
		l.notifier.PushJobAccepted(ctx, job, customer, language)
	}

	res := success()
	res.JobID = job.ID
	res.Message = fmt.Sprintf("Du har nu accepterat och fått bokningen för %stolk %dmin %s",
		language, job.Duration, job.Due.Format(dueLayout))
	return res, nil
}

// Reassign переводит заказ на нового толка: прежнее назначение отменяется,
// затем создаётся новая запись, всё в одной транзакции. Прежний толк в
// записи не затирается — история нужна аудиту и уведомлениям
func (l *AssignmentLedger) Reassign(ctx context.Context, current *model.Assignment, newTranslatorID int64, job *model.Job) (*model.Assignment, error) {
	replacement, err := l.assignments.Replace(ctx, current.ID, job.ID, newTranslatorID, l.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("replace assignment: %w", err)
	}

	l.logger.Info("Translator reassigned",
		zap.Int64("job_id", job.ID),
		zap.Int64("old_translator_id", current.TranslatorID),
		zap.Int64("new_translator_id", newTranslatorID),
	)

	return replacement, nil
}

// AssignDirect админ-назначение толка на заказ без активного назначения
func (l *AssignmentLedger) AssignDirect(ctx context.Context, translatorID, jobID int64) (*model.Assignment, error) {
	a := &model.Assignment{
		JobID:        jobID,
		TranslatorID: translatorID,
	}
	if err := l.assignments.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return a, nil
}

// Finalize закрывает назначение; повторное закрытие — ошибка
func (l *AssignmentLedger) Finalize(ctx context.Context, a *model.Assignment, completedBy int64, at time.Time) error {
	if a.Finalized() {
		return errs.ErrAlreadyFinalized
	}
	if err := l.assignments.Finalize(ctx, a.ID, completedBy, at); err != nil {
		return err
	}
	a.CompletedAt = &at
	a.CompletedBy = &completedBy
	return nil
}

// ActiveFor активное назначение заказа, либо последнее завершённое
func (l *AssignmentLedger) ActiveFor(ctx context.Context, jobID int64) (*model.Assignment, error) {
	return l.assignments.CurrentForJob(ctx, jobID)
}
