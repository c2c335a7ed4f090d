package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tolkdesk/dispatch/internal/errs"
	"github.com/tolkdesk/dispatch/internal/model"
	"github.com/tolkdesk/dispatch/internal/timepolicy"
	"go.uber.org/zap"
)

const dueLayout = "2006-01-02 15:04:05"

// UpdateRequest правки заказа от администратора. Пустые поля не трогаются
type UpdateRequest struct {
	Status          model.JobStatus
	Due             *time.Time
	LanguageID      *int64
	TranslatorID    *int64
	TranslatorEmail string
	AdminComments   string
	Reference       string
	SessionTime     string
}

// StatusMachine применяет правки заказа: таблица переходов статусов плюс
// независимые проверки смены даты, языка и толка. Диспетчеризация идёт по
// СТАРОМУ статусу, каждый обработчик сам валидирует запрошенный новый
type StatusMachine struct {
	jobs        JobStore
	assignments AssignmentStore
	users       UserStore
	ledger      *AssignmentLedger
	matcher     *MatchingEngine
	notifier    Notifier
	clock       timepolicy.Clock
	logger      *zap.Logger
}

func NewStatusMachine(jobs JobStore, assignments AssignmentStore, users UserStore, ledger *AssignmentLedger, matcher *MatchingEngine, notifier Notifier, clock timepolicy.Clock, logger *zap.Logger) *StatusMachine {
	return &StatusMachine{
		jobs:        jobs,
		assignments: assignments,
		users:       users,
		ledger:      ledger,
		matcher:     matcher,
		notifier:    notifier,
		clock:       clock,
		logger:      logger,
	}
}

// updateState накапливает итог одной правки: изменения, записи журнала и
// уведомления, которые отправятся только после успешного сохранения
type updateState struct {
	job           *model.Job
	customer      *model.User
	language      string
	current       *model.Assignment // активное либо последнее назначение на момент запроса
	newTranslator *model.User

	log []model.ChangeLogEntry

	// уведомления откладываются до коммита. Побочные эффекты перехода
	// статуса уходят всегда; производные от правок полей — только пока
	// срок заказа в будущем
	after      []func()
	whenFuture []func()
}

func (st *updateState) logChange(field, oldValue, newValue string) {
	st.log = append(st.log, model.ChangeLogEntry{Field: field, OldValue: oldValue, NewValue: newValue})
}

// UpdateJob одна логическая правка заказа. Либо фиксируется весь набор
// изменений вместе с журналом, либо ничего; уведомления уходят после
func (s *StatusMachine) UpdateJob(ctx context.Context, id int64, req UpdateRequest) (*Result, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, errs.ErrNotFound
	}

	customer, err := s.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	language, err := s.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}
	current, err := s.assignments.CurrentForJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("get current assignment: %w", err)
	}

	st := &updateState{job: job, customer: customer, language: language, current: current}

	oldDue := job.Due
	oldLanguageID := job.LanguageID

	newTranslator, err := s.resolveTranslator(ctx, req)
	if err != nil {
		return nil, err
	}
	translatorChanged := newTranslator != nil &&
		(current == nil || current.TranslatorID != newTranslator.ID)
	if translatorChanged {
		st.newTranslator = newTranslator
	}

	if req.AdminComments != "" {
		job.AdminComments = req.AdminComments
	}
	if req.Reference != "" {
		job.Reference = req.Reference
	}

	// таблица переходов; одноимённый статус — no-op без записи в журнал
	if req.Status != "" && req.Status != job.Status {
		oldStatus := job.Status
		var res *Result
		var changed bool
		switch oldStatus {
		case model.JobStatusTimedout:
			res, changed = s.fromTimedout(ctx, st, req, translatorChanged)
		case model.JobStatusCompleted:
			res, changed = s.fromCompleted(st, req)
		case model.JobStatusStarted:
			res, changed = s.fromStarted(ctx, st, req)
		case model.JobStatusPending:
			res, changed = s.fromPending(ctx, st, req, translatorChanged)
		case model.JobStatusWithdrawAfter24:
			res, changed = s.fromWithdrawAfter24(st, req)
		case model.JobStatusAssigned:
			res, changed = s.fromAssigned(ctx, st, req)
		default:
			res, changed = nil, false
		}
		if res != nil {
			// валидация не прошла, состояние не тронуто
			return res, nil
		}
		if changed {
			st.logChange("status", string(oldStatus), string(job.Status))
		}
	}

	// независимые проверки: дата, язык, толк. Каждая даёт свою запись
	// в журнале; производные уведомления — только если итоговая дата
	// строго в будущем
	if req.Due != nil && !req.Due.Equal(oldDue) {
		job.Due = *req.Due
		st.logChange("due", oldDue.Format(dueLayout), job.Due.Format(dueLayout))
		st.whenFuture = append(st.whenFuture, func() {
			s.notifier.MailChangedDate(ctx, job, customer, s.translatorOf(ctx, st.current), oldDue)
		})
	}

	if req.LanguageID != nil && *req.LanguageID != oldLanguageID {
		oldLanguage := language
		job.LanguageID = *req.LanguageID
		newLanguage, err := s.users.LanguageName(ctx, job.LanguageID)
		if err != nil {
			return nil, fmt.Errorf("get language: %w", err)
		}
		st.language = newLanguage
		st.logChange("language", oldLanguage, newLanguage)
		st.whenFuture = append(st.whenFuture, func() {
			s.notifier.MailChangedLang(ctx, job, customer, s.translatorOf(ctx, st.current), oldLanguage)
		})
	}

	if translatorChanged {
		if err := s.changeTranslator(ctx, st); err != nil {
			return nil, err
		}
	}

	if len(st.log) == 0 {
		return success(), nil
	}

	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	for _, entry := range st.log {
		s.logger.Info("Job changed",
			zap.Int64("job_id", job.ID),
			zap.String("field", entry.Field),
			zap.String("old", entry.OldValue),
			zap.String("new", entry.NewValue),
		)
	}

	for _, fn := range st.after {
		fn()
	}
	if job.Due.After(s.clock.Now()) {
		for _, fn := range st.whenFuture {
			fn()
		}
	}

	res := success()
	res.JobID = job.ID
	res.Log = st.log
	return res, nil
}

func (s *StatusMachine) resolveTranslator(ctx context.Context, req UpdateRequest) (*model.User, error) {
	switch {
	case req.TranslatorID != nil:
		u, err := s.users.GetByID(ctx, *req.TranslatorID)
		if err != nil {
			return nil, fmt.Errorf("get translator: %w", err)
		}
		return u, nil
	case req.TranslatorEmail != "":
		u, err := s.users.GetByEmail(ctx, req.TranslatorEmail)
		if err != nil {
			return nil, fmt.Errorf("get translator by email: %w", err)
		}
		return u, nil
	}
	return nil, nil
}

// translatorOf толк по записи назначения; nil допустим — рассылка сама
// пропустит отсутствующего адресата
func (s *StatusMachine) translatorOf(ctx context.Context, a *model.Assignment) *model.User {
	if a == nil {
		return nil
	}
	u, err := s.users.GetByID(ctx, a.TranslatorID)
	if err != nil {
		s.logger.Warn("Failed to load translator for notification",
			zap.Int64("translator_id", a.TranslatorID), zap.Error(err))
		return nil
	}
	return u
}

// changeTranslator новая запись назначения, прежняя отменяется. Прежний
// толк извещается вместе с новым и заказчиком
func (s *StatusMachine) changeTranslator(ctx context.Context, st *updateState) error {
	oldName := ""
	var oldTranslator *model.User
	if st.current != nil && st.current.Active() {
		oldTranslator = s.translatorOf(ctx, st.current)
		if oldTranslator != nil {
			oldName = oldTranslator.Email
		}
		if _, err := s.ledger.Reassign(ctx, st.current, st.newTranslator.ID, st.job); err != nil {
			return err
		}
	} else {
		if _, err := s.ledger.AssignDirect(ctx, st.newTranslator.ID, st.job.ID); err != nil {
			return err
		}
	}
	st.logChange("translator", oldName, st.newTranslator.Email)

	job, customer, newTranslator := st.job, st.customer, st.newTranslator
	st.whenFuture = append(st.whenFuture, func() {
		s.notifier.MailChangedTranslator(ctx, job, customer, oldTranslator, newTranslator)
	})
	return nil
}

// fromTimedout заказ возвращается в пул либо, если только что сменили
// толка, остаётся как есть с извещением заказчика
func (s *StatusMachine) fromTimedout(ctx context.Context, st *updateState, req UpdateRequest, translatorChanged bool) (*Result, bool) {
	switch {
	case req.Status == model.JobStatusPending:
		now := s.clock.Now()
		st.job.Status = model.JobStatusPending
		st.job.CreatedAt = now
		st.job.EmailSent = false
		st.job.WillExpireAt = timepolicy.AcceptanceDeadline(st.job.Due, now)
		job, customer, language := st.job, st.customer, st.language
		st.after = append(st.after, func() {
			s.notifier.MailReopened(ctx, job, customer, language)
			s.broadcast(ctx, job, customer, language, 0)
		})
		return nil, true
	case translatorChanged:
		job, customer := st.job, st.customer
		st.after = append(st.after, func() {
			s.notifier.MailJobAccepted(ctx, job, customer)
		})
		return nil, false
	}
	return nil, false
}

func (s *StatusMachine) fromCompleted(st *updateState, req UpdateRequest) (*Result, bool) {
	if req.Status != model.JobStatusTimedout {
		return nil, false
	}
	if req.AdminComments == "" {
		return failField("admin_comments"), false
	}
	st.job.Status = model.JobStatusTimedout
	return nil, true
}

func (s *StatusMachine) fromStarted(ctx context.Context, st *updateState, req UpdateRequest) (*Result, bool) {
	if req.AdminComments == "" {
		return failField("admin_comments"), false
	}
	if req.Status == model.JobStatusCompleted {
		if req.SessionTime == "" {
			return failField("session_time"), false
		}
		st.job.SessionTime = req.SessionTime
		now := s.clock.Now()
		st.job.EndAt = &now
		st.job.Status = model.JobStatusCompleted
		job, customer := st.job, st.customer
		translator := s.translatorOf(ctx, st.current)
		sessionTime := req.SessionTime
		st.after = append(st.after, func() {
			s.notifier.MailSessionEnded(ctx, job, customer, translator, sessionTime)
		})
		return nil, true
	}
	st.job.Status = req.Status
	return nil, true
}

// fromPending назначение толка либо отмена: при назначении заказчик и
// новый толк получают письма и напоминания о начале сеанса
func (s *StatusMachine) fromPending(ctx context.Context, st *updateState, req UpdateRequest, translatorChanged bool) (*Result, bool) {
	if req.Status == model.JobStatusAssigned && translatorChanged {
		st.job.Status = model.JobStatusAssigned
		job, customer, language, translator := st.job, st.customer, st.language, st.newTranslator
		st.after = append(st.after, func() {
			s.notifier.MailJobAccepted(ctx, job, customer)
			s.notifier.MailNewTranslator(ctx, job, translator)
			s.notifier.SessionStartReminder(ctx, customer, job, language)
			s.notifier.SessionStartReminder(ctx, translator, job, language)
		})
		return nil, true
	}
	st.job.Status = req.Status
	job, customer := st.job, st.customer
	st.after = append(st.after, func() {
		s.notifier.MailCancelledPending(ctx, job, customer)
	})
	return nil, true
}

func (s *StatusMachine) fromWithdrawAfter24(st *updateState, req UpdateRequest) (*Result, bool) {
	if req.Status != model.JobStatusTimedout {
		return nil, false
	}
	if req.AdminComments == "" {
		return failField("admin_comments"), false
	}
	st.job.Status = model.JobStatusTimedout
	return nil, true
}

// fromAssigned снятие заказа: варианты withdraw закрывают активное
// назначение и извещают обе стороны
func (s *StatusMachine) fromAssigned(ctx context.Context, st *updateState, req UpdateRequest) (*Result, bool) {
	switch req.Status {
	case model.JobStatusWithdrawBefore24, model.JobStatusWithdrawAfter24, model.JobStatusTimedout:
	default:
		return nil, false
	}
	if req.Status == model.JobStatusTimedout && req.AdminComments == "" {
		return failField("admin_comments"), false
	}
	st.job.Status = req.Status

	if req.Status == model.JobStatusWithdrawBefore24 || req.Status == model.JobStatusWithdrawAfter24 {
		translator := s.translatorOf(ctx, st.current)
		if err := s.assignments.CancelActiveForJob(ctx, st.job.ID, s.clock.Now()); err != nil {
			s.logger.Warn("Failed to cancel active assignment",
				zap.Int64("job_id", st.job.ID), zap.Error(err))
		}
		job, customer := st.job, st.customer
		st.after = append(st.after, func() {
			s.notifier.MailWithdraw(ctx, job, customer, translator)
		})
	}
	return nil, true
}

// broadcast рассылка подходящим толкам, разбитая на немедленную и
// отложенную до утра группы
func (s *StatusMachine) broadcast(ctx context.Context, job *model.Job, customer *model.User, language string, excludeUserID int64) {
	immediate, delayed, err := s.matcher.TranslatorsFor(ctx, job, excludeUserID)
	if err != nil {
		s.logger.Warn("Failed to enumerate translators for broadcast",
			zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}
	s.notifier.BroadcastSuitableJob(ctx, job, customer, language, immediate, delayed)
}
