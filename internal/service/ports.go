package service

import (
	"context"
	"time"

	"github.com/tolkdesk/dispatch/internal/model"
)

// JobStore хранилище заказов
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	GetByID(ctx context.Context, id int64) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
	UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error
	PendingJobs(ctx context.Context) ([]*model.Job, error)
	ExpiredPending(ctx context.Context, now time.Time) ([]*model.Job, error)
}

// AssignmentStore хранилище назначений
type AssignmentStore interface {
	Accept(ctx context.Context, jobID, translatorID int64) (*model.Assignment, error)
	Create(ctx context.Context, a *model.Assignment) error
	Replace(ctx context.Context, currentID, jobID, translatorID int64, at time.Time) (*model.Assignment, error)
	CancelActiveForJob(ctx context.Context, jobID int64, at time.Time) error
	Finalize(ctx context.Context, id, completedBy int64, at time.Time) error
	ActiveForJob(ctx context.Context, jobID int64) (*model.Assignment, error)
	CurrentForJob(ctx context.Context, jobID int64) (*model.Assignment, error)
	HasActiveAt(ctx context.Context, translatorID int64, due time.Time) (bool, error)
	HasOverlapping(ctx context.Context, translatorID int64, from, to time.Time) (bool, error)
	AcceptedInTown(ctx context.Context, translatorID, customerID int64, town string) (bool, error)
}

// UserStore хранилище пользователей и справочника языков
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Translators(ctx context.Context) ([]*model.User, error)
	LanguagesOf(ctx context.Context, userID int64) ([]int64, error)
	BlacklistedTranslatorIDs(ctx context.Context, customerID int64) ([]int64, error)
	LanguageName(ctx context.Context, languageID int64) (string, error)
}

// EventBus шина событий жизненного цикла
type EventBus interface {
	Publish(ctx context.Context, kind string, payload any) error
}

// Notifier контракт диспетчера уведомлений. Вызовы не возвращают ошибок:
// сбой транспорта не откатывает вызвавшую операцию
type Notifier interface {
	BroadcastSuitableJob(ctx context.Context, job *model.Job, customer *model.User, language string, immediate, delayed []*model.User)
	MailJobCreated(ctx context.Context, job *model.Job, customer *model.User)
	MailJobAccepted(ctx context.Context, job *model.Job, customer *model.User)
	MailNewTranslator(ctx context.Context, job *model.Job, translator *model.User)
	PushJobAccepted(ctx context.Context, job *model.Job, customer *model.User, language string)
	MailChangedTranslator(ctx context.Context, job *model.Job, customer, oldTranslator, newTranslator *model.User)
	MailChangedDate(ctx context.Context, job *model.Job, customer, translator *model.User, oldTime time.Time)
	MailChangedLang(ctx context.Context, job *model.Job, customer, translator *model.User, oldLanguage string)
	MailSessionEnded(ctx context.Context, job *model.Job, customer, translator *model.User, sessionTime string)
	MailWithdraw(ctx context.Context, job *model.Job, customer, translator *model.User)
	MailCancelledPending(ctx context.Context, job *model.Job, customer *model.User)
	MailReopened(ctx context.Context, job *model.Job, customer *model.User, language string)
	SessionStartReminder(ctx context.Context, user *model.User, job *model.Job, language string)
	PushExpired(ctx context.Context, job *model.Job, customer *model.User, language string)
	PushCancelledToTranslator(ctx context.Context, job *model.Job, translator *model.User, language string)
	PushTranslatorWithdrew(ctx context.Context, job *model.Job, customer *model.User, language string)
	SendSMSToTranslators(ctx context.Context, job *model.Job, translators []*model.User, town string) int
}
