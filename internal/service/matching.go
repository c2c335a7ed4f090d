package service

import (
	"context"
	"fmt"

	"github.com/tolkdesk/dispatch/internal/model"
	"github.com/tolkdesk/dispatch/internal/timepolicy"
	"go.uber.org/zap"
)

// MatchingEngine перечисляет подходящие заказы для толка и подходящих
// толков для заказа
type MatchingEngine struct {
	jobs        JobStore
	assignments AssignmentStore
	users       UserStore
	clock       timepolicy.Clock
	logger      *zap.Logger
}

func NewMatchingEngine(jobs JobStore, assignments AssignmentStore, users UserStore, clock timepolicy.Clock, logger *zap.Logger) *MatchingEngine {
	return &MatchingEngine{
		jobs:        jobs,
		assignments: assignments,
		users:       users,
		clock:       clock,
		logger:      logger,
	}
}

// eligibilityInput собирает данные для чистой проверки допуска
func (m *MatchingEngine) eligibilityInput(ctx context.Context, job *model.Job, translator *model.User) (EligibilityInput, error) {
	in := EligibilityInput{Job: job, Translator: translator}

	customer, err := m.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return in, fmt.Errorf("get job customer: %w", err)
	}
	if customer != nil {
		in.CustomerTown = customer.City
	}
	if job.Town != "" {
		in.CustomerTown = job.Town
	}

	blacklist, err := m.users.BlacklistedTranslatorIDs(ctx, job.CustomerID)
	if err != nil {
		return in, fmt.Errorf("get blacklist: %w", err)
	}
	for _, id := range blacklist {
		if id == translator.ID {
			in.Blacklisted = true
			break
		}
	}

	if job.PhysicalOnly() && in.CustomerTown != translator.City {
		affinity, err := m.assignments.AcceptedInTown(ctx, translator.ID, job.CustomerID, in.CustomerTown)
		if err != nil {
			return in, fmt.Errorf("check town affinity: %w", err)
		}
		in.SameTownHistory = affinity
	}

	conflict, err := m.assignments.HasActiveAt(ctx, translator.ID, job.Due)
	if err != nil {
		return in, fmt.Errorf("check time conflict: %w", err)
	}
	in.TimeConflict = conflict

	return in, nil
}

// loadTranslator получает толка вместе с языками
func (m *MatchingEngine) loadTranslator(ctx context.Context, translatorID int64) (*model.User, error) {
	translator, err := m.users.GetByID(ctx, translatorID)
	if err != nil {
		return nil, fmt.Errorf("get translator: %w", err)
	}
	if translator == nil || !translator.IsTranslator() {
		return nil, nil
	}

	languages, err := m.users.LanguagesOf(ctx, translator.ID)
	if err != nil {
		return nil, fmt.Errorf("get translator languages: %w", err)
	}
	translator.LanguageIDs = languages

	return translator, nil
}

// JobsFor перечисляет pending заказы, которые толк может видеть и принять
func (m *MatchingEngine) JobsFor(ctx context.Context, translatorID int64) ([]*model.Job, error) {
	translator, err := m.loadTranslator(ctx, translatorID)
	if err != nil {
		return nil, err
	}
	if translator == nil {
		return nil, nil
	}

	pending, err := m.jobs.PendingJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("get pending jobs: %w", err)
	}

	var jobs []*model.Job
	for _, job := range pending {
		// заказ под конкретного толка виден только ему
		if job.SpecificTranslatorID != nil && *job.SpecificTranslatorID != translator.ID {
			continue
		}

		in, err := m.eligibilityInput(ctx, job, translator)
		if err != nil {
			return nil, err
		}

		if ok, _ := Eligible(in); ok {
			jobs = append(jobs, job)
		}
	}

	return jobs, nil
}

// EligibleTranslators перечисляет всех допущенных к заказу толков,
// без учёта настроек уведомлений
func (m *MatchingEngine) EligibleTranslators(ctx context.Context, job *model.Job, excludeUserID int64) ([]*model.User, error) {
	translators, err := m.users.Translators(ctx)
	if err != nil {
		return nil, fmt.Errorf("get translators: %w", err)
	}

	var eligible []*model.User
	for _, translator := range translators {
		if translator.ID == excludeUserID {
			continue
		}
		if job.SpecificTranslatorID != nil && *job.SpecificTranslatorID != translator.ID {
			continue
		}

		languages, err := m.users.LanguagesOf(ctx, translator.ID)
		if err != nil {
			return nil, fmt.Errorf("get translator languages: %w", err)
		}
		translator.LanguageIDs = languages

		in, err := m.eligibilityInput(ctx, job, translator)
		if err != nil {
			return nil, err
		}

		ok, reason := Eligible(in)
		if !ok {
			m.logger.Debug("Translator not eligible",
				zap.Int64("job_id", job.ID),
				zap.Int64("translator_id", translator.ID),
				zap.String("reason", reason),
			)
			continue
		}

		eligible = append(eligible, translator)
	}

	return eligible, nil
}

// TranslatorsFor перечисляет толков для push-рассылки о заказе и делит их
// на немедленную и отложенную группы. Группы не пересекаются и вместе
// покрывают всех допущенных получателей.
func (m *MatchingEngine) TranslatorsFor(ctx context.Context, job *model.Job, excludeUserID int64) (immediate, delayed []*model.User, err error) {
	eligible, err := m.EligibleTranslators(ctx, job, excludeUserID)
	if err != nil {
		return nil, nil, err
	}

	night := timepolicy.IsNight(m.clock.Now())
	for _, translator := range eligible {
		if translator.SuppressNotifications {
			continue
		}
		if job.Immediate && translator.NoEmergencyPush {
			continue
		}

		if night && translator.SuppressNightNotifications {
			delayed = append(delayed, translator)
		} else {
			immediate = append(immediate, translator)
		}
	}

	return immediate, delayed, nil
}
