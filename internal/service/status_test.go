package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolkdesk/dispatch/internal/model"
	"go.uber.org/zap"
)

func statusFixture(now time.Time) (*memState, *StatusMachine, *recorder) {
	state := newMemState()
	notifier := &recorder{}
	clock := &fakeClock{now: now}
	logger := zap.NewNop()

	jobs := memJobs{state}
	rels := memRels{state}
	users := memUsers{state}

	ledger := NewAssignmentLedger(jobs, rels, users, notifier, clock, logger)
	matcher := NewMatchingEngine(jobs, rels, users, clock, logger)
	machine := NewStatusMachine(jobs, rels, users, ledger, matcher, notifier, clock, logger)

	state.addUser(&model.User{ID: 1, Role: model.RoleCustomer, Email: "customer@example.com", Name: "Kund", City: "Stockholm"})
	state.languages[5] = "franska"
	state.languages[6] = "spanska"

	return state, machine, notifier
}

func jobWithStatus(state *memState, status model.JobStatus, due time.Time) *model.Job {
	return state.addJob(&model.Job{
		CustomerID:   1,
		LanguageID:   5,
		JobType:      model.JobTypePaid,
		PhoneEnabled: true,
		Due:          due,
		Duration:     60,
		Status:       status,
	})
}

// Запрос того же статуса не оставляет следов: ни журнала, ни уведомлений
func TestUpdateJobIdempotentStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusPending, now.Add(24*time.Hour))

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusPending})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Log)
	assert.Empty(t, notifier.all())
	assert.Equal(t, model.JobStatusPending, state.jobs[job.ID].Status)
}

func TestUpdateJobUnknownTransitionIgnored(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusWithdrawBefore24, now.Add(24*time.Hour))

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusPending})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Log)
	assert.Empty(t, notifier.all())
	assert.Equal(t, model.JobStatusWithdrawBefore24, state.jobs[job.ID].Status)
}

// started → completed без времени сессии отклоняется, состояние не тронуто
func TestUpdateJobCompletedRequiresSessionTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusStarted, now.Add(-time.Hour))

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{
		Status:        model.JobStatusCompleted,
		AdminComments: "utförd",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "session_time", res.FieldName)

	assert.Equal(t, model.JobStatusStarted, state.jobs[job.ID].Status)
	assert.Empty(t, notifier.all())
}

func TestUpdateJobCompletedSendsSessionMails(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusStarted, now.Add(time.Hour))
	state.addUser(&model.User{ID: 2, Role: model.RoleTranslator, Email: "tolk@example.com"})
	state.addRel(&model.Assignment{JobID: job.ID, TranslatorID: 2})

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{
		Status:        model.JobStatusCompleted,
		AdminComments: "utförd",
		SessionTime:   "1:30:0",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Log, 1)
	assert.Equal(t, "status", res.Log[0].Field)

	stored := state.jobs[job.ID]
	assert.Equal(t, model.JobStatusCompleted, stored.Status)
	assert.Equal(t, "1:30:0", stored.SessionTime)
	require.NotNil(t, stored.EndAt)

	assert.True(t, notifier.has(fmt.Sprintf("MailSessionEnded:%d:1:30:0", job.ID)))
}

// Заказ закрывают уже после времени сессии — письма о её окончании
// всё равно уходят, подавление по прошедшему сроку их не касается
func TestUpdateJobCompletedPastDueStillMails(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusStarted, now.Add(-3*time.Hour))
	state.addUser(&model.User{ID: 2, Role: model.RoleTranslator, Email: "tolk@example.com"})
	state.addRel(&model.Assignment{JobID: job.ID, TranslatorID: 2})

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{
		Status:        model.JobStatusCompleted,
		AdminComments: "utförd",
		SessionTime:   "1:30:0",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, model.JobStatusCompleted, state.jobs[job.ID].Status)
	assert.True(t, notifier.has(fmt.Sprintf("MailSessionEnded:%d:1:30:0", job.ID)))
}

func TestUpdateJobCompletedToTimedoutRequiresComment(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, _ := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusCompleted, now.Add(-time.Hour))

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusTimedout})
	require.NoError(t, err)
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "admin_comments", res.FieldName)
	assert.Equal(t, model.JobStatusCompleted, state.jobs[job.ID].Status)

	res, err = machine.UpdateJob(context.Background(), job.ID, UpdateRequest{
		Status:        model.JobStatusTimedout,
		AdminComments: "tolken kom aldrig",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, model.JobStatusTimedout, state.jobs[job.ID].Status)
	assert.Equal(t, "tolken kom aldrig", state.jobs[job.ID].AdminComments)
}

// Перенос срока в прошлое сохраняется, но уведомления подавляются
func TestUpdateJobPastDueSuppressesNotifications(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))

	past := now.Add(-2 * time.Hour)
	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{
		Due:           &past,
		AdminComments: "efterregistrering",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Log, 1)
	assert.Equal(t, "due", res.Log[0].Field)

	stored := state.jobs[job.ID]
	assert.True(t, stored.Due.Equal(past))
	assert.Equal(t, "efterregistrering", stored.AdminComments)
	assert.Empty(t, notifier.all())
}

func TestUpdateJobDueChangeNotifies(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))

	future := now.Add(48 * time.Hour)
	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Due: &future})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, notifier.has(fmt.Sprintf("MailChangedDate:%d", job.ID)))
}

func TestUpdateJobLanguageChange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))

	newLang := int64(6)
	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{LanguageID: &newLang})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Log, 1)
	assert.Equal(t, "language", res.Log[0].Field)
	assert.Equal(t, "franska", res.Log[0].OldValue)
	assert.Equal(t, "spanska", res.Log[0].NewValue)

	assert.Equal(t, int64(6), state.jobs[job.ID].LanguageID)
	assert.True(t, notifier.has(fmt.Sprintf("MailChangedLang:%d:franska", job.ID)))
}

// pending → assigned со сменой толка: письма обеим сторонам и напоминания
func TestUpdateJobPendingToAssigned(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusPending, now.Add(24*time.Hour))
	translator := state.addUser(&model.User{ID: 2, Role: model.RoleTranslator, Email: "tolk@example.com"})

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{
		Status:       model.JobStatusAssigned,
		TranslatorID: &translator.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)

	assert.Equal(t, model.JobStatusAssigned, state.jobs[job.ID].Status)
	assert.Len(t, state.activeRels(job.ID), 1)

	assert.True(t, notifier.has(fmt.Sprintf("MailJobAccepted:%d:1", job.ID)))
	assert.True(t, notifier.has(fmt.Sprintf("MailNewTranslator:%d:2", job.ID)))
	assert.True(t, notifier.has(fmt.Sprintf("SessionStartReminder:%d:1", job.ID)))
	assert.True(t, notifier.has(fmt.Sprintf("SessionStartReminder:%d:2", job.ID)))
}

func TestUpdateJobPendingCancelled(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusPending, now.Add(24*time.Hour))

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusWithdrawBefore24})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, model.JobStatusWithdrawBefore24, state.jobs[job.ID].Status)
	assert.True(t, notifier.has(fmt.Sprintf("MailCancelledPending:%d", job.ID)))
}

// assigned → withdraw закрывает активное назначение и извещает обе стороны
func TestUpdateJobAssignedWithdraw(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))
	state.addUser(&model.User{ID: 2, Role: model.RoleTranslator, Email: "tolk@example.com"})
	state.addRel(&model.Assignment{JobID: job.ID, TranslatorID: 2})

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusWithdrawAfter24})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)

	assert.Equal(t, model.JobStatusWithdrawAfter24, state.jobs[job.ID].Status)
	assert.Empty(t, state.activeRels(job.ID))
	assert.True(t, notifier.has(fmt.Sprintf("MailWithdraw:%d", job.ID)))
}

func TestUpdateJobAssignedTimedoutRequiresComment(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, _ := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusTimedout})
	require.NoError(t, err)
	assert.Equal(t, StatusFail, res.Status)
	assert.Equal(t, "admin_comments", res.FieldName)
	assert.Equal(t, model.JobStatusAssigned, state.jobs[job.ID].Status)
}

// timedout → pending: заказ возвращается в пул и рассылается заново
func TestUpdateJobReopenFromTimedout(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusTimedout, now.Add(48*time.Hour))
	job.CreatedAt = now.Add(-72 * time.Hour)
	state.addUser(&model.User{
		ID: 2, Role: model.RoleTranslator, Email: "tolk@example.com", Enabled: true,
		TranslatorType: model.TranslatorProfessional, TranslatorLevel: model.LevelCertified,
	}, 5)

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusPending})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)

	stored := state.jobs[job.ID]
	assert.Equal(t, model.JobStatusPending, stored.Status)
	assert.True(t, stored.CreatedAt.Equal(now))
	assert.True(t, stored.WillExpireAt.After(now))

	assert.True(t, notifier.has(fmt.Sprintf("MailReopened:%d", job.ID)))
	assert.True(t, notifier.has(fmt.Sprintf("BroadcastSuitableJob:%d:imm=1:del=0", job.ID)))
}

// Просроченный timedout-заказ возвращают в пул задним числом:
// письмо о переоткрытии уходит несмотря на прошедший срок
func TestUpdateJobReopenPastDueStillMails(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusTimedout, now.Add(-2*time.Hour))
	job.CreatedAt = now.Add(-72 * time.Hour)

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{Status: model.JobStatusPending})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, model.JobStatusPending, state.jobs[job.ID].Status)
	assert.True(t, notifier.has(fmt.Sprintf("MailReopened:%d", job.ID)))
}

// Смена толка на assigned-заказе: история сохраняется, все три стороны извещены
func TestUpdateJobChangeTranslator(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))
	state.addUser(&model.User{ID: 2, Role: model.RoleTranslator, Email: "gammal@example.com"})
	newTranslator := state.addUser(&model.User{ID: 3, Role: model.RoleTranslator, Email: "ny@example.com"})
	state.addRel(&model.Assignment{JobID: job.ID, TranslatorID: 2})

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{TranslatorID: &newTranslator.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Log, 1)
	assert.Equal(t, "translator", res.Log[0].Field)
	assert.Equal(t, "gammal@example.com", res.Log[0].OldValue)
	assert.Equal(t, "ny@example.com", res.Log[0].NewValue)

	active := state.activeRels(job.ID)
	require.Len(t, active, 1)
	assert.Equal(t, int64(3), active[0].TranslatorID)
	assert.Len(t, state.rels, 2)

	assert.True(t, notifier.has(fmt.Sprintf("MailChangedTranslator:%d:old=2:new=3", job.ID)))
}

// Повторная передача того же толка — не смена
func TestUpdateJobSameTranslatorNoChange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	state, machine, notifier := statusFixture(now)
	job := jobWithStatus(state, model.JobStatusAssigned, now.Add(24*time.Hour))
	translator := state.addUser(&model.User{ID: 2, Role: model.RoleTranslator, Email: "tolk@example.com"})
	state.addRel(&model.Assignment{JobID: job.ID, TranslatorID: 2})

	res, err := machine.UpdateJob(context.Background(), job.ID, UpdateRequest{TranslatorID: &translator.ID})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Empty(t, res.Log)
	assert.Empty(t, notifier.all())
	assert.Len(t, state.rels, 1)
}
