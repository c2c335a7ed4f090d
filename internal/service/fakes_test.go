package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tolkdesk/dispatch/internal/errs"
	"github.com/tolkdesk/dispatch/internal/model"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// memState общее in-memory состояние для фейковых хранилищ
type memState struct {
	mu sync.Mutex

	jobs      map[int64]*model.Job
	users     map[int64]*model.User
	languages map[int64]string
	userLangs map[int64][]int64
	blacklist map[int64][]int64
	rels      []*model.Assignment

	nextJobID int64
	nextRelID int64
}

func newMemState() *memState {
	return &memState{
		jobs:      make(map[int64]*model.Job),
		users:     make(map[int64]*model.User),
		languages: make(map[int64]string),
		userLangs: make(map[int64][]int64),
		blacklist: make(map[int64][]int64),
	}
}

func (s *memState) addJob(job *model.Job) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == 0 {
		s.nextJobID++
		job.ID = s.nextJobID
	} else if job.ID > s.nextJobID {
		s.nextJobID = job.ID
	}
	s.jobs[job.ID] = job
	return job
}

func (s *memState) addUser(u *model.User, languageIDs ...int64) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	s.userLangs[u.ID] = languageIDs
	return u
}

func (s *memState) addRel(a *model.Assignment) *model.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRelID++
	a.ID = s.nextRelID
	s.rels = append(s.rels, a)
	return a
}

func (s *memState) activeRels(jobID int64) []*model.Assignment {
	var active []*model.Assignment
	for _, a := range s.rels {
		if a.JobID == jobID && a.Active() {
			active = append(active, a)
		}
	}
	return active
}

// memJobs фейковый JobStore
type memJobs struct{ *memState }

func (s memJobs) Create(ctx context.Context, job *model.Job) error {
	s.addJob(job)
	return nil
}

func (s memJobs) GetByID(ctx context.Context, id int64) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (s memJobs) Update(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("job not found")
	}
	s.jobs[job.ID] = job
	return nil
}

func (s memJobs) UpdateStatus(ctx context.Context, id int64, status model.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job not found")
	}
	job.Status = status
	return nil
}

func (s memJobs) PendingJobs(ctx context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*model.Job
	for _, job := range s.jobs {
		if job.Status == model.JobStatusPending {
			pending = append(pending, job)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Due.Before(pending[j].Due) })
	return pending, nil
}

func (s memJobs) ExpiredPending(ctx context.Context, now time.Time) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*model.Job
	for _, job := range s.jobs {
		if job.Status == model.JobStatusPending && !job.WillExpireAt.After(now) {
			expired = append(expired, job)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].ID < expired[j].ID })
	return expired, nil
}

// memRels фейковый AssignmentStore
type memRels struct{ *memState }

func (s memRels) Accept(ctx context.Context, jobID, translatorID int64) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}
	if job.Status != model.JobStatusPending {
		return nil, errs.ErrAlreadyAssigned
	}
	job.Status = model.JobStatusAssigned
	s.nextRelID++
	a := &model.Assignment{ID: s.nextRelID, JobID: jobID, TranslatorID: translatorID}
	s.rels = append(s.rels, a)
	return a, nil
}

func (s memRels) Create(ctx context.Context, a *model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// частичный уникальный индекс: одна активная запись на заказ
	if len(s.activeRels(a.JobID)) > 0 {
		return fmt.Errorf("create assignment: duplicate key value violates unique constraint \"uniq_translator_job_rel_active\"")
	}
	s.nextRelID++
	a.ID = s.nextRelID
	s.rels = append(s.rels, a)
	return nil
}

func (s memRels) Replace(ctx context.Context, currentID, jobID, translatorID int64, at time.Time) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *model.Assignment
	for _, a := range s.rels {
		if a.ID == currentID && a.CancelAt == nil {
			current = a
			break
		}
	}
	if current == nil {
		return nil, fmt.Errorf("assignment not found or already cancelled")
	}
	t := at
	current.CancelAt = &t
	if len(s.activeRels(jobID)) > 0 {
		return nil, fmt.Errorf("create replacement assignment: duplicate key value violates unique constraint \"uniq_translator_job_rel_active\"")
	}
	s.nextRelID++
	a := &model.Assignment{ID: s.nextRelID, JobID: jobID, TranslatorID: translatorID}
	s.rels = append(s.rels, a)
	return a, nil
}

func (s memRels) CancelActiveForJob(ctx context.Context, jobID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.activeRels(jobID) {
		t := at
		a.CancelAt = &t
	}
	return nil
}

func (s memRels) Finalize(ctx context.Context, id, completedBy int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rels {
		if a.ID == id {
			if a.CompletedAt != nil {
				return errs.ErrAlreadyFinalized
			}
			t := at
			a.CompletedAt = &t
			a.CompletedBy = &completedBy
			return nil
		}
	}
	return fmt.Errorf("assignment not found")
}

func (s memRels) ActiveForJob(ctx context.Context, jobID int64) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rels {
		if a.JobID == jobID && a.Active() {
			return a, nil
		}
	}
	return nil, nil
}

func (s memRels) CurrentForJob(ctx context.Context, jobID int64) (*model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.Assignment
	for _, a := range s.rels {
		if a.JobID != jobID {
			continue
		}
		if a.Active() {
			return a, nil
		}
		if a.CompletedAt != nil && (latest == nil || a.ID > latest.ID) {
			latest = a
		}
	}
	return latest, nil
}

func (s memRels) HasActiveAt(ctx context.Context, translatorID int64, due time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rels {
		if a.TranslatorID != translatorID || !a.Active() {
			continue
		}
		if job, ok := s.jobs[a.JobID]; ok && job.Due.Equal(due) {
			return true, nil
		}
	}
	return false, nil
}

func (s memRels) HasOverlapping(ctx context.Context, translatorID int64, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rels {
		if a.TranslatorID != translatorID || !a.Active() {
			continue
		}
		job, ok := s.jobs[a.JobID]
		if !ok {
			continue
		}
		end := job.Due.Add(time.Duration(job.Duration) * time.Minute)
		if job.Due.Before(to) && end.After(from) {
			return true, nil
		}
	}
	return false, nil
}

func (s memRels) AcceptedInTown(ctx context.Context, translatorID, customerID int64, town string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rels {
		if a.TranslatorID != translatorID || a.CancelAt != nil {
			continue
		}
		job, ok := s.jobs[a.JobID]
		if !ok || job.CustomerID != customerID {
			continue
		}
		jobTown := job.Town
		if jobTown == "" {
			if customer, ok := s.users[customerID]; ok {
				jobTown = customer.City
			}
		}
		if jobTown == town {
			return true, nil
		}
	}
	return false, nil
}

// memUsers фейковый UserStore
type memUsers struct{ *memState }

func (s memUsers) GetByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id], nil
}

func (s memUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (s memUsers) Translators(ctx context.Context) ([]*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var translators []*model.User
	for _, u := range s.users {
		if u.IsTranslator() && u.Enabled {
			translators = append(translators, u)
		}
	}
	sort.Slice(translators, func(i, j int) bool { return translators[i].ID < translators[j].ID })
	return translators, nil
}

func (s memUsers) LanguagesOf(ctx context.Context, userID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userLangs[userID], nil
}

func (s memUsers) BlacklistedTranslatorIDs(ctx context.Context, customerID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blacklist[customerID], nil
}

func (s memUsers) LanguageName(ctx context.Context, languageID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.languages[languageID], nil
}

// recorder фиксирует вызовы уведомлений в порядке их отправки
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) has(call string) bool {
	for _, c := range r.all() {
		if c == call {
			return true
		}
	}
	return false
}

func (r *recorder) BroadcastSuitableJob(ctx context.Context, job *model.Job, customer *model.User, language string, immediate, delayed []*model.User) {
	r.record("BroadcastSuitableJob:%d:imm=%d:del=%d", job.ID, len(immediate), len(delayed))
}

func (r *recorder) MailJobCreated(ctx context.Context, job *model.Job, customer *model.User) {
	r.record("MailJobCreated:%d:%d", job.ID, customer.ID)
}

func (r *recorder) MailJobAccepted(ctx context.Context, job *model.Job, customer *model.User) {
	r.record("MailJobAccepted:%d:%d", job.ID, customer.ID)
}

func (r *recorder) MailNewTranslator(ctx context.Context, job *model.Job, translator *model.User) {
	r.record("MailNewTranslator:%d:%d", job.ID, translator.ID)
}

func (r *recorder) PushJobAccepted(ctx context.Context, job *model.Job, customer *model.User, language string) {
	r.record("PushJobAccepted:%d:%d", job.ID, customer.ID)
}

func (r *recorder) MailChangedTranslator(ctx context.Context, job *model.Job, customer, oldTranslator, newTranslator *model.User) {
	oldID := int64(0)
	if oldTranslator != nil {
		oldID = oldTranslator.ID
	}
	r.record("MailChangedTranslator:%d:old=%d:new=%d", job.ID, oldID, newTranslator.ID)
}

func (r *recorder) MailChangedDate(ctx context.Context, job *model.Job, customer, translator *model.User, oldTime time.Time) {
	r.record("MailChangedDate:%d", job.ID)
}

func (r *recorder) MailChangedLang(ctx context.Context, job *model.Job, customer, translator *model.User, oldLanguage string) {
	r.record("MailChangedLang:%d:%s", job.ID, oldLanguage)
}

func (r *recorder) MailSessionEnded(ctx context.Context, job *model.Job, customer, translator *model.User, sessionTime string) {
	r.record("MailSessionEnded:%d:%s", job.ID, sessionTime)
}

func (r *recorder) MailWithdraw(ctx context.Context, job *model.Job, customer, translator *model.User) {
	r.record("MailWithdraw:%d", job.ID)
}

func (r *recorder) MailCancelledPending(ctx context.Context, job *model.Job, customer *model.User) {
	r.record("MailCancelledPending:%d", job.ID)
}

func (r *recorder) MailReopened(ctx context.Context, job *model.Job, customer *model.User, language string) {
	r.record("MailReopened:%d", job.ID)
}

func (r *recorder) SessionStartReminder(ctx context.Context, user *model.User, job *model.Job, language string) {
	r.record("SessionStartReminder:%d:%d", job.ID, user.ID)
}

func (r *recorder) PushExpired(ctx context.Context, job *model.Job, customer *model.User, language string) {
	r.record("PushExpired:%d", job.ID)
}

func (r *recorder) PushCancelledToTranslator(ctx context.Context, job *model.Job, translator *model.User, language string) {
	r.record("PushCancelledToTranslator:%d:%d", job.ID, translator.ID)
}

func (r *recorder) PushTranslatorWithdrew(ctx context.Context, job *model.Job, customer *model.User, language string) {
	r.record("PushTranslatorWithdrew:%d", job.ID)
}

func (r *recorder) SendSMSToTranslators(ctx context.Context, job *model.Job, translators []*model.User, town string) int {
	r.record("SendSMSToTranslators:%d:count=%d", job.ID, len(translators))
	return len(translators)
}

// busRecorder фиксирует опубликованные события
type busRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (b *busRecorder) Publish(ctx context.Context, kind string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kinds = append(b.kinds, kind)
	return nil
}

func (b *busRecorder) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.kinds...)
}
