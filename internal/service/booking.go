package service

import (
	"context"
	"fmt"
	"time"

	"github.com/tolkdesk/dispatch/internal/errs"
	"github.com/tolkdesk/dispatch/internal/events"
	"github.com/tolkdesk/dispatch/internal/model"
	"github.com/tolkdesk/dispatch/internal/timepolicy"
	"go.uber.org/zap"
)

// CreateRequest заявка на новое бронирование
type CreateRequest struct {
	LanguageID      int64
	Immediate       bool
	DueDate         string // "2006-01-02"
	DueTime         string // "15:04"
	Duration        int    // минуты
	PhoneEnabled    bool
	PhysicalEnabled bool
	JobFor          []string // male, female, normal, certified, certified_in_law, certified_in_health
	Town            string
	Reference       string
	ByAdmin         bool

	SpecificTranslatorID *int64
}

// BookingService операции жизненного цикла бронирования: создание, отмена,
// завершение сеанса, повторное открытие и просрочка
type BookingService struct {
	jobs        JobStore
	assignments AssignmentStore
	users       UserStore
	ledger      *AssignmentLedger
	matcher     *MatchingEngine
	notifier    Notifier
	bus         EventBus
	clock       timepolicy.Clock
	logger      *zap.Logger
}

func NewBookingService(jobs JobStore, assignments AssignmentStore, users UserStore, ledger *AssignmentLedger, matcher *MatchingEngine, notifier Notifier, bus EventBus, clock timepolicy.Clock, logger *zap.Logger) *BookingService {
	return &BookingService{
		jobs:        jobs,
		assignments: assignments,
		users:       users,
		ledger:      ledger,
		matcher:     matcher,
		notifier:    notifier,
		bus:         bus,
		clock:       clock,
		logger:      logger,
	}
}

// Create создаёт бронирование от имени заказчика. Толки создавать заказы
// не могут. Валидация полей возвращает fail с именем первого пустого поля
func (b *BookingService) Create(ctx context.Context, customerID int64, req CreateRequest) (*Result, error) {
	customer, err := b.users.GetByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if customer == nil {
		return nil, errs.ErrNotFound
	}
	if !customer.IsCustomer() {
		return fail("Translator can not create booking"), nil
	}

	if req.LanguageID == 0 {
		return failField("from_language_id"), nil
	}
	if !req.Immediate {
		if req.DueDate == "" {
			return failField("due_date"), nil
		}
		if req.DueTime == "" {
			return failField("due_time"), nil
		}
		if !req.PhoneEnabled && !req.PhysicalEnabled {
			return failField("customer_phone_type"), nil
		}
	}
	if req.Duration == 0 {
		return failField("duration"), nil
	}

	now := b.clock.Now()
	job := &model.Job{
		CustomerID:           customerID,
		LanguageID:           req.LanguageID,
		JobType:              model.JobTypeForConsumer(customer.ConsumerType),
		Duration:             req.Duration,
		PhoneEnabled:         req.PhoneEnabled,
		PhysicalEnabled:      req.PhysicalEnabled,
		Town:                 req.Town,
		Reference:            req.Reference,
		ByAdmin:              req.ByAdmin,
		Status:               model.JobStatusPending,
		SpecificTranslatorID: req.SpecificTranslatorID,
	}
	job.Gender, job.Certified = deriveRequirements(req.JobFor)

	if req.Immediate {
		// срочный заказ всегда по телефону, начало через пять минут
		job.Immediate = true
		job.Due = timepolicy.ImmediateDue(now)
		job.PhoneEnabled = true
	} else {
		due, err := time.ParseInLocation("2006-01-02 15:04", req.DueDate+" "+req.DueTime, now.Location())
		if err != nil {
			return failField("due_date"), nil
		}
		if !due.After(now) {
			return fail("Can't create booking in past"), nil
		}
		job.Due = due
	}
	job.WillExpireAt = timepolicy.AcceptanceDeadline(job.Due, now)

	if err := b.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	b.logger.Info("Job created",
		zap.Int64("job_id", job.ID),
		zap.Int64("customer_id", customerID),
		zap.Bool("immediate", job.Immediate),
	)

	res := success()
	res.JobID = job.ID
	return res, nil
}

// StoreJobEmail дозаполняет заказ контактами, шлёт заказчику подтверждение
// и отдаёт заказ в рассылку подходящим толкам
func (b *BookingService) StoreJobEmail(ctx context.Context, jobID int64, email, reference, town string) (*Result, error) {
	job, err := b.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, errs.ErrNotFound
	}

	if email != "" {
		job.CustomerEmail = email
	}
	if reference != "" {
		job.Reference = reference
	}
	if town != "" {
		job.Town = town
	}
	job.EmailSent = true
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	customer, err := b.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	language, err := b.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}

	if err := b.bus.Publish(ctx, events.KindJobCreated, job); err != nil {
		b.logger.Warn("Failed to publish job created event",
			zap.Int64("job_id", job.ID), zap.Error(err))
	}

	b.notifier.MailJobCreated(ctx, job, customer)
	b.broadcast(ctx, job, customer, language, 0)

	res := success()
	res.JobID = job.ID
	return res, nil
}

// CancelJob отмена заказа заказчиком либо толком. Заказчик может отменить
// всегда, граница 24 часов выбирает статус; толк — только более чем за
// сутки, заказ возвращается в пул
func (b *BookingService) CancelJob(ctx context.Context, userID, jobID int64) (*Result, error) {
	user, err := b.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	job, err := b.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if user == nil || job == nil {
		return nil, errs.ErrNotFound
	}
	language, err := b.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}

	now := b.clock.Now()

	if user.IsCustomer() {
		current, err := b.assignments.ActiveForJob(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("get active assignment: %w", err)
		}

		job.WithdrawAt = &now
		// ровно за сутки до начала отмена ещё считается заблаговременной
		if !now.After(timepolicy.WithdrawCutoff(job.Due)) {
			job.Status = model.JobStatusWithdrawBefore24
		} else {
			job.Status = model.JobStatusWithdrawAfter24
		}
		if err := b.jobs.Update(ctx, job); err != nil {
			return nil, fmt.Errorf("update job: %w", err)
		}
		if err := b.assignments.CancelActiveForJob(ctx, job.ID, now); err != nil {
			b.logger.Warn("Failed to cancel active assignment",
				zap.Int64("job_id", job.ID), zap.Error(err))
		}

		if err := b.bus.Publish(ctx, events.KindJobCancelled, job); err != nil {
			b.logger.Warn("Failed to publish job cancelled event",
				zap.Int64("job_id", job.ID), zap.Error(err))
		}
		if current != nil {
			if translator, _ := b.users.GetByID(ctx, current.TranslatorID); translator != nil {
				b.notifier.PushCancelledToTranslator(ctx, job, translator, language)
			}
		}

		b.logger.Info("Job cancelled by customer",
			zap.Int64("job_id", job.ID), zap.String("status", string(job.Status)))
		return success(), nil
	}

	// толк
	if !job.Due.Add(-24 * time.Hour).After(now) {
		return fail("Du kan inte avboka en bokning som sker inom 24 timmar. Vänligen ring på +46 73 75 86 865"), nil
	}

	job.Status = model.JobStatusPending
	job.CreatedAt = now
	job.WillExpireAt = timepolicy.AcceptanceDeadline(job.Due, now)
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := b.assignments.CancelActiveForJob(ctx, job.ID, now); err != nil {
		b.logger.Warn("Failed to cancel active assignment",
			zap.Int64("job_id", job.ID), zap.Error(err))
	}

	customer, err := b.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	b.notifier.PushTranslatorWithdrew(ctx, job, customer, language)
	b.broadcast(ctx, job, customer, language, userID)

	b.logger.Info("Job returned to pool by translator",
		zap.Int64("job_id", job.ID), zap.Int64("translator_id", userID))
	return success(), nil
}

// EndJob завершает сеанс: длительность считается от договорённого начала
// до текущего момента. Уже завершённый заказ — no-op
func (b *BookingService) EndJob(ctx context.Context, jobID, completedBy int64) (*Result, error) {
	job, err := b.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, errs.ErrNotFound
	}
	if job.Status != model.JobStatusStarted {
		return success(), nil
	}

	now := b.clock.Now()
	job.Status = model.JobStatusCompleted
	job.EndAt = &now
	job.SessionTime = sessionInterval(job.Due, now)
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	current, err := b.assignments.ActiveForJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("get active assignment: %w", err)
	}
	if current != nil {
		if err := b.ledger.Finalize(ctx, current, completedBy, now); err != nil {
			b.logger.Warn("Failed to finalize assignment",
				zap.Int64("assignment_id", current.ID), zap.Error(err))
		}
	}

	if err := b.bus.Publish(ctx, events.KindSessionEnded, job); err != nil {
		b.logger.Warn("Failed to publish session ended event",
			zap.Int64("job_id", job.ID), zap.Error(err))
	}

	customer, err := b.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	var translator *model.User
	if current != nil {
		translator, _ = b.users.GetByID(ctx, current.TranslatorID)
	}
	b.notifier.MailSessionEnded(ctx, job, customer, translator, job.SessionTime)

	res := success()
	res.JobID = job.ID
	return res, nil
}

// CustomerNotCall заказчик не вышел на связь: заказ закрывается с особым
// статусом, назначение финализируется
func (b *BookingService) CustomerNotCall(ctx context.Context, jobID, completedBy int64) (*Result, error) {
	job, err := b.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, errs.ErrNotFound
	}

	now := b.clock.Now()
	job.Status = model.JobStatusNotCarriedOutByCust
	job.EndAt = &now
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	current, err := b.assignments.ActiveForJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("get active assignment: %w", err)
	}
	if current != nil {
		if err := b.ledger.Finalize(ctx, current, completedBy, now); err != nil {
			b.logger.Warn("Failed to finalize assignment",
				zap.Int64("assignment_id", current.ID), zap.Error(err))
		}
	}

	return success(), nil
}

// Reopen выбирает ветку повторного открытия: просроченный заказ заводится
// заново с новой записью, остальные возвращаются в пул на месте
func (b *BookingService) Reopen(ctx context.Context, jobID int64) (*Result, error) {
	job, err := b.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return nil, errs.ErrNotFound
	}
	if job.Status == model.JobStatusTimedout {
		return b.ReopenAsNewBooking(ctx, job)
	}
	return b.ReopenInPlace(ctx, job)
}

// ReopenInPlace возвращает заказ в пул под тем же идентификатором
func (b *BookingService) ReopenInPlace(ctx context.Context, job *model.Job) (*Result, error) {
	now := b.clock.Now()
	job.Status = model.JobStatusPending
	job.CreatedAt = now
	job.WithdrawAt = nil
	job.EmailSent = false
	job.WillExpireAt = timepolicy.AcceptanceDeadline(job.Due, now)
	if err := b.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}
	if err := b.assignments.CancelActiveForJob(ctx, job.ID, now); err != nil {
		b.logger.Warn("Failed to cancel active assignment",
			zap.Int64("job_id", job.ID), zap.Error(err))
	}
	return b.reopened(ctx, job)
}

// ReopenAsNewBooking просроченный заказ копируется в новую запись, история
// старой остаётся нетронутой
func (b *BookingService) ReopenAsNewBooking(ctx context.Context, job *model.Job) (*Result, error) {
	now := b.clock.Now()
	clone := *job
	clone.ID = 0
	clone.Status = model.JobStatusPending
	clone.CreatedAt = now
	clone.UpdatedAt = now
	clone.WithdrawAt = nil
	clone.EndAt = nil
	clone.SessionTime = ""
	clone.AdminComments = ""
	clone.EmailSent = false
	clone.WillExpireAt = timepolicy.AcceptanceDeadline(clone.Due, now)
	if err := b.jobs.Create(ctx, &clone); err != nil {
		return nil, fmt.Errorf("create reopened job: %w", err)
	}

	b.logger.Info("Job reopened as new booking",
		zap.Int64("old_job_id", job.ID), zap.Int64("job_id", clone.ID))
	return b.reopened(ctx, &clone)
}

func (b *BookingService) reopened(ctx context.Context, job *model.Job) (*Result, error) {
	customer, err := b.users.GetByID(ctx, job.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	language, err := b.users.LanguageName(ctx, job.LanguageID)
	if err != nil {
		return nil, fmt.Errorf("get language: %w", err)
	}
	b.notifier.MailReopened(ctx, job, customer, language)
	b.broadcast(ctx, job, customer, language, 0)

	res := success()
	res.JobID = job.ID
	return res, nil
}

// ExpirePending переводит просроченные неподнятые заказы в timedout и
// извещает заказчиков. Возвращает число закрытых заказов
func (b *BookingService) ExpirePending(ctx context.Context) (int, error) {
	now := b.clock.Now()
	expired, err := b.jobs.ExpiredPending(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired jobs: %w", err)
	}

	count := 0
	for _, job := range expired {
		if err := b.jobs.UpdateStatus(ctx, job.ID, model.JobStatusTimedout); err != nil {
			b.logger.Warn("Failed to expire job",
				zap.Int64("job_id", job.ID), zap.Error(err))
			continue
		}
		count++

		customer, err := b.users.GetByID(ctx, job.CustomerID)
		if err != nil || customer == nil {
			continue
		}
		language, err := b.users.LanguageName(ctx, job.LanguageID)
		if err != nil {
			continue
		}
		b.notifier.PushExpired(ctx, job, customer, language)
	}
	if count > 0 {
		b.logger.Info("Expired pending jobs", zap.Int("count", count))
	}
	return count, nil
}

// broadcast push-рассылка подходящим толкам плюс SMS тем, у кого они включены
func (b *BookingService) broadcast(ctx context.Context, job *model.Job, customer *model.User, language string, excludeUserID int64) {
	immediate, delayed, err := b.matcher.TranslatorsFor(ctx, job, excludeUserID)
	if err != nil {
		b.logger.Warn("Failed to enumerate translators for broadcast",
			zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}
	b.notifier.BroadcastSuitableJob(ctx, job, customer, language, immediate, delayed)

	eligible, err := b.matcher.EligibleTranslators(ctx, job, excludeUserID)
	if err != nil {
		b.logger.Warn("Failed to enumerate translators for sms",
			zap.Int64("job_id", job.ID), zap.Error(err))
		return
	}
	town := job.Town
	if town == "" {
		town = customer.City
	}
	sent := b.notifier.SendSMSToTranslators(ctx, job, eligible, town)
	if sent > 0 {
		b.logger.Info("SMS sent to translators",
			zap.Int64("job_id", job.ID), zap.Int("count", sent))
	}
}

// deriveRequirements пол и уровень сертификации из пожеланий заказчика
func deriveRequirements(jobFor []string) (model.Gender, model.Certification) {
	has := make(map[string]bool, len(jobFor))
	for _, v := range jobFor {
		has[v] = true
	}

	var gender model.Gender
	switch {
	case has["male"]:
		gender = model.GenderMale
	case has["female"]:
		gender = model.GenderFemale
	}

	var certified model.Certification
	switch {
	case has["normal"] && has["certified"]:
		certified = model.CertificationBoth
	case has["normal"] && has["certified_in_law"]:
		certified = model.CertificationNLaw
	case has["normal"] && has["certified_in_health"]:
		certified = model.CertificationNHealth
	case has["certified"]:
		certified = model.CertificationCertified
	case has["certified_in_law"]:
		certified = model.CertificationLaw
	case has["certified_in_health"]:
		certified = model.CertificationHealth
	case has["normal"]:
		certified = model.CertificationNormal
	}
	return gender, certified
}

// sessionInterval длительность сеанса в формате "ч:м:с"
func sessionInterval(from, to time.Time) string {
	d := to.Sub(from)
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%d:%d", h, m, sec)
}
