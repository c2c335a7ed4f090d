package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tolkdesk/dispatch/internal/model"
	"github.com/tolkdesk/dispatch/internal/timepolicy"
	"go.uber.org/zap"
)

// Dispatcher решает, кому, когда и с каким шаблоном уходят уведомления.
// Ошибки транспорта логируются и не прерывают вызвавшую операцию.
type Dispatcher struct {
	mailer  Mailer
	push    PushSender
	sms     SMSSender
	clock   timepolicy.Clock
	smsFrom string
	logger  *zap.Logger
}

func NewDispatcher(mailer Mailer, push PushSender, sms SMSSender, clock timepolicy.Clock, smsFrom string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		push:    push,
		sms:     sms,
		clock:   clock,
		smsFrom: smsFrom,
		logger:  logger,
	}
}

// CustomerEmail email для писем заказчику: переопределение на заказе либо email пользователя
func CustomerEmail(job *model.Job, customer *model.User) string {
	if job.CustomerEmail != "" {
		return job.CustomerEmail
	}
	return customer.Email
}

func (d *Dispatcher) sendMail(ctx context.Context, toEmail, toName, subject, templateKey string, data map[string]any) {
	if err := d.mailer.Send(ctx, toEmail, toName, subject, templateKey, data); err != nil {
		d.logger.Warn("Mail send failed",
			zap.String("template", templateKey),
			zap.String("to", toEmail),
			zap.Error(err),
		)
	}
}

// pushToUsers отправляет один push-конверт на группу получателей.
// Немедленная и отложенная группы всегда уходят отдельными вызовами.
func (d *Dispatcher) pushToUsers(ctx context.Context, users []*model.User, jobID int64, data map[string]any, message string, delay bool) {
	if len(users) == 0 {
		return
	}

	targets := make([]string, 0, len(users))
	for _, u := range users {
		targets = append(targets, u.Email)
	}

	var delayUntil *time.Time
	if delay {
		t := timepolicy.NextBusinessTime(d.clock.Now())
		delayUntil = &t
	}

	if err := d.push.Send(ctx, targets, jobID, data, message, delayUntil); err != nil {
		d.logger.Warn("Push send failed",
			zap.Int64("job_id", jobID),
			zap.Int("targets", len(targets)),
			zap.Bool("delayed", delay),
			zap.Error(err),
		)
		return
	}

	d.logger.Info("Push sent",
		zap.Int64("job_id", jobID),
		zap.Int("targets", len(targets)),
		zap.Bool("delayed", delay),
	)
}

// ShouldPush проверяет, не отключил ли пользователь уведомления
func (d *Dispatcher) ShouldPush(u *model.User) bool {
	return !u.SuppressNotifications
}

// ShouldDelayPush проверяет, нужно ли отложить push до рабочего времени
func (d *Dispatcher) ShouldDelayPush(u *model.User) bool {
	if !timepolicy.IsNight(d.clock.Now()) {
		return false
	}
	return u.SuppressNightNotifications
}

// BroadcastSuitableJob рассылает push о подходящем заказе двумя группами:
// немедленной и отложенной до рабочего времени
func (d *Dispatcher) BroadcastSuitableJob(ctx context.Context, job *model.Job, customer *model.User, language string, immediate, delayed []*model.User) {
	data := JobToData(job, customer)
	data["notification_type"] = PushSuitableJob
	data["language"] = language

	var message string
	if job.Immediate {
		message = fmt.Sprintf("Ny akutbokning för %stolk %dmin", language, job.Duration)
	} else {
		message = fmt.Sprintf("Ny bokning för %stolk %dmin %s", language, job.Duration, job.Due.Format(dueLayout))
	}

	d.logger.Info("Broadcasting suitable job",
		zap.Int64("job_id", job.ID),
		zap.Int("immediate", len(immediate)),
		zap.Int("delayed", len(delayed)),
	)

	d.pushToUsers(ctx, immediate, job.ID, data, message, false)
	d.pushToUsers(ctx, delayed, job.ID, data, message, true)
}

// MailJobCreated подтверждение приёма заказа заказчику
func (d *Dispatcher) MailJobCreated(ctx context.Context, job *model.Job, customer *model.User) {
	subject := fmt.Sprintf("Vi har mottagit er tolkbokning. Bokningsnr: #%d", job.ID)
	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateJobCreated, map[string]any{
		"user": customer,
		"job":  job,
	})
}

// MailJobAccepted письмо заказчику о принятом заказе
func (d *Dispatcher) MailJobAccepted(ctx context.Context, job *model.Job, customer *model.User) {
	subject := fmt.Sprintf("Bekräftelse - tolk har accepterat er bokning (bokning #%d)", job.ID)
	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateJobAccepted, map[string]any{
		"user": customer,
		"job":  job,
	})
}

// MailNewTranslator письмо новому толку о полученном заказе
func (d *Dispatcher) MailNewTranslator(ctx context.Context, job *model.Job, translator *model.User) {
	subject := fmt.Sprintf("Bekräftelse - tolk har accepterat er bokning (bokning #%d)", job.ID)
	d.sendMail(ctx, translator.Email, translator.Name, subject, TemplateChangedTranslatorNew, map[string]any{
		"user": translator,
		"job":  job,
	})
}

// PushJobAccepted push заказчику о принятом заказе
func (d *Dispatcher) PushJobAccepted(ctx context.Context, job *model.Job, customer *model.User, language string) {
	if !d.ShouldPush(customer) {
		return
	}
	data := JobToData(job, customer)
	data["notification_type"] = PushJobAcceptedKind
	message := fmt.Sprintf("Din bokning för %s translators, %dmin, %s har accepterats av en tolk. Vänligen öppna appen för att se detaljer om tolken.",
		language, job.Duration, job.Due.Format(dueLayout))
	d.pushToUsers(ctx, []*model.User{customer}, job.ID, data, message, d.ShouldDelayPush(customer))
}

// MailChangedTranslator уведомляет заказчика, прежнего и нового толка о переназначении
func (d *Dispatcher) MailChangedTranslator(ctx context.Context, job *model.Job, customer, oldTranslator, newTranslator *model.User) {
	subject := fmt.Sprintf("Meddelande om tilldelning av tolkuppdrag för uppdrag # %d)", job.ID)

	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateChangedTranslatorCust, map[string]any{
		"user": customer,
		"job":  job,
	})

	if oldTranslator != nil {
		d.sendMail(ctx, oldTranslator.Email, oldTranslator.Name, subject, TemplateChangedTranslatorOld, map[string]any{
			"user": oldTranslator,
			"job":  job,
		})
	}

	d.sendMail(ctx, newTranslator.Email, newTranslator.Name, subject, TemplateChangedTranslatorNew, map[string]any{
		"user": newTranslator,
		"job":  job,
	})
}

// MailChangedDate уведомляет заказчика и назначенного толка о переносе срока
func (d *Dispatcher) MailChangedDate(ctx context.Context, job *model.Job, customer, translator *model.User, oldTime time.Time) {
	subject := fmt.Sprintf("Meddelande om ändring av tolkbokning för uppdrag # %d", job.ID)

	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateChangedDate, map[string]any{
		"user":     customer,
		"job":      job,
		"old_time": oldTime.Format(dueLayout),
	})

	if translator != nil {
		d.sendMail(ctx, translator.Email, translator.Name, subject, TemplateChangedDate, map[string]any{
			"user":     translator,
			"job":      job,
			"old_time": oldTime.Format(dueLayout),
		})
	}
}

// MailChangedLang уведомляет заказчика и назначенного толка о смене языка
func (d *Dispatcher) MailChangedLang(ctx context.Context, job *model.Job, customer, translator *model.User, oldLanguage string) {
	subject := fmt.Sprintf("Meddelande om ändring av tolkbokning för uppdrag # %d", job.ID)
	data := map[string]any{
		"user":     customer,
		"job":      job,
		"old_lang": oldLanguage,
	}

	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateChangedLang, data)

	if translator != nil {
		d.sendMail(ctx, translator.Email, translator.Name, subject, TemplateChangedDate, data)
	}
}

// MailSessionEnded письма об окончании сессии: заказчику для фактуры, толку для зарплаты
func (d *Dispatcher) MailSessionEnded(ctx context.Context, job *model.Job, customer, translator *model.User, sessionTime string) {
	subject := fmt.Sprintf("Information om avslutad tolkning för bokningsnummer #%d", job.ID)
	text := SessionTimeText(sessionTime)

	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateSessionEnded, map[string]any{
		"user":         customer,
		"job":          job,
		"session_time": text,
		"for_text":     "faktura",
	})

	if translator != nil {
		d.sendMail(ctx, translator.Email, translator.Name, subject, TemplateSessionEnded, map[string]any{
			"user":         translator,
			"job":          job,
			"session_time": text,
			"for_text":     "lön",
		})
	}
}

// MailWithdraw письма при отзыве заказа: заказчику и снятому толку
func (d *Dispatcher) MailWithdraw(ctx context.Context, job *model.Job, customer, translator *model.User) {
	subject := fmt.Sprintf("Information om avslutad tolkning för bokningsnummer #%d", job.ID)

	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateStatusChangedCustomer, map[string]any{
		"user": customer,
		"job":  job,
	})

	if translator != nil {
		d.sendMail(ctx, translator.Email, translator.Name, subject, TemplateJobCancelTranslator, map[string]any{
			"user": translator,
			"job":  job,
		})
	}
}

// MailCancelledPending письмо заказчику об отмене заказа из pending
func (d *Dispatcher) MailCancelledPending(ctx context.Context, job *model.Job, customer *model.User) {
	subject := fmt.Sprintf("Avbokning av bokningsnr: #%d", job.ID)
	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateStatusChangedCustomer, map[string]any{
		"user": customer,
		"job":  job,
	})
}

// MailReopened письмо заказчику о повторном открытии заказа
func (d *Dispatcher) MailReopened(ctx context.Context, job *model.Job, customer *model.User, language string) {
	subject := fmt.Sprintf("Vi har nu återöppnat er bokning av %stolk för bokning #%d", language, job.ID)
	d.sendMail(ctx, CustomerEmail(job, customer), customer.Name, subject, TemplateJobChangeStatusCustomer, map[string]any{
		"user": customer,
		"job":  job,
	})
}

// SessionStartReminder push-напоминание о начале сессии
func (d *Dispatcher) SessionStartReminder(ctx context.Context, user *model.User, job *model.Job, language string) {
	if !d.ShouldPush(user) {
		return
	}

	data := map[string]any{"notification_type": PushSessionStartRemind}
	var message string
	if job.PhysicalEnabled {
		message = fmt.Sprintf("Detta är en påminnelse om att du har en %stolkning (på plats i %s) kl %s på %s som vara i %d min. Lycka till och kom ihåg att ge feedback efter utförd tolkning!",
			language, job.Town, job.Due.Format("15:04:05"), job.Due.Format("2006-01-02"), job.Duration)
	} else {
		message = fmt.Sprintf("Detta är en påminnelse om att du har en %stolkning (telefon) kl %s på %s som vara i %d min. Lycka till och kom ihåg att ge feedback efter utförd tolkning!",
			language, job.Due.Format("15:04:05"), job.Due.Format("2006-01-02"), job.Duration)
	}

	d.pushToUsers(ctx, []*model.User{user}, job.ID, data, message, d.ShouldDelayPush(user))
}

// PushExpired push заказчику: никто не принял заказ
func (d *Dispatcher) PushExpired(ctx context.Context, job *model.Job, customer *model.User, language string) {
	if !d.ShouldPush(customer) {
		return
	}

	data := map[string]any{"notification_type": PushJobExpired}
	message := fmt.Sprintf("Tyvärr har ingen tolk accepterat er bokning: (%s, %dmin, %s). Vänligen pröva boka om tiden.",
		language, job.Duration, job.Due.Format(dueLayout))

	d.pushToUsers(ctx, []*model.User{customer}, job.ID, data, message, d.ShouldDelayPush(customer))
}

// PushCancelledToTranslator push толку: заказчик отменил заказ
func (d *Dispatcher) PushCancelledToTranslator(ctx context.Context, job *model.Job, translator *model.User, language string) {
	if !d.ShouldPush(translator) {
		return
	}

	data := map[string]any{"notification_type": PushJobCancelled}
	message := fmt.Sprintf("Kunden har avbokat bokningen för %stolk, %dmin, %s. Var god och kolla dina tidigare bokningar för detaljer.",
		language, job.Duration, job.Due.Format(dueLayout))

	d.pushToUsers(ctx, []*model.User{translator}, job.ID, data, message, d.ShouldDelayPush(translator))
}

// PushTranslatorWithdrew push заказчику: толк отказался, ищем замену
func (d *Dispatcher) PushTranslatorWithdrew(ctx context.Context, job *model.Job, customer *model.User, language string) {
	if !d.ShouldPush(customer) {
		return
	}

	data := map[string]any{"notification_type": PushJobCancelled}
	message := fmt.Sprintf("Er %stolk, %dmin %s, har avbokat tolkningen. Vi letar nu efter en ny tolk som kan ersätta denne. Tack.",
		language, job.Duration, job.Due.Format(dueLayout))

	d.pushToUsers(ctx, []*model.User{customer}, job.ID, data, message, d.ShouldDelayPush(customer))
}

// SMSMessageFor выбирает SMS-шаблон по каналу заказа: только на месте — шаблон
// физического заказа, только телефон или оба — телефонного, ни одного — пустая строка
func SMSMessageFor(job *model.Job, town string) string {
	date := job.Due.Format("02.01.2006")
	clock := job.Due.Format("15:04")
	duration := DurationText(job.Duration)

	phoneMessage := fmt.Sprintf("Ny telefontolkning %s kl %s, %s, bokning #%d. Öppna appen för att acceptera.",
		date, clock, duration, job.ID)
	physicalMessage := fmt.Sprintf("Ny platstolkning %s kl %s i %s, %s, bokning #%d. Öppna appen för att acceptera.",
		date, clock, town, duration, job.ID)

	switch {
	case job.PhysicalEnabled && !job.PhoneEnabled:
		return physicalMessage
	case job.PhoneEnabled && !job.PhysicalEnabled:
		return phoneMessage
	case job.PhysicalEnabled && job.PhoneEnabled:
		// оба канала трактуются как телефонный заказ
		return phoneMessage
	default:
		// недостижимая комбинация, сообщение не отправляется
		return ""
	}
}

// SendSMSToTranslators рассылает SMS подходящим толкам, возвращает их количество
func (d *Dispatcher) SendSMSToTranslators(ctx context.Context, job *model.Job, translators []*model.User, town string) int {
	message := SMSMessageFor(job, town)
	if message == "" {
		return 0
	}

	sent := 0
	for _, translator := range translators {
		status, err := d.sms.Send(ctx, d.smsFrom, translator.Mobile, message)
		if err != nil {
			d.logger.Warn("SMS send failed",
				zap.String("to", translator.Mobile),
				zap.Int64("job_id", job.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
		d.logger.Info("SMS sent",
			zap.String("to_email", translator.Email),
			zap.String("to_mobile", translator.Mobile),
			zap.String("status", status),
		)
	}

	return sent
}
