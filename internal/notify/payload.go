package notify

import (
	"fmt"

	"github.com/tolkdesk/dispatch/internal/model"
)

// Ключи шаблонов почтового коллаборатора
const (
	TemplateJobCreated              = "job-created"
	TemplateJobAccepted             = "job-accepted"
	TemplateJobChangeStatusCustomer = "job-change-status-to-customer"
	TemplateStatusChangedCustomer   = "status-changed-from-pending-or-assigned-customer"
	TemplateSessionEnded            = "session-ended"
	TemplateJobCancelTranslator     = "job-cancel-translator"
	TemplateChangedTranslatorCust   = "job-changed-translator-customer"
	TemplateChangedTranslatorOld    = "job-changed-translator-old-translator"
	TemplateChangedTranslatorNew    = "job-changed-translator-new-translator"
	TemplateChangedDate             = "job-changed-date"
	TemplateChangedLang             = "job-changed-lang"
)

// Типы push-уведомлений
const (
	PushSuitableJob        = "suitable_job"
	PushJobAcceptedKind    = "job_accepted"
	PushJobCancelled       = "job_cancelled"
	PushJobExpired         = "job_expired"
	PushSessionStartRemind = "session_start_remind"
)

const dueLayout = "2006-01-02 15:04:05"

// JobToData собирает данные заказа для push-конверта
func JobToData(job *model.Job, customer *model.User) map[string]any {
	town := job.Town
	customerType := ""
	if customer != nil {
		if town == "" {
			town = customer.City
		}
		customerType = customer.CustomerType
	}

	data := map[string]any{
		"job_id":           job.ID,
		"from_language_id": job.LanguageID,
		"immediate":        job.Immediate,
		"duration":         job.Duration,
		"status":           string(job.Status),
		"gender":           string(job.Gender),
		"certified":        string(job.Certified),
		"due":              job.Due.Format(dueLayout),
		"due_date":         job.Due.Format("2006-01-02"),
		"due_time":         job.Due.Format("15:04:05"),
		"job_type":         string(job.JobType),
		"phone_enabled":    job.PhoneEnabled,
		"physical_enabled": job.PhysicalEnabled,
		"customer_town":    town,
		"customer_type":    customerType,
		"job_for":          model.JobForLabels(job),
	}

	return data
}

// SessionTimeText форматирует длительность сессии "ч:м:с" в "X tim Y min"
func SessionTimeText(sessionTime string) string {
	var h, m, s int
	fmt.Sscanf(sessionTime, "%d:%d:%d", &h, &m, &s)
	return fmt.Sprintf("%d tim %d min", h, m)
}

// DurationText переводит минуты в часы и минуты для SMS
func DurationText(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dmin", minutes)
	}
	if minutes == 60 {
		return "1h"
	}
	return fmt.Sprintf("%02dh %02dmin", minutes/60, minutes%60)
}
