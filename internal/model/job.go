package model

import "time"

type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusAssigned            JobStatus = "assigned"
	JobStatusStarted             JobStatus = "started"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusWithdrawBefore24    JobStatus = "withdrawbefore24"
	JobStatusWithdrawAfter24     JobStatus = "withdrawafter24"
	JobStatusTimedout            JobStatus = "timedout"
	JobStatusNotCarriedOutByCust JobStatus = "not_carried_out_customer"
)

type JobType string

const (
	JobTypePaid   JobType = "paid"
	JobTypeRWS    JobType = "rws"
	JobTypeUnpaid JobType = "unpaid"
)

// Certification требование к сертификации толка для заказа
type Certification string

const (
	CertificationNone      Certification = ""
	CertificationNormal    Certification = "normal"
	CertificationCertified Certification = "yes"
	CertificationLaw       Certification = "law"
	CertificationHealth    Certification = "health"
	CertificationBoth      Certification = "both"
	CertificationNLaw      Certification = "n_law"
	CertificationNHealth   Certification = "n_health"
)

type Gender string

const (
	GenderAny    Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

type Job struct {
	ID              int64         `json:"id"`
	CustomerID      int64         `json:"customer_id"`
	LanguageID      int64         `json:"language_id"`
	JobType         JobType       `json:"job_type"`
	Certified       Certification `json:"certified"`
	Gender          Gender        `json:"gender"`
	Immediate       bool          `json:"immediate"`
	PhoneEnabled    bool          `json:"phone_enabled"`
	PhysicalEnabled bool          `json:"physical_enabled"`
	Due             time.Time     `json:"due"`
	Duration        int           `json:"duration"` // минуты
	Status          JobStatus     `json:"status"`
	SessionTime     string        `json:"session_time"` // "ч:м:с", заполняется при завершении
	AdminComments   string        `json:"admin_comments"`
	Reference       string        `json:"reference"`
	Town            string        `json:"town"`
	CustomerEmail   string        `json:"customer_email"` // переопределение email заказчика для конкретного заказа
	ByAdmin         bool          `json:"by_admin"`
	EmailSent       bool          `json:"email_sent"` // подтверждение заказчику уже отправлено
	Flagged         bool          `json:"flagged"`
	FlagReason      string        `json:"flag_reason"`
	ManuallyHandled bool          `json:"manually_handled"`

	// SpecificTranslatorID задан, если заказ создан для конкретного толка
	SpecificTranslatorID *int64 `json:"specific_translator_id"`

	WillExpireAt time.Time  `json:"will_expire_at"`
	EndAt        *time.Time `json:"end_at"`
	WithdrawAt   *time.Time `json:"withdraw_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Дополнительные поля для удобства (не из БД)
	Customer *User `json:"customer,omitempty"`
}

// PhysicalOnly заказ только на месте, без телефонной линии
func (j *Job) PhysicalOnly() bool {
	return j.PhysicalEnabled && !j.PhoneEnabled
}

// JobTypeForConsumer выводит тип заказа из категории заказчика
func JobTypeForConsumer(consumerType ConsumerType) JobType {
	switch consumerType {
	case ConsumerTypeRWS:
		return JobTypeRWS
	case ConsumerTypeNGO:
		return JobTypeUnpaid
	default:
		return JobTypePaid
	}
}

// TranslatorLevelsFor возвращает допустимые уровни толка для требования сертификации
func TranslatorLevelsFor(c Certification) []TranslatorLevel {
	switch c {
	case CertificationCertified, CertificationBoth:
		return []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth}
	case CertificationLaw, CertificationNLaw:
		return []TranslatorLevel{LevelCertifiedLaw}
	case CertificationHealth, CertificationNHealth:
		return []TranslatorLevel{LevelCertifiedHealth}
	case CertificationNormal:
		return []TranslatorLevel{LevelLayman, LevelCourses}
	default:
		return []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth, LevelLayman, LevelCourses}
	}
}

// JobForLabels собирает человекочитаемые метки требований заказа
func JobForLabels(j *Job) []string {
	var labels []string
	switch j.Gender {
	case GenderMale:
		labels = append(labels, "Man")
	case GenderFemale:
		labels = append(labels, "Kvinna")
	}
	switch j.Certified {
	case CertificationBoth:
		labels = append(labels, "Godkänd tolk", "Auktoriserad")
	case CertificationCertified:
		labels = append(labels, "Auktoriserad")
	case CertificationNHealth:
		labels = append(labels, "Sjukvårdstolk")
	case CertificationLaw, CertificationNLaw:
		labels = append(labels, "Rätttstolk")
	case CertificationNone:
	default:
		labels = append(labels, string(j.Certified))
	}
	return labels
}
