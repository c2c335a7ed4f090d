package model

import "time"

type UserRole string

const (
	RoleCustomer   UserRole = "customer"
	RoleTranslator UserRole = "translator"
)

type TranslatorType string

const (
	TranslatorProfessional TranslatorType = "professional"
	TranslatorRWS          TranslatorType = "rwstranslator"
	TranslatorVolunteer    TranslatorType = "volunteer"
)

type TranslatorLevel string

const (
	LevelCertified       TranslatorLevel = "Certified"
	LevelCertifiedLaw    TranslatorLevel = "Certified with specialisation in law"
	LevelCertifiedHealth TranslatorLevel = "Certified with specialisation in health care"
	LevelLayman          TranslatorLevel = "Layman"
	LevelCourses         TranslatorLevel = "Read Translation courses"
)

type ConsumerType string

const (
	ConsumerTypePaid ConsumerType = "paid"
	ConsumerTypeRWS  ConsumerType = "rwsconsumer"
	ConsumerTypeNGO  ConsumerType = "ngo"
)

type User struct {
	ID      int64    `json:"id"`
	Role    UserRole `json:"role"`
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Mobile  string   `json:"mobile"`
	City    string   `json:"city"`
	Enabled bool     `json:"enabled"`

	// Атрибуты заказчика
	ConsumerType ConsumerType `json:"consumer_type,omitempty"`
	CustomerType string       `json:"customer_type,omitempty"`

	// Атрибуты толка
	TranslatorType  TranslatorType  `json:"translator_type,omitempty"`
	TranslatorLevel TranslatorLevel `json:"translator_level,omitempty"`
	Gender          Gender          `json:"gender,omitempty"`

	// Настройки уведомлений толка
	SuppressNotifications      bool `json:"suppress_notifications"`
	SuppressNightNotifications bool `json:"suppress_night_notifications"`
	NoEmergencyPush            bool `json:"no_emergency_push"`

	CreatedAt time.Time `json:"created_at"`

	// Дополнительные поля для удобства (не из БД)
	LanguageIDs []int64 `json:"language_ids,omitempty"`
}

// IsCustomer проверяет роль заказчика
func (u *User) IsCustomer() bool {
	return u.Role == RoleCustomer
}

// IsTranslator проверяет роль толка
func (u *User) IsTranslator() bool {
	return u.Role == RoleTranslator
}

// JobTypeForTranslator выводит тип заказов, доступный толку данного типа
func JobTypeForTranslator(t TranslatorType) JobType {
	switch t {
	case TranslatorProfessional:
		return JobTypePaid
	case TranslatorRWS:
		return JobTypeRWS
	default:
		return JobTypeUnpaid
	}
}

// SpeaksLanguage проверяет владение языком
func (u *User) SpeaksLanguage(languageID int64) bool {
	for _, id := range u.LanguageIDs {
		if id == languageID {
			return true
		}
	}
	return false
}
