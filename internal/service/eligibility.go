package service

import "github.com/tolkdesk/dispatch/internal/model"

// EligibilityInput все данные, нужные для проверки пары (заказ, толк).
// Собирается снаружи, чтобы сама проверка оставалась чистой функцией.
type EligibilityInput struct {
	Job        *model.Job
	Translator *model.User

	// CustomerTown город заказчика, для проверки физических заказов
	CustomerTown string

	// Blacklisted толк в чёрном списке заказчика
	Blacklisted bool

	// SameTownHistory толк уже принимал заказы этого заказчика в этом городе
	SameTownHistory bool

	// TimeConflict у толка есть активное назначение на тот же срок
	TimeConflict bool
}

// Причины отказа в допуске
const (
	ReasonEligible      = ""
	ReasonCategory      = "translator category does not match job type"
	ReasonLanguage      = "translator does not speak job language"
	ReasonGender        = "gender requirement not met"
	ReasonCertification = "certification level not sufficient"
	ReasonBlacklisted   = "translator blacklisted by customer"
	ReasonTown          = "physical job in another town"
	ReasonTimeConflict  = "translator already booked at this time"
)

// Eligible чистый предикат допуска толка к заказу. Проверки выполняются
// по порядку, первая несработавшая исключает толка.
func Eligible(in EligibilityInput) (bool, string) {
	job := in.Job
	translator := in.Translator

	if model.JobTypeForTranslator(translator.TranslatorType) != job.JobType {
		return false, ReasonCategory
	}

	if !translator.SpeaksLanguage(job.LanguageID) {
		return false, ReasonLanguage
	}

	if job.Gender != model.GenderAny && job.Gender != translator.Gender {
		return false, ReasonGender
	}

	if !levelAllowed(job.Certified, translator.TranslatorLevel) {
		return false, ReasonCertification
	}

	if in.Blacklisted {
		return false, ReasonBlacklisted
	}

	if job.PhysicalOnly() && in.CustomerTown != translator.City && !in.SameTownHistory {
		return false, ReasonTown
	}

	if in.TimeConflict {
		return false, ReasonTimeConflict
	}

	return true, ReasonEligible
}

func levelAllowed(c model.Certification, level model.TranslatorLevel) bool {
	for _, l := range model.TranslatorLevelsFor(c) {
		if l == level {
			return true
		}
	}
	return false
}
