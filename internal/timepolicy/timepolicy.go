package timepolicy

import "time"

// ImmediateOffset срок акутзаказа: сейчас + 5 минут
const ImmediateOffset = 5 * time.Minute

const (
	nightStartHour = 21
	nightEndHour   = 7
)

// Clock источник текущего времени, подменяется в тестах
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NewClock возвращает системные часы
func NewClock() Clock {
	return realClock{}
}

// ImmediateDue вычисляет срок акутзаказа
func ImmediateDue(now time.Time) time.Time {
	return now.Add(ImmediateOffset)
}

// IsNight ночное время: с 21:00 до 07:00
func IsNight(t time.Time) bool {
	h := t.Hour()
	return h >= nightStartHour || h < nightEndHour
}

// NextBusinessTime ближайшие 07:00 после t, для отложенных push
func NextBusinessTime(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), nightEndHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// AcceptanceDeadline срок, до которого заказ должен быть принят толком.
// Чем ближе срок заказа к моменту создания, тем короче окно приёма.
func AcceptanceDeadline(due, createdAt time.Time) time.Time {
	gap := due.Sub(createdAt)
	switch {
	case gap <= 90*time.Minute:
		return due
	case gap <= 24*time.Hour:
		return createdAt.Add(90 * time.Minute)
	case gap <= 72*time.Hour:
		return createdAt.Add(16 * time.Hour)
	default:
		return due.Add(-48 * time.Hour)
	}
}

// WithdrawCutoff граница 24 часов до начала сессии
func WithdrawCutoff(due time.Time) time.Time {
	return due.Add(-24 * time.Hour)
}
