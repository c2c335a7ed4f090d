package model

import "time"

// Assignment связь толка с заказом (translator_job_rel)
type Assignment struct {
	ID           int64      `json:"id"`
	JobID        int64      `json:"job_id"`
	TranslatorID int64      `json:"translator_id"`
	CancelAt     *time.Time `json:"cancel_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	CompletedBy  *int64     `json:"completed_by"`
	CreatedAt    time.Time  `json:"created_at"`

	// Дополнительные поля для удобства (не из БД)
	Translator *User `json:"translator,omitempty"`
}

// Active назначение не отменено и не завершено
func (a *Assignment) Active() bool {
	return a.CancelAt == nil && a.CompletedAt == nil
}

// Finalized назначение закрыто завершением сессии
func (a *Assignment) Finalized() bool {
	return a.CompletedAt != nil
}

// ChangeLogEntry запись об изменении поля заказа, передаётся аудиту
type ChangeLogEntry struct {
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}
