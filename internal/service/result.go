package service

import "github.com/tolkdesk/dispatch/internal/model"

// Result итог операции: success либо fail с машиночитаемой причиной
type Result struct {
	Status    string                 `json:"status"`
	Message   string                 `json:"message,omitempty"`
	FieldName string                 `json:"field_name,omitempty"`
	JobID     int64                  `json:"id,omitempty"`
	Log       []model.ChangeLogEntry `json:"-"`
}

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

func success() *Result {
	return &Result{Status: StatusSuccess}
}

func fail(message string) *Result {
	return &Result{Status: StatusFail, Message: message}
}

// failField отказ из-за незаполненного поля
func failField(fieldName string) *Result {
	return &Result{
		Status:    StatusFail,
		Message:   "Du måste fylla in alla fält",
		FieldName: fieldName,
	}
}
