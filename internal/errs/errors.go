package errs

import "errors"

var (
	// ErrNotFound заказ, пользователь или назначение не найдены
	ErrNotFound = errors.New("not found")

	// ErrConflict конфликт по времени или состоянию, состояние не изменено
	ErrConflict = errors.New("conflict")

	// ErrAlreadyAssigned заказ уже принят другим толком
	ErrAlreadyAssigned = errors.New("job already assigned")

	// ErrAlreadyFinalized назначение уже закрыто
	ErrAlreadyFinalized = errors.New("assignment already finalized")

	// ErrValidation не заполнено обязательное поле запроса
	ErrValidation = errors.New("validation failed")
)
