package notify

import (
	"context"
	"time"
)

// Mailer внешний почтовый коллаборатор: рендеринг шаблонов вне ядра,
// ядро передаёт только ключ шаблона и данные контекста
type Mailer interface {
	Send(ctx context.Context, toEmail, toName, subject, templateKey string, data map[string]any) error
}

// PushSender внешний push-транспорт. delayUntil != nil переносит отправку
// на указанный момент вместо немедленной
type PushSender interface {
	Send(ctx context.Context, targets []string, jobID int64, data map[string]any, message string, delayUntil *time.Time) error
}

// SMSSender внешний SMS-транспорт, возвращает статус доставки
type SMSSender interface {
	Send(ctx context.Context, from, to, message string) (string, error)
}
