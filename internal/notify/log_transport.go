package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LogMailer заглушка почтового коллаборатора: пишет письмо в лог.
// Реальный рендеринг и отправка живут во внешнем сервисе.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, toEmail, toName, subject, templateKey string, data map[string]any) error {
	m.logger.Info("Mail queued",
		zap.String("to", toEmail),
		zap.String("name", toName),
		zap.String("subject", subject),
		zap.String("template", templateKey),
	)
	return nil
}

// LogSMS заглушка SMS-транспорта
type LogSMS struct {
	logger *zap.Logger
}

func NewLogSMS(logger *zap.Logger) *LogSMS {
	return &LogSMS{logger: logger}
}

func (s *LogSMS) Send(ctx context.Context, from, to, message string) (string, error) {
	s.logger.Info("SMS queued",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("message", message),
	)
	return "queued", nil
}

// LogPush заглушка push-транспорта для окружений без провайдера
type LogPush struct {
	logger *zap.Logger
}

func NewLogPush(logger *zap.Logger) *LogPush {
	return &LogPush{logger: logger}
}

func (p *LogPush) Send(ctx context.Context, targets []string, jobID int64, data map[string]any, message string, delayUntil *time.Time) error {
	p.logger.Info("Push queued",
		zap.Int64("job_id", jobID),
		zap.Strings("targets", targets),
		zap.String("message", message),
	)
	return nil
}
