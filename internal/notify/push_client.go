package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// PushClient HTTP-клиент push-провайдера с тег-фильтрами по email получателей.
// Повторы отправки — забота транспорта, не вызывающего кода.
type PushClient struct {
	url    string
	appID  string
	apiKey string
	http   *http.Client
	logger *zap.Logger
}

func NewPushClient(url, appID, apiKey string, logger *zap.Logger) *PushClient {
	return &PushClient{
		url:    url,
		appID:  appID,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// tagFilter собирает фильтр получателей: дизъюнкция по email
func tagFilter(targets []string) []map[string]string {
	var tags []map[string]string
	for i, email := range targets {
		if i > 0 {
			tags = append(tags, map[string]string{"operator": "OR"})
		}
		tags = append(tags, map[string]string{
			"key":      "email",
			"relation": "=",
			"value":    strings.ToLower(email),
		})
	}
	return tags
}

// Send отправляет один push-конверт на группу получателей
func (c *PushClient) Send(ctx context.Context, targets []string, jobID int64, data map[string]any, message string, delayUntil *time.Time) error {
	payload := map[string]any{
		"app_id":         c.appID,
		"tags":           tagFilter(targets),
		"data":           data,
		"contents":       map[string]string{"en": message},
		"correlation_id": uuid.NewString(),
	}
	if delayUntil != nil {
		payload["send_after"] = delayUntil.Format(time.RFC3339)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Basic "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("push provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("push provider returned %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}

	c.logger.Debug("Push delivered to provider",
		zap.Int64("job_id", jobID),
		zap.Int("targets", len(targets)),
	)
	return nil
}
