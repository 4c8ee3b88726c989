package webhook

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ignatzorin/marketplace-backend/internal/goroutine"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// Notifier доставляет события заказов во внешнюю систему по HTTP.
// Доставка асинхронная с ограниченными повторами; недоставленное
// событие логируется и теряется.
type Notifier struct {
	client *retryablehttp.Client
	url    string
}

// envelope описывает формат исходящего события.
type envelope struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotifier создаёт отправщик. Пустой URL отключает доставку.
func NewNotifier(url string) *Notifier {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 30 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil

	return &Notifier{
		client: client,
		url:    url,
	}
}

// Notify отправляет событие не блокируя вызывающего.
func (n *Notifier) Notify(event string, payload map[string]interface{}) {
	if n == nil || n.url == "" {
		return
	}

	goroutine.SafeGo(func() {
		n.deliver(event, payload)
	})
}

func (n *Notifier) deliver(event string, payload map[string]interface{}) {
	body, err := json.Marshal(envelope{
		Event:     event,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithField("event", event).Errorf("webhook: не удалось сериализовать событие: %v", err)
		}
		return
	}

	req, err := retryablehttp.NewRequest("POST", n.url, bytes.NewReader(body))
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithField("event", event).Errorf("webhook: не удалось создать запрос: %v", err)
		}
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		if logger.Log != nil {
			logger.Log.WithField("event", event).Warnf("webhook: доставка не удалась: %v", err)
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if logger.Log != nil {
			logger.Log.WithFields(map[string]interface{}{
				"event":  event,
				"status": resp.StatusCode,
			}).Warn("webhook: получатель ответил ошибкой")
		}
	}
}
