package telegram

import (
	"context"
	"log"

	"github.com/gaigemini/telegram-hub/models"
)

// Notifier получает события входящих сообщений. Подпись запроса и
// доставка вебхука — забота внешнего сервиса, ядро лишь отдаёт payload.
type Notifier interface {
	Notify(ctx context.Context, event models.MessageEvent) error
}

// LogNotifier — реализация по умолчанию: пишет событие в журнал.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event models.MessageEvent) error {
	log.Printf("[WEBHOOK] сессия %s: сообщение от %d в %s %d: %q",
		event.SessionID, event.SenderID, event.PeerKind, event.PeerID, event.Text)
	return nil
}
