package bot

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// WebhookPath is where Telegram posts updates in webhook mode.
const WebhookPath = "/webhook"

// SetWebhook registers baseURL+WebhookPath with Telegram.
func (b *Bot) SetWebhook(baseURL string) error {
	wh, err := tgbotapi.NewWebhook(baseURL + WebhookPath)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	b.log.Info("webhook registered", "url", baseURL+WebhookPath)
	return nil
}

// WebhookHandler decodes updates posted by Telegram and handles them in the
// background under ctx, acknowledging each request immediately. Wait
// returns once those handlers are done.
func (b *Bot) WebhookHandler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		update, err := b.api.HandleUpdate(r)
		if err != nil {
			b.log.Warn("decode webhook update", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		b.goHandle(func() { b.handleUpdate(ctx, *update) })
		w.WriteHeader(http.StatusOK)
	})
}
