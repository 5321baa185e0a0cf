package bot

import (
	"context"
	"encoding/json"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateParser decodes a webhook request; *tgbotapi.BotAPI implements it.
type UpdateParser interface {
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

// WebhookHandler dispatches webhook updates and acknowledges them at once;
// Telegram retries anything that is not answered with 200.
func (b *Bot) WebhookHandler(ctx context.Context, p UpdateParser) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upd, err := p.HandleUpdate(r)
		if err != nil {
			b.log.Warn("bad webhook update", "err", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		b.Dispatch(ctx, *upd)
		w.WriteHeader(http.StatusOK)
	})
}

// SetWebhook registers url with Telegram for the update kinds the bot handles.
func SetWebhook(api API, url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	wh.AllowedUpdates = AllowedUpdates
	_, err = api.Request(wh)
	return err
}

// Poll starts long polling. Any webhook is removed first, otherwise
// getUpdates is refused.
func Poll(api *tgbotapi.BotAPI, timeoutSec int) (tgbotapi.UpdatesChannel, error) {
	if _, err := api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return nil, err
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	u.AllowedUpdates = AllowedUpdates
	return api.GetUpdatesChan(u), nil
}
