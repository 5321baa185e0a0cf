package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/verify"
)

// Gateway carries out verification side effects over the Bot API. It
// implements verify.Messenger and verify.Decider.
type Gateway struct {
	api       API
	adminChat int64
}

func NewGateway(api API, adminChatID int64) *Gateway {
	return &Gateway{api: api, adminChat: adminChatID}
}

// SendPrivate messages the requester. A requester who blocked the bot, or
// never allowed it to write, yields verify.ErrRecipientUnreachable.
func (g *Gateway) SendPrivate(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := g.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return classify(err)
	}
	return nil
}

func (g *Gateway) Admit(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := g.api.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}
	return nil
}

func (g *Gateway) Deny(ctx context.Context, chatID, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := g.api.Request(tgbotapi.DeclineChatJoinRequest{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	})
	if err != nil {
		return fmt.Errorf("decline join request: %w", err)
	}
	return nil
}

func (g *Gateway) NotifyAdmins(ctx context.Context, text string, replyTo int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m := tgbotapi.NewMessage(g.adminChat, text)
	if replyTo != 0 {
		m.ReplyToMessageID = replyTo
		m.AllowSendingWithoutReply = true
	}
	sent, err := g.api.Send(m)
	if err != nil {
		return 0, fmt.Errorf("notify admins: %w", err)
	}
	return sent.MessageID, nil
}

func classify(err error) error {
	if code, msg, ok := apiError(err); ok && code == http.StatusForbidden {
		return fmt.Errorf("%w: %s", verify.ErrRecipientUnreachable, msg)
	}
	return err
}

// apiError unwraps a Bot API error. The library returns it by pointer but
// also implements error on the value.
func apiError(err error) (int, string, bool) {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message, true
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val.Code, val.Message, true
	}
	return 0, "", false
}
