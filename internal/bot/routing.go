package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/dialog"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/verify"
)

const historyLimit = 10

func (b *Bot) onJoinRequest(ctx context.Context, r *tgbotapi.ChatJoinRequest) {
	req := verify.JoinRequest{
		ChatID:    r.Chat.ID,
		ChatTitle: r.Chat.Title,
		UserID:    r.From.ID,
		Username:  r.From.UserName,
		FirstName: r.From.FirstName,
		LastName:  r.From.LastName,
	}
	state, err := b.verifier.HandleJoinRequest(ctx, req)
	if err != nil {
		b.log.Error("join request failed", "user_id", req.UserID, "chat_id", req.ChatID, "state", state, "err", err)
		return
	}
	b.log.Debug("join request handled", "user_id", req.UserID, "chat_id", req.ChatID, "state", state)
}

func (b *Bot) onMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	state, err := b.verifier.HandleReply(ctx, verify.Reply{
		ChatID:  msg.Chat.ID,
		Private: msg.Chat.IsPrivate(),
		UserID:  msg.From.ID,
		Text:    msg.Text,
	})
	if err != nil {
		b.log.Error("reply failed", "user_id", msg.From.ID, "state", state, "err", err)
		return
	}
	if state == dialog.StateNone && msg.Chat.IsPrivate() {
		b.greetPrivate(msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "id":
		b.reply(msg, idText(msg))

	case "buscar":
		if msg.Chat.ID != b.adminChat {
			return
		}
		query := strings.TrimSpace(msg.CommandArguments())
		if query == "" {
			b.reply(msg, textLookupUsage)
			return
		}
		text, err := Lookup(ctx, b.search, query)
		if err != nil {
			b.log.Error("lookup failed", "err", err)
			b.reply(msg, textLookupFailed)
			return
		}
		b.reply(msg, text)

	case "historial":
		if msg.Chat.ID != b.adminChat {
			return
		}
		b.handleHistory(ctx, msg)

	default:
		if msg.Chat.IsPrivate() {
			b.greetPrivate(msg)
		}
	}
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	if b.history == nil {
		b.reply(msg, textHistoryDisabled)
		return
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		b.reply(msg, textHistoryUsage)
		return
	}
	recs, err := b.history.ListByUser(ctx, userID, historyLimit)
	if err != nil {
		b.log.Error("history lookup failed", "user_id", userID, "err", err)
		b.reply(msg, textHistoryFailed)
		return
	}
	b.reply(msg, historyText(userID, recs))
}

func (b *Bot) greetPrivate(msg *tgbotapi.Message) {
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	b.log.Info("private chat started", "user_id", msg.From.ID)
	b.reply(msg, fmt.Sprintf("Hola %s. Soy el bot de %s ☺️", name, b.community))
}

func (b *Bot) onChatMember(upd *tgbotapi.ChatMemberUpdated) {
	if isMember(upd.OldChatMember) || !isMember(upd.NewChatMember) {
		return
	}
	u := upd.NewChatMember.User
	if u == nil || u.IsBot {
		return
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	b.send(tgbotapi.NewMessage(upd.Chat.ID, fmt.Sprintf("¡Bienvenido/a al grupo, %s!", name)))
}

// isMember counts restricted users only while they still belong to the chat.
func isMember(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "member", "creator", "administrator":
		return true
	case "restricted":
		return m.IsMember
	}
	return false
}
