package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/dialog"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/audit"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/verify"
)

// AllowedUpdates are the update kinds the bot asks Telegram for. chat_member
// is not delivered unless requested explicitly.
var AllowedUpdates = []string{"message", "chat_join_request", "chat_member"}

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Verifier interface {
	HandleJoinRequest(ctx context.Context, req verify.JoinRequest) (dialog.State, error)
	HandleReply(ctx context.Context, msg verify.Reply) (dialog.State, error)
}

type History interface {
	ListByUser(ctx context.Context, userID int64, limit int) ([]audit.Record, error)
}

type Bot struct {
	api       API
	log       *slog.Logger
	verifier  Verifier
	search    Searcher
	history   History
	adminChat int64
	community string
	queue     *keyedQueue
}

type Option func(*Bot)

func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.log = l }
}

// WithHistory enables /historial in the admin chat.
func WithHistory(h History) Option {
	return func(b *Bot) { b.history = h }
}

func WithCommunity(name string) Option {
	return func(b *Bot) { b.community = name }
}

func New(api API, verifier Verifier, search Searcher, adminChatID int64, opts ...Option) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram api is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if search == nil {
		return nil, errors.New("roster search is required")
	}
	if adminChatID == 0 {
		return nil, errors.New("admin chat id is required")
	}
	b := &Bot{
		api:       api,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		verifier:  verifier,
		search:    search,
		adminChat: adminChatID,
		community: "la asociación",
		queue:     newKeyedQueue(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Run handles updates until ctx is done or the channel is closed, then
// waits for the handlers still running.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	defer b.queue.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.Dispatch(ctx, upd)
		}
	}
}

// Dispatch queues the update behind earlier updates from the same user.
// Handlers outlive ctx cancellation so a decision in flight is carried out.
func (b *Bot) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	key, ok := updateKey(upd)
	if !ok {
		return
	}
	hctx := context.WithoutCancel(ctx)
	b.queue.Submit(key, func() { b.handleUpdate(hctx, upd) })
}

// Wait blocks until every dispatched update has been handled.
func (b *Bot) Wait() {
	b.queue.Wait()
}

func updateKey(upd tgbotapi.Update) (int64, bool) {
	switch {
	case upd.ChatJoinRequest != nil:
		return upd.ChatJoinRequest.From.ID, true
	case upd.ChatMember != nil:
		if u := upd.ChatMember.NewChatMember.User; u != nil {
			return u.ID, true
		}
		return upd.ChatMember.Chat.ID, true
	case upd.Message != nil:
		if upd.Message.From != nil {
			return upd.Message.From.ID, true
		}
		if upd.Message.Chat != nil {
			return upd.Message.Chat.ID, true
		}
	}
	return 0, false
}

func (b *Bot) handleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.ChatJoinRequest != nil:
		b.onJoinRequest(ctx, upd.ChatJoinRequest)
	case upd.ChatMember != nil:
		b.onChatMember(upd.ChatMember)
	case upd.Message != nil:
		b.onMessage(ctx, upd.Message)
	}
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

func (b *Bot) reply(to *tgbotapi.Message, text string) {
	m := tgbotapi.NewMessage(to.Chat.ID, text)
	m.ReplyToMessageID = to.MessageID
	m.AllowSendingWithoutReply = true
	b.send(m)
}
