package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/dialog"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/audit"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/metrics"
)

// Engine runs the verification of join requests: an automatic check by
// Telegram username, then a DNI conversation in the requester's private chat.
//
// Every event for a requester runs under that requester's registry lock, so
// the decision for one join request is taken and carried out exactly once.
type Engine struct {
	matcher   Matcher
	messenger Messenger
	decider   Decider
	sessions  *dialog.Registry

	log       *slog.Logger
	metrics   *metrics.Metrics
	audit     AuditLog
	community string
	now       func() time.Time
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithAuditLog(a AuditLog) Option {
	return func(e *Engine) { e.audit = a }
}

// WithCommunity sets the community name used in messages to requesters.
func WithCommunity(name string) Option {
	return func(e *Engine) { e.community = name }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(matcher Matcher, messenger Messenger, decider Decider, sessions *dialog.Registry, opts ...Option) (*Engine, error) {
	if matcher == nil {
		return nil, errors.New("matcher is required")
	}
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if decider == nil {
		return nil, errors.New("decider is required")
	}
	if sessions == nil {
		return nil, errors.New("session registry is required")
	}
	e := &Engine{
		matcher:   matcher,
		messenger: messenger,
		decider:   decider,
		sessions:  sessions,
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		community: "la asociación",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// HandleJoinRequest runs the automatic check for a new join request. It either
// admits the requester, opens a DNI session, or ends the request when the
// requester cannot be reached. While a session is pending for the requester a
// repeated request for the same chat is a no-op, and a request for another
// chat is only reported to the admins.
func (e *Engine) HandleJoinRequest(ctx context.Context, req JoinRequest) (state dialog.State, err error) {
	release := e.sessions.Lock(req.UserID)
	defer release()

	log := e.log.With("user_id", req.UserID, "chat_id", req.ChatID)
	if sess, pending := e.sessions.Get(req.UserID); pending {
		if sess.ChatID == req.ChatID {
			log.Info("join request ignored, verification already pending")
			e.metrics.IncJoinRequest("duplicate")
			return dialog.StateAwaitingDNI, nil
		}
		// One conversation per requester: the other chat's request is left
		// to the admins.
		log.Info("join request left for admins, verification pending for another chat", "pending_chat_id", sess.ChatID)
		e.metrics.IncJoinRequest("deferred")
		e.notifyAdmins(ctx, adminOtherChatPending(req, sess.ChatTitle), 0)
		return dialog.StateAwaitingDNI, nil
	}
	defer func() { e.metrics.IncJoinRequest(string(state)) }()

	if req.Username != "" {
		out, err := e.matcher.MatchColumn(ctx, roster.Current,
			roster.Signal{Field: roster.FieldUsername, Value: req.Username})
		if err != nil {
			return e.abortJoin(ctx, req, "no se ha podido consultar la base de datos de socios", err)
		}
		if out.Kind == roster.SingleMatch {
			return e.admitByUsername(ctx, req, out.Entry())
		}
	}

	// The name lookup only shapes the messages; it never admits anyone.
	finding := nameNotSearched
	var nameMatch roster.Outcome
	if strings.TrimSpace(req.LastName) != "" {
		nameMatch, err = e.matcher.MatchColumn(ctx, roster.Current,
			roster.Signal{Field: roster.FieldName, Value: req.DisplayName()})
		if err != nil {
			return e.abortJoin(ctx, req, "no se ha podido consultar la base de datos de socios", err)
		}
		finding = nameNotFound
		if nameMatch.Kind == roster.SingleMatch {
			finding = nameFound
		}
	}

	if err := e.messenger.SendPrivate(ctx, req.UserID, dniPrompt(e.community, req, finding)); err != nil {
		if errors.Is(err, ErrRecipientUnreachable) {
			log.Info("requester unreachable, manual handling required")
			e.notifyAdmins(ctx, adminUndeliverable(req.DisplayName(), req.Username, req.ChatTitle), 0)
			e.record(ctx, audit.Record{
				UserID: req.UserID, ChatID: req.ChatID, Username: req.Username,
				DisplayName: req.DisplayName(), Outcome: string(dialog.StateUndeliverable),
			})
			return dialog.StateUndeliverable, nil
		}
		return e.abortJoin(ctx, req, "no se ha podido enviar el mensaje privado", err)
	}

	adminMsgID := e.notifyAdmins(ctx, adminAwaitingDNI(req, finding, nameMatch), 0)
	sess := dialog.Session{
		Key:         req.UserID,
		UserID:      req.UserID,
		ChatID:      req.ChatID,
		ChatTitle:   req.ChatTitle,
		State:       dialog.StateAwaitingDNI,
		AdminMsgID:  adminMsgID,
		DisplayName: req.DisplayName(),
		Username:    req.Username,
		CreatedAt:   e.now(),
	}
	if err := e.sessions.Put(sess); err != nil {
		return dialog.StateAborted, fmt.Errorf("register session: %w", err)
	}
	e.metrics.SetPendingSessions(e.sessions.Len())
	log.Info("waiting for DNI", "username_given", req.Username != "", "name_found", finding == nameFound)
	return dialog.StateAwaitingDNI, nil
}

func (e *Engine) admitByUsername(ctx context.Context, req JoinRequest, entry roster.Entry) (dialog.State, error) {
	if err := e.decider.Admit(ctx, req.ChatID, req.UserID); err != nil {
		return e.abortJoin(ctx, req, "Telegram no ha aceptado la aprobación", err)
	}

	text := adminApprovedByUsername(req, entry)
	if err := e.messenger.SendPrivate(ctx, req.UserID, welcomeByUsername(e.community, req)); err != nil {
		e.log.Warn("welcome message not delivered", "user_id", req.UserID, "err", err)
		text += textRequesterNotNotified
	}
	e.notifyAdmins(ctx, text, 0)
	e.record(ctx, audit.Record{
		UserID: req.UserID, ChatID: req.ChatID, Username: req.Username, DisplayName: req.DisplayName(),
		Outcome: string(dialog.StateApproved), Signal: string(roster.FieldUsername), RosterRow: entry.Row,
	})
	e.log.Info("admitted by username", "user_id", req.UserID, "chat_id", req.ChatID, "row", entry.Row)
	return dialog.StateApproved, nil
}

func (e *Engine) abortJoin(ctx context.Context, req JoinRequest, reason string, cause error) (dialog.State, error) {
	e.notifyAdmins(ctx, adminAborted(req.DisplayName(), req.Username, req.ChatTitle, reason), 0)
	e.record(ctx, audit.Record{
		UserID: req.UserID, ChatID: req.ChatID, Username: req.Username, DisplayName: req.DisplayName(),
		Outcome: string(dialog.StateAborted), Note: cause.Error(),
	})
	return dialog.StateAborted, fmt.Errorf("join request from %d: %w", req.UserID, cause)
}

// HandleReply feeds a free-text message into the requester's pending session.
// It returns dialog.StateNone when there is no session for the sender.
func (e *Engine) HandleReply(ctx context.Context, msg Reply) (dialog.State, error) {
	release := e.sessions.Lock(msg.UserID)
	defer release()

	sess, ok := e.sessions.Get(msg.UserID)
	if !ok {
		return dialog.StateNone, nil
	}
	// Only the requester's private chat can answer the prompt.
	if !msg.Private || msg.ChatID != sess.Key {
		return sess.State, nil
	}

	dni, err := ParseDNI(msg.Text)
	if err != nil {
		if err := e.messenger.SendPrivate(ctx, sess.Key, textDNIFormat); err != nil {
			if errors.Is(err, ErrRecipientUnreachable) {
				return e.closeUndeliverable(ctx, sess)
			}
			return sess.State, fmt.Errorf("send DNI format hint: %w", err)
		}
		return sess.State, nil
	}

	out, err := e.matcher.MatchColumn(ctx, roster.Current, roster.Signal{Field: roster.FieldDNI, Value: dni})
	if err != nil {
		// Keep the session: the requester can send the DNI again later.
		if sendErr := e.messenger.SendPrivate(ctx, sess.Key, textRosterUnavailable); sendErr != nil {
			e.log.Warn("roster outage notice not delivered", "user_id", sess.UserID, "err", sendErr)
		}
		return sess.State, fmt.Errorf("match DNI for %d: %w", sess.UserID, err)
	}

	if out.Kind == roster.SingleMatch {
		return e.admitByDNI(ctx, sess, dni, out.Entry())
	}
	return e.denyByDNI(ctx, sess, dni)
}

func (e *Engine) admitByDNI(ctx context.Context, sess dialog.Session, dni string, entry roster.Entry) (dialog.State, error) {
	if err := e.decider.Admit(ctx, sess.ChatID, sess.UserID); err != nil {
		return e.abortSession(ctx, sess, "Telegram no ha aceptado la aprobación", err)
	}
	e.closeSession(sess.Key)

	text := adminApprovedByDNI(entry)
	if err := e.messenger.SendPrivate(ctx, sess.Key, welcomeByDNI(dni, entry)); err != nil {
		e.log.Warn("welcome message not delivered", "user_id", sess.UserID, "err", err)
		text += textRequesterNotNotified
	}
	e.threadNote(ctx, sess, text)
	e.record(ctx, sessionRecord(sess, dialog.StateApproved, roster.FieldDNI, entry.Row, ""))
	e.log.Info("admitted by DNI", "user_id", sess.UserID, "chat_id", sess.ChatID, "row", entry.Row)
	return dialog.StateApproved, nil
}

func (e *Engine) denyByDNI(ctx context.Context, sess dialog.Session, dni string) (dialog.State, error) {
	if err := e.decider.Deny(ctx, sess.ChatID, sess.UserID); err != nil {
		return e.abortSession(ctx, sess, "Telegram no ha aceptado el rechazo", err)
	}
	e.closeSession(sess.Key)

	text := adminDenied(dni)
	if err := e.messenger.SendPrivate(ctx, sess.Key, textDNIRejected); err != nil {
		e.log.Warn("rejection message not delivered", "user_id", sess.UserID, "err", err)
		text += textRequesterNotNotified
	}
	e.threadNote(ctx, sess, text)
	e.record(ctx, sessionRecord(sess, dialog.StateDenied, roster.FieldDNI, 0, ""))
	e.log.Info("denied by DNI", "user_id", sess.UserID, "chat_id", sess.ChatID)
	return dialog.StateDenied, nil
}

func (e *Engine) closeUndeliverable(ctx context.Context, sess dialog.Session) (dialog.State, error) {
	e.closeSession(sess.Key)
	e.threadNote(ctx, sess, adminUndeliverable(sess.DisplayName, sess.Username, sess.ChatTitle))
	e.record(ctx, sessionRecord(sess, dialog.StateUndeliverable, "", 0, ""))
	return dialog.StateUndeliverable, nil
}

func (e *Engine) abortSession(ctx context.Context, sess dialog.Session, reason string, cause error) (dialog.State, error) {
	e.closeSession(sess.Key)
	e.threadNote(ctx, sess, adminAborted(sess.DisplayName, sess.Username, sess.ChatTitle, reason))
	e.record(ctx, sessionRecord(sess, dialog.StateAborted, "", 0, cause.Error()))
	return dialog.StateAborted, fmt.Errorf("session %d: %w", sess.Key, cause)
}

// ExpireSessions ends sessions older than ttl without admitting or denying
// anyone; the join request stays pending for the admins. It returns how many
// sessions were closed.
func (e *Engine) ExpireSessions(ctx context.Context, ttl time.Duration) int {
	n := 0
	for _, stale := range e.sessions.CreatedBefore(e.now().Add(-ttl)) {
		if e.expire(ctx, stale) {
			n++
		}
	}
	return n
}

func (e *Engine) expire(ctx context.Context, stale dialog.Session) bool {
	release := e.sessions.Lock(stale.Key)
	defer release()

	sess, ok := e.sessions.Get(stale.Key)
	if !ok || !sess.CreatedAt.Equal(stale.CreatedAt) {
		return false
	}
	e.closeSession(sess.Key)
	if err := e.messenger.SendPrivate(ctx, sess.Key, sessionExpired(sess.ChatTitle)); err != nil {
		e.log.Debug("expiry notice not delivered", "user_id", sess.UserID, "err", err)
	}
	e.threadNote(ctx, sess, adminExpired)
	e.record(ctx, sessionRecord(sess, dialog.StateExpired, "", 0, ""))
	e.log.Info("session expired", "user_id", sess.UserID, "chat_id", sess.ChatID)
	return true
}

// Pending reports how many sessions are waiting for a DNI.
func (e *Engine) Pending() int {
	return e.sessions.Len()
}

func (e *Engine) closeSession(key int64) {
	e.sessions.Delete(key)
	e.metrics.SetPendingSessions(e.sessions.Len())
}

// threadNote posts an outcome under the session's admin notice. Without one
// the note names the requester itself.
func (e *Engine) threadNote(ctx context.Context, sess dialog.Session, text string) {
	if sess.AdminMsgID == 0 {
		text = fmt.Sprintf("%s · «%s»\n%s", person(sess.DisplayName, sess.Username), sess.ChatTitle, text)
	}
	e.notifyAdmins(ctx, text, sess.AdminMsgID)
}

func (e *Engine) notifyAdmins(ctx context.Context, text string, replyTo int) int {
	id, err := e.decider.NotifyAdmins(ctx, text, replyTo)
	if err != nil {
		e.log.Error("admin notification failed", "reply_to", replyTo, "err", err)
		return 0
	}
	return id
}

func (e *Engine) record(ctx context.Context, rec audit.Record) {
	e.metrics.IncOutcome(rec.Outcome, rec.Signal)
	if e.audit == nil {
		return
	}
	if err := e.audit.Record(ctx, rec); err != nil {
		e.log.Error("audit record failed", "user_id", rec.UserID, "outcome", rec.Outcome, "err", err)
	}
}

func sessionRecord(sess dialog.Session, outcome dialog.State, signal roster.Field, row int, note string) audit.Record {
	return audit.Record{
		UserID:      sess.UserID,
		ChatID:      sess.ChatID,
		Username:    sess.Username,
		DisplayName: sess.DisplayName,
		Outcome:     string(outcome),
		Signal:      string(signal),
		RosterRow:   row,
		Note:        note,
	}
}
