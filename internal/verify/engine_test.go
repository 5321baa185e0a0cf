package verify_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/fpuinvestiga/gatekeeper-bot/internal/dialog"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/audit"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/domain/roster"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/infra/metrics"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/verify"
	"github.com/fpuinvestiga/gatekeeper-bot/internal/verify/mocks"
)

const (
	chatID    int64 = -1001234
	requester int64 = 4242
)

var ana = roster.Entry{Row: 2, Name: "Ana García López", DNI: "12345678A", Username: "ana_g"}

type EngineSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	matcher   *mocks.MockMatcher
	messenger *mocks.MockMessenger
	decider   *mocks.MockDecider
	audit     *mocks.MockAuditLog
	sessions  *dialog.Registry
	metrics   *metrics.Metrics
	now       time.Time
	engine    *verify.Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.matcher = mocks.NewMockMatcher(s.ctrl)
	s.messenger = mocks.NewMockMessenger(s.ctrl)
	s.decider = mocks.NewMockDecider(s.ctrl)
	s.audit = mocks.NewMockAuditLog(s.ctrl)
	s.sessions = dialog.NewRegistry()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)

	var err error
	s.engine, err = verify.New(s.matcher, s.messenger, s.decider, s.sessions,
		verify.WithMetrics(s.metrics),
		verify.WithAuditLog(s.audit),
		verify.WithCommunity("FPU Investiga"),
		verify.WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) joinRequest() verify.JoinRequest {
	return verify.JoinRequest{
		ChatID: chatID, ChatTitle: "Socios FPU", UserID: requester,
		Username: "ana_g", FirstName: "Ana", LastName: "García López",
	}
}

// openSession puts a pending session in place as if the prompt had been sent.
func (s *EngineSuite) openSession(adminMsgID int) dialog.Session {
	sess := dialog.Session{
		Key: requester, UserID: requester, ChatID: chatID, ChatTitle: "Socios FPU",
		State: dialog.StateAwaitingDNI, AdminMsgID: adminMsgID,
		DisplayName: "Ana García López", Username: "ana_g", CreatedAt: s.now,
	}
	s.Require().NoError(s.sessions.Put(sess))
	return sess
}

func (s *EngineSuite) privateReply(text string) verify.Reply {
	return verify.Reply{ChatID: requester, Private: true, UserID: requester, Text: text}
}

func (s *EngineSuite) expectAudit(outcome, signal string) {
	s.audit.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rec audit.Record) error {
			s.Equal(outcome, rec.Outcome)
			s.Equal(signal, rec.Signal)
			s.Equal(requester, rec.UserID)
			s.Equal(chatID, rec.ChatID)
			return nil
		}).Times(1)
}

func single(e roster.Entry, f roster.Field) roster.Outcome {
	return roster.Outcome{Kind: roster.SingleMatch, Field: f, Entries: []roster.Entry{e}}
}

func (s *EngineSuite) TestNewRequiresDependencies() {
	_, err := verify.New(nil, s.messenger, s.decider, s.sessions)
	s.Error(err)
	_, err = verify.New(s.matcher, nil, s.decider, s.sessions)
	s.Error(err)
	_, err = verify.New(s.matcher, s.messenger, nil, s.sessions)
	s.Error(err)
	_, err = verify.New(s.matcher, s.messenger, s.decider, nil)
	s.Error(err)
}

func (s *EngineSuite) TestUsernameMatchAdmitsWithoutPrompt() {
	s.matcher.EXPECT().
		MatchColumn(gomock.Any(), roster.Current, roster.Signal{Field: roster.FieldUsername, Value: "ana_g"}).
		Return(single(ana, roster.FieldUsername), nil)
	s.decider.EXPECT().Admit(gomock.Any(), chatID, requester).Return(nil).Times(1)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "Puedes entrar")
			s.NotContains(text, "DNI")
			return nil
		})
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "su usuario está en la base de datos")
			s.Contains(text, "Ana García López")
			s.NotContains(text, "No he podido avisar")
			return 10, nil
		})
	s.expectAudit("approved", "username")

	state, err := s.engine.HandleJoinRequest(context.Background(), s.joinRequest())
	s.Require().NoError(err)
	s.Equal(dialog.StateApproved, state)
	s.Zero(s.sessions.Len())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.JoinRequests.WithLabelValues("approved")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues("approved", "username")))
}

func (s *EngineSuite) TestUsernameMatchWelcomeUndelivered() {
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(single(ana, roster.FieldUsername), nil)
	s.decider.EXPECT().Admit(gomock.Any(), chatID, requester).Return(nil)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).
		Return(fmt.Errorf("send: %w", verify.ErrRecipientUnreachable))
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "No he podido avisar")
			return 10, nil
		}).Times(1)
	s.expectAudit("approved", "username")

	state, err := s.engine.HandleJoinRequest(context.Background(), s.joinRequest())
	s.Require().NoError(err)
	s.Equal(dialog.StateApproved, state)
}

func (s *EngineSuite) TestNoUsernameNoFamilyNameOpensSession() {
	req := s.joinRequest()
	req.Username, req.LastName = "", ""

	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "no tener nombre de usuario")
			s.Contains(text, "tu nombre a secas")
			s.Contains(text, "DNI")
			return nil
		})
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).Return(77, nil)

	state, err := s.engine.HandleJoinRequest(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(dialog.StateAwaitingDNI, state)

	sess, ok := s.sessions.Get(requester)
	s.Require().True(ok)
	s.Equal(dialog.StateAwaitingDNI, sess.State)
	s.Equal(chatID, sess.ChatID)
	s.Equal(77, sess.AdminMsgID)
	s.Equal(s.now, sess.CreatedAt)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.PendingSessions))
}

func (s *EngineSuite) TestUnknownUsernameChecksNameThenPrompts() {
	gomock.InOrder(
		s.matcher.EXPECT().
			MatchColumn(gomock.Any(), roster.Current, roster.Signal{Field: roster.FieldUsername, Value: "ana_g"}).
			Return(roster.Outcome{Kind: roster.NoMatch, Field: roster.FieldUsername}, nil),
		s.matcher.EXPECT().
			MatchColumn(gomock.Any(), roster.Current, roster.Signal{Field: roster.FieldName, Value: "Ana García López"}).
			Return(single(ana, roster.FieldName), nil),
	)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "No tenemos asociado tu usuario @ana_g")
			s.Contains(text, "sí están en nuestra base de datos")
			return nil
		})
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "(fila 2)")
			s.Contains(text, "no basta para darle acceso")
			return 5, nil
		})

	// A name match alone never admits.
	state, err := s.engine.HandleJoinRequest(context.Background(), s.joinRequest())
	s.Require().NoError(err)
	s.Equal(dialog.StateAwaitingDNI, state)
	s.Equal(1, s.sessions.Len())
}

func (s *EngineSuite) TestUnreachableRequesterNotifiesAdminsOnce() {
	req := s.joinRequest()
	req.Username = ""
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(roster.Outcome{Kind: roster.NoMatch, Field: roster.FieldName}, nil)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).
		Return(fmt.Errorf("send: %w", verify.ErrRecipientUnreachable))
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "tiene bloqueado al bot")
			return 9, nil
		}).Times(1)
	s.expectAudit("undeliverable", "")

	state, err := s.engine.HandleJoinRequest(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(dialog.StateUndeliverable, state)
	s.Zero(s.sessions.Len())
}

func (s *EngineSuite) TestRosterOutageAbortsJoinRequest() {
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(roster.Outcome{}, fmt.Errorf("%w: current: timeout", roster.ErrSourceUnavailable))
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "se requiere intervención humana")
			return 3, nil
		})
	s.expectAudit("aborted", "")

	state, err := s.engine.HandleJoinRequest(context.Background(), s.joinRequest())
	s.ErrorIs(err, roster.ErrSourceUnavailable)
	s.Equal(dialog.StateAborted, state)
	s.Zero(s.sessions.Len())
}

func (s *EngineSuite) TestDuplicateJoinRequestIsIgnored() {
	s.openSession(77)

	state, err := s.engine.HandleJoinRequest(context.Background(), s.joinRequest())
	s.Require().NoError(err)
	s.Equal(dialog.StateAwaitingDNI, state)
	s.Equal(1, s.sessions.Len())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.JoinRequests.WithLabelValues("duplicate")))
}

func (s *EngineSuite) TestJoinRequestForAnotherChatIsReportedToAdmins() {
	s.openSession(77)
	req := s.joinRequest()
	req.ChatID = -1009999
	req.ChatTitle = "Junta directiva"
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "«Junta directiva»")
			s.Contains(text, "«Socios FPU»")
			s.Contains(text, "@ana_g")
			return 90, nil
		}).Times(1)

	state, err := s.engine.HandleJoinRequest(context.Background(), req)
	s.Require().NoError(err)
	s.Equal(dialog.StateAwaitingDNI, state)
	sess, ok := s.sessions.Get(requester)
	s.Require().True(ok)
	s.Equal(chatID, sess.ChatID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.JoinRequests.WithLabelValues("deferred")))
}

func (s *EngineSuite) TestMatchingDNIAdmits() {
	s.openSession(77)
	s.matcher.EXPECT().
		MatchColumn(gomock.Any(), roster.Current, roster.Signal{Field: roster.FieldDNI, Value: "12345678A"}).
		Return(single(ana, roster.FieldDNI), nil)
	s.decider.EXPECT().Admit(gomock.Any(), chatID, requester).Return(nil).Times(1)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "Tu DNI 12345678A aparece asociado a Ana García López")
			return nil
		})
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 77).Return(78, nil).Times(1)
	s.expectAudit("approved", "dni")

	state, err := s.engine.HandleReply(context.Background(), s.privateReply(" 12345678a "))
	s.Require().NoError(err)
	s.Equal(dialog.StateApproved, state)
	_, ok := s.sessions.Get(requester)
	s.False(ok)
	s.Zero(testutil.ToFloat64(s.metrics.PendingSessions))
}

func (s *EngineSuite) TestUnknownDNIDenies() {
	s.openSession(77)
	s.matcher.EXPECT().MatchColumn(gomock.Any(), roster.Current, gomock.Any()).
		Return(roster.Outcome{Kind: roster.NoMatch, Field: roster.FieldDNI}, nil)
	s.decider.EXPECT().Deny(gomock.Any(), chatID, requester).Return(nil).Times(1)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "no aparece en nuestra lista")
			return nil
		})
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 77).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "Denegado")
			s.Contains(text, "99999999Z")
			return 78, nil
		})
	s.expectAudit("denied", "dni")

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("99999999Z"))
	s.Require().NoError(err)
	s.Equal(dialog.StateDenied, state)
	s.Zero(s.sessions.Len())
}

func (s *EngineSuite) TestMalformedReplyRepromptsAndKeepsSession() {
	s.openSession(77)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "sin guiones ni espacios")
			return nil
		})

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("???"))
	s.Require().NoError(err)
	s.Equal(dialog.StateAwaitingDNI, state)
	s.Equal(1, s.sessions.Len())
}

func (s *EngineSuite) TestMalformedReplyToUnreachableRequesterCloses() {
	s.openSession(77)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).
		Return(verify.ErrRecipientUnreachable)
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 77).Return(80, nil).Times(1)
	s.expectAudit("undeliverable", "")

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("1234-5678"))
	s.Require().NoError(err)
	s.Equal(dialog.StateUndeliverable, state)
	s.Zero(s.sessions.Len())
}

func (s *EngineSuite) TestReplyWithoutSessionIsNoop() {
	state, err := s.engine.HandleReply(context.Background(), s.privateReply("12345678A"))
	s.Require().NoError(err)
	s.Equal(dialog.StateNone, state)
}

func (s *EngineSuite) TestReplyOutsidePrivateChatIsIgnored() {
	s.openSession(77)

	state, err := s.engine.HandleReply(context.Background(),
		verify.Reply{ChatID: chatID, Private: false, UserID: requester, Text: "12345678A"})
	s.Require().NoError(err)
	s.Equal(dialog.StateAwaitingDNI, state)
	s.Equal(1, s.sessions.Len())
}

func (s *EngineSuite) TestReplyAfterTerminalIsNoop() {
	s.openSession(77)
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(single(ana, roster.FieldDNI), nil).Times(1)
	s.decider.EXPECT().Admit(gomock.Any(), chatID, requester).Return(nil).Times(1)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).Return(nil).Times(1)
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 77).Return(78, nil).Times(1)
	s.expectAudit("approved", "dni")

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("12345678A"))
	s.Require().NoError(err)
	s.Equal(dialog.StateApproved, state)

	state, err = s.engine.HandleReply(context.Background(), s.privateReply("12345678A"))
	s.Require().NoError(err)
	s.Equal(dialog.StateNone, state)
}

func (s *EngineSuite) TestRosterOutageKeepsSession() {
	s.openSession(77)
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(roster.Outcome{}, fmt.Errorf("%w: current: 503", roster.ErrSourceUnavailable))
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ int64, text string) error {
			s.Contains(text, "no puedo consultar la lista")
			return nil
		})

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("12345678A"))
	s.ErrorIs(err, roster.ErrSourceUnavailable)
	s.Equal(dialog.StateAwaitingDNI, state)
	s.Equal(1, s.sessions.Len())
}

func (s *EngineSuite) TestAdmitFailureAbortsSession() {
	s.openSession(77)
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(single(ana, roster.FieldDNI), nil)
	boom := errors.New("Bad Request: HIDE_REQUESTER_MISSING")
	s.decider.EXPECT().Admit(gomock.Any(), chatID, requester).Return(boom)
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 77).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "Telegram no ha aceptado la aprobación")
			return 78, nil
		})
	s.expectAudit("aborted", "")

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("12345678A"))
	s.ErrorIs(err, boom)
	s.Equal(dialog.StateAborted, state)
	s.Zero(s.sessions.Len())
}

func (s *EngineSuite) TestUnthreadedNoteNamesRequester() {
	s.openSession(0)
	s.matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(roster.Outcome{Kind: roster.NoMatch}, nil)
	s.decider.EXPECT().Deny(gomock.Any(), chatID, requester).Return(nil)
	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).Return(nil)
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 0).DoAndReturn(
		func(_ context.Context, text string, _ int) (int, error) {
			s.Contains(text, "Ana García López (@ana_g) · «Socios FPU»")
			return 0, errors.New("chat not found")
		})
	s.expectAudit("denied", "dni")

	state, err := s.engine.HandleReply(context.Background(), s.privateReply("00000000T"))
	s.Require().NoError(err)
	s.Equal(dialog.StateDenied, state)
}

func (s *EngineSuite) TestExpireSessionsDropsStaleOnly() {
	s.openSession(77)
	fresh := dialog.Session{
		Key: 7, UserID: 7, ChatID: chatID, State: dialog.StateAwaitingDNI,
		CreatedAt: s.now.Add(50 * time.Minute),
	}
	s.Require().NoError(s.sessions.Put(fresh))
	s.now = s.now.Add(time.Hour + time.Minute)

	s.messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).
		Return(verify.ErrRecipientUnreachable)
	s.decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 77).Return(90, nil).Times(1)
	s.expectAudit("expired", "")

	n := s.engine.ExpireSessions(context.Background(), time.Hour)
	s.Equal(1, n)
	_, ok := s.sessions.Get(requester)
	s.False(ok)
	_, ok = s.sessions.Get(7)
	s.True(ok)
	s.Equal(1, s.engine.Pending())
}

func TestConcurrentRepliesDecideOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	matcher := mocks.NewMockMatcher(ctrl)
	messenger := mocks.NewMockMessenger(ctrl)
	decider := mocks.NewMockDecider(ctrl)
	sessions := dialog.NewRegistry()

	require.NoError(t, sessions.Put(dialog.Session{
		Key: requester, UserID: requester, ChatID: chatID, State: dialog.StateAwaitingDNI, AdminMsgID: 1,
	}))

	matcher.EXPECT().MatchColumn(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(single(ana, roster.FieldDNI), nil).Times(1)
	decider.EXPECT().Admit(gomock.Any(), chatID, requester).Return(nil).Times(1)
	messenger.EXPECT().SendPrivate(gomock.Any(), requester, gomock.Any()).Return(nil).Times(1)
	decider.EXPECT().NotifyAdmins(gomock.Any(), gomock.Any(), 1).Return(2, nil).Times(1)

	engine, err := verify.New(matcher, messenger, decider, sessions)
	require.NoError(t, err)

	const replies = 8
	states := make([]dialog.State, replies)
	var wg sync.WaitGroup
	for i := range replies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			states[i], _ = engine.HandleReply(context.Background(),
				verify.Reply{ChatID: requester, Private: true, UserID: requester, Text: "12345678A"})
		}()
	}
	wg.Wait()

	approved := 0
	for _, st := range states {
		if st == dialog.StateApproved {
			approved++
		} else {
			assert.Equal(t, dialog.StateNone, st)
		}
	}
	assert.Equal(t, 1, approved)
	assert.Zero(t, sessions.Len())
}
