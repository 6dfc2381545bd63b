package relay

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/hub"
	"github.com/Abhishekhack2909/StreamVerse/internal/identity"
	"github.com/Abhishekhack2909/StreamVerse/internal/registry"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

type relayService struct {
	registry *registry.Registry
	msgr     Messenger
	resolver identity.Resolver
	life     Lifecycle
	locks    *sessionLocks
}

// New creates the relay service.
func New(reg *registry.Registry, msgr Messenger, resolver identity.Resolver, life Lifecycle) Relay {
	return &relayService{
		registry: reg,
		msgr:     msgr,
		resolver: resolver,
		life:     life,
		locks:    newSessionLocks(),
	}
}

func (s *relayService) HandleAuth(ctx context.Context, c *hub.Client, token string) error {
	caller, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		c.SendMessage(mustEnvelope(domain.MsgTypeAuthResult, "", domain.AuthResultPayload{
			Success: false,
			Message: "invalid credential",
		}))
		return err
	}

	c.State.Authenticate(caller.UserID, caller.DisplayName)

	return c.SendMessage(mustEnvelope(domain.MsgTypeAuthResult, "", domain.AuthResultPayload{
		Success:     true,
		UserID:      caller.UserID,
		DisplayName: caller.DisplayName,
	}))
}

func (s *relayService) HandleStartSession(ctx context.Context, c *hub.Client, p domain.StartSessionPayload) error {
	if !c.State.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeUnauthenticated, "not authenticated"))
	}

	mode := domain.Mode(p.Mode)
	if !mode.Valid() {
		return c.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeBadRequest, "unknown session mode"))
	}

	// A channel holds one session at a time.
	if current, _ := c.State.Membership(); current != "" {
		s.leave(ctx, c, current, true)
	}

	userID, displayName := c.State.Identity()

	sessionID, err := s.registry.CreateSession(mode, userID)
	if err != nil {
		return c.SendMessage(domain.NewErrorEnvelope("", domain.ErrorCode(err), err.Error()))
	}

	title := p.Title
	if title == "" {
		title = displayName + "'s session"
	}
	s.life.SessionStarted(sessionID, userID, title, string(mode), p.RecordID)

	s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID)

	participantID := uuid.New().String()
	_, err = s.registry.Join(sessionID, domain.Participant{
		ID:          participantID,
		DisplayName: displayName,
		Role:        domain.RoleHost,
		ChannelID:   c.ID,
	})
	if err != nil {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrorCode(err), err.Error()))
	}

	s.msgr.JoinSession(c, sessionID)
	c.State.EnterSession(sessionID, participantID, true)
	s.life.ParticipantJoined(sessionID, participantID)

	c.SendMessage(mustEnvelope(domain.MsgTypeSessionCreated, sessionID, domain.SessionCreatedPayload{
		SessionID: sessionID,
		Mode:      string(mode),
	}))

	logger := pkglog.L()
	logger.Info().
		Str(pkglog.FieldSessionID, sessionID).
		Str(pkglog.FieldUserID, userID).
		Str("mode", string(mode)).
		Msg("session started")

	return c.SendMessage(mustEnvelope(domain.MsgTypeSnapshot, sessionID, domain.SnapshotPayload{
		SelfID:       participantID,
		Mode:         string(mode),
		Participants: []domain.ParticipantInfo{},
	}))
}

func (s *relayService) HandleJoin(ctx context.Context, c *hub.Client, sessionID string) error {
	if !c.State.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrCodeUnauthenticated, "not authenticated"))
	}

	info, err := s.registry.Get(sessionID)
	if err != nil {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrorCode(err), err.Error()))
	}
	if info.Ended() {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrCodeSessionEnded, "session has ended"))
	}

	if current, _ := c.State.Membership(); current != "" {
		s.leave(ctx, c, current, true)
	}

	userID, displayName := c.State.Identity()

	role := domain.RoleGuest
	if userID == info.OwnerID {
		role = domain.RoleHost
	}

	s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID)

	participantID := uuid.New().String()
	joiner := domain.Participant{
		ID:          participantID,
		DisplayName: displayName,
		Role:        role,
		ChannelID:   c.ID,
	}

	snapshot, err := s.registry.Join(sessionID, joiner)
	if err != nil {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrorCode(err), err.Error()))
	}

	s.msgr.JoinSession(c, sessionID)
	c.State.EnterSession(sessionID, participantID, role == domain.RoleHost)
	s.life.ParticipantJoined(sessionID, participantID)

	// Everyone already present learns about the joiner; the joiner gets the
	// snapshot without itself. In mesh mode the existing side initiates the
	// offer, so this ordering is what kicks off negotiation.
	s.msgr.BroadcastToSession(sessionID, mustEnvelope(domain.MsgTypeParticipantJoin, sessionID, domain.PresencePayload{
		Participant:  joiner.Info(),
		Participants: domain.ParticipantInfos(snapshot),
	}), c.ID)

	others := make([]domain.ParticipantInfo, 0, len(snapshot)-1)
	for _, p := range snapshot {
		if p.ID != participantID {
			others = append(others, p.Info())
		}
	}

	logger := pkglog.L()
	logger.Info().
		Str(pkglog.FieldSessionID, sessionID).
		Str(pkglog.FieldParticipantID, participantID).
		Str(pkglog.FieldUserID, userID).
		Msg("participant joined")

	return c.SendMessage(mustEnvelope(domain.MsgTypeSnapshot, sessionID, domain.SnapshotPayload{
		SelfID:       participantID,
		Mode:         string(info.Mode),
		Participants: others,
	}))
}

func (s *relayService) HandleLeave(ctx context.Context, c *hub.Client, sessionID string) error {
	current, _ := c.State.Membership()
	if current != sessionID {
		return nil
	}
	s.leave(ctx, c, sessionID, true)
	return nil
}

func (s *relayService) HandleEnd(ctx context.Context, c *hub.Client, sessionID string) error {
	if !c.State.IsAuthenticated() {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrCodeUnauthenticated, "not authenticated"))
	}

	userID, _ := c.State.Identity()

	s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID)

	if err := s.registry.End(sessionID, userID); err != nil {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrorCode(err), err.Error()))
	}

	s.msgr.CloseSession(sessionID, mustEnvelope(domain.MsgTypeSessionEnded, sessionID, domain.SessionEndedPayload{
		SessionID: sessionID,
		Reason:    "ended",
	}), "")

	if current, _ := c.State.Membership(); current == sessionID {
		s.msgr.LeaveSession(c, sessionID)
		c.State.ExitSession()
	}

	s.life.SessionEnded(sessionID, userID, "explicit")

	logger := pkglog.L()
	logger.Info().
		Str(pkglog.FieldSessionID, sessionID).
		Str(pkglog.FieldUserID, userID).
		Msg("session ended by owner")

	return nil
}

func (s *relayService) HandleSignal(ctx context.Context, c *hub.Client, env *domain.Envelope) error {
	sessionID, participantID := c.State.Membership()
	if sessionID == "" || sessionID != env.SessionID {
		return c.SendMessage(domain.NewErrorEnvelope(env.SessionID, domain.ErrCodeBadRequest, "not a member of this session"))
	}

	target, ok := s.registry.FindParticipant(sessionID, env.TargetID)
	if !ok {
		// The target already left. Negotiation races are normal; drop.
		logger := pkglog.L()
		logger.Debug().
			Str(pkglog.FieldSessionID, sessionID).
			Str(pkglog.FieldPeerID, env.TargetID).
			Str(pkglog.FieldMessageType, env.Type).
			Msg("dropping signal for absent target")
		return nil
	}

	return s.msgr.SendToChannel(target.ChannelID, mustEnvelope(env.Type, sessionID, domain.SignalPayload{
		SenderID: participantID,
		Body:     env.Payload,
	}))
}

func (s *relayService) HandleChat(ctx context.Context, c *hub.Client, sessionID string, p domain.ChatPayload) error {
	current, participantID := c.State.Membership()
	if current != sessionID {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrCodeBadRequest, "not a member of this session"))
	}

	// The channel's own view can lag a termination it has not consumed yet.
	// The registry is the authority.
	info, err := s.registry.Get(sessionID)
	if err != nil {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrorCode(err), err.Error()))
	}
	if info.Ended() {
		return c.SendMessage(domain.NewErrorEnvelope(sessionID, domain.ErrCodeSessionEnded, "session has ended"))
	}

	_, displayName := c.State.Identity()

	return s.msgr.BroadcastToSession(sessionID, mustEnvelope(domain.MsgTypeChat, sessionID, domain.ChatBroadcastPayload{
		ID:          uuid.New().String(),
		SenderID:    participantID,
		DisplayName: displayName,
		Text:        p.Text,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}), c.ID)
}

// HandleDisconnect runs when a channel's transport closes. An owner dropping
// without a graceful end takes the session down with it.
func (s *relayService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	sessionID, _ := c.State.Membership()
	if sessionID == "" {
		return nil
	}

	if c.State.Owner() {
		userID, _ := c.State.Identity()

		s.locks.lock(sessionID)
		defer s.locks.unlock(sessionID)

		if err := s.registry.End(sessionID, userID); err != nil {
			return nil // already terminal; nothing to announce
		}

		s.msgr.CloseSession(sessionID, mustEnvelope(domain.MsgTypeSessionEnded, sessionID, domain.SessionEndedPayload{
			SessionID: sessionID,
			Reason:    "owner-disconnected",
		}), c.ID)

		c.State.ExitSession()
		s.life.SessionEnded(sessionID, userID, "disconnect")

		logger := pkglog.L()
		logger.Info().
			Str(pkglog.FieldSessionID, sessionID).
			Str(pkglog.FieldUserID, userID).
			Msg("session ended, owner disconnected")
		return nil
	}

	s.leave(ctx, c, sessionID, false)
	return nil
}

// leave commits a departure and fans out the result. Fan-out happens under
// the session lock so every member observes membership changes in commit
// order.
func (s *relayService) leave(ctx context.Context, c *hub.Client, sessionID string, graceful bool) {
	s.locks.lock(sessionID)
	defer s.locks.unlock(sessionID)

	_, participantID := c.State.Membership()

	res := s.registry.Leave(sessionID, participantID)

	s.msgr.LeaveSession(c, sessionID)
	c.State.ExitSession()

	if !res.Left {
		return
	}

	s.life.ParticipantLeft(sessionID, participantID)

	s.msgr.BroadcastToSession(sessionID, mustEnvelope(domain.MsgTypeParticipantLeft, sessionID, domain.PresencePayload{
		Participant:  domain.ParticipantInfo{ID: participantID},
		Participants: domain.ParticipantInfos(res.Remaining),
	}), c.ID)

	if res.Ended {
		s.msgr.CloseSession(sessionID, mustEnvelope(domain.MsgTypeSessionEnded, sessionID, domain.SessionEndedPayload{
			SessionID: sessionID,
			Reason:    string(res.Reason),
		}), c.ID)

		reason := kafkaReason(res.Reason, graceful)
		userID, _ := c.State.Identity()
		s.life.SessionEnded(sessionID, userID, reason)
	}
}

func kafkaReason(r registry.EndReason, graceful bool) string {
	if r == registry.ReasonEmpty {
		return "empty"
	}
	if graceful {
		return "explicit"
	}
	return "disconnect"
}

// mustEnvelope wraps payloads whose marshalling cannot fail.
func mustEnvelope(msgType, sessionID string, payload interface{}) *domain.Envelope {
	env, err := domain.NewEnvelope(msgType, sessionID, payload)
	if err != nil {
		panic(err)
	}
	return env
}
