package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/hub"
	"github.com/Abhishekhack2909/StreamVerse/internal/identity"
	"github.com/Abhishekhack2909/StreamVerse/internal/registry"
)

type broadcastCall struct {
	sessionID string
	envelope  *domain.Envelope
	exclude   string
}

type sendCall struct {
	channelID string
	envelope  *domain.Envelope
}

// fakeMessenger records deliveries instead of pushing them over websockets.
type fakeMessenger struct {
	mu         sync.Mutex
	joins      []string
	leaves     []string
	broadcasts []broadcastCall
	sends      []sendCall
	closed     []string
}

func (f *fakeMessenger) JoinSession(client *hub.Client, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, sessionID)
}

func (f *fakeMessenger) LeaveSession(client *hub.Client, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, sessionID)
}

func (f *fakeMessenger) BroadcastToSession(sessionID string, message interface{}, exclude string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcastCall{sessionID, message.(*domain.Envelope), exclude})
	return nil
}

func (f *fakeMessenger) CloseSession(sessionID string, message interface{}, exclude string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcastCall{sessionID, message.(*domain.Envelope), exclude})
	f.closed = append(f.closed, sessionID)
	return nil
}

func (f *fakeMessenger) SendToChannel(channelID string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sendCall{channelID, message.(*domain.Envelope)})
	return nil
}

func (f *fakeMessenger) broadcastsOfType(msgType string) []broadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcastCall
	for _, b := range f.broadcasts {
		if b.envelope.Type == msgType {
			out = append(out, b)
		}
	}
	return out
}

type lifecycleEvent struct {
	kind      string
	sessionID string
	detail    string
}

type fakeLifecycle struct {
	mu        sync.Mutex
	events    []lifecycleEvent
	recordIDs []string
}

func (f *fakeLifecycle) SessionStarted(sessionID, ownerID, title, mode, recordID string) {
	f.record("started", sessionID, mode)
	f.mu.Lock()
	f.recordIDs = append(f.recordIDs, recordID)
	f.mu.Unlock()
}

func (f *fakeLifecycle) ParticipantJoined(sessionID, participantID string) {
	f.record("joined", sessionID, participantID)
}

func (f *fakeLifecycle) ParticipantLeft(sessionID, participantID string) {
	f.record("left", sessionID, participantID)
}

func (f *fakeLifecycle) SessionEnded(sessionID, ownerID, reason string) {
	f.record("ended", sessionID, reason)
}

func (f *fakeLifecycle) record(kind, sessionID, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, lifecycleEvent{kind, sessionID, detail})
}

func (f *fakeLifecycle) ofKind(kind string) []lifecycleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []lifecycleEvent
	for _, e := range f.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// fakeResolver accepts tokens of the form "user:name".
type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, credential string) (identity.Caller, error) {
	switch credential {
	case "alice-token":
		return identity.Caller{UserID: "alice", DisplayName: "Alice"}, nil
	case "bob-token":
		return identity.Caller{UserID: "bob", DisplayName: "Bob"}, nil
	default:
		return identity.Caller{}, domain.ErrUnauthenticated
	}
}

func newTestClient(id string) *hub.Client {
	return &hub.Client{
		ID:    id,
		Send:  make(chan []byte, 64),
		State: domain.NewConnState(id),
	}
}

func newTestRelay() (Relay, *fakeMessenger, *fakeLifecycle) {
	msgr := &fakeMessenger{}
	life := &fakeLifecycle{}
	r := New(registry.New(), msgr, fakeResolver{}, life)
	return r, msgr, life
}

// nextEnvelope pops the next queued message for the client.
func nextEnvelope(t *testing.T, c *hub.Client) *domain.Envelope {
	t.Helper()
	select {
	case data := <-c.Send:
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return &env
	default:
		t.Fatal("no message queued for client")
		return nil
	}
}

func authAndStart(t *testing.T, r Relay, c *hub.Client, token string, mode domain.Mode) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.HandleAuth(ctx, c, token))
	env := nextEnvelope(t, c)
	require.Equal(t, domain.MsgTypeAuthResult, env.Type)

	require.NoError(t, r.HandleStartSession(ctx, c, domain.StartSessionPayload{Mode: string(mode)}))

	env = nextEnvelope(t, c)
	require.Equal(t, domain.MsgTypeSessionCreated, env.Type)
	var created domain.SessionCreatedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &created))

	env = nextEnvelope(t, c)
	require.Equal(t, domain.MsgTypeSnapshot, env.Type)

	return created.SessionID
}

func authAndJoin(t *testing.T, r Relay, c *hub.Client, token, sessionID string) domain.SnapshotPayload {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.HandleAuth(ctx, c, token))
	env := nextEnvelope(t, c)
	require.Equal(t, domain.MsgTypeAuthResult, env.Type)

	require.NoError(t, r.HandleJoin(ctx, c, sessionID))
	env = nextEnvelope(t, c)
	require.Equal(t, domain.MsgTypeSnapshot, env.Type)

	var snap domain.SnapshotPayload
	require.NoError(t, json.Unmarshal(env.Payload, &snap))
	return snap
}

func TestRelay_Auth_Rejects_Bad_Token(t *testing.T) {
	req := require.New(t)
	r, _, _ := newTestRelay()
	c := newTestClient("ch-1")

	err := r.HandleAuth(context.Background(), c, "garbage")
	req.Error(err)

	env := nextEnvelope(t, c)
	req.Equal(domain.MsgTypeAuthResult, env.Type)

	var p domain.AuthResultPayload
	req.NoError(json.Unmarshal(env.Payload, &p))
	req.False(p.Success)
	req.False(c.State.IsAuthenticated())
}

func TestRelay_StartSession_Requires_Auth(t *testing.T) {
	req := require.New(t)
	r, _, _ := newTestRelay()
	c := newTestClient("ch-1")

	req.NoError(r.HandleStartSession(context.Background(), c, domain.StartSessionPayload{Mode: "mesh"}))

	env := nextEnvelope(t, c)
	req.Equal(domain.MsgTypeError, env.Type)

	var p domain.ErrorPayload
	req.NoError(json.Unmarshal(env.Payload, &p))
	req.Equal(domain.ErrCodeUnauthenticated, p.Code)
}

func TestRelay_StartSession_Gives_Owner_Empty_Snapshot(t *testing.T) {
	req := require.New(t)
	r, _, life := newTestRelay()
	c := newTestClient("ch-1")
	ctx := context.Background()

	req.NoError(r.HandleAuth(ctx, c, "alice-token"))
	nextEnvelope(t, c) // auth-result

	req.NoError(r.HandleStartSession(ctx, c, domain.StartSessionPayload{Mode: "broadcast", Title: "my stream"}))

	env := nextEnvelope(t, c)
	req.Equal(domain.MsgTypeSessionCreated, env.Type)

	env = nextEnvelope(t, c)
	req.Equal(domain.MsgTypeSnapshot, env.Type)
	var snap domain.SnapshotPayload
	req.NoError(json.Unmarshal(env.Payload, &snap))
	req.NotEmpty(snap.SelfID)
	req.Equal("broadcast", snap.Mode)
	req.Empty(snap.Participants)

	req.Len(life.ofKind("started"), 1)
	req.Len(life.ofKind("joined"), 1)

	sessionID, participantID := c.State.Membership()
	req.NotEmpty(sessionID)
	req.Equal(snap.SelfID, participantID)
	req.True(c.State.Owner())
}

func TestRelay_StartSession_Forwards_Record_Binding(t *testing.T) {
	req := require.New(t)
	r, _, life := newTestRelay()
	ctx := context.Background()

	c := newTestClient("ch-1")
	req.NoError(r.HandleAuth(ctx, c, "alice-token"))
	nextEnvelope(t, c)

	req.NoError(r.HandleStartSession(ctx, c, domain.StartSessionPayload{
		Mode:     "broadcast",
		Title:    "announced stream",
		RecordID: "rec-42",
	}))

	req.Equal([]string{"rec-42"}, life.recordIDs)
}

func TestRelay_Join_Snapshot_Excludes_Self(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	snap := authAndJoin(t, r, guest, "bob-token", sessionID)

	_, hostPID := host.State.Membership()
	_, guestPID := guest.State.Membership()
	req.Equal(guestPID, snap.SelfID)
	req.Len(snap.Participants, 1)
	req.Equal(hostPID, snap.Participants[0].ID)

	// Existing members heard about the joiner, excluding the joiner itself
	joins := msgr.broadcastsOfType(domain.MsgTypeParticipantJoin)
	req.Len(joins, 1)
	req.Equal("ch-guest", joins[0].exclude)

	var presence domain.PresencePayload
	req.NoError(json.Unmarshal(joins[0].envelope.Payload, &presence))
	req.Equal(guestPID, presence.Participant.ID)
	req.Len(presence.Participants, 2)
}

func TestRelay_Join_After_End_Reports_Session_Ended(t *testing.T) {
	req := require.New(t)
	r, _, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)
	req.NoError(r.HandleEnd(ctx, host, sessionID))

	late := newTestClient("ch-late")
	req.NoError(r.HandleAuth(ctx, late, "bob-token"))
	nextEnvelope(t, late)

	req.NoError(r.HandleJoin(ctx, late, sessionID))
	env := nextEnvelope(t, late)
	req.Equal(domain.MsgTypeError, env.Type)

	var p domain.ErrorPayload
	req.NoError(json.Unmarshal(env.Payload, &p))
	req.Equal(domain.ErrCodeSessionEnded, p.Code)
}

func TestRelay_Join_Unknown_Session_Reports_Not_Found(t *testing.T) {
	req := require.New(t)
	r, _, _ := newTestRelay()
	ctx := context.Background()

	c := newTestClient("ch-1")
	req.NoError(r.HandleAuth(ctx, c, "bob-token"))
	nextEnvelope(t, c)

	req.NoError(r.HandleJoin(ctx, c, "no-such-session"))
	env := nextEnvelope(t, c)
	req.Equal(domain.MsgTypeError, env.Type)

	var p domain.ErrorPayload
	req.NoError(json.Unmarshal(env.Payload, &p))
	req.Equal(domain.ErrCodeSessionNotFound, p.Code)
}

func TestRelay_Signal_Delivered_With_Sender_Identity(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)

	_, hostPID := host.State.Membership()
	_, guestPID := guest.State.Membership()

	sdp, _ := json.Marshal(map[string]string{"type": "offer", "sdp": "v=0"})
	req.NoError(r.HandleSignal(ctx, host, &domain.Envelope{
		Type:      domain.MsgTypeOffer,
		SessionID: sessionID,
		TargetID:  guestPID,
		Payload:   sdp,
	}))

	req.Len(msgr.sends, 1)
	req.Equal("ch-guest", msgr.sends[0].channelID)
	req.Equal(domain.MsgTypeOffer, msgr.sends[0].envelope.Type)

	var p domain.SignalPayload
	req.NoError(json.Unmarshal(msgr.sends[0].envelope.Payload, &p))
	req.Equal(hostPID, p.SenderID)
	req.JSONEq(string(sdp), string(p.Body))
}

func TestRelay_Signal_To_Absent_Target_Is_Dropped(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	req.NoError(r.HandleSignal(ctx, host, &domain.Envelope{
		Type:      domain.MsgTypeICECandidate,
		SessionID: sessionID,
		TargetID:  "long-gone",
		Payload:   json.RawMessage(`{}`),
	}))

	// No delivery and no error back to the sender
	req.Empty(msgr.sends)
	select {
	case data := <-host.Send:
		t.Fatalf("unexpected message to sender: %s", data)
	default:
	}
}

func TestRelay_Signal_From_Non_Member_Rejected(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	outsider := newTestClient("ch-outsider")
	req.NoError(r.HandleAuth(ctx, outsider, "bob-token"))
	nextEnvelope(t, outsider)

	req.NoError(r.HandleSignal(ctx, outsider, &domain.Envelope{
		Type:      domain.MsgTypeOffer,
		SessionID: sessionID,
		TargetID:  "whoever",
		Payload:   json.RawMessage(`{}`),
	}))

	req.Empty(msgr.sends)
	env := nextEnvelope(t, outsider)
	req.Equal(domain.MsgTypeError, env.Type)
}

func TestRelay_Chat_Excludes_Sender(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)

	req.NoError(r.HandleChat(ctx, guest, sessionID, domain.ChatPayload{Text: "hello"}))

	chats := msgr.broadcastsOfType(domain.MsgTypeChat)
	req.Len(chats, 1)
	req.Equal("ch-guest", chats[0].exclude)

	var p domain.ChatBroadcastPayload
	req.NoError(json.Unmarshal(chats[0].envelope.Payload, &p))
	req.Equal("hello", p.Text)
	req.Equal("Bob", p.DisplayName)
	req.NotEmpty(p.ID)
}

func TestRelay_Chat_After_End_Is_Rejected(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)

	req.NoError(r.HandleEnd(ctx, host, sessionID))

	// The guest has not consumed session-ended yet and still believes it is
	// a member. The registry says otherwise.
	req.NoError(r.HandleChat(ctx, guest, sessionID, domain.ChatPayload{Text: "anyone there?"}))

	req.Empty(msgr.broadcastsOfType(domain.MsgTypeChat))
	env := nextEnvelope(t, guest)
	req.Equal(domain.MsgTypeError, env.Type)

	var p domain.ErrorPayload
	req.NoError(json.Unmarshal(env.Payload, &p))
	req.Equal(domain.ErrCodeSessionEnded, p.Code)
}

func TestRelay_Guest_Leave_Broadcasts_Departure(t *testing.T) {
	req := require.New(t)
	r, msgr, life := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)
	_, guestPID := guest.State.Membership()

	req.NoError(r.HandleLeave(ctx, guest, sessionID))

	lefts := msgr.broadcastsOfType(domain.MsgTypeParticipantLeft)
	req.Len(lefts, 1)
	var p domain.PresencePayload
	req.NoError(json.Unmarshal(lefts[0].envelope.Payload, &p))
	req.Equal(guestPID, p.Participant.ID)
	req.Len(p.Participants, 1)

	req.Len(life.ofKind("left"), 1)
	req.Empty(msgr.broadcastsOfType(domain.MsgTypeSessionEnded))

	// Membership is cleared, so a second leave does nothing more
	req.NoError(r.HandleLeave(ctx, guest, sessionID))
	req.Len(msgr.broadcastsOfType(domain.MsgTypeParticipantLeft), 1)
}

func TestRelay_Broadcast_Host_Leave_Ends_Session(t *testing.T) {
	req := require.New(t)
	r, msgr, life := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeBroadcast)

	viewer := newTestClient("ch-viewer")
	authAndJoin(t, r, viewer, "bob-token", sessionID)

	req.NoError(r.HandleLeave(ctx, host, sessionID))

	ends := msgr.broadcastsOfType(domain.MsgTypeSessionEnded)
	req.Len(ends, 1)

	var p domain.SessionEndedPayload
	req.NoError(json.Unmarshal(ends[0].envelope.Payload, &p))
	req.Equal("owner-left", p.Reason)

	req.Len(life.ofKind("ended"), 1)
}

func TestRelay_End_Requires_Owner(t *testing.T) {
	req := require.New(t)
	r, _, _ := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)

	req.NoError(r.HandleEnd(ctx, guest, sessionID))
	env := nextEnvelope(t, guest)
	req.Equal(domain.MsgTypeError, env.Type)

	var p domain.ErrorPayload
	req.NoError(json.Unmarshal(env.Payload, &p))
	req.Equal(domain.ErrCodeNotAuthorized, p.Code)
}

func TestRelay_End_Notifies_Everyone(t *testing.T) {
	req := require.New(t)
	r, msgr, life := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)

	req.NoError(r.HandleEnd(ctx, host, sessionID))

	ends := msgr.broadcastsOfType(domain.MsgTypeSessionEnded)
	req.Len(ends, 1)
	// Nobody is excluded; the ender hears the confirmation too
	req.Equal("", ends[0].exclude)

	// The delivery set is gone with the session
	req.Equal([]string{sessionID}, msgr.closed)

	events := life.ofKind("ended")
	req.Len(events, 1)
	req.Equal("explicit", events[0].detail)

	sid, _ := host.State.Membership()
	req.Empty(sid)
}

func TestRelay_Owner_Disconnect_Ends_Session(t *testing.T) {
	req := require.New(t)
	r, msgr, life := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeBroadcast)

	viewer := newTestClient("ch-viewer")
	authAndJoin(t, r, viewer, "bob-token", sessionID)

	req.NoError(r.HandleDisconnect(ctx, host))

	ends := msgr.broadcastsOfType(domain.MsgTypeSessionEnded)
	req.Len(ends, 1)

	var p domain.SessionEndedPayload
	req.NoError(json.Unmarshal(ends[0].envelope.Payload, &p))
	req.Equal("owner-disconnected", p.Reason)

	events := life.ofKind("ended")
	req.Len(events, 1)
	req.Equal("disconnect", events[0].detail)
}

func TestRelay_Guest_Disconnect_Is_A_Leave(t *testing.T) {
	req := require.New(t)
	r, msgr, life := newTestRelay()
	ctx := context.Background()

	host := newTestClient("ch-host")
	sessionID := authAndStart(t, r, host, "alice-token", domain.ModeMesh)

	guest := newTestClient("ch-guest")
	authAndJoin(t, r, guest, "bob-token", sessionID)

	req.NoError(r.HandleDisconnect(ctx, guest))

	req.Len(msgr.broadcastsOfType(domain.MsgTypeParticipantLeft), 1)
	req.Empty(msgr.broadcastsOfType(domain.MsgTypeSessionEnded))
	req.Len(life.ofKind("left"), 1)
}

func TestRelay_Disconnect_Without_Session_Is_Noop(t *testing.T) {
	req := require.New(t)
	r, msgr, _ := newTestRelay()

	c := newTestClient("ch-idle")
	req.NoError(r.HandleDisconnect(context.Background(), c))
	req.Empty(msgr.broadcasts)
}
