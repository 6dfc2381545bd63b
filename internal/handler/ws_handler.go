package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/hub"
	"github.com/Abhishekhack2909/StreamVerse/internal/relay"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and dispatches envelopes to the relay.
type WSHandler struct {
	hub   *hub.Hub
	relay relay.Relay
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(h *hub.Hub, r relay.Relay) *WSHandler {
	return &WSHandler{
		hub:   h,
		relay: r,
	}
}

// HandleWebSocket upgrades the request and starts the client pumps.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := pkglog.Ctx(r.Context())
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn)
	client.SetDisconnectHandler(func(c *hub.Client) {
		if err := h.relay.HandleDisconnect(context.Background(), c); err != nil {
			l := pkglog.L()
			l.Error().Err(err).Str(pkglog.FieldChannelID, c.ID).Msg("disconnect handling failed")
		}
	})

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		client.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeBadRequest, "invalid message format"))
		return
	}

	ctx := context.Background()
	l := pkglog.L()

	switch env.Type {
	case domain.MsgTypeAuth:
		var p domain.AuthPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeBadRequest, "invalid auth payload"))
			return
		}
		if err := h.relay.HandleAuth(ctx, client, p.Token); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldChannelID, client.ID).Msg("auth failed")
		}

	case domain.MsgTypeStartSession:
		var p domain.StartSessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeBadRequest, "invalid start-session payload"))
			return
		}
		if err := h.relay.HandleStartSession(ctx, client, p); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldChannelID, client.ID).Msg("start session failed")
		}

	case domain.MsgTypeJoinSession:
		if env.SessionID == "" {
			client.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeBadRequest, "missing session id"))
			return
		}
		if err := h.relay.HandleJoin(ctx, client, env.SessionID); err != nil {
			l.Warn().Err(err).
				Str(pkglog.FieldChannelID, client.ID).
				Str(pkglog.FieldSessionID, env.SessionID).
				Msg("join session failed")
		}

	case domain.MsgTypeLeaveSession:
		if err := h.relay.HandleLeave(ctx, client, env.SessionID); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldChannelID, client.ID).Msg("leave session failed")
		}

	case domain.MsgTypeEndSession:
		if env.SessionID == "" {
			client.SendMessage(domain.NewErrorEnvelope("", domain.ErrCodeBadRequest, "missing session id"))
			return
		}
		if err := h.relay.HandleEnd(ctx, client, env.SessionID); err != nil {
			l.Warn().Err(err).
				Str(pkglog.FieldChannelID, client.ID).
				Str(pkglog.FieldSessionID, env.SessionID).
				Msg("end session failed")
		}

	case domain.MsgTypeOffer, domain.MsgTypeAnswer, domain.MsgTypeICECandidate:
		if env.TargetID == "" {
			client.SendMessage(domain.NewErrorEnvelope(env.SessionID, domain.ErrCodeBadRequest, "missing target id"))
			return
		}
		if err := h.relay.HandleSignal(ctx, client, &env); err != nil {
			l.Warn().Err(err).
				Str(pkglog.FieldChannelID, client.ID).
				Str(pkglog.FieldMessageType, env.Type).
				Msg("signal relay failed")
		}

	case domain.MsgTypeChat:
		var p domain.ChatPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			client.SendMessage(domain.NewErrorEnvelope(env.SessionID, domain.ErrCodeBadRequest, "invalid chat payload"))
			return
		}
		if err := h.relay.HandleChat(ctx, client, env.SessionID, p); err != nil {
			l.Warn().Err(err).Str(pkglog.FieldChannelID, client.ID).Msg("chat failed")
		}

	case domain.MsgTypePing:
		client.SendMessage(&domain.Envelope{Type: domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorEnvelope(env.SessionID, domain.ErrCodeBadRequest, "unknown message type"))
	}
}

// RegisterRoutes registers the websocket endpoint.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/live/ws", h.HandleWebSocket)
}
