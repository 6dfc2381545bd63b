// live-agent is a headless session participant. It connects to the live
// service, authenticates, starts or joins a session and negotiates peer
// links, which makes it useful as a soak client and as a relay target for
// manual testing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	"github.com/Abhishekhack2909/StreamVerse/internal/peerlink"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

type agentConfig struct {
	ServerURL   string
	Token       string
	SessionID   string
	Mode        string
	Title       string
	STUNServers []string
}

func loadConfig() agentConfig {
	v := viper.New()
	v.SetDefault("server_url", "ws://localhost:8084/live/ws")
	v.SetDefault("mode", "mesh")
	v.SetDefault("title", "agent session")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})

	v.BindEnv("server_url", "AGENT_SERVER_URL")
	v.BindEnv("token", "AGENT_TOKEN")
	v.BindEnv("session_id", "AGENT_SESSION_ID")
	v.BindEnv("mode", "AGENT_MODE")
	v.BindEnv("title", "AGENT_TITLE")

	return agentConfig{
		ServerURL:   v.GetString("server_url"),
		Token:       v.GetString("token"),
		SessionID:   v.GetString("session_id"),
		Mode:        v.GetString("mode"),
		Title:       v.GetString("title"),
		STUNServers: v.GetStringSlice("stun_servers"),
	}
}

// wsSignaler sends negotiation envelopes over the shared connection. The
// gorilla connection allows one concurrent writer, hence the mutex.
type wsSignaler struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

func (s *wsSignaler) send(env *domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(env)
}

func (s *wsSignaler) setSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
}

func (s *wsSignaler) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *wsSignaler) signal(msgType, peerID string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.send(&domain.Envelope{
		Type:      msgType,
		SessionID: s.session(),
		TargetID:  peerID,
		Payload:   payload,
	})
}

func (s *wsSignaler) SendOffer(peerID string, desc webrtc.SessionDescription) error {
	return s.signal(domain.MsgTypeOffer, peerID, desc)
}

func (s *wsSignaler) SendAnswer(peerID string, desc webrtc.SessionDescription) error {
	return s.signal(domain.MsgTypeAnswer, peerID, desc)
}

func (s *wsSignaler) SendCandidate(peerID string, cand webrtc.ICECandidateInit) error {
	return s.signal(domain.MsgTypeICECandidate, peerID, cand)
}

const (
	frameInterval  = 100 * time.Millisecond
	rotateInterval = 45 * time.Second
)

// mediaSource feeds synthetic VP8 samples into the outgoing video track, so
// negotiated links carry RTP instead of idling as silent peers. The payload
// is filler; soak receivers measure flow, not pictures.
type mediaSource struct {
	mu    sync.Mutex
	track *webrtc.TrackLocalStaticSample
}

func newMediaSource() (*mediaSource, error) {
	track, err := newVideoTrack()
	if err != nil {
		return nil, err
	}
	return &mediaSource{track: track}, nil
}

func newVideoTrack() (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "agent",
	)
}

func (m *mediaSource) current() *webrtc.TrackLocalStaticSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track
}

// pump writes a frame per tick. Writes to a track with no bound sender are
// no-ops, so pumping before negotiation completes is harmless.
func (m *mediaSource) pump(ctx context.Context) error {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	frame := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.current().WriteSample(media.Sample{Data: frame, Duration: frameInterval}); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
		}
	}
}

// swap replaces the outgoing track on every live link, the way a client
// switches between camera and screen-share feeds.
func (m *mediaSource) swap(mgr *peerlink.Manager) error {
	next, err := newVideoTrack()
	if err != nil {
		return err
	}
	if err := mgr.ReplaceVideoTrack(next); err != nil {
		return err
	}

	m.mu.Lock()
	m.track = next
	m.mu.Unlock()
	return nil
}

func (m *mediaSource) rotate(ctx context.Context, mgr *peerlink.Manager, logger zerolog.Logger) error {
	ticker := time.NewTicker(rotateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.swap(mgr); err != nil {
				logger.Warn().Err(err).Msg("track swap failed")
			}
		}
	}
}

func main() {
	cfg := loadConfig()

	pkglog.Init(pkglog.Config{Level: "info", ServiceName: "live-agent"})
	logger := pkglog.L()

	if cfg.Token == "" {
		logger.Fatal().Msg("AGENT_TOKEN is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.ServerURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Str("url", cfg.ServerURL).Msg("failed to connect")
	}
	defer conn.Close()

	signaler := &wsSignaler{conn: conn}

	mgr, err := peerlink.NewManager(cfg.STUNServers, signaler)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create peer manager")
	}
	defer mgr.CloseAll()

	mgr.OnTrack(func(peerID string, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Info().
			Str(pkglog.FieldPeerID, peerID).
			Str("codec", track.Codec().MimeType).
			Msg("receiving track")
	})
	mgr.OnDegraded(func(peerID string) {
		logger.Warn().Str(pkglog.FieldPeerID, peerID).Msg("peer link degraded")
	})

	source, err := newMediaSource()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create media source")
	}
	mgr.AddTrack(source.current())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return source.pump(ctx)
	})

	g.Go(func() error {
		return source.rotate(ctx, mgr, logger)
	})

	g.Go(func() error {
		return readLoop(ctx, conn, signaler, mgr, cfg, logger)
	})

	g.Go(func() error {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := signaler.send(&domain.Envelope{Type: domain.MsgTypePing}); err != nil {
					return err
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		if sid := signaler.session(); sid != "" {
			signaler.send(&domain.Envelope{Type: domain.MsgTypeLeaveSession, SessionID: sid})
		}
		conn.Close()
		return ctx.Err()
	})

	authPayload, _ := json.Marshal(domain.AuthPayload{Token: cfg.Token})
	if err := signaler.send(&domain.Envelope{Type: domain.MsgTypeAuth, Payload: authPayload}); err != nil {
		logger.Fatal().Err(err).Msg("failed to send auth")
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("agent exited")
		os.Exit(1)
	}
	logger.Info().Msg("agent stopped")
}

func readLoop(ctx context.Context, conn *websocket.Conn, signaler *wsSignaler, mgr *peerlink.Manager, cfg agentConfig, logger zerolog.Logger) error {
	var role domain.Role

	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		switch env.Type {
		case domain.MsgTypeAuthResult:
			var p domain.AuthResultPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return fmt.Errorf("decode auth result: %w", err)
			}
			if !p.Success {
				return fmt.Errorf("authentication rejected: %s", p.Message)
			}
			logger.Info().Str(pkglog.FieldUserID, p.UserID).Msg("authenticated")

			if cfg.SessionID != "" {
				role = domain.RoleGuest
				if err := signaler.send(&domain.Envelope{
					Type:      domain.MsgTypeJoinSession,
					SessionID: cfg.SessionID,
				}); err != nil {
					return err
				}
			} else {
				role = domain.RoleHost
				payload, _ := json.Marshal(domain.StartSessionPayload{Mode: cfg.Mode, Title: cfg.Title})
				if err := signaler.send(&domain.Envelope{
					Type:    domain.MsgTypeStartSession,
					Payload: payload,
				}); err != nil {
					return err
				}
			}

		case domain.MsgTypeSessionCreated:
			var p domain.SessionCreatedPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return fmt.Errorf("decode session created: %w", err)
			}
			signaler.setSession(p.SessionID)
			logger.Info().Str(pkglog.FieldSessionID, p.SessionID).Msg("session created")

		case domain.MsgTypeSnapshot:
			var p domain.SnapshotPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			signaler.setSession(env.SessionID)
			logger.Info().
				Str(pkglog.FieldSessionID, env.SessionID).
				Int("participants", len(p.Participants)).
				Msg("joined session")
			if err := mgr.SnapshotReceived(p.SelfID, domain.Mode(p.Mode), role, p.Participants); err != nil {
				return err
			}

		case domain.MsgTypeParticipantJoin:
			var p domain.PresencePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			logger.Info().Str(pkglog.FieldPeerID, p.Participant.ID).Msg("participant joined")
			if err := mgr.PeerJoined(p.Participant.ID); err != nil {
				logger.Warn().Err(err).Str(pkglog.FieldPeerID, p.Participant.ID).Msg("negotiation start failed")
			}

		case domain.MsgTypeParticipantLeft:
			var p domain.PresencePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			logger.Info().Str(pkglog.FieldPeerID, p.Participant.ID).Msg("participant left")
			mgr.PeerLeft(p.Participant.ID)

		case domain.MsgTypeOffer:
			sender, desc, err := decodeDescription(env.Payload)
			if err != nil {
				logger.Warn().Err(err).Msg("bad offer payload")
				continue
			}
			if err := mgr.HandleOffer(sender, desc); err != nil {
				logger.Warn().Err(err).Str(pkglog.FieldPeerID, sender).Msg("offer handling failed")
			}

		case domain.MsgTypeAnswer:
			sender, desc, err := decodeDescription(env.Payload)
			if err != nil {
				logger.Warn().Err(err).Msg("bad answer payload")
				continue
			}
			if err := mgr.HandleAnswer(sender, desc); err != nil {
				logger.Warn().Err(err).Str(pkglog.FieldPeerID, sender).Msg("answer handling failed")
			}

		case domain.MsgTypeICECandidate:
			var p domain.SignalPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				continue
			}
			var cand webrtc.ICECandidateInit
			if err := json.Unmarshal(p.Body, &cand); err != nil {
				continue
			}
			if err := mgr.HandleCandidate(p.SenderID, cand); err != nil {
				logger.Warn().Err(err).Str(pkglog.FieldPeerID, p.SenderID).Msg("candidate handling failed")
			}

		case domain.MsgTypeSessionEnded:
			var p domain.SessionEndedPayload
			json.Unmarshal(env.Payload, &p)
			logger.Info().
				Str(pkglog.FieldSessionID, env.SessionID).
				Str("reason", p.Reason).
				Msg("session ended")
			mgr.CloseAll()
			return nil

		case domain.MsgTypeError:
			var p domain.ErrorPayload
			json.Unmarshal(env.Payload, &p)
			logger.Warn().Str("code", p.Code).Str("message", p.Message).Msg("server rejected message")

		case domain.MsgTypeChat, domain.MsgTypePong:
			// uninteresting to the agent
		}
	}
}

func decodeDescription(payload json.RawMessage) (string, webrtc.SessionDescription, error) {
	var p domain.SignalPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", webrtc.SessionDescription{}, err
	}
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(p.Body, &desc); err != nil {
		return "", webrtc.SessionDescription{}, err
	}
	return p.SenderID, desc, nil
}
