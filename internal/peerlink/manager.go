// Package peerlink drives the WebRTC side of a session: one peer connection
// per remote participant, negotiated over the signaling relay. The relay
// carries opaque payloads; all SDP and ICE handling lives here.
package peerlink

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/Abhishekhack2909/StreamVerse/internal/domain"
	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

// Signaler sends negotiation messages to one remote participant through the
// session relay.
type Signaler interface {
	SendOffer(peerID string, desc webrtc.SessionDescription) error
	SendAnswer(peerID string, desc webrtc.SessionDescription) error
	SendCandidate(peerID string, cand webrtc.ICECandidateInit) error
}

// TrackHandler receives remote media.
type TrackHandler func(peerID string, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)

// DegradeHandler is notified when a link's transport fails. The link stays
// degraded; whoever owns the manager decides whether to rebuild it.
type DegradeHandler func(peerID string)

// Manager owns every peer link of one session membership.
type Manager struct {
	api      *webrtc.API
	config   webrtc.Configuration
	signaler Signaler

	mu     sync.Mutex
	selfID string
	mode   domain.Mode
	role   domain.Role
	links  map[string]*Link
	tracks []webrtc.TrackLocal

	onTrack    TrackHandler
	onDegraded DegradeHandler
}

// NewManager creates a manager negotiating through signaler, using the
// given STUN servers.
func NewManager(stunServers []string, signaler Signaler) (*Manager, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	return &Manager{
		api:      api,
		config:   webrtc.Configuration{ICEServers: iceServers},
		signaler: signaler,
		links:    make(map[string]*Link),
	}, nil
}

// OnTrack sets the remote media handler.
func (m *Manager) OnTrack(h TrackHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrack = h
}

// OnDegraded sets the transport failure handler.
func (m *Manager) OnDegraded(h DegradeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDegraded = h
}

// AddTrack registers a local track for every future link. Links created
// before the call are not touched; use ReplaceVideoTrack for those.
func (m *Manager) AddTrack(track webrtc.TrackLocal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = append(m.tracks, track)
}

// SnapshotReceived seeds the manager after a session join. Whoever already
// sits in the session initiates toward the newcomer, so on a snapshot this
// side offers only when it is a broadcast host facing its viewers.
func (m *Manager) SnapshotReceived(selfID string, mode domain.Mode, role domain.Role, others []domain.ParticipantInfo) error {
	m.mu.Lock()
	m.selfID = selfID
	m.mode = mode
	m.role = role
	m.mu.Unlock()

	if mode == domain.ModeBroadcast && role == domain.RoleHost {
		for _, p := range others {
			if err := m.initiate(p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// PeerJoined reacts to a participant-joined event. In mesh mode the existing
// side always initiates; in broadcast only the host does.
func (m *Manager) PeerJoined(peerID string) error {
	m.mu.Lock()
	mode, role := m.mode, m.role
	m.mu.Unlock()

	if peerID == "" {
		return nil
	}

	switch mode {
	case domain.ModeMesh:
		return m.initiate(peerID)
	case domain.ModeBroadcast:
		if role == domain.RoleHost {
			return m.initiate(peerID)
		}
	}
	return nil
}

// PeerLeft tears down the link to a departed participant.
func (m *Manager) PeerLeft(peerID string) {
	m.mu.Lock()
	l, ok := m.links[peerID]
	delete(m.links, peerID)
	m.mu.Unlock()

	if ok {
		if err := l.close(); err != nil {
			logger := pkglog.L()
			logger.Warn().Err(err).Str(pkglog.FieldPeerID, peerID).Msg("link close failed")
		}
	}
}

// HandleOffer applies a remote offer and replies with an answer. A fresh
// link is created when none exists for the sender.
func (m *Manager) HandleOffer(peerID string, desc webrtc.SessionDescription) error {
	l, err := m.ensureLink(peerID, false)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil
	}

	if err := l.applyRemoteDescriptionLocked(desc); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer for %s: %w", peerID, err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description for %s: %w", peerID, err)
	}
	l.state = StateAnswering

	return m.signaler.SendAnswer(peerID, answer)
}

// HandleAnswer applies the remote answer to a link this side offered on.
func (m *Manager) HandleAnswer(peerID string, desc webrtc.SessionDescription) error {
	m.mu.Lock()
	l, ok := m.links[peerID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("answer from unknown peer %s", peerID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateOfferSent {
		// Stale answer after a teardown or a failure. Drop it.
		logger := pkglog.L()
		logger.Debug().
			Str(pkglog.FieldPeerID, peerID).
			Str("state", l.state.String()).
			Msg("ignoring answer in unexpected state")
		return nil
	}

	if err := l.applyRemoteDescriptionLocked(desc); err != nil {
		return err
	}
	l.state = StateAnswerReceived
	return nil
}

// HandleCandidate applies a remote ICE candidate, buffering it when it
// outruns the SDP exchange.
func (m *Manager) HandleCandidate(peerID string, cand webrtc.ICECandidateInit) error {
	l, err := m.ensureLink(peerID, false)
	if err != nil {
		return err
	}
	return l.addCandidate(cand)
}

// ReplaceVideoTrack swaps the outgoing video track on every live link
// without renegotiating.
func (m *Manager) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	m.mu.Lock()
	links := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}

	replaced := false
	for i, t := range m.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			m.tracks[i] = track
			replaced = true
			break
		}
	}
	if !replaced {
		m.tracks = append(m.tracks, track)
	}
	m.mu.Unlock()

	for _, l := range links {
		l.mu.Lock()
		pc, closed := l.pc, l.state == StateClosed
		l.mu.Unlock()
		if closed {
			continue
		}

		for _, sender := range pc.GetSenders() {
			st := sender.Track()
			if st == nil || st.Kind() != webrtc.RTPCodecTypeVideo {
				continue
			}
			if err := sender.ReplaceTrack(track); err != nil {
				return fmt.Errorf("replace track for %s: %w", l.PeerID, err)
			}
		}
	}
	return nil
}

// Link returns the link for a peer, if any.
func (m *Manager) Link(peerID string) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[peerID]
	return l, ok
}

// CloseAll tears down every link, for session leave or end.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[string]*Link)
	m.mu.Unlock()

	for _, l := range links {
		if err := l.close(); err != nil {
			logger := pkglog.L()
			logger.Warn().Err(err).Str(pkglog.FieldPeerID, l.PeerID).Msg("link close failed")
		}
	}
}

// initiate creates a link and sends the opening offer.
func (m *Manager) initiate(peerID string) error {
	l, err := m.ensureLink(peerID, true)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateNew {
		// Already negotiating; the signal ordering guarantees at most one
		// initiator per pair, so this is a duplicate join event.
		return nil
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer for %s: %w", peerID, err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description for %s: %w", peerID, err)
	}
	l.state = StateOfferSent

	return m.signaler.SendOffer(peerID, offer)
}

// ensureLink returns the existing link for peerID or builds a new one. A
// degraded link is discarded and rebuilt: recovery is a fresh negotiation
// cycle, never a renegotiation of the failed transport.
func (m *Manager) ensureLink(peerID string, initiator bool) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.links[peerID]; ok {
		if l.State() != StateDegraded {
			return l, nil
		}
		delete(m.links, peerID)
		go l.close()
	}

	pc, err := m.api.NewPeerConnection(m.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection for %s: %w", peerID, err)
	}

	for _, track := range m.tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track for %s: %w", peerID, err)
		}
	}

	l := &Link{PeerID: peerID, pc: pc, state: StateNew, initiator: initiator}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := m.signaler.SendCandidate(peerID, cand.ToJSON()); err != nil {
			logger := pkglog.L()
			logger.Warn().Err(err).Str(pkglog.FieldPeerID, peerID).Msg("candidate send failed")
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.mu.Lock()
		h := m.onTrack
		m.mu.Unlock()
		if h != nil {
			h(peerID, track, receiver)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger := pkglog.L()
		logger.Debug().
			Str(pkglog.FieldPeerID, peerID).
			Str("connection_state", state.String()).
			Msg("peer connection state changed")

		switch state {
		case webrtc.PeerConnectionStateConnected:
			l.mu.Lock()
			if l.state != StateClosed {
				l.state = StateConnected
			}
			l.mu.Unlock()

		case webrtc.PeerConnectionStateFailed:
			l.mu.Lock()
			already := l.state == StateDegraded || l.state == StateClosed
			if !already {
				l.state = StateDegraded
			}
			l.mu.Unlock()
			if already {
				return
			}

			m.mu.Lock()
			h := m.onDegraded
			m.mu.Unlock()
			if h != nil {
				h(peerID)
			}
		}
	})

	m.links[peerID] = l
	return l, nil
}
