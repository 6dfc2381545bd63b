package peerlink

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	pkglog "github.com/Abhishekhack2909/StreamVerse/pkg/log"
)

// LinkState is the negotiation state of one peer link.
type LinkState int

const (
	// StateNew means the link exists but no description has been exchanged.
	StateNew LinkState = iota
	// StateOfferSent means a local offer is out and an answer is awaited.
	StateOfferSent
	// StateAnswerReceived means the remote answer was applied and the
	// transport is connecting.
	StateAnswerReceived
	// StateAnswering means a remote offer was applied and answered.
	StateAnswering
	// StateConnected means the transport is up.
	StateConnected
	// StateDegraded means the transport failed. Recovery is the caller's
	// decision; the link never re-negotiates on its own.
	StateDegraded
	// StateClosed means the link was torn down.
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOfferSent:
		return "offer-sent"
	case StateAnswerReceived:
		return "answer-received"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Link is one negotiated connection to a remote participant.
type Link struct {
	PeerID string

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	state     LinkState
	initiator bool

	// Candidates that arrived before the remote description. They are
	// applied in arrival order once the description lands.
	pending []webrtc.ICECandidateInit
}

// State returns the link's negotiation state.
func (l *Link) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Initiator reports whether this side created the offer.
func (l *Link) Initiator() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.initiator
}

// applyRemoteDescriptionLocked sets the remote description and drains the
// pending candidate buffer. Caller holds l.mu.
func (l *Link) applyRemoteDescriptionLocked(desc webrtc.SessionDescription) error {
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description for %s: %w", l.PeerID, err)
	}

	for _, cand := range l.pending {
		if err := l.pc.AddICECandidate(cand); err != nil {
			logger := pkglog.L()
			logger.Warn().Err(err).Str(pkglog.FieldPeerID, l.PeerID).Msg("buffered candidate rejected")
		}
	}
	l.pending = nil
	return nil
}

// addCandidate applies a remote candidate, buffering it when the remote
// description has not arrived yet.
func (l *Link) addCandidate(cand webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil
	}

	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, cand)
		return nil
	}
	return l.pc.AddICECandidate(cand)
}

// close tears the link down. Safe to call more than once.
func (l *Link) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return nil
	}
	l.state = StateClosed
	l.pending = nil
	return l.pc.Close()
}
