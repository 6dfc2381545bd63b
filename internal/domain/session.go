package domain

import "time"

// Mode distinguishes one-to-many broadcasts from many-to-many meeting rooms.
type Mode string

const (
	ModeBroadcast Mode = "broadcast"
	ModeMesh      Mode = "mesh"
)

// Valid reports whether m is a known session mode.
func (m Mode) Valid() bool {
	return m == ModeBroadcast || m == ModeMesh
}

// Role of a participant inside a session.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// Participant is one connected actor inside a session. ChannelID is the
// transport correlation key; it is never exposed on the wire.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
	ChannelID   string
	JoinedAt    time.Time
}

// Info returns the wire form of the participant.
func (p Participant) Info() ParticipantInfo {
	return ParticipantInfo{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		Role:        string(p.Role),
	}
}

// ParticipantInfos converts a registry snapshot to its wire form.
func ParticipantInfos(ps []Participant) []ParticipantInfo {
	infos := make([]ParticipantInfo, len(ps))
	for i, p := range ps {
		infos[i] = p.Info()
	}
	return infos
}

// SessionInfo is a read-only view of a registry session.
type SessionInfo struct {
	ID        string
	Mode      Mode
	OwnerID   string
	CreatedAt time.Time
	EndedAt   *time.Time
}

// Ended reports whether the session is terminal.
func (s SessionInfo) Ended() bool {
	return s.EndedAt != nil
}
