// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package room

import (
	"time"
)

// Mode is the link topology a room operates in. It's derived from the
// member count and never stored.
type Mode string

const (
	ModeMesh        Mode = "mesh"
	ModeConstrained Mode = "constrained-fallback"
)

const (
	// Capacity is the maximum number of members a room can hold.
	Capacity = 8
	// MeshThreshold is the member count at which a room leaves mesh mode.
	MeshThreshold = 4

	MaxCodeLength = 12
	MaxNameLength = 30
	DefaultName   = "Guest"
)

// ModeFor returns the mode for a room with the given number of members.
func ModeFor(members int) Mode {
	if members < MeshThreshold {
		return ModeMesh
	}
	return ModeConstrained
}

func (m Mode) IsValid() bool {
	return m == ModeMesh || m == ModeConstrained
}

type MediaState struct {
	MicEnabled    bool `json:"micEnabled"`
	CamEnabled    bool `json:"camEnabled"`
	ScreenSharing bool `json:"screenSharing"`
}

func DefaultMediaState() MediaState {
	return MediaState{
		MicEnabled: true,
		CamEnabled: true,
	}
}

// MediaStatePatch is a partial media state update. Nil fields are left
// untouched when merged.
type MediaStatePatch struct {
	MicEnabled    *bool `json:"micEnabled,omitempty"`
	CamEnabled    *bool `json:"camEnabled,omitempty"`
	ScreenSharing *bool `json:"screenSharing,omitempty"`
}

func (s MediaState) Merge(p MediaStatePatch) MediaState {
	if p.MicEnabled != nil {
		s.MicEnabled = *p.MicEnabled
	}
	if p.CamEnabled != nil {
		s.CamEnabled = *p.CamEnabled
	}
	if p.ScreenSharing != nil {
		s.ScreenSharing = *p.ScreenSharing
	}
	return s
}

// Patch returns a patch that sets every field to the values in s.
func (s MediaState) Patch() MediaStatePatch {
	mic, cam, screen := s.MicEnabled, s.CamEnabled, s.ScreenSharing
	return MediaStatePatch{
		MicEnabled:    &mic,
		CamEnabled:    &cam,
		ScreenSharing: &screen,
	}
}

type Participant struct {
	ConnID      string     `json:"socketId"`
	PeerID      string     `json:"peerId"`
	DisplayName string     `json:"displayName"`
	JoinedAt    int64      `json:"joinedAt"`
	MediaState  MediaState `json:"mediaState"`
}

// Room is owned exclusively by a Registry.
type Room struct {
	code         string
	createdAt    time.Time
	members      []string
	participants map[string]*Participant
}

func newRoom(code string, createdAt time.Time) *Room {
	return &Room{
		code:         code,
		createdAt:    createdAt,
		participants: make(map[string]*Participant),
	}
}

func (r *Room) size() int {
	return len(r.members)
}

func (r *Room) has(connID string) bool {
	_, ok := r.participants[connID]
	return ok
}

func (r *Room) add(p Participant) {
	r.members = append(r.members, p.ConnID)
	r.participants[p.ConnID] = &p
}

func (r *Room) remove(connID string) (Participant, bool) {
	p, ok := r.participants[connID]
	if !ok {
		return Participant{}, false
	}
	delete(r.participants, connID)
	for i, id := range r.members {
		if id == connID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	return *p, true
}

// membersExcept returns the connection ids of all members but connID, in
// join order.
func (r *Room) membersExcept(connID string) []string {
	ids := make([]string, 0, len(r.members))
	for _, id := range r.members {
		if id != connID {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Room) snapshot() Snapshot {
	participants := make([]Participant, 0, len(r.members))
	for _, id := range r.members {
		participants = append(participants, *r.participants[id])
	}
	return Snapshot{
		Code:         r.code,
		CreatedAt:    r.createdAt,
		Mode:         ModeFor(len(r.members)),
		Participants: participants,
	}
}

// Snapshot is a copy of a room's state at a given point in time.
type Snapshot struct {
	Code         string
	CreatedAt    time.Time
	Mode         Mode
	Participants []Participant
}
