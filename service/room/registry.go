// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package room

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/meshcall/service/random"
)

// Registry maps room codes to room state. It does no locking: all methods
// must be called from a single goroutine.
type Registry struct {
	rooms   map[string]*Room
	conns   map[string]string
	newCode func() (string, error)
	now     func() time.Time
}

type Option func(r *Registry)

// WithCodeGenerator overrides the function used to sample new room codes.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(r *Registry) {
		r.newCode = fn
	}
}

// WithClock overrides the time source used for timestamps and sweeping.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) {
		r.now = fn
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:   make(map[string]*Room),
		conns:   make(map[string]string),
		newCode: random.NewRoomCode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Description struct {
	Exists       bool   `json:"exists"`
	RoomID       string `json:"roomId"`
	Participants int    `json:"participants"`
	Capacity     int    `json:"capacity"`
	Mode         Mode   `json:"mode"`
}

type JoinResult struct {
	Room        Snapshot
	Participant Participant
	// Others holds the connection ids of the members that were already in
	// the room.
	Others []string
	// Members holds the connection ids of every member, joiner included.
	Members []string
	// Left is set when the connection had to leave a previous room first.
	Left *LeaveResult
}

type LeaveResult struct {
	// Room is the state after removal. Its participants are the remaining
	// members.
	Room        Snapshot
	Participant Participant
	Remaining   []string
	Deleted     bool
}

type MemberInfo struct {
	Code        string
	Participant Participant
	Others      []string
}

// CreateRoom reserves an empty room under a freshly sampled, unused code.
func (r *Registry) CreateRoom() (string, error) {
	for {
		code, err := r.newCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		if _, ok := r.rooms[code]; ok {
			continue
		}
		r.rooms[code] = newRoom(code, r.now())
		return code, nil
	}
}

// Describe reports on the room matching raw. Unknown rooms are reported as
// non existent rather than as an error.
func (r *Registry) Describe(raw string) (Description, error) {
	code := NormalizeCode(raw)
	if code == "" {
		return Description{}, ErrInvalidInput
	}

	desc := Description{
		RoomID:   code,
		Capacity: Capacity,
		Mode:     ModeMesh,
	}
	if rm, ok := r.rooms[code]; ok {
		desc.Exists = true
		desc.Participants = rm.size()
		desc.Mode = ModeFor(rm.size())
	}
	return desc, nil
}

// Join adds the connection to the room matching rawCode, creating the room if
// needed. A connection that is already a member of a room leaves it first.
func (r *Registry) Join(connID, rawCode, peerID, displayName string) (JoinResult, error) {
	code := NormalizeCode(rawCode)
	peerID = strings.TrimSpace(peerID)
	if code == "" || peerID == "" || connID == "" {
		return JoinResult{}, ErrInvalidInput
	}

	if rm, ok := r.rooms[code]; ok && rm.size() >= Capacity && !rm.has(connID) {
		return JoinResult{}, ErrRoomFull
	}

	var res JoinResult
	if _, ok := r.conns[connID]; ok {
		if left, ok := r.Leave(connID); ok {
			res.Left = &left
		}
	}

	rm, ok := r.rooms[code]
	if !ok {
		rm = newRoom(code, r.now())
		r.rooms[code] = rm
	}

	p := Participant{
		ConnID:      connID,
		PeerID:      peerID,
		DisplayName: SanitizeName(displayName),
		JoinedAt:    r.now().UnixMilli(),
		MediaState:  DefaultMediaState(),
	}
	rm.add(p)
	r.conns[connID] = code

	res.Room = rm.snapshot()
	res.Participant = p
	res.Others = rm.membersExcept(connID)
	res.Members = rm.membersExcept("")

	return res, nil
}

// UpdateMediaState merges patch into the media state of the participant
// bound to connID. It's a no-op for connections that are not room members.
func (r *Registry) UpdateMediaState(connID string, patch MediaStatePatch) (MemberInfo, bool) {
	rm := r.roomOf(connID)
	if rm == nil {
		return MemberInfo{}, false
	}
	p := rm.participants[connID]
	p.MediaState = p.MediaState.Merge(patch)
	return MemberInfo{
		Code:        rm.code,
		Participant: *p,
		Others:      rm.membersExcept(connID),
	}, true
}

// Member returns information about the room connID is a member of.
func (r *Registry) Member(connID string) (MemberInfo, bool) {
	rm := r.roomOf(connID)
	if rm == nil {
		return MemberInfo{}, false
	}
	return MemberInfo{
		Code:        rm.code,
		Participant: *rm.participants[connID],
		Others:      rm.membersExcept(connID),
	}, true
}

// RoomMembers returns the connection ids of the members of the room matching
// rawCode.
func (r *Registry) RoomMembers(rawCode string) ([]string, bool) {
	rm, ok := r.rooms[NormalizeCode(rawCode)]
	if !ok {
		return nil, false
	}
	return rm.membersExcept(""), true
}

// PeerConn resolves the connection id of the member owning peerID in the room
// matching rawCode.
func (r *Registry) PeerConn(rawCode, peerID string) (string, bool) {
	rm, ok := r.rooms[NormalizeCode(rawCode)]
	if !ok {
		return "", false
	}
	for _, id := range rm.members {
		if rm.participants[id].PeerID == peerID {
			return id, true
		}
	}
	return "", false
}

// Leave removes connID from its room, deleting the room if it's left empty.
func (r *Registry) Leave(connID string) (LeaveResult, bool) {
	rm := r.roomOf(connID)
	if rm == nil {
		return LeaveResult{}, false
	}
	delete(r.conns, connID)

	p, _ := rm.remove(connID)
	res := LeaveResult{
		Room:        rm.snapshot(),
		Participant: p,
		Remaining:   rm.membersExcept(""),
	}
	if rm.size() == 0 {
		delete(r.rooms, rm.code)
		res.Deleted = true
	}

	return res, true
}

// Sweep deletes reserved rooms that never had a member and are older than
// ttl. It returns the codes of the deleted rooms.
func (r *Registry) Sweep(ttl time.Duration) []string {
	var codes []string
	now := r.now()
	for code, rm := range r.rooms {
		if rm.size() == 0 && now.Sub(rm.createdAt) >= ttl {
			delete(r.rooms, code)
			codes = append(codes, code)
		}
	}
	return codes
}

func (r *Registry) Stats() (rooms, participants int) {
	return len(r.rooms), len(r.conns)
}

func (r *Registry) roomOf(connID string) *Room {
	code, ok := r.conns[connID]
	if !ok {
		return nil
	}
	return r.rooms[code]
}
