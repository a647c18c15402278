// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"fmt"
	"sync/atomic"

	"github.com/mattermost/meshcall/client"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// LocalTrack is a captured track that can be sent over any number of links.
// Samples written while the track is disabled are discarded.
type LocalTrack struct {
	kind       client.TrackKind
	local      *webrtc.TrackLocalStaticSample
	enabled    atomic.Bool
	keyframeCh chan struct{}
	// level holds the last audio level plus one, zero meaning unset.
	level atomic.Uint32
}

func NewLocalTrack(kind client.TrackKind, id, streamID string) (*LocalTrack, error) {
	var codec webrtc.RTPCodecCapability
	switch kind {
	case client.TrackKindAudio:
		codec = rtpAudioCodec
	case client.TrackKindVideo:
		codec = rtpVideoCodecVP8
	default:
		return nil, fmt.Errorf("invalid kind value: %q", kind)
	}

	if id == "" {
		return nil, fmt.Errorf("invalid id value: should not be empty")
	}

	local, err := webrtc.NewTrackLocalStaticSample(codec, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create track: %w", err)
	}

	t := &LocalTrack{
		kind:       kind,
		local:      local,
		keyframeCh: make(chan struct{}, 1),
	}
	t.enabled.Store(true)

	return t, nil
}

func (t *LocalTrack) ID() string {
	return t.local.ID()
}

func (t *LocalTrack) Kind() client.TrackKind {
	return t.kind
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *LocalTrack) WriteSample(s media.Sample) error {
	if !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// SetAudioLevel sets the level, in -dBov from 0 (loudest) to 127 (silence),
// advertised through the audio level header extension on the packets sent
// from now on. It's up to the capturer to measure it.
func (t *LocalTrack) SetAudioLevel(level uint8) {
	t.level.Store(uint32(min(level, maxAudioLevel)) + 1)
}

func (t *LocalTrack) audioLevel() (uint8, bool) {
	v := t.level.Load()
	if v == 0 {
		return 0, false
	}
	return uint8(v - 1), true
}

// KeyframeRequests is signaled whenever a remote peer asks for a keyframe
// on this track. Requests are coalesced.
func (t *LocalTrack) KeyframeRequests() <-chan struct{} {
	return t.keyframeCh
}

func (t *LocalTrack) requestKeyframe() {
	select {
	case t.keyframeCh <- struct{}{}:
	default:
	}
}

func asLocalTrack(track client.Track) (*LocalTrack, error) {
	if track == nil {
		return nil, nil
	}
	lt, ok := track.(*LocalTrack)
	if !ok {
		return nil, fmt.Errorf("unsupported track type %T", track)
	}
	return lt, nil
}
