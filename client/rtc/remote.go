// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
)

const maxAudioLevel = 127

// remoteStream collects what's been received from the remote peer.
type remoteStream struct {
	hasAudio atomic.Bool

	mut      sync.Mutex
	levelSum float64
	levelCnt int
}

func (s *remoteStream) HasAudio() bool {
	return s.hasAudio.Load()
}

func (s *remoteStream) AudioLevel() float64 {
	s.mut.Lock()
	defer s.mut.Unlock()
	if s.levelCnt == 0 {
		return 0
	}
	avg := s.levelSum / float64(s.levelCnt)
	s.levelSum = 0
	s.levelCnt = 0
	return avg
}

// addLevel records a level from the audio level header extension. The
// extension carries -dBov, 0 being the loudest, so it gets inverted and
// scaled to the 0 to 255 range.
func (s *remoteStream) addLevel(ext rtp.AudioLevelExtension) {
	level := min(ext.Level, maxAudioLevel)
	s.mut.Lock()
	s.levelSum += float64(maxAudioLevel-level) * 2
	s.levelCnt++
	s.mut.Unlock()
}

func (s *remoteStream) readLevel(pkt *rtp.Packet, extID uint8) {
	if extID == 0 {
		return
	}
	data := pkt.GetExtension(extID)
	if data == nil {
		return
	}
	var ext rtp.AudioLevelExtension
	if err := ext.Unmarshal(data); err != nil {
		return
	}
	s.addLevel(ext)
}
