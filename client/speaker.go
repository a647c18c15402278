// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"sync"
	"time"
)

const (
	defaultSpeakerInterval = 650 * time.Millisecond
	speakerLevelThreshold  = 32
)

type speakerSample struct {
	peerID string
	linkID string
	level  float64
}

// speakerMonitor periodically samples the audio level of a remote stream and
// reports the peer as speaking whenever it's above the threshold. Ticks are
// skipped until audio has been received from the peer.
type speakerMonitor struct {
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newSpeakerMonitor(interval time.Duration, peerID, linkID string, stream RemoteStream, sampleCh chan<- speakerSample) *speakerMonitor {
	m := &speakerMonitor{
		stopCh: make(chan struct{}),
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !stream.HasAudio() {
					continue
				}
				level := stream.AudioLevel()
				if level <= speakerLevelThreshold {
					continue
				}
				select {
				case sampleCh <- speakerSample{peerID: peerID, linkID: linkID, level: level}:
				case <-m.stopCh:
					return
				}
			case <-m.stopCh:
				return
			}
		}
	}()

	return m
}

func (m *speakerMonitor) stop() {
	close(m.stopCh)
	m.wg.Wait()
}
