// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"errors"

	"github.com/mattermost/meshcall/client/policy"
	"github.com/mattermost/meshcall/service/random"
	"github.com/mattermost/meshcall/service/signal"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

// dials reports whether the local peer is the one that should open the link
// to peerID. Only the peer with the lower id dials so that two members
// discovering each other at once don't end up with two links.
func (s *Session) dials(peerID string) bool {
	return s.cfg.PeerID < peerID
}

func (s *Session) videoTrack() Track {
	if s.screen != nil {
		return s.screen
	}
	return s.local.Video
}

func (s *Session) knownPeers() []string {
	peers := make([]string, 0, len(s.entries))
	for peerID := range s.entries {
		peers = append(peers, peerID)
	}
	return peers
}

// outboundStream returns the stream to send to target when establishing a
// link with it.
func (s *Session) outboundStream(target string) LocalStream {
	stream := LocalStream{Audio: s.local.Audio, Video: s.videoTrack()}
	if !policy.IncludesVideo(s.mode, s.knownPeers(), target) {
		return stream.AudioOnly()
	}
	return stream
}

// applyPolicy recomputes which links get video and swaps their outgoing video
// track where the decision or the track changed.
func (s *Session) applyPolicy() {
	allowed := make(map[string]bool, len(s.entries))
	for _, peerID := range policy.AllowedVideo(s.mode, s.knownPeers()) {
		allowed[peerID] = true
	}

	video := s.videoTrack()
	for peerID, entry := range s.entries {
		var next Track
		if allowed[peerID] {
			next = video
		}
		if next == entry.video {
			continue
		}
		if err := entry.link.ReplaceVideoTrack(next); err != nil {
			s.log.Warn("failed to replace video track", mlog.String("peerID", peerID), mlog.Err(err))
			continue
		}
		entry.video = next
		s.log.Debug("outbound video updated", mlog.String("peerID", peerID), mlog.Bool("video", next != nil))
	}
}

func (s *Session) trackEntry(peerID, linkID string, link Link, stream LocalStream) {
	entry := newPeerLink(peerID, linkID)
	entry.link = link
	entry.video = stream.Video
	if err := entry.transition(LinkConnecting); err != nil {
		s.log.Error("failed to track link", mlog.String("peerID", peerID), mlog.Err(err))
		return
	}
	s.entries[peerID] = entry

	if err := link.PreferVideoCodec(preferredCodec); err != nil && !errors.Is(err, ErrUnsupported) {
		s.log.Warn("failed to set codec preferences", mlog.String("peerID", peerID), mlog.Err(err))
	}

	s.emit(Event{Type: LinkStateEvent, PeerID: peerID, LinkState: LinkConnecting})

	// Adding a peer can push another one out of the video slots.
	s.applyPolicy()
}

// connect opens a link to peerID unless one is already held or it's up to
// the remote peer to do so.
func (s *Session) connect(peerID string) {
	if peerID == s.cfg.PeerID {
		return
	}
	if _, ok := s.entries[peerID]; ok {
		return
	}
	if _, ok := s.roster[peerID]; !ok {
		return
	}
	if !s.dials(peerID) {
		return
	}

	linkID := random.NewID()
	stream := s.outboundStream(peerID)
	link, err := s.engine.Dial(s.ctx, peerID, linkID, stream)
	if err != nil {
		s.log.Error("failed to dial peer", mlog.String("peerID", peerID), mlog.Err(err))
		s.scheduleReconnect(peerID)
		return
	}

	s.log.Debug("dialing peer", mlog.String("peerID", peerID), mlog.String("linkID", linkID))
	s.trackEntry(peerID, linkID, link, stream)
}

func (s *Session) sendLinkClose(peerID, linkID string) {
	s.send(signal.EventLinkSignal, signal.LinkSignal{
		RoomID: s.roomID,
		To:     peerID,
		LinkID: linkID,
		Kind:   signal.LinkSignalClose,
	})
}

func (s *Session) handleLinkSignal(sig signal.LinkSignal) {
	peerID := sig.From
	entry := s.entries[peerID]

	if sig.Kind == signal.LinkSignalOffer {
		if entry != nil && s.dials(peerID) {
			s.log.Debug("rejecting offer for already linked peer",
				mlog.String("peerID", peerID), mlog.String("linkID", sig.LinkID))
			s.sendLinkClose(peerID, sig.LinkID)
			return
		}
		if entry != nil {
			// The remote peer is the one dialing so a new offer means it gave
			// up on the current link.
			s.log.Debug("replacing link on new offer",
				mlog.String("peerID", peerID),
				mlog.String("oldLinkID", entry.linkID),
				mlog.String("linkID", sig.LinkID),
			)
			s.closeEntry(peerID, LinkClosed)
		}
		if _, ok := s.roster[peerID]; !ok {
			s.log.Debug("rejecting offer from unknown peer", mlog.String("peerID", peerID))
			s.sendLinkClose(peerID, sig.LinkID)
			return
		}

		stream := s.outboundStream(peerID)
		link, err := s.engine.Answer(s.ctx, peerID, sig.LinkID, sig.SDP, stream)
		if err != nil {
			s.log.Error("failed to answer peer", mlog.String("peerID", peerID), mlog.Err(err))
			s.sendLinkClose(peerID, sig.LinkID)
			return
		}

		s.log.Debug("answering peer", mlog.String("peerID", peerID), mlog.String("linkID", sig.LinkID))
		s.trackEntry(peerID, sig.LinkID, link, stream)
		return
	}

	if entry == nil || entry.linkID != sig.LinkID {
		s.log.Debug("dropping stale link signal",
			mlog.String("peerID", peerID),
			mlog.String("linkID", sig.LinkID),
			mlog.String("kind", string(sig.Kind)),
		)
		return
	}

	if sig.Kind == signal.LinkSignalClose {
		s.closeEntry(peerID, LinkClosed)
		s.applyPolicy()
		return
	}

	if err := entry.link.HandleSignal(sig); err != nil {
		s.log.Warn("failed to handle link signal", mlog.String("peerID", peerID), mlog.Err(err))
	}
}

func (s *Session) handleLinkEvent(ev LinkEvent) {
	entry, ok := s.entries[ev.PeerID]
	if !ok || entry.linkID != ev.LinkID {
		s.log.Debug("dropping event for stale link",
			mlog.String("peerID", ev.PeerID),
			mlog.String("linkID", ev.LinkID),
			mlog.String("type", ev.Type.String()),
		)
		return
	}

	switch ev.Type {
	case LinkEventSignal:
		sig := ev.Signal
		sig.RoomID = s.roomID
		sig.To = ev.PeerID
		sig.From = ""
		sig.LinkID = ev.LinkID
		s.send(signal.EventLinkSignal, sig)
	case LinkEventConnected:
		if err := entry.transition(LinkActive); err != nil {
			s.log.Warn("unexpected link state change", mlog.String("peerID", ev.PeerID), mlog.Err(err))
			return
		}
		entry.stream = ev.Stream
		s.reconnect.reset(ev.PeerID)
		s.startMonitor(entry)
		s.emit(Event{Type: LinkStateEvent, PeerID: ev.PeerID, LinkState: LinkActive})
	case LinkEventClosed:
		s.closeEntry(ev.PeerID, LinkClosed)
		s.applyPolicy()
	case LinkEventFailed:
		s.log.Warn("link failed", mlog.String("peerID", ev.PeerID), mlog.Err(ev.Err))
		s.closeEntry(ev.PeerID, LinkFailed)
		s.applyPolicy()
		s.scheduleReconnect(ev.PeerID)
	}
}

// closeEntry moves the link of peerID to state, which must be terminal, and
// releases everything held for it.
func (s *Session) closeEntry(peerID string, state LinkState) {
	entry, ok := s.entries[peerID]
	if !ok {
		return
	}
	delete(s.entries, peerID)
	s.stopMonitor(peerID)

	if err := entry.transition(state); err != nil {
		s.log.Warn("unexpected link state change", mlog.String("peerID", peerID), mlog.Err(err))
	}
	if err := entry.link.Close(); err != nil {
		s.log.Debug("failed to close link", mlog.String("peerID", peerID), mlog.Err(err))
	}

	s.emit(Event{Type: LinkStateEvent, PeerID: peerID, LinkState: state})
}

func (s *Session) scheduleReconnect(peerID string) {
	if _, ok := s.roster[peerID]; !ok {
		return
	}
	delay, ok := s.reconnect.next(peerID)
	if !ok {
		s.log.Info("giving up reconnecting to peer", mlog.String("peerID", peerID))
		return
	}

	s.log.Debug("scheduling reconnect", mlog.String("peerID", peerID), mlog.Any("delay", delay))
	s.afterFunc(delay, func() {
		select {
		case s.timerCh <- reconnectFire{peerID: peerID}:
		case <-s.closeCh:
		}
	})
}

// handleReconnect runs when a reconnect timer fires. Timers are never
// cancelled so it has to recheck the peer is still around.
func (s *Session) handleReconnect(peerID string) {
	if _, ok := s.roster[peerID]; !ok {
		return
	}
	if _, ok := s.entries[peerID]; ok {
		return
	}
	s.connect(peerID)
}

func (s *Session) startMonitor(entry *peerLink) {
	s.stopMonitor(entry.peerID)
	if entry.stream == nil {
		return
	}
	s.monitors[entry.peerID] = newSpeakerMonitor(s.speakerInterval, entry.peerID, entry.linkID, entry.stream, s.speakerCh)
}

func (s *Session) stopMonitor(peerID string) {
	if m, ok := s.monitors[peerID]; ok {
		m.stop()
		delete(s.monitors, peerID)
	}
}
