// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattermost/meshcall/client/e2ee"
	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/signal"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		s, err := NewSession(Config{}, newFakeSignaler(), newFakeEngine(), LocalStream{})
		require.Error(t, err)
		require.Nil(t, s)
	})

	t.Run("missing signaler", func(t *testing.T) {
		s, err := NewSession(Config{SiteURL: "http://localhost", RoomID: "ABCDEF"}, nil, newFakeEngine(), LocalStream{})
		require.EqualError(t, err, "invalid signaler value: should not be nil")
		require.Nil(t, s)
	})

	t.Run("missing engine", func(t *testing.T) {
		s, err := NewSession(Config{SiteURL: "http://localhost", RoomID: "ABCDEF"}, newFakeSignaler(), nil, LocalStream{})
		require.EqualError(t, err, "invalid engine value: should not be nil")
		require.Nil(t, s)
	})

	t.Run("invalid option", func(t *testing.T) {
		s, err := NewSession(Config{SiteURL: "http://localhost", RoomID: "ABCDEF"}, newFakeSignaler(), newFakeEngine(), LocalStream{},
			WithSpeakerInterval(0))
		require.Error(t, err)
		require.Nil(t, s)
	})
}

func TestSessionJoin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "A", "B")

		ev := ts.waitEvent(t, RoomStateEvent, nil)
		require.Equal(t, room.ModeMesh, ev.Mode)
		require.Len(t, ev.Participants, 2)

		err := ts.Join(context.Background())
		require.ErrorIs(t, err, ErrAlreadyJoined)
	})

	t.Run("rejected", func(t *testing.T) {
		ts := setupSession(t, "B")

		errCh := make(chan error, 1)
		go func() {
			errCh <- ts.Join(context.Background())
		}()
		ts.sig.waitFor(t, signal.EventJoinRoom)
		ts.sig.push(t, signal.EventJoinError, signal.JoinError{Message: "Room is full (8 participants max)."})

		var err error
		select {
		case err = <-errCh:
		case <-time.After(waitTimeout):
			require.FailNow(t, "timed out joining")
		}
		var joinErr *JoinError
		require.True(t, errors.As(err, &joinErr))
		require.Equal(t, "Room is full (8 participants max).", joinErr.Message)

		ev := ts.waitEvent(t, JoinErrorEvent, nil)
		require.ErrorAs(t, ev.Err, &joinErr)
	})

	t.Run("context", func(t *testing.T) {
		ts := setupSession(t, "B")
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := ts.Join(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("disconnect", func(t *testing.T) {
		ts := setupSession(t, "B")

		errCh := make(chan error, 1)
		go func() {
			errCh <- ts.Join(context.Background())
		}()
		ts.sig.waitFor(t, signal.EventJoinRoom)
		close(ts.sig.envCh)

		select {
		case err := <-errCh:
			require.ErrorIs(t, err, ErrClosed)
		case <-time.After(waitTimeout):
			require.FailNow(t, "timed out joining")
		}
		ts.waitEvent(t, DisconnectEvent, nil)
	})

	t.Run("audio only", func(t *testing.T) {
		log, err := mlog.NewLogger()
		require.NoError(t, err)
		defer func() {
			require.NoError(t, log.Shutdown())
		}()

		ts := &testSession{
			sig:    newFakeSignaler(),
			engine: newFakeEngine(),
			timers: newFakeTimers(),
		}
		ts.Session, err = NewSession(Config{
			SiteURL: "http://localhost",
			RoomID:  "ABCDEF",
			PeerID:  "B",
		}, ts.sig, ts.engine, LocalStream{Audio: newFakeTrack("audio", TrackKindAudio)}, WithLogger(log))
		require.NoError(t, err)
		defer func() {
			require.NoError(t, ts.Close())
		}()

		ts.join(t, "B")
		msg := ts.sig.waitFor(t, signal.EventMediaStateChanged)
		update, ok := msg.data.(signal.MediaStateChanged)
		require.True(t, ok)
		require.Equal(t, "ABCDEF", update.RoomID)
		require.NotNil(t, update.MediaState.CamEnabled)
		require.False(t, *update.MediaState.CamEnabled)
		require.True(t, *update.MediaState.MicEnabled)
	})
}

func TestSessionLinks(t *testing.T) {
	t.Run("lower peer id dials", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "A", "B", "C")

		l := ts.engine.waitLink(t)
		require.Equal(t, "C", l.peerID)
		require.Empty(t, l.offer)
		require.NotEmpty(t, l.id)
		ts.engine.expectNoLink(t, 100*time.Millisecond)
		ts.waitEvent(t, LinkStateEvent, linkState("C", LinkConnecting))
	})

	t.Run("existing members dial joiners with a higher id", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B")

		ts.sig.push(t, signal.EventPeerJoined, signal.PeerJoined{Participant: participant("A"), Mode: room.ModeMesh})
		ts.waitEvent(t, PeerJoinedEvent, nil)
		ts.engine.expectNoLink(t, 100*time.Millisecond)

		ts.sig.push(t, signal.EventPeerJoined, signal.PeerJoined{Participant: participant("D"), Mode: room.ModeMesh})
		l := ts.engine.waitLink(t)
		require.Equal(t, "D", l.peerID)
	})

	t.Run("answers offers", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "A", "B")

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{
			From:   "A",
			LinkID: "link-a",
			Kind:   signal.LinkSignalOffer,
			SDP:    "offer-sdp",
		})
		l := ts.engine.waitLink(t)
		require.Equal(t, "A", l.peerID)
		require.Equal(t, "link-a", l.id)
		require.Equal(t, "offer-sdp", l.offer)
		require.Equal(t, ts.video, l.stream.Video)
		require.Equal(t, ts.audio, l.stream.Audio)

		// Signals produced by the engine get routed to the remote peer.
		ts.engine.eventCh <- LinkEvent{
			Type:   LinkEventSignal,
			PeerID: "A",
			LinkID: "link-a",
			Signal: signal.LinkSignal{Kind: signal.LinkSignalAnswer, SDP: "answer-sdp"},
		}
		msg := ts.sig.waitFor(t, signal.EventLinkSignal)
		sig, ok := msg.data.(signal.LinkSignal)
		require.True(t, ok)
		require.Equal(t, signal.LinkSignal{
			RoomID: "ABCDEF",
			To:     "A",
			LinkID: "link-a",
			Kind:   signal.LinkSignalAnswer,
			SDP:    "answer-sdp",
		}, sig)
	})

	t.Run("rejects duplicate offers", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{
			From:   "C",
			LinkID: "link-c",
			Kind:   signal.LinkSignalOffer,
			SDP:    "offer-sdp",
		})
		msg := ts.sig.waitFor(t, signal.EventLinkSignal)
		sig, ok := msg.data.(signal.LinkSignal)
		require.True(t, ok)
		require.Equal(t, signal.LinkSignalClose, sig.Kind)
		require.Equal(t, "link-c", sig.LinkID)
		require.Equal(t, "C", sig.To)

		ts.engine.expectNoLink(t, 100*time.Millisecond)
		require.False(t, l.isClosed())
	})

	t.Run("rejects offers from unknown peers", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B")

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{
			From:   "A",
			LinkID: "link-a",
			Kind:   signal.LinkSignalOffer,
		})
		msg := ts.sig.waitFor(t, signal.EventLinkSignal)
		sig, ok := msg.data.(signal.LinkSignal)
		require.True(t, ok)
		require.Equal(t, signal.LinkSignalClose, sig.Kind)
		ts.engine.expectNoLink(t, 100*time.Millisecond)
	})

	t.Run("drops stale signals", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{
			From:      "C",
			LinkID:    "old-link",
			Kind:      signal.LinkSignalCandidate,
			Candidate: "stale",
		})
		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{
			From:   "C",
			LinkID: l.id,
			Kind:   signal.LinkSignalAnswer,
			SDP:    "answer-sdp",
		})

		require.Eventually(t, func() bool {
			return len(l.handled()) == 1
		}, waitTimeout, 10*time.Millisecond)
		require.Equal(t, "answer-sdp", l.handled()[0].SDP)
	})

	t.Run("remote close", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{
			From:   "C",
			LinkID: l.id,
			Kind:   signal.LinkSignalClose,
		})
		ts.waitEvent(t, LinkStateEvent, linkState("C", LinkClosed))
		require.True(t, l.isClosed())
		ts.timers.expectNone(t, 100*time.Millisecond)
	})

	t.Run("active", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		ts.engine.eventCh <- LinkEvent{
			Type:   LinkEventConnected,
			PeerID: "C",
			LinkID: l.id,
			Stream: &fakeRemoteStream{},
		}
		ts.waitEvent(t, LinkStateEvent, linkState("C", LinkActive))
		require.Equal(t, preferredCodec, l.codecPreference())
	})

	t.Run("peer left", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		ts.sig.push(t, signal.EventPeerLeft, signal.PeerLeft{ConnID: "conn-C", PeerID: "C", Mode: room.ModeMesh})
		ev := ts.waitEvent(t, PeerLeftEvent, nil)
		require.Equal(t, "C", ev.PeerID)
		require.Equal(t, "user C", ev.Participant.DisplayName)
		require.True(t, l.isClosed())
	})

	t.Run("roster resync", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C", "D")
		links := ts.engine.waitLinks(t, 2)

		ts.sig.push(t, signal.EventParticipantsUpdated, signal.ParticipantsUpdated{
			Participants: participants("B", "D"),
			Mode:         room.ModeMesh,
		})
		ts.waitEvent(t, ParticipantsUpdatedEvent, nil)
		require.True(t, links["C"].isClosed())
		require.False(t, links["D"].isClosed())
	})

	t.Run("leave", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		require.NoError(t, ts.Leave(context.Background()))
		msg := ts.sig.waitFor(t, signal.EventLeaveRoom)
		require.Equal(t, signal.LeaveRoom{RoomID: "ABCDEF"}, msg.data)
		require.True(t, l.isClosed())

		require.ErrorIs(t, ts.Leave(context.Background()), ErrNotJoined)
	})
}

func TestSessionReconnect(t *testing.T) {
	failLink := func(ts *testSession, l *fakeLink) {
		ts.engine.eventCh <- LinkEvent{
			Type:   LinkEventFailed,
			PeerID: l.peerID,
			LinkID: l.id,
			Err:    errors.New("ice failed"),
		}
	}

	t.Run("capped attempts", func(t *testing.T) {
		ts := setupSession(t, "A")
		ts.join(t, "A", "B")

		l := ts.engine.waitLink(t)
		for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
			failLink(ts, l)
			tm := ts.timers.wait(t)
			require.Equal(t, time.Duration(attempt)*reconnectBackoff, tm.delay)
			require.True(t, l.isClosed())

			tm.fn()
			next := ts.engine.waitLink(t)
			require.Equal(t, "B", next.peerID)
			require.NotEqual(t, l.id, next.id)
			l = next
		}

		failLink(ts, l)
		ts.waitEvent(t, LinkStateEvent, linkState("B", LinkFailed))
		ts.timers.expectNone(t, 200*time.Millisecond)
		ts.engine.expectNoLink(t, 100*time.Millisecond)
	})

	t.Run("reset when active", func(t *testing.T) {
		ts := setupSession(t, "A")
		ts.join(t, "A", "B")

		l := ts.engine.waitLink(t)
		failLink(ts, l)
		tm := ts.timers.wait(t)
		require.Equal(t, reconnectBackoff, tm.delay)
		tm.fn()

		l = ts.engine.waitLink(t)
		ts.engine.eventCh <- LinkEvent{Type: LinkEventConnected, PeerID: "B", LinkID: l.id}
		ts.waitEvent(t, LinkStateEvent, linkState("B", LinkActive))

		failLink(ts, l)
		tm = ts.timers.wait(t)
		require.Equal(t, reconnectBackoff, tm.delay)
	})

	t.Run("peer gone before timer fires", func(t *testing.T) {
		ts := setupSession(t, "A")
		ts.join(t, "A", "B")

		l := ts.engine.waitLink(t)
		failLink(ts, l)
		tm := ts.timers.wait(t)

		ts.sig.push(t, signal.EventPeerLeft, signal.PeerLeft{PeerID: "B", Mode: room.ModeMesh})
		ts.waitEvent(t, PeerLeftEvent, nil)

		tm.fn()
		ts.engine.expectNoLink(t, 100*time.Millisecond)
	})

	t.Run("stale link events", func(t *testing.T) {
		ts := setupSession(t, "A")
		ts.join(t, "A", "B")

		l := ts.engine.waitLink(t)
		ts.engine.eventCh <- LinkEvent{Type: LinkEventFailed, PeerID: "B", LinkID: "another-link"}
		ts.timers.expectNone(t, 100*time.Millisecond)
		require.False(t, l.isClosed())
	})

	t.Run("offer from dialer replaces link", func(t *testing.T) {
		ts := setupSession(t, "C")
		ts.join(t, "A", "C")

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{From: "A", LinkID: "link-a", Kind: signal.LinkSignalOffer})
		l := ts.engine.waitLink(t)
		ts.engine.eventCh <- LinkEvent{Type: LinkEventConnected, PeerID: "A", LinkID: l.id, Stream: &fakeRemoteStream{}}
		ts.waitEvent(t, LinkStateEvent, linkState("A", LinkActive))

		// A saw the link fail before C did and dials again.
		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{From: "A", LinkID: "link-a2", Kind: signal.LinkSignalOffer})
		ts.waitEvent(t, LinkStateEvent, linkState("A", LinkClosed))
		next := ts.engine.waitLink(t)
		require.Equal(t, "link-a2", next.id)
		require.True(t, l.isClosed())
		require.False(t, next.isClosed())
		ts.sig.expectNone(t, signal.EventLinkSignal, 100*time.Millisecond)

		// Late failure of the old link must not affect the new one.
		failLink(ts, l)
		ts.timers.expectNone(t, 100*time.Millisecond)
		require.False(t, next.isClosed())

		ts.engine.eventCh <- LinkEvent{Type: LinkEventConnected, PeerID: "A", LinkID: next.id, Stream: &fakeRemoteStream{}}
		ts.waitEvent(t, LinkStateEvent, linkState("A", LinkActive))
	})

	t.Run("higher peer id waits", func(t *testing.T) {
		ts := setupSession(t, "C")
		ts.join(t, "B", "C")

		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{From: "B", LinkID: "link-b", Kind: signal.LinkSignalOffer})
		l := ts.engine.waitLink(t)

		failLink(ts, l)
		tm := ts.timers.wait(t)
		tm.fn()
		ts.engine.expectNoLink(t, 100*time.Millisecond)

		// The remote peer dials again.
		ts.sig.push(t, signal.EventLinkSignal, signal.LinkSignal{From: "B", LinkID: "link-b2", Kind: signal.LinkSignalOffer})
		l = ts.engine.waitLink(t)
		require.Equal(t, "link-b2", l.id)
	})
}

func TestSessionOutboundPolicy(t *testing.T) {
	ts := setupSession(t, "0")
	ts.join(t, "0", "B", "D", "A", "C", "E")

	links := ts.engine.waitLinks(t, 5)

	videoPeers := func() []string {
		var peers []string
		for _, id := range []string{"A", "B", "C", "D", "E"} {
			l, ok := links[id]
			if !ok || l.isClosed() {
				continue
			}
			if l.videoTrack() != nil {
				peers = append(peers, id)
			}
		}
		return peers
	}

	require.Eventually(t, func() bool {
		peers := videoPeers()
		return len(peers) == 3 && peers[0] == "A" && peers[1] == "B" && peers[2] == "C"
	}, waitTimeout, 10*time.Millisecond)

	// A late joiner sorting last doesn't change the allowed set.
	ts.sig.push(t, signal.EventPeerJoined, signal.PeerJoined{Participant: participant("Z"), Mode: room.ModeConstrained})
	z := ts.engine.waitLink(t)
	require.Equal(t, "Z", z.peerID)
	require.Nil(t, z.stream.Video)
	links["Z"] = z
	require.Equal(t, []string{"A", "B", "C"}, videoPeers())

	ts.sig.push(t, signal.EventPeerLeft, signal.PeerLeft{PeerID: "A", Mode: room.ModeConstrained})
	ts.waitEvent(t, PeerLeftEvent, nil)
	require.Eventually(t, func() bool {
		peers := videoPeers()
		return len(peers) == 3 && peers[0] == "B" && peers[1] == "C" && peers[2] == "D"
	}, waitTimeout, 10*time.Millisecond)
	require.Equal(t, ts.video, links["D"].videoTrack())
}

func TestSessionMediaControls(t *testing.T) {
	t.Run("mic and camera", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		ts.engine.waitLink(t)

		require.NoError(t, ts.SetMicEnabled(context.Background(), false))
		require.False(t, ts.audio.Enabled())
		msg := ts.sig.waitFor(t, signal.EventMediaStateChanged)
		update := msg.data.(signal.MediaStateChanged)
		require.False(t, *update.MediaState.MicEnabled)
		require.True(t, *update.MediaState.CamEnabled)

		require.NoError(t, ts.SetCamEnabled(context.Background(), false))
		require.False(t, ts.video.Enabled())
		msg = ts.sig.waitFor(t, signal.EventMediaStateChanged)
		update = msg.data.(signal.MediaStateChanged)
		require.False(t, *update.MediaState.MicEnabled)
		require.False(t, *update.MediaState.CamEnabled)
		require.False(t, *update.MediaState.ScreenSharing)
	})

	t.Run("screen share", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		require.ErrorIs(t, ts.StopScreenShare(context.Background()), ErrNotSharing)
		require.Error(t, ts.StartScreenShare(context.Background(), newFakeTrack("mic", TrackKindAudio)))

		screen := newFakeTrack("screen", TrackKindVideo)
		require.NoError(t, ts.StartScreenShare(context.Background(), screen))
		require.Equal(t, screen, l.videoTrack())
		msg := ts.sig.waitFor(t, signal.EventMediaStateChanged)
		require.True(t, *msg.data.(signal.MediaStateChanged).MediaState.ScreenSharing)

		err := ts.SwitchCamera(context.Background(), newFakeTrack("rear", TrackKindVideo))
		require.ErrorIs(t, err, ErrScreenSharing)

		require.NoError(t, ts.StopScreenShare(context.Background()))
		require.Equal(t, ts.video, l.videoTrack())
		msg = ts.sig.waitFor(t, signal.EventMediaStateChanged)
		require.False(t, *msg.data.(signal.MediaStateChanged).MediaState.ScreenSharing)
	})

	t.Run("switch camera", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")
		l := ts.engine.waitLink(t)

		require.NoError(t, ts.SetCamEnabled(context.Background(), false))

		rear := newFakeTrack("rear", TrackKindVideo)
		require.NoError(t, ts.SwitchCamera(context.Background(), rear))
		require.Equal(t, rear, l.videoTrack())
		require.False(t, rear.Enabled())
	})

	t.Run("chat", func(t *testing.T) {
		ts := setupSession(t, "B")

		require.ErrorIs(t, ts.SendChat(context.Background(), "hello"), ErrNotJoined)

		ts.join(t, "B", "C")
		require.ErrorIs(t, ts.SendChat(context.Background(), "   "), ErrEmptyMessage)
		require.NoError(t, ts.SendChat(context.Background(), "  hello  "))
		msg := ts.sig.waitFor(t, signal.EventChat)
		require.Equal(t, signal.ChatMessage{RoomID: "ABCDEF", Type: "message", Message: "hello"}, msg.data)

		ts.sig.push(t, signal.EventChat, signal.ChatEvent{
			Type:        "message",
			Message:     "hi there",
			PeerID:      "C",
			DisplayName: "user C",
			At:          1000,
		})
		ev := ts.waitEvent(t, ChatEvent, nil)
		require.Equal(t, "C", ev.PeerID)
		require.Equal(t, "hi there", ev.Chat.Message)
	})

	t.Run("peer media", func(t *testing.T) {
		ts := setupSession(t, "B")
		ts.join(t, "B", "C")

		ts.sig.push(t, signal.EventPeerMediaUpdated, signal.PeerMediaUpdated{
			ConnID:     "conn-C",
			PeerID:     "C",
			MediaState: room.MediaState{MicEnabled: false, CamEnabled: true},
		})
		ev := ts.waitEvent(t, PeerMediaUpdatedEvent, nil)
		require.Equal(t, "C", ev.PeerID)
		require.False(t, ev.Participant.MediaState.MicEnabled)
	})
}

func TestSessionActiveSpeaker(t *testing.T) {
	ts := setupSession(t, "B", WithSpeakerInterval(10*time.Millisecond))
	ts.join(t, "B", "C")
	l := ts.engine.waitLink(t)

	// Remote audio usually shows up after the link is connected.
	stream := &fakeRemoteStream{}
	stream.silent.Store(true)
	stream.setLevel(100)
	ts.engine.eventCh <- LinkEvent{Type: LinkEventConnected, PeerID: "C", LinkID: l.id, Stream: stream}
	ts.waitEvent(t, LinkStateEvent, linkState("C", LinkActive))

	ts.sig.expectNone(t, signal.EventActiveSpeaker, 100*time.Millisecond)

	stream.setLevel(speakerLevelThreshold)
	stream.silent.Store(false)
	ts.sig.expectNone(t, signal.EventActiveSpeaker, 100*time.Millisecond)

	stream.setLevel(100)
	msg := ts.sig.waitFor(t, signal.EventActiveSpeaker)
	require.Equal(t, signal.ActiveSpeaker{RoomID: "ABCDEF", PeerID: "C"}, msg.data)

	ts.sig.push(t, signal.EventActiveSpeaker, signal.ActiveSpeaker{PeerID: "C"})
	ev := ts.waitEvent(t, ActiveSpeakerEvent, nil)
	require.Equal(t, "C", ev.PeerID)
}

func TestSessionEncryption(t *testing.T) {
	t.Run("no cipher", func(t *testing.T) {
		ts := setupSession(t, "B")
		_, err := ts.EnableEncryption(context.Background(), "secret passphrase", "secret passphrase")
		require.ErrorIs(t, err, ErrUnsupported)
		require.ErrorIs(t, ts.DisableEncryption(), ErrUnsupported)
		require.Equal(t, e2ee.NoFingerprint, ts.Fingerprint())
	})

	t.Run("enable and disable", func(t *testing.T) {
		log, err := mlog.NewLogger()
		require.NoError(t, err)
		worker := e2ee.NewWorker(log)
		defer func() {
			worker.Close()
			require.NoError(t, log.Shutdown())
		}()

		ts := setupSession(t, "B", WithCipher(worker))

		_, err = ts.EnableEncryption(context.Background(), "secret passphrase", "secret passphrase")
		require.ErrorIs(t, err, ErrNotJoined)

		ts.join(t, "B", "C")

		_, err = ts.EnableEncryption(context.Background(), "short", "short")
		require.ErrorIs(t, err, e2ee.ErrPassphraseTooShort)
		_, err = ts.EnableEncryption(context.Background(), "secret passphrase", "secret passphrasf")
		require.ErrorIs(t, err, e2ee.ErrPassphraseMismatch)

		fp, err := ts.EnableEncryption(context.Background(), "secret passphrase", "secret passphrase")
		require.NoError(t, err)
		require.Equal(t, e2ee.Fingerprint(e2ee.DeriveKey("ABCDEF", "secret passphrase")), fp)
		require.Equal(t, fp, ts.Fingerprint())

		require.NoError(t, ts.DisableEncryption())
		require.Equal(t, e2ee.NoFingerprint, ts.Fingerprint())
	})
}

func TestSessionClose(t *testing.T) {
	log, err := mlog.NewLogger()
	require.NoError(t, err)
	defer func() {
		require.NoError(t, log.Shutdown())
	}()

	sig := newFakeSignaler()
	engine := newFakeEngine()
	s, err := NewSession(Config{SiteURL: "http://localhost", RoomID: "ABCDEF"}, sig, engine, LocalStream{}, WithLogger(log))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.True(t, sig.closed.Load())
	require.True(t, engine.closed.Load())

	require.ErrorIs(t, s.Join(context.Background()), ErrClosed)
	require.ErrorIs(t, s.Leave(context.Background()), ErrClosed)
}
