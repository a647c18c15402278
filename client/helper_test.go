// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"
	"errors"
	"math"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattermost/meshcall/logger"
	"github.com/mattermost/meshcall/service"
	"github.com/mattermost/meshcall/service/api"
	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/signal"

	"github.com/mattermost/mattermost/server/public/shared/mlog"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type sentMsg struct {
	event string
	data  any
}

type fakeSignaler struct {
	sentCh chan sentMsg
	envCh  chan signal.Envelope
	closed atomic.Bool
}

func newFakeSignaler() *fakeSignaler {
	return &fakeSignaler{
		sentCh: make(chan sentMsg, 256),
		envCh:  make(chan signal.Envelope, 64),
	}
}

func (f *fakeSignaler) Send(event string, data any) error {
	if f.closed.Load() {
		return errors.New("closed")
	}
	f.sentCh <- sentMsg{event: event, data: data}
	return nil
}

func (f *fakeSignaler) Receive() <-chan signal.Envelope {
	return f.envCh
}

func (f *fakeSignaler) Close() error {
	f.closed.Store(true)
	return nil
}

// push delivers an event to the session as if the service sent it.
func (f *fakeSignaler) push(t *testing.T, event string, data any) {
	t.Helper()
	msg, err := signal.Encode(signal.MsgpackEncoding, event, data)
	require.NoError(t, err)
	env, err := signal.Decode(signal.MsgpackEncoding, msg)
	require.NoError(t, err)
	f.envCh <- env
}

// waitFor returns the first sent message for event, skipping any other.
func (f *fakeSignaler) waitFor(t *testing.T, event string) sentMsg {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case msg := <-f.sentCh:
			if msg.event == event {
				return msg
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for sent message", event)
		}
	}
}

func (f *fakeSignaler) expectNone(t *testing.T, event string, d time.Duration) {
	t.Helper()
	timeout := time.After(d)
	for {
		select {
		case msg := <-f.sentCh:
			require.NotEqual(t, event, msg.event, "unexpected sent message")
		case <-timeout:
			return
		}
	}
}

type fakeTrack struct {
	id      string
	kind    TrackKind
	enabled atomic.Bool
}

func newFakeTrack(id string, kind TrackKind) *fakeTrack {
	tr := &fakeTrack{id: id, kind: kind}
	tr.enabled.Store(true)
	return tr
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() TrackKind         { return t.kind }
func (t *fakeTrack) Enabled() bool           { return t.enabled.Load() }
func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

type fakeRemoteStream struct {
	level  atomic.Uint64
	silent atomic.Bool
}

func (s *fakeRemoteStream) HasAudio() bool { return !s.silent.Load() }

func (s *fakeRemoteStream) AudioLevel() float64 {
	return math.Float64frombits(s.level.Load())
}

func (s *fakeRemoteStream) setLevel(level float64) {
	s.level.Store(math.Float64bits(level))
}

type fakeLink struct {
	id      string
	peerID  string
	offer   string
	stream  LocalStream
	mut     sync.Mutex
	video   Track
	signals []signal.LinkSignal
	codec   string
	closed  bool
}

func (l *fakeLink) ID() string     { return l.id }
func (l *fakeLink) PeerID() string { return l.peerID }

func (l *fakeLink) HandleSignal(sig signal.LinkSignal) error {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.signals = append(l.signals, sig)
	return nil
}

func (l *fakeLink) ReplaceVideoTrack(track Track) error {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.video = track
	return nil
}

func (l *fakeLink) PreferVideoCodec(mimeType string) error {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.codec = mimeType
	return ErrUnsupported
}

func (l *fakeLink) Close() error {
	l.mut.Lock()
	defer l.mut.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) videoTrack() Track {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.video
}

func (l *fakeLink) codecPreference() string {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.codec
}

func (l *fakeLink) isClosed() bool {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.closed
}

func (l *fakeLink) handled() []signal.LinkSignal {
	l.mut.Lock()
	defer l.mut.Unlock()
	return append([]signal.LinkSignal(nil), l.signals...)
}

type fakeEngine struct {
	linkCh  chan *fakeLink
	eventCh chan LinkEvent
	closed  atomic.Bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		linkCh:  make(chan *fakeLink, 64),
		eventCh: make(chan LinkEvent, 64),
	}
}

func (e *fakeEngine) newLink(peerID, linkID, offer string, stream LocalStream) *fakeLink {
	l := &fakeLink{
		id:     linkID,
		peerID: peerID,
		offer:  offer,
		stream: stream,
		video:  stream.Video,
	}
	e.linkCh <- l
	return l
}

func (e *fakeEngine) Dial(_ context.Context, peerID, linkID string, stream LocalStream) (Link, error) {
	return e.newLink(peerID, linkID, "", stream), nil
}

func (e *fakeEngine) Answer(_ context.Context, peerID, linkID, offer string, stream LocalStream) (Link, error) {
	return e.newLink(peerID, linkID, offer, stream), nil
}

func (e *fakeEngine) Events() <-chan LinkEvent {
	return e.eventCh
}

func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

func (e *fakeEngine) waitLink(t *testing.T) *fakeLink {
	t.Helper()
	select {
	case l := <-e.linkCh:
		return l
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for link")
	}
	return nil
}

// waitLinks collects n links keyed by peer id.
func (e *fakeEngine) waitLinks(t *testing.T, n int) map[string]*fakeLink {
	t.Helper()
	links := make(map[string]*fakeLink, n)
	for i := 0; i < n; i++ {
		l := e.waitLink(t)
		links[l.peerID] = l
	}
	return links
}

func (e *fakeEngine) expectNoLink(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case l := <-e.linkCh:
		require.FailNow(t, "unexpected link", l.peerID)
	case <-time.After(d):
	}
}

type scheduledTimer struct {
	delay time.Duration
	fn    func()
}

type fakeTimers struct {
	ch chan scheduledTimer
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{ch: make(chan scheduledTimer, 16)}
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) {
	f.ch <- scheduledTimer{delay: d, fn: fn}
}

func (f *fakeTimers) wait(t *testing.T) scheduledTimer {
	t.Helper()
	select {
	case tm := <-f.ch:
		return tm
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for timer")
	}
	return scheduledTimer{}
}

func (f *fakeTimers) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case tm := <-f.ch:
		require.FailNow(t, "unexpected timer", tm.delay.String())
	case <-time.After(d):
	}
}

type testSession struct {
	*Session
	sig    *fakeSignaler
	engine *fakeEngine
	timers *fakeTimers
	audio  *fakeTrack
	video  *fakeTrack
}

func setupSession(t *testing.T, peerID string, opts ...Option) *testSession {
	t.Helper()

	log, err := mlog.NewLogger()
	require.NoError(t, err)

	ts := &testSession{
		sig:    newFakeSignaler(),
		engine: newFakeEngine(),
		timers: newFakeTimers(),
		audio:  newFakeTrack("audio", TrackKindAudio),
		video:  newFakeTrack("camera", TrackKindVideo),
	}

	opts = append([]Option{WithLogger(log), WithAfterFunc(ts.timers.afterFunc)}, opts...)
	ts.Session, err = NewSession(Config{
		SiteURL:     "http://localhost:3000",
		RoomID:      "ABCDEF",
		PeerID:      peerID,
		DisplayName: "user " + peerID,
	}, ts.sig, ts.engine, LocalStream{Audio: ts.audio, Video: ts.video}, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, ts.Close())
		require.NoError(t, log.Shutdown())
	})

	return ts
}

func participant(peerID string) room.Participant {
	return room.Participant{
		ConnID:      "conn-" + peerID,
		PeerID:      peerID,
		DisplayName: "user " + peerID,
		MediaState:  room.DefaultMediaState(),
	}
}

func participants(peerIDs ...string) []room.Participant {
	ps := make([]room.Participant, 0, len(peerIDs))
	for _, id := range peerIDs {
		ps = append(ps, participant(id))
	}
	return ps
}

// join performs the join handshake with the given room members, the
// session's own peer included.
func (ts *testSession) join(t *testing.T, peerIDs ...string) {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ts.Join(context.Background())
	}()

	msg := ts.sig.waitFor(t, signal.EventJoinRoom)
	req, ok := msg.data.(signal.JoinRoom)
	require.True(t, ok)
	require.Equal(t, "ABCDEF", req.RoomID)
	require.Equal(t, ts.PeerID(), req.PeerID)

	ts.sig.push(t, signal.EventRoomState, signal.RoomState{
		RoomID:          "ABCDEF",
		Mode:            room.ModeFor(len(peerIDs)),
		MaxParticipants: room.Capacity,
		Participants:    participants(peerIDs...),
	})

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out joining")
	}
}

func (ts *testSession) waitEvent(t *testing.T, typ EventType, pred func(ev Event) bool) Event {
	t.Helper()
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev := <-ts.Events():
			if ev.Type == typ && (pred == nil || pred(ev)) {
				return ev
			}
		case <-timeout:
			require.FailNow(t, "timed out waiting for event", string(typ))
		}
	}
}

func linkState(peerID string, state LinkState) func(ev Event) bool {
	return func(ev Event) bool {
		return ev.PeerID == peerID && ev.LinkState == state
	}
}

// setupService starts a meshcall service on an ephemeral port and returns
// its URL.
func setupService(t *testing.T) string {
	t.Helper()

	cfg := service.Config{
		API: service.APIConfig{
			HTTP: api.Config{
				ListenAddress: "127.0.0.1:0",
			},
		},
		Signaling: service.SignalingConfig{
			PingIntervalSeconds:       10,
			RoomReservationTTLMinutes: 10,
			MessageRateLimit:          1000,
			MessageBurst:              1000,
		},
		Logger: logger.Config{
			EnableConsole: true,
			ConsoleLevel:  "ERROR",
		},
	}

	srvc, err := service.New(cfg)
	require.NoError(t, err)
	require.NoError(t, srvc.Start())
	t.Cleanup(func() {
		require.NoError(t, srvc.Stop())
	})

	_, port, err := net.SplitHostPort(srvc.Addr())
	require.NoError(t, err)

	return "http://127.0.0.1:" + port
}
