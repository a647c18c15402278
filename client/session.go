// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattermost/meshcall/client/e2ee"
	"github.com/mattermost/meshcall/service/room"
	"github.com/mattermost/meshcall/service/signal"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

const (
	eventChSize    = 256
	requestChSize  = 16
	speakerChSize  = 16
	preferredCodec = "video/VP8"
	chatTypeText   = "message"
)

type sessionRequest struct {
	fn    func() error
	errCh chan error
}

type reconnectFire struct {
	peerID string
}

// Session is a participant in a room. It keeps a media link to every other
// member and decides what each link sends. All its state is owned by a single
// loop goroutine, public methods post requests to it.
type Session struct {
	cfg    Config
	log    mlog.LoggerIFace
	sig    Signaler
	engine MediaEngine
	cipher *e2ee.Worker

	afterFunc       AfterFunc
	speakerInterval time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	reqCh     chan sessionRequest
	timerCh   chan reconnectFire
	speakerCh chan speakerSample
	eventCh   chan Event
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	// Loop owned.
	local     LocalStream
	screen    Track
	media     room.MediaState
	roomID    string
	joined    bool
	joinCh    chan error
	mode      room.Mode
	roster    map[string]room.Participant
	entries   map[string]*peerLink
	reconnect *reconnectState
	monitors  map[string]*speakerMonitor
}

// NewSession creates a session for the room in cfg, signaling through sig and
// creating links with engine. The session owns both from now on and closes
// them on Close.
func NewSession(cfg Config, sig Signaler, engine MediaEngine, local LocalStream, opts ...Option) (*Session, error) {
	if err := cfg.Parse(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	if sig == nil {
		return nil, fmt.Errorf("invalid signaler value: should not be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("invalid engine value: should not be nil")
	}

	s := &Session{
		cfg:             cfg,
		sig:             sig,
		engine:          engine,
		afterFunc:       timeAfterFunc,
		speakerInterval: defaultSpeakerInterval,
		reqCh:           make(chan sessionRequest, requestChSize),
		timerCh:         make(chan reconnectFire, requestChSize),
		speakerCh:       make(chan speakerSample, speakerChSize),
		eventCh:         make(chan Event, eventChSize),
		closeCh:         make(chan struct{}),
		doneCh:          make(chan struct{}),
		local:           local,
		media:           room.DefaultMediaState(),
		mode:            room.ModeMesh,
		roster:          make(map[string]room.Participant),
		entries:         make(map[string]*peerLink),
		reconnect:       newReconnectState(),
		monitors:        make(map[string]*speakerMonitor),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if s.log == nil {
		log, err := mlog.NewLogger()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		s.log = log
	}

	if local.Audio != nil {
		s.media.MicEnabled = local.Audio.Enabled()
	} else {
		s.media.MicEnabled = false
	}
	if local.Video != nil {
		s.media.CamEnabled = local.Video.Enabled()
	} else {
		s.media.CamEnabled = false
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	go s.loop()

	return s, nil
}

// PeerID returns the id other members address this session by.
func (s *Session) PeerID() string {
	return s.cfg.PeerID
}

// Events returns the channel on which session events are delivered. Events
// are dropped if the channel is not drained.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

func (s *Session) loop() {
	defer close(s.doneCh)

	envCh := s.sig.Receive()
	linkCh := s.engine.Events()

	for {
		select {
		case env, ok := <-envCh:
			if !ok {
				envCh = nil
				s.log.Warn("signaling connection closed")
				s.teardown()
				s.failJoin(ErrClosed)
				s.emit(Event{Type: DisconnectEvent})
				continue
			}
			s.handleEnvelope(env)
		case ev, ok := <-linkCh:
			if !ok {
				linkCh = nil
				continue
			}
			s.handleLinkEvent(ev)
		case fire := <-s.timerCh:
			s.handleReconnect(fire.peerID)
		case sample := <-s.speakerCh:
			s.handleSpeakerSample(sample)
		case req := <-s.reqCh:
			req.errCh <- req.fn()
		case <-s.closeCh:
			s.teardown()
			s.failJoin(ErrClosed)
			return
		}
	}
}

// do runs fn on the session loop and returns its error.
func (s *Session) do(ctx context.Context, fn func() error) error {
	req := sessionRequest{
		fn:    fn,
		errCh: make(chan error, 1),
	}

	select {
	case s.reqCh <- req:
	case <-s.doneCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.errCh:
		return err
	case <-s.doneCh:
		select {
		case err := <-req.errCh:
			return err
		default:
			return ErrClosed
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.eventCh <- ev:
	default:
		s.log.Warn("event channel is full, dropping event", mlog.String("type", string(ev.Type)))
	}
}

func (s *Session) send(event string, data any) {
	if err := s.sig.Send(event, data); err != nil {
		s.log.Error("failed to send signaling message", mlog.String("event", event), mlog.Err(err))
	}
}

func (s *Session) failJoin(err error) {
	if s.joinCh == nil {
		return
	}
	s.joinCh <- err
	s.joinCh = nil
}

// Join asks the service to admit the session into the configured room and
// waits for the answer. A rejection is returned as a *JoinError.
func (s *Session) Join(ctx context.Context) error {
	waitCh := make(chan error, 1)

	if err := s.do(ctx, func() error {
		if s.joined || s.joinCh != nil {
			return ErrAlreadyJoined
		}
		if err := s.sig.Send(signal.EventJoinRoom, signal.JoinRoom{
			RoomID:      s.cfg.RoomID,
			PeerID:      s.cfg.PeerID,
			DisplayName: s.cfg.DisplayName,
		}); err != nil {
			return fmt.Errorf("failed to send join: %w", err)
		}
		s.joinCh = waitCh
		return nil
	}); err != nil {
		return err
	}

	select {
	case err := <-waitCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Leave leaves the room, closing every link.
func (s *Session) Leave(ctx context.Context) error {
	return s.do(ctx, func() error {
		if !s.joined {
			return ErrNotJoined
		}
		s.send(signal.EventLeaveRoom, signal.LeaveRoom{RoomID: s.roomID})
		s.teardown()
		return nil
	})
}

// teardown closes all links and forgets the room state.
func (s *Session) teardown() {
	for peerID := range s.entries {
		s.closeEntry(peerID, LinkClosed)
	}
	clear(s.roster)
	s.reconnect.clear()
	s.joined = false
	s.mode = room.ModeMesh
}

func (s *Session) emitMediaState() {
	if !s.joined {
		return
	}
	s.send(signal.EventMediaStateChanged, signal.MediaStateChanged{
		RoomID:     s.roomID,
		MediaState: s.media.Patch(),
	})
}

// SetMicEnabled toggles the local audio track. The change is seen by every
// link at once.
func (s *Session) SetMicEnabled(ctx context.Context, enabled bool) error {
	return s.do(ctx, func() error {
		if s.local.Audio == nil {
			return fmt.Errorf("no local audio track")
		}
		s.local.Audio.SetEnabled(enabled)
		s.media.MicEnabled = enabled
		s.emitMediaState()
		return nil
	})
}

// SetCamEnabled toggles the local video track.
func (s *Session) SetCamEnabled(ctx context.Context, enabled bool) error {
	return s.do(ctx, func() error {
		if s.local.Video == nil {
			return fmt.Errorf("no local video track")
		}
		s.local.Video.SetEnabled(enabled)
		s.media.CamEnabled = enabled
		s.emitMediaState()
		return nil
	})
}

// StartScreenShare sends track in place of the camera on every link allowed
// to receive video.
func (s *Session) StartScreenShare(ctx context.Context, track Track) error {
	if track == nil || track.Kind() != TrackKindVideo {
		return fmt.Errorf("invalid track: should be a video track")
	}
	return s.do(ctx, func() error {
		s.screen = track
		s.media.ScreenSharing = true
		s.emitMediaState()
		s.applyPolicy()
		return nil
	})
}

func (s *Session) StopScreenShare(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.screen == nil {
			return ErrNotSharing
		}
		s.screen = nil
		s.media.ScreenSharing = false
		s.emitMediaState()
		s.applyPolicy()
		return nil
	})
}

// SwitchCamera replaces the local camera track. It's rejected while sharing
// the screen.
func (s *Session) SwitchCamera(ctx context.Context, track Track) error {
	if track == nil || track.Kind() != TrackKindVideo {
		return fmt.Errorf("invalid track: should be a video track")
	}
	return s.do(ctx, func() error {
		if s.screen != nil {
			return ErrScreenSharing
		}
		track.SetEnabled(s.media.CamEnabled)
		s.local.Video = track
		s.applyPolicy()
		return nil
	})
}

func (s *Session) SendChat(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}
	return s.do(ctx, func() error {
		if !s.joined {
			return ErrNotJoined
		}
		return s.sig.Send(signal.EventChat, signal.ChatMessage{
			RoomID:  s.roomID,
			Type:    chatTypeText,
			Message: message,
		})
	})
}

// EnableEncryption derives the frame key from passphrase and turns the frame
// cipher on for every link. It returns the key fingerprint.
func (s *Session) EnableEncryption(ctx context.Context, passphrase, confirm string) (string, error) {
	if s.cipher == nil {
		return "", ErrUnsupported
	}
	if err := e2ee.ValidatePassphrase(passphrase, confirm); err != nil {
		return "", err
	}

	var fp string
	err := s.do(ctx, func() error {
		if !s.joined {
			return ErrNotJoined
		}
		key := e2ee.DeriveKey(s.roomID, passphrase)
		if err := s.cipher.Configure(key, true); err != nil {
			return fmt.Errorf("failed to configure cipher: %w", err)
		}
		fp = e2ee.Fingerprint(key)
		s.log.Info("e2ee enabled", mlog.String("fingerprint", fp))
		return nil
	})

	return fp, err
}

// DisableEncryption turns the frame cipher off. The key is kept until it's
// enabled again.
func (s *Session) DisableEncryption() error {
	if s.cipher == nil {
		return ErrUnsupported
	}
	if err := s.cipher.Configure(nil, false); err != nil {
		return fmt.Errorf("failed to configure cipher: %w", err)
	}
	s.log.Info("e2ee disabled")
	return nil
}

// Fingerprint returns the fingerprint of the active frame key.
func (s *Session) Fingerprint() string {
	if s.cipher == nil {
		return e2ee.NoFingerprint
	}
	return s.cipher.Fingerprint()
}

// Close permanently stops the session, its signaler and its media engine.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		<-s.doneCh
		s.cancel()

		if sigErr := s.sig.Close(); sigErr != nil {
			err = fmt.Errorf("failed to close signaler: %w", sigErr)
		}
		if engineErr := s.engine.Close(); engineErr != nil && err == nil {
			err = fmt.Errorf("failed to close engine: %w", engineErr)
		}
	})
	return err
}
