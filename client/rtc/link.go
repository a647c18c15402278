// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mattermost/meshcall/client"
	"github.com/mattermost/meshcall/service/signal"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

const linkQueueSize = 64

// Link is a peer connection to a single remote peer, carrying one audio and
// one video transceiver.
type Link struct {
	id     string
	peerID string
	engine *Engine
	log    mlog.LoggerIFace
	pc     *webrtc.PeerConnection
	audio  *webrtc.RTPTransceiver
	video  *webrtc.RTPTransceiver
	remote *remoteStream

	queue   chan client.LinkEvent
	closeCh chan struct{}
	wg      sync.WaitGroup

	mut        sync.Mutex
	candidates []webrtc.ICECandidateInit
	videoTrack *LocalTrack
	connected  bool
	closed     bool
}

func newLink(e *Engine, api *webrtc.API, peerID, linkID string, stream client.LocalStream) (*Link, error) {
	audioTrack, err := asLocalTrack(stream.Audio)
	if err != nil {
		return nil, err
	}
	videoTrack, err := asLocalTrack(stream.Video)
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   e.cfg.ICEServers.toWebRTC(),
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	l := &Link{
		id:      linkID,
		peerID:  peerID,
		engine:  e,
		log:     e.log,
		pc:      pc,
		remote:  &remoteStream{},
		queue:   make(chan client.LinkEvent, linkQueueSize),
		closeCh: make(chan struct{}),
	}

	init := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv}
	if l.audio, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, init); err == nil {
		l.video, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, init)
	}
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("failed to add transceiver: %w", err)
	}

	if err := l.setTrack(l.audio, audioTrack); err != nil {
		pc.Close()
		return nil, err
	}
	if err := l.setTrack(l.video, videoTrack); err != nil {
		pc.Close()
		return nil, err
	}
	l.videoTrack = videoTrack

	pc.OnICECandidate(l.onICECandidate)
	pc.OnConnectionStateChange(l.onConnectionStateChange)
	pc.OnTrack(l.onTrack)

	l.wg.Add(3)
	go l.forward()
	go l.readSenderRTCP(l.audio.Sender(), func() *LocalTrack { return audioTrack })
	go l.readSenderRTCP(l.video.Sender(), l.currentVideoTrack)

	return l, nil
}

func (l *Link) ID() string {
	return l.id
}

func (l *Link) PeerID() string {
	return l.peerID
}

func (l *Link) setTrack(tr *webrtc.RTPTransceiver, track *LocalTrack) error {
	var local webrtc.TrackLocal
	if track != nil {
		local = track.local
	}
	if err := tr.Sender().ReplaceTrack(local); err != nil {
		return fmt.Errorf("failed to replace track: %w", err)
	}
	return nil
}

func (l *Link) currentVideoTrack() *LocalTrack {
	l.mut.Lock()
	defer l.mut.Unlock()
	return l.videoTrack
}

// push queues an event for delivery. Events of a link are forwarded to the
// engine in order by a dedicated goroutine.
func (l *Link) push(ev client.LinkEvent) {
	ev.PeerID = l.peerID
	ev.LinkID = l.id
	select {
	case l.queue <- ev:
	case <-l.closeCh:
	}
}

func (l *Link) forward() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.queue:
			select {
			case l.engine.eventCh <- ev:
			case <-l.engine.closeCh:
				return
			case <-l.closeCh:
				return
			}
		case <-l.closeCh:
			return
		}
	}
}

func (l *Link) pushSignal(kind signal.LinkSignalKind, sdpData, candidate string) {
	l.push(client.LinkEvent{
		Type: client.LinkEventSignal,
		Signal: signal.LinkSignal{
			Kind:      kind,
			SDP:       sdpData,
			Candidate: candidate,
		},
	})
}

// offer creates and sends the offer. The signal is queued before the local
// description is applied so that it precedes any gathered candidate.
func (l *Link) offer(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	l.pushSignal(signal.LinkSignalOffer, offer.SDP, "")

	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	return nil
}

func (l *Link) answer(ctx context.Context, offerSDP string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := l.setRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	l.pushSignal(signal.LinkSignalAnswer, answer.SDP, "")

	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	return nil
}

// setRemoteDescription applies sd and flushes the candidates that arrived
// before it.
func (l *Link) setRemoteDescription(sd webrtc.SessionDescription) error {
	if _, err := sd.Unmarshal(); err != nil {
		return fmt.Errorf("failed to parse description: %w", err)
	}

	l.mut.Lock()
	defer l.mut.Unlock()

	if err := l.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	for _, c := range l.candidates {
		if err := l.pc.AddICECandidate(c); err != nil {
			l.log.Warn("failed to add queued candidate", mlog.String("linkID", l.id), mlog.Err(err))
		}
	}
	l.candidates = nil

	return nil
}

func (l *Link) addCandidate(data string) error {
	var c webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return fmt.Errorf("failed to unmarshal candidate: %w", err)
	}
	if c.Candidate == "" {
		return nil
	}

	l.mut.Lock()
	defer l.mut.Unlock()

	if l.pc.RemoteDescription() == nil {
		l.candidates = append(l.candidates, c)
		return nil
	}

	if err := l.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("failed to add candidate: %w", err)
	}

	return nil
}

func (l *Link) HandleSignal(sig signal.LinkSignal) error {
	switch sig.Kind {
	case signal.LinkSignalAnswer:
		return l.setRemoteDescription(webrtc.SessionDescription{
			Type: webrtc.SDPTypeAnswer,
			SDP:  sig.SDP,
		})
	case signal.LinkSignalCandidate:
		return l.addCandidate(sig.Candidate)
	default:
		return fmt.Errorf("unexpected signal kind %q", sig.Kind)
	}
}

func (l *Link) ReplaceVideoTrack(track client.Track) error {
	lt, err := asLocalTrack(track)
	if err != nil {
		return err
	}

	if err := l.setTrack(l.video, lt); err != nil {
		return err
	}

	l.mut.Lock()
	l.videoTrack = lt
	l.mut.Unlock()

	return nil
}

// PreferVideoCodec reorders the video codecs offered in the next
// negotiation. VP8 is preferred from the start.
func (l *Link) PreferVideoCodec(mimeType string) error {
	var preferred, rest []webrtc.RTPCodecParameters
	for _, codec := range videoCodecs {
		if strings.EqualFold(codec.MimeType, mimeType) {
			preferred = append(preferred, codec)
		} else {
			rest = append(rest, codec)
		}
	}
	if len(preferred) == 0 {
		return client.ErrUnsupported
	}

	if err := l.video.SetCodecPreferences(append(preferred, rest...)); err != nil {
		return fmt.Errorf("failed to set codec preferences: %w", err)
	}

	return nil
}

func (l *Link) onICECandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		l.log.Error("failed to marshal candidate", mlog.String("linkID", l.id), mlog.Err(err))
		return
	}
	l.pushSignal(signal.LinkSignalCandidate, "", string(data))
}

func (l *Link) onConnectionStateChange(st webrtc.PeerConnectionState) {
	l.log.Debug("connection state change",
		mlog.String("linkID", l.id),
		mlog.String("peerID", l.peerID),
		mlog.String("state", st.String()))

	if l.engine.metrics != nil {
		l.engine.metrics.IncRTCLinkState(st.String())
	}

	l.mut.Lock()
	closed := l.closed
	l.mut.Unlock()
	if closed {
		return
	}

	switch st {
	case webrtc.PeerConnectionStateConnected:
		l.mut.Lock()
		first := !l.connected
		l.connected = true
		l.mut.Unlock()
		if first {
			l.push(client.LinkEvent{
				Type:   client.LinkEventConnected,
				Stream: l.remote,
			})
		}
	case webrtc.PeerConnectionStateFailed:
		l.push(client.LinkEvent{
			Type: client.LinkEventFailed,
			Err:  errors.New("peer connection failed"),
		})
	case webrtc.PeerConnectionStateClosed:
		l.push(client.LinkEvent{
			Type: client.LinkEventClosed,
		})
	}
}

func (l *Link) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	// The reader must be accounted for before Close waits on it.
	l.mut.Lock()
	if l.closed {
		l.mut.Unlock()
		return
	}
	l.wg.Add(1)
	l.mut.Unlock()

	l.log.Debug("track received",
		mlog.String("linkID", l.id),
		mlog.String("kind", track.Kind().String()),
		mlog.String("mime", track.Codec().MimeType))

	var levelExtID uint8
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		l.remote.hasAudio.Store(true)
		for _, ext := range receiver.GetParameters().HeaderExtensions {
			if ext.URI == sdp.AudioLevelURI {
				levelExtID = uint8(ext.ID)
			}
		}
	}

	go func() {
		defer l.wg.Done()
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					l.log.Debug("failed to read track", mlog.String("linkID", l.id), mlog.Err(err))
				}
				return
			}
			l.remote.readLevel(pkt, levelExtID)
		}
	}()
}

// readSenderRTCP drains the RTCP received for a sender, which is needed for
// interceptors to work, and relays keyframe requests to the track.
func (l *Link) readSenderRTCP(sender *webrtc.RTPSender, track func() *LocalTrack) {
	defer l.wg.Done()
	buf := make([]byte, receiveMTU)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			continue
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				if t := track(); t != nil {
					t.requestKeyframe()
				}
			}
		}
	}
}

func (l *Link) Close() error {
	l.mut.Lock()
	if l.closed {
		l.mut.Unlock()
		return nil
	}
	l.closed = true
	l.mut.Unlock()

	close(l.closeCh)
	err := l.pc.Close()
	l.wg.Wait()
	l.engine.removeLink(l.id)

	if err != nil {
		return fmt.Errorf("failed to close peer connection: %w", err)
	}
	return nil
}
