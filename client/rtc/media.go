// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"fmt"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var (
	rtpAudioCodec = webrtc.RTPCodecCapability{
		MimeType:     webrtc.MimeTypeOpus,
		ClockRate:    48000,
		Channels:     2,
		SDPFmtpLine:  "minptime=10;useinbandfec=1",
		RTCPFeedback: nil,
	}
	rtpVideoCodecVP8 = webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeVP8,
		ClockRate:   90000,
		Channels:    0,
		SDPFmtpLine: "",
		RTCPFeedback: []webrtc.RTCPFeedback{
			{Type: "goog-remb", Parameter: ""},
			{Type: "ccm", Parameter: "fir"},
			{Type: "nack", Parameter: ""},
			{Type: "nack", Parameter: "pli"},
		},
	}
	rtpVideoCodecH264 = webrtc.RTPCodecCapability{
		MimeType:     webrtc.MimeTypeH264,
		ClockRate:    90000,
		Channels:     0,
		SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		RTCPFeedback: rtpVideoCodecVP8.RTCPFeedback,
	}
)

var videoCodecs = []webrtc.RTPCodecParameters{
	{RTPCodecCapability: rtpVideoCodecVP8, PayloadType: 96},
	{RTPCodecCapability: rtpVideoCodecH264, PayloadType: 102},
}

func initMediaEngine() (*webrtc.MediaEngine, error) {
	var m webrtc.MediaEngine

	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: rtpAudioCodec,
		PayloadType:        111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register audio codec: %w", err)
	}

	for _, codec := range videoCodecs {
		if err := m.RegisterCodec(codec, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("failed to register video codec: %w", err)
		}
	}

	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.AudioLevelURI}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register header extension: %w", err)
	}

	return &m, nil
}

// initInterceptors sets up the interceptor chain of a link. The frame
// interceptor is added last so that it sits closest to the tracks: outgoing
// packets get encrypted before the NACK responder caches them.
func initInterceptors(m *webrtc.MediaEngine, cfg Config, frames interceptor.Factory) (*interceptor.Registry, error) {
	var i interceptor.Registry

	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create nack generator: %w", err)
	}

	responder, err := nack.NewResponderInterceptor(nack.ResponderSize(uint16(cfg.NACKBufferSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create nack responder: %w", err)
	}

	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)
	i.Add(responder)
	i.Add(generator)

	if err := webrtc.ConfigureRTCPReports(&i); err != nil {
		return nil, fmt.Errorf("failed to configure rtcp reports: %w", err)
	}

	if frames != nil {
		i.Add(frames)
	}

	return &i, nil
}

func (e *Engine) initSettingEngine() webrtc.SettingEngine {
	s := webrtc.SettingEngine{
		LoggerFactory: loggerFactory{log: e.log},
	}
	s.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	s.SetIncludeLoopbackCandidate(e.cfg.IncludeLoopbackCandidates)
	s.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6})
	s.SetReceiveMTU(receiveMTU)
	return s
}
