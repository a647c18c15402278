// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"strings"

	"github.com/mattermost/meshcall/client/e2ee"
	"github.com/mattermost/meshcall/service/perf"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
)

// frameFactory builds the interceptor transforming the RTP payloads of a
// single link. Either transform can be nil, in which case payloads go
// through untouched. When audio is set its level is stamped on outgoing
// audio packets.
type frameFactory struct {
	encoder *e2ee.Transform
	decoder *e2ee.Transform
	audio   *LocalTrack
	metrics *perf.Metrics
}

func (f *frameFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &frameInterceptor{
		encoder: f.encoder,
		decoder: f.decoder,
		audio:   f.audio,
		metrics: f.metrics,
	}, nil
}

type frameInterceptor struct {
	interceptor.NoOp
	encoder *e2ee.Transform
	decoder *e2ee.Transform
	audio   *LocalTrack
	metrics *perf.Metrics
}

func trackType(info *interceptor.StreamInfo) string {
	if mime := strings.ToLower(info.MimeType); strings.HasPrefix(mime, "audio/") {
		return "audio"
	}
	return "video"
}

func levelExtensionID(info *interceptor.StreamInfo) uint8 {
	for _, ext := range info.RTPHeaderExtensions {
		if ext.URI == sdp.AudioLevelURI {
			return uint8(ext.ID)
		}
	}
	return 0
}

// stampLevel sets the audio level extension on header. Header extensions
// are never encrypted.
func (i *frameInterceptor) stampLevel(header *rtp.Header, extID uint8) {
	level, ok := i.audio.audioLevel()
	if !ok {
		return
	}
	data, err := rtp.AudioLevelExtension{Level: level, Voice: level < maxAudioLevel}.Marshal()
	if err != nil {
		return
	}
	_ = header.SetExtension(extID, data)
}

func (i *frameInterceptor) BindLocalStream(info *interceptor.StreamInfo, writer interceptor.RTPWriter) interceptor.RTPWriter {
	kind := trackType(info)
	var levelExtID uint8
	if kind == "audio" && i.audio != nil {
		levelExtID = levelExtensionID(info)
	}
	return interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, attributes interceptor.Attributes) (int, error) {
		if i.metrics != nil {
			i.metrics.IncRTPPackets("out", kind)
		}
		if levelExtID != 0 {
			i.stampLevel(header, levelExtID)
		}
		if i.encoder == nil || len(payload) == 0 {
			return writer.Write(header, payload, attributes)
		}
		out, _ := i.encoder.Process(payload)
		return writer.Write(header, out, attributes)
	})
}

func (i *frameInterceptor) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	kind := trackType(info)
	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		for {
			n, attr, err := reader.Read(b, a)
			if err != nil {
				return n, attr, err
			}
			if i.metrics != nil {
				i.metrics.IncRTPPackets("in", kind)
			}
			if i.decoder == nil {
				return n, attr, nil
			}

			var pkt rtp.Packet
			if err := pkt.Unmarshal(b[:n]); err != nil {
				return n, attr, nil
			}
			if len(pkt.Payload) == 0 {
				return n, attr, nil
			}

			payload, ok := i.decoder.Process(pkt.Payload)
			if !ok {
				if i.metrics != nil {
					i.metrics.IncCipherDrops(e2ee.Decode.String())
				}
				continue
			}
			pkt.Payload = payload
			pkt.Padding = false
			pkt.PaddingSize = 0

			m, err := pkt.MarshalTo(b)
			if err != nil {
				return 0, attr, err
			}
			// Attributes may cache the header decoded from the old bytes.
			return m, make(interceptor.Attributes), nil
		}
	})
}
