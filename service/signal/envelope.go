// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects the wire format of an envelope. JSON envelopes travel as
// WebSocket text frames, msgpack ones as binary frames.
type Encoding int

const (
	JSONEncoding Encoding = iota + 1
	MsgpackEncoding
)

func (e Encoding) String() string {
	switch e {
	case JSONEncoding:
		return "json"
	case MsgpackEncoding:
		return "msgpack"
	default:
		return "unknown"
	}
}

var ErrEmptyEvent = errors.New("empty event name")

// Envelope is a decoded signaling message whose payload is kept in its wire
// form until the receiver knows the concrete type to decode it into.
type Envelope struct {
	Event string
	Data  []byte
	enc   Encoding
}

func (e Envelope) Encoding() Encoding {
	return e.enc
}

// Decode unmarshals the envelope payload into v. A missing payload leaves v
// untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	switch e.enc {
	case JSONEncoding:
		if err := json.Unmarshal(e.Data, v); err != nil {
			return fmt.Errorf("failed to unmarshal %s data: %w", e.Event, err)
		}
	case MsgpackEncoding:
		dec := msgpack.NewDecoder(bytes.NewReader(e.Data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("failed to unmarshal %s data: %w", e.Event, err)
		}
	default:
		return fmt.Errorf("invalid encoding %d", e.enc)
	}
	return nil
}

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an event and its payload using the given encoding.
func Encode(enc Encoding, event string, data any) ([]byte, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}

	switch enc {
	case JSONEncoding:
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", event, err)
		}
		return json.Marshal(jsonEnvelope{Event: event, Data: payload})
	case MsgpackEncoding:
		var buf bytes.Buffer
		e := msgpack.GetEncoder()
		defer msgpack.PutEncoder(e)
		e.Reset(&buf)
		e.SetCustomStructTag("json")
		if err := e.EncodeArrayLen(2); err != nil {
			return nil, err
		}
		if err := e.EncodeString(event); err != nil {
			return nil, err
		}
		if err := e.Encode(data); err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", event, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("invalid encoding %d", enc)
	}
}

// Decode parses a raw message into an envelope.
func Decode(enc Encoding, msg []byte) (Envelope, error) {
	switch enc {
	case JSONEncoding:
		var je jsonEnvelope
		if err := json.Unmarshal(msg, &je); err != nil {
			return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
		}
		if je.Event == "" {
			return Envelope{}, ErrEmptyEvent
		}
		env := Envelope{Event: je.Event, enc: enc}
		if len(je.Data) > 0 && !bytes.Equal(je.Data, []byte("null")) {
			env.Data = je.Data
		}
		return env, nil
	case MsgpackEncoding:
		dec := msgpack.NewDecoder(bytes.NewReader(msg))
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
		}
		if n < 1 || n > 2 {
			return Envelope{}, fmt.Errorf("invalid envelope length %d", n)
		}
		event, err := dec.DecodeString()
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to decode event: %w", err)
		}
		if event == "" {
			return Envelope{}, ErrEmptyEvent
		}
		env := Envelope{Event: event, enc: enc}
		if n == 2 {
			raw, err := dec.DecodeRaw()
			if err != nil {
				return Envelope{}, fmt.Errorf("failed to decode %s data: %w", event, err)
			}
			env.Data = raw
		}
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("invalid encoding %d", enc)
	}
}
