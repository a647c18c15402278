// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/mattermost/meshcall/logger"
	"github.com/mattermost/meshcall/service/api"
	"github.com/mattermost/meshcall/service/signal"
	"github.com/mattermost/meshcall/service/ws"

	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type TestHelper struct {
	srvc   *Service
	cfg    Config
	tb     testing.TB
	apiURL string
	wsURL  string
}

func defaultTestConfig() Config {
	return Config{
		API: APIConfig{
			HTTP: api.Config{
				ListenAddress: "127.0.0.1:0",
			},
		},
		Signaling: SignalingConfig{
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
}

func SetupTestHelper(tb testing.TB, cfg *Config, opts ...Option) *TestHelper {
	tb.Helper()

	th := &TestHelper{
		cfg: defaultTestConfig(),
		tb:  tb,
	}
	if cfg != nil {
		th.cfg = *cfg
	}

	var err error
	th.srvc, err = New(th.cfg, opts...)
	require.NoError(th.tb, err)
	require.NotNil(th.tb, th.srvc)

	err = th.srvc.Start()
	require.NoError(th.tb, err)

	_, port, err := net.SplitHostPort(th.srvc.Addr())
	require.NoError(th.tb, err)
	th.apiURL = "http://127.0.0.1:" + port
	th.wsURL = "ws://127.0.0.1:" + port + "/ws"

	return th
}

func (th *TestHelper) Teardown() {
	err := th.srvc.Stop()
	require.NoError(th.tb, err)
}

func (th *TestHelper) getJSON(path string, v any) int {
	th.tb.Helper()
	resp, err := http.Get(th.apiURL + path)
	require.NoError(th.tb, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(th.tb, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

type testClient struct {
	tb  testing.TB
	c   *ws.Client
	enc signal.Encoding
}

func (th *TestHelper) newClient(enc signal.Encoding) *testClient {
	th.tb.Helper()
	c, err := ws.NewClient(context.Background(), ws.ClientConfig{URL: th.wsURL})
	require.NoError(th.tb, err)
	tc := &testClient{
		tb:  th.tb,
		c:   c,
		enc: enc,
	}
	th.tb.Cleanup(func() {
		_ = c.Close()
	})
	return tc
}

func (tc *testClient) send(event string, data any) {
	tc.tb.Helper()
	msg, err := signal.Encode(tc.enc, event, data)
	require.NoError(tc.tb, err)
	mt := ws.TextMessage
	if tc.enc == signal.MsgpackEncoding {
		mt = ws.BinaryMessage
	}
	require.NoError(tc.tb, tc.c.Send(mt, msg))
}

func (tc *testClient) join(roomID, peerID, name string) {
	tc.tb.Helper()
	tc.send(signal.EventJoinRoom, signal.JoinRoom{
		RoomID:      roomID,
		PeerID:      peerID,
		DisplayName: name,
	})
}

// waitFor reads messages until one carrying event and matching pred (if set)
// arrives. Other messages are discarded.
func (tc *testClient) waitFor(event string, pred func(env signal.Envelope) bool) signal.Envelope {
	tc.tb.Helper()
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-tc.c.ReceiveCh():
			require.True(tc.tb, ok, "connection closed while waiting for %s", event)
			enc := signal.JSONEncoding
			if msg.Type == ws.BinaryMessage {
				enc = signal.MsgpackEncoding
			}
			require.Equal(tc.tb, tc.enc, enc, "server replied with an unexpected encoding")
			env, err := signal.Decode(enc, msg.Data)
			require.NoError(tc.tb, err)
			if env.Event != event {
				continue
			}
			if pred == nil || pred(env) {
				return env
			}
		case <-timer.C:
			require.FailNow(tc.tb, "timed out waiting for "+event)
		}
	}
}

// expectNone asserts that no message carrying event arrives within d.
func (tc *testClient) expectNone(event string, d time.Duration) {
	tc.tb.Helper()
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case msg, ok := <-tc.c.ReceiveCh():
			if !ok {
				return
			}
			enc := signal.JSONEncoding
			if msg.Type == ws.BinaryMessage {
				enc = signal.MsgpackEncoding
			}
			env, err := signal.Decode(enc, msg.Data)
			require.NoError(tc.tb, err)
			require.NotEqual(tc.tb, event, env.Event, "unexpected %s", event)
		case <-timer.C:
			return
		}
	}
}

func participantsCount(n int) func(env signal.Envelope) bool {
	return func(env signal.Envelope) bool {
		var data signal.ParticipantsUpdated
		if err := env.Decode(&data); err != nil {
			return false
		}
		return len(data.Participants) == n
	}
}
