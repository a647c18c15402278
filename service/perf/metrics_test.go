// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics("meshcall", nil)
	require.NotNil(t, m)

	t.Run("room stats", func(t *testing.T) {
		m.SetRoomStats(2, 5)
		require.Equal(t, float64(2), testutil.ToFloat64(m.Rooms))
		require.Equal(t, float64(5), testutil.ToFloat64(m.Participants))
	})

	t.Run("counters", func(t *testing.T) {
		m.IncSignalingEvent("join-room", "in")
		m.IncSignalingEvent("join-room", "in")
		m.IncJoinErrors("room_full")
		m.IncCipherDrops("in")
		m.IncWSConnections()
		m.IncWSConnections()
		m.DecWSConnections()

		require.Equal(t, float64(2), testutil.ToFloat64(m.SignalingEvents.With(prometheus.Labels{"event": "join-room", "direction": "in"})))
		require.Equal(t, float64(1), testutil.ToFloat64(m.JoinErrorCounters.With(prometheus.Labels{"reason": "room_full"})))
		require.Equal(t, float64(1), testutil.ToFloat64(m.CipherDropCounters.With(prometheus.Labels{"direction": "in"})))
		require.Equal(t, float64(1), testutil.ToFloat64(m.WSConnections))
	})

	t.Run("handler", func(t *testing.T) {
		ts := httptest.NewServer(m.Handler())
		defer ts.Close()

		resp, err := http.Get(ts.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.Contains(t, string(body), "meshcall_signaling_rooms_total 2")
		require.Contains(t, string(body), "go_goroutines")
	})

	t.Run("shared registry", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := NewMetrics("meshcall_client", registry)
		m.IncRTPPackets("out", "audio")
		require.Equal(t, float64(1), testutil.ToFloat64(m.RTPPacketCounters.With(prometheus.Labels{"direction": "out", "type": "audio"})))
	})
}
