// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package perf

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsSubSystemSignaling = "signaling"
	metricsSubSystemWS        = "ws"
	metricsSubSystemRTC       = "rtc"
	metricsSubSystemE2EE      = "e2ee"
)

type Metrics struct {
	registry *prometheus.Registry

	Rooms              prometheus.Gauge
	Participants       prometheus.Gauge
	SignalingEvents    *prometheus.CounterVec
	JoinErrorCounters  *prometheus.CounterVec
	RateLimitedCounter prometheus.Counter

	WSConnections     prometheus.Gauge
	WSMessageCounters *prometheus.CounterVec

	RTPPacketCounters    *prometheus.CounterVec
	RTCLinkStateCounters *prometheus.CounterVec
	CipherDropCounters   *prometheus.CounterVec
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	var m Metrics

	if registry != nil {
		m.registry = registry
	} else {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: namespace,
		}))
		m.registry.MustRegister(collectors.NewGoCollector())
	}

	m.Rooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemSignaling,
			Name:      "rooms_total",
			Help:      "Total number of live rooms, reservations included",
		},
	)
	m.registry.MustRegister(m.Rooms)

	m.Participants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemSignaling,
			Name:      "participants_total",
			Help:      "Total number of participants across all rooms",
		},
	)
	m.registry.MustRegister(m.Participants)

	m.SignalingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemSignaling,
			Name:      "events_total",
			Help:      "Total number of sent/received signaling events",
		},
		[]string{"event", "direction"},
	)
	m.registry.MustRegister(m.SignalingEvents)

	m.JoinErrorCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemSignaling,
			Name:      "join_errors_total",
			Help:      "Total number of rejected joins",
		},
		[]string{"reason"},
	)
	m.registry.MustRegister(m.JoinErrorCounters)

	m.RateLimitedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemSignaling,
			Name:      "rate_limited_total",
			Help:      "Total number of messages dropped by the rate limiter",
		},
	)
	m.registry.MustRegister(m.RateLimitedCounter)

	m.WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "connections_total",
			Help:      "Total number of active WebSocket connections",
		},
	)
	m.registry.MustRegister(m.WSConnections)

	m.WSMessageCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemWS,
			Name:      "messages_total",
			Help:      "Total number of sent/received WebSocket messages",
		},
		[]string{"type", "direction"},
	)
	m.registry.MustRegister(m.WSMessageCounters)

	m.RTPPacketCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "rtp_packets_total",
			Help:      "Total number of sent/received RTP packets",
		},
		[]string{"direction", "type"},
	)
	m.registry.MustRegister(m.RTPPacketCounters)

	m.RTCLinkStateCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemRTC,
			Name:      "link_states_total",
			Help:      "Total number of peer link state changes",
		},
		[]string{"state"},
	)
	m.registry.MustRegister(m.RTCLinkStateCounters)

	m.CipherDropCounters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubSystemE2EE,
			Name:      "dropped_frames_total",
			Help:      "Total number of frames dropped by the frame cipher",
		},
		[]string{"direction"},
	)
	m.registry.MustRegister(m.CipherDropCounters)

	return &m
}

func (m *Metrics) SetRoomStats(rooms, participants int) {
	m.Rooms.Set(float64(rooms))
	m.Participants.Set(float64(participants))
}

func (m *Metrics) IncSignalingEvent(event, direction string) {
	m.SignalingEvents.With(prometheus.Labels{"event": event, "direction": direction}).Inc()
}

func (m *Metrics) IncJoinErrors(reason string) {
	m.JoinErrorCounters.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m *Metrics) IncRateLimited() {
	m.RateLimitedCounter.Inc()
}

func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

func (m *Metrics) IncWSMessages(msgType, direction string) {
	m.WSMessageCounters.With(prometheus.Labels{"type": msgType, "direction": direction}).Inc()
}

func (m *Metrics) IncRTPPackets(direction, trackType string) {
	m.RTPPacketCounters.With(prometheus.Labels{"direction": direction, "type": trackType}).Inc()
}

func (m *Metrics) IncRTCLinkState(state string) {
	m.RTCLinkStateCounters.With(prometheus.Labels{"state": state}).Inc()
}

func (m *Metrics) IncCipherDrops(direction string) {
	m.CipherDropCounters.With(prometheus.Labels{"direction": direction}).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
