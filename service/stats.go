// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	model "github.com/prometheus/client_model/go"
)

func gaugeValue(g prometheus.Gauge) (float64, error) {
	var m model.Metric
	if err := g.Write(&m); err != nil {
		return 0, err
	}
	return m.GetGauge().GetValue(), nil
}

// getStats serves the room gauges as last published by the hub.
func (s *Service) getStats(w http.ResponseWriter, r *http.Request) {
	data := newHTTPData()
	defer s.httpAudit("getStats", data, w, r)

	rooms, err := gaugeValue(s.metrics.Rooms)
	if err != nil {
		data.err = err.Error()
		data.code = http.StatusInternalServerError
		return
	}
	data.resData["rooms"] = rooms

	participants, err := gaugeValue(s.metrics.Participants)
	if err != nil {
		data.err = err.Error()
		data.code = http.StatusInternalServerError
		return
	}
	data.resData["participants"] = participants

	data.code = http.StatusOK
}
