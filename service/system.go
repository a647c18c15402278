// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

type HealthInfo struct {
	OK    bool `json:"ok"`
	Rooms int  `json:"rooms"`
	// Uptime is the process uptime in seconds.
	Uptime float64 `json:"uptime"`
}

// uptime returns the time elapsed since the process started. procfs gives the
// actual process start time, the service start time is used when it's not
// available.
func (s *Service) uptime() time.Duration {
	if s.proc != nil {
		if p, err := s.proc.Self(); err == nil {
			if stat, err := p.Stat(); err == nil {
				if startTime, err := stat.StartTime(); err == nil {
					return time.Since(time.Unix(0, int64(startTime*float64(time.Second))))
				}
			}
		}
	}
	return time.Since(s.startTime)
}

func (s *Service) getHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.NotFound(w, req)
		return
	}

	info := HealthInfo{OK: true}
	if err := s.do(req.Context(), func() {
		info.Rooms, _ = s.registry.Stats()
	}); err != nil {
		info.OK = false
	}
	info.Uptime = s.uptime().Seconds()

	w.Header().Add("Content-Type", "application/json")
	if !info.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(&info); err != nil {
		s.log.Error("failed to encode data", mlog.Err(err))
	}
}
