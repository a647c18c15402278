// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"io"
	"net/http"

	"github.com/grafana/pyroscope-go/godeltaprof"
	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

type deltaProfiler interface {
	Profile(w io.Writer) error
}

func (s *Service) registerProfilingHandlers() {
	profiles := map[string]deltaProfiler{
		"delta_heap":  godeltaprof.NewHeapProfiler(),
		"delta_block": godeltaprof.NewBlockProfiler(),
		"delta_mutex": godeltaprof.NewMutexProfiler(),
	}

	for name, profiler := range profiles {
		s.apiServer.RegisterHandleFunc("GET /debug/pprof/"+name, s.profileHandler(name, profiler))
	}
}

func (s *Service) profileHandler(name string, profiler deltaProfiler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		if err := profiler.Profile(w); err != nil {
			s.log.Error("failed to write profile", mlog.String("profile", name), mlog.Err(err))
			http.Error(w, "failed to write profile", http.StatusInternalServerError)
		}
	}
}
