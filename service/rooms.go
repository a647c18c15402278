// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package service

import (
	"errors"
	"net/http"

	"github.com/mattermost/meshcall/service/room"

	"github.com/mattermost/mattermost/server/public/shared/mlog"
)

func (s *Service) createRoom(w http.ResponseWriter, r *http.Request) {
	data := newHTTPData()
	defer s.httpAudit("createRoom", data, w, r)

	var code string
	var createErr error
	if err := s.do(r.Context(), func() {
		code, createErr = s.registry.CreateRoom()
		if createErr == nil {
			s.updateRoomStats()
		}
	}); err != nil {
		data.err = "Service unavailable"
		data.code = http.StatusServiceUnavailable
		return
	}

	if createErr != nil {
		s.log.Error("failed to create room", mlog.Err(createErr))
		data.err = "Failed to create room"
		data.code = http.StatusInternalServerError
		return
	}

	data.reqData["roomID"] = code
	data.resData["roomId"] = code
	data.code = http.StatusCreated
}

func (s *Service) describeRoom(w http.ResponseWriter, r *http.Request) {
	data := newHTTPData()
	defer s.httpAudit("describeRoom", data, w, r)

	var desc room.Description
	var descErr error
	if err := s.do(r.Context(), func() {
		desc, descErr = s.registry.Describe(r.PathValue("roomId"))
	}); err != nil {
		data.err = "Service unavailable"
		data.code = http.StatusServiceUnavailable
		return
	}

	if errors.Is(descErr, room.ErrInvalidInput) {
		data.err = "Invalid room id"
		data.code = http.StatusBadRequest
		return
	}

	data.reqData["roomID"] = desc.RoomID
	data.resData["exists"] = desc.Exists
	data.resData["roomId"] = desc.RoomID
	data.resData["participants"] = desc.Participants
	data.resData["capacity"] = desc.Capacity
	data.resData["mode"] = desc.Mode
	data.code = http.StatusOK
}
