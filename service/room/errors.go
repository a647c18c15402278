// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package room

import (
	"errors"
)

var (
	ErrInvalidInput = errors.New("invalid room or peer id")
	ErrRoomFull     = errors.New("room is full")
)
