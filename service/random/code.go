// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// RoomCodeAlphabet excludes visually ambiguous symbols (I, O, 0, 1).
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	RoomCodeLength   = 6
)

var roomCodeAlphabetLen = big.NewInt(int64(len(RoomCodeAlphabet)))

// NewRoomCode returns a random room code of RoomCodeLength symbols drawn
// uniformly from RoomCodeAlphabet.
func NewRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, roomCodeAlphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to read random data: %w", err)
		}
		code[i] = RoomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
