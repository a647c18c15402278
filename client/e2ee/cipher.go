// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
)

// IVSize is the size of the nonce prepended to every encrypted frame.
const IVSize = 12

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return aead, nil
}

// counterIV returns a nonce that is all zeros except for the big endian
// counter in the last four bytes.
func counterIV(counter uint32) []byte {
	iv := make([]byte, IVSize)
	binary.BigEndian.PutUint32(iv[8:], counter)
	return iv
}

func sealFrame(aead cipher.AEAD, counter uint32, frame []byte) []byte {
	iv := counterIV(counter)
	out := make([]byte, IVSize, IVSize+len(frame)+aead.Overhead())
	copy(out, iv)
	return aead.Seal(out, iv, frame, nil)
}

func openFrame(aead cipher.AEAD, frame []byte) ([]byte, bool) {
	if len(frame) <= IVSize {
		return nil, false
	}
	out, err := aead.Open(nil, frame[:IVSize], frame[IVSize:], nil)
	if err != nil {
		return nil, false
	}
	return out, true
}
