// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package e2ee

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	KeySize             = 32
	MinPassphraseLength = 8
	// NoFingerprint is displayed when encryption is off.
	NoFingerprint = "none"

	fingerprintBytes = 12
	fingerprintChunk = 4
)

var (
	ErrPassphraseTooShort = errors.New("passphrase too short")
	ErrPassphraseMismatch = errors.New("passphrases do not match")
	ErrInvalidKey         = errors.New("invalid key size")
)

// ValidatePassphrase checks a passphrase and its confirmation as entered by
// the user.
func ValidatePassphrase(passphrase, confirm string) error {
	if utf8.RuneCountInString(passphrase) < MinPassphraseLength {
		return ErrPassphraseTooShort
	}
	if passphrase != confirm {
		return ErrPassphraseMismatch
	}
	return nil
}

// DeriveKey returns the 256-bit frame key shared by everyone in roomID that
// knows passphrase. This is a single unsalted digest, peers running older
// clients depend on it being exactly that.
func DeriveKey(roomID, passphrase string) []byte {
	sum := sha256.Sum256([]byte(roomID + "|" + passphrase))
	return sum[:]
}

// Fingerprint returns a short human readable digest of key, meant to be
// compared out of band.
func Fingerprint(key []byte) string {
	if len(key) == 0 {
		return NoFingerprint
	}

	if len(key) > fingerprintBytes {
		key = key[:fingerprintBytes]
	}
	h := hex.EncodeToString(key)

	chunks := make([]string, 0, len(h)/fingerprintChunk+1)
	for len(h) > fingerprintChunk {
		chunks = append(chunks, h[:fingerprintChunk])
		h = h[fingerprintChunk:]
	}
	chunks = append(chunks, h)

	return strings.Join(chunks, "-")
}
