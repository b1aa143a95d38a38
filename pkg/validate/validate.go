// Package validate enforces the request payload policy for the gateway. Every
// check runs before any session state changes, so a rejected request never
// leaves a side effect behind.
package validate

import (
	"errors"
	"regexp"

	"github.com/ErinBejtaa/chat-app/pkg/model"
)

const (
	usernameMin = 2
	usernameMax = 32
	roomMin     = 2
	roomMax     = 50

	textMax      = 1000
	algorithmMax = 64
	publicKeyMin = 16

	// History pagination bounds. DefaultLimit applies when the client omits
	// the field.
	DefaultLimit = 10
	maxLimit     = 50
)

var nameRE = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

var (
	ErrUsername = errors.New("invalid username")
	ErrRoom     = errors.New("invalid room")
	ErrBody     = errors.New("provide either plaintext or encrypted payload")
	ErrPage     = errors.New("invalid history page")
	ErrKey      = errors.New("invalid key exchange payload")
)

// Username checks the self-asserted identity format.
func Username(s string) error {
	if len(s) < usernameMin || len(s) > usernameMax || !nameRE.MatchString(s) {
		return ErrUsername
	}
	return nil
}

// Room checks a room name.
func Room(s string) error {
	if len(s) < roomMin || len(s) > roomMax || !nameRE.MatchString(s) {
		return ErrRoom
	}
	return nil
}

// Body checks that exactly one of text and encrypted is present and that the
// present one is within policy. The ciphertext itself is opaque; only its
// framing is checked.
func Body(text string, encrypted *model.EncryptedPayload) error {
	if (text != "") == (encrypted != nil) {
		return ErrBody
	}
	if text != "" {
		if len(text) > textMax {
			return ErrBody
		}
		return nil
	}
	if encrypted.Ciphertext == "" {
		return ErrBody
	}
	if encrypted.Algorithm == "" || len(encrypted.Algorithm) > algorithmMax {
		return ErrBody
	}
	return nil
}

// Page normalizes history pagination arguments. A zero limit takes the
// default; anything out of bounds is rejected.
func Page(offset, limit int64) (int64, int64, error) {
	if limit == 0 {
		limit = DefaultLimit
	}
	if offset < 0 || limit < 1 || limit > maxLimit {
		return 0, 0, ErrPage
	}
	return offset, limit, nil
}

// KeyExchange checks the framing of relayed key material.
func KeyExchange(publicKey, algorithm string) error {
	if len(publicKey) < publicKeyMin {
		return ErrKey
	}
	if algorithm == "" || len(algorithm) > algorithmMax {
		return ErrKey
	}
	return nil
}
