// Package guard derives time-based second-factor codes from an account's
// stored shared secret.
//
// The code format follows the Steam mobile authenticator: HMAC-SHA1 over a
// big-endian 30-second counter, with five characters drawn from a reduced
// alphabet. This is deliberately not RFC 6238 output, so a generic TOTP
// library cannot produce it.
package guard

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

const (
	codeLength = 5
	period     = 30 * time.Second
	alphabet   = "23456789BCDFGHJKMNPQRTVWXY"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Code returns the guard code for the shared secret at the current time.
func Code(sharedSecret string) (string, error) {
	return CodeAt(sharedSecret, NowTimeFunc())
}

// CodeAt returns the guard code for the shared secret at the given time.
func CodeAt(sharedSecret string, t time.Time) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(sharedSecret)
	if err != nil {
		return "", errors.Wrap(err, "[guard.CodeAt] shared secret is not valid base64")
	}
	if len(secret) == 0 {
		return "", errors.New("[guard.CodeAt] shared secret is empty")
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(t.Unix())/uint64(period.Seconds()))

	mac := hmac.New(sha1.New, secret)
	mac.Write(counter[:])
	digest := mac.Sum(nil)

	offset := digest[len(digest)-1] & 0x0F
	fullCode := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7FFFFFFF

	code := make([]byte, codeLength)
	for i := range code {
		code[i] = alphabet[fullCode%uint32(len(alphabet))]
		fullCode /= uint32(len(alphabet))
	}
	return string(code), nil
}
