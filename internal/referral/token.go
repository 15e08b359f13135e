// Package referral turns user ids into shareable deep-link tokens and back.
package referral

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidToken = errors.New("invalid referral token")

// namespace marks tokens minted by Encode.
var namespace = []byte("rf")

// Encode returns an opaque, URL-safe token for userID: the namespace, one
// length byte and the minimal big-endian id bytes, base64url without padding.
func Encode(userID int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(userID))
	digits := buf[:]
	for len(digits) > 1 && digits[0] == 0 {
		digits = digits[1:]
	}

	payload := make([]byte, 0, len(namespace)+1+len(digits))
	payload = append(payload, namespace...)
	payload = append(payload, byte(len(digits)))
	payload = append(payload, digits...)
	return base64.RawURLEncoding.EncodeToString(payload)
}

// Decode recovers the referrer id from a /start payload. Besides tokens from
// Encode it accepts the formats already in circulation: a bare decimal id,
// a "ref_<id>" code, and base64 of "ref_<id>_<unix time>".
func Decode(token string) (int64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrInvalidToken
	}
	decoders := []func(string) (int64, bool){
		decodePlain,
		decodeRefCode,
		decodeCurrent,
		decodeLegacyBase64,
	}
	for _, decode := range decoders {
		if id, ok := decode(token); ok && id > 0 {
			return id, nil
		}
	}
	return 0, ErrInvalidToken
}

// Link builds the deep link a user shares to refer friends.
func Link(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", strings.TrimPrefix(botUsername, "@"), Encode(userID))
}

func decodePlain(token string) (int64, bool) {
	if !isDigits(token) {
		return 0, false
	}
	id, err := strconv.ParseInt(token, 10, 64)
	return id, err == nil
}

func decodeRefCode(token string) (int64, bool) {
	rest, found := strings.CutPrefix(token, "ref_")
	if !found || !isDigits(rest) {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	return id, err == nil
}

func decodeCurrent(token string) (int64, bool) {
	payload, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(payload) < len(namespace)+2 {
		return 0, false
	}
	if string(payload[:len(namespace)]) != string(namespace) {
		return 0, false
	}
	n := int(payload[len(namespace)])
	digits := payload[len(namespace)+1:]
	if n < 1 || n > 8 || len(digits) != n {
		return 0, false
	}
	if n > 1 && digits[0] == 0 {
		return 0, false
	}
	var buf [8]byte
	copy(buf[8-n:], digits)
	v := binary.BigEndian.Uint64(buf[:])
	if v > 1<<63-1 {
		return 0, false
	}
	return int64(v), true
}

// decodeLegacyBase64 requires the underscore after the id, so a token that
// was cut short inside the id is rejected instead of yielding a wrong user.
func decodeLegacyBase64(token string) (int64, bool) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(token, "="))
		if err != nil {
			return 0, false
		}
	}
	rest, found := strings.CutPrefix(string(raw), "ref_")
	if !found {
		return 0, false
	}
	idPart, _, found := strings.Cut(rest, "_")
	if !found || !isDigits(idPart) {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	return id, err == nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
