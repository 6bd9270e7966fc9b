// Package jwtpayload reads the claims segment of a compact JWT without
// verifying it. Callers that need trust must verify the token separately.
package jwtpayload

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoPayload is returned when the token has no second segment.
	ErrNoPayload = errors.New("jwtpayload: token has no payload segment")
	// ErrNotObject is returned when the payload decodes to something other
	// than a JSON object.
	ErrNotObject = errors.New("jwtpayload: payload is not a JSON object")
	// ErrTrailingData is returned when the payload holds more than one JSON
	// value.
	ErrTrailingData = errors.New("jwtpayload: trailing data after payload")
)

// segmentParser only decodes; it never validates signatures or claims.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode returns the claims object carried by tok. Numbers are kept as
// json.Number so that callers can render them without float artifacts.
func Decode(tok string) (map[string]any, error) {
	parts := strings.Split(tok, ".")
	if len(parts) < 2 || parts[1] == "" {
		return nil, ErrNoPayload
	}

	raw, err := decodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("jwtpayload: decode segment: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("jwtpayload: parse payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}
	claims, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotObject
	}
	return claims, nil
}

// decodeSegment accepts base64url (the JWT encoding) and falls back to the
// standard alphabet, which some token issuers still emit.
func decodeSegment(seg string) ([]byte, error) {
	b, err := segmentParser.DecodeSegment(seg)
	if err == nil {
		return b, nil
	}
	if l := len(seg) % 4; l > 0 {
		seg += strings.Repeat("=", 4-l)
	}
	if b, stdErr := base64.StdEncoding.DecodeString(seg); stdErr == nil {
		return b, nil
	}
	return nil, err
}
