// Package token reads the claims of a bearer token issued by the billing backend.
//
// Nothing in this package verifies a signature. The decoded claims are for the
// client's own use (showing who is logged in, warning before expiry) and are never
// an authentication decision: the backend remains the only authority and rejects
// bad tokens with 401.
package token

import (
	"bytes"
	"encoding/json"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/pkg/errors"
)

const segmentSeparator = "."

// ErrMalformedToken is returned for every decode failure.
var ErrMalformedToken = apperrors.ErrMalformedToken

// ErrNotAnObject is returned when the payload is valid JSON but not an object.
var ErrNotAnObject = errors.New("payload is not a JSON object")

var parser = jwtlib.NewParser(jwtlib.WithPaddingAllowed())

// Decode splits raw into header.payload.signature and parses the payload.
// The signature segment may be empty (unsigned tokens) but must be present.
func Decode(raw string) (*Claims, error) {
	segments := strings.Split(strings.TrimSpace(raw), segmentSeparator)
	if len(segments) != 3 {
		return nil, errors.Wrapf(ErrMalformedToken, "expected 3 segments, got %d", len(segments))
	}
	if segments[1] == "" {
		return nil, errors.Wrap(ErrMalformedToken, "empty payload segment")
	}

	payload, err := parser.DecodeSegment(segments[1])
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedToken, "payload is not base64url: %v", err)
	}

	var payloadClaims jwtlib.MapClaims
	if err := unmarshalPayload(payload, &payloadClaims); err != nil {
		return nil, errors.Wrapf(ErrMalformedToken, "payload is not JSON: %v", err)
	}
	if payloadClaims == nil {
		return nil, errors.Wrap(ErrMalformedToken, ErrNotAnObject.Error())
	}
	return ClaimsFromMap(payloadClaims), nil
}

// Encode produces an unsigned token (alg "none") carrying claims. The backend
// never accepts these; they exist for fixtures and offline tooling.
func Encode(claims jwtlib.MapClaims) (string, error) {
	t := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims)
	s, err := t.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode token")
	}
	return s, nil
}

// unmarshalPayload keeps numbers as json.Number so large numeric ids survive.
func unmarshalPayload(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after payload")
	}
	return nil
}
