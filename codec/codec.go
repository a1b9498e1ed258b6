// Package codec defines canonical byte encodings for scalars and group
// elements (the Scalar and Element wire types), a generic deterministic
// CBOR Encode/Decode, and a JSON transport projection. It has no
// dedicated wire types for proofs, ciphertexts, ballots, or tallies, and
// ballot tracking codes are not computed from its output: package ballot
// hashes group values directly with group.H.
package codec

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"

	"github.com/amarvote/guardian-engine/group"
)

// Scalar is the canonical wire form of a group.Scalar: its minimal
// big-endian byte representation, which CBOR frames as a length-prefixed
// byte string. Minimal-length big-endian is used since every scalar
// already has a unique such encoding, making the framing itself the
// length prefix.
type Scalar struct{ v *big.Int }

// Element is the canonical wire form of a group.Element.
type Element struct{ v *big.Int }

// FromScalar converts a group.Scalar to its wire form.
func FromScalar(s group.Scalar) Scalar { return Scalar{v: s.Int()} }

// ToScalar validates the wire value against p's canonical range and
// converts it back to a group.Scalar.
func (s Scalar) ToScalar(p group.Params) (group.Scalar, error) {
	return group.ScalarFromCanonical(p, s.v)
}

// FromElement converts a group.Element to its wire form.
func FromElement(e group.Element) Element { return Element{v: e.Int()} }

// ToElement validates the wire value as a member of p's subgroup and
// converts it back to a group.Element.
func (e Element) ToElement(p group.Params) (group.Element, error) {
	return group.ElementFromCanonical(p, e.v)
}

// MarshalBinary implements encoding.BinaryMarshaler, used by the CBOR
// encoder to frame the value as a byte string.
func (s Scalar) MarshalBinary() ([]byte, error) {
	if s.v == nil {
		return nil, fmt.Errorf("codec: nil scalar")
	}
	return s.v.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *Scalar) UnmarshalBinary(data []byte) error {
	s.v = new(big.Int).SetBytes(data)
	return nil
}

// MarshalJSON renders the scalar as a hex string for the transport
// projection, used for hosts that prefer a JSON transport.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.v == nil {
		return nil, fmt.Errorf("codec: nil scalar")
	}
	return json.Marshal(hex.EncodeToString(s.v.Bytes()))
}

// UnmarshalJSON parses the hex-string transport projection.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var h string
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("codec: scalar: %w", err)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return fmt.Errorf("codec: scalar: %w", err)
	}
	s.v = new(big.Int).SetBytes(b)
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler for Element.
func (e Element) MarshalBinary() ([]byte, error) {
	if e.v == nil {
		return nil, fmt.Errorf("codec: nil element")
	}
	return e.v.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler for Element.
func (e *Element) UnmarshalBinary(data []byte) error {
	e.v = new(big.Int).SetBytes(data)
	return nil
}

// MarshalJSON renders the element as a hex string.
func (e Element) MarshalJSON() ([]byte, error) {
	if e.v == nil {
		return nil, fmt.Errorf("codec: nil element")
	}
	return json.Marshal(hex.EncodeToString(e.v.Bytes()))
}

// UnmarshalJSON parses the hex-string transport projection.
func (e *Element) UnmarshalJSON(data []byte) error {
	var h string
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("codec: element: %w", err)
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		return fmt.Errorf("codec: element: %w", err)
	}
	e.v = new(big.Int).SetBytes(b)
	return nil
}

// Encoding selects the wire format for Encode/Decode.
type Encoding int

const (
	EncodingCBOR Encoding = iota
	EncodingJSON
)

// Encode serializes a into the canonical CBOR form by default, or the
// JSON transport projection if requested. CBOR uses core deterministic
// encoding so the same value always produces the same bytes.
func Encode(a any, encoding ...Encoding) ([]byte, error) {
	if len(encoding) > 0 && encoding[0] == EncodingJSON {
		return json.Marshal(a)
	}
	opts := cbor.CoreDetEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return mode.Marshal(a)
}

// Decode deserializes data into out using the given format (CBOR by
// default).
func Decode(data []byte, out any, encoding ...Encoding) error {
	if len(encoding) > 0 && encoding[0] == EncodingJSON {
		return json.Unmarshal(data, out)
	}
	return cbor.Unmarshal(data, out)
}
