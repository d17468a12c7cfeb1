// Package tlv8 implements HomeKit Accessory Protocol TLV8 records: a
// single type byte, a single length byte, and 0..255 bytes of value.
// Values longer than 255 bytes are fragmented across consecutive records
// sharing the same type, exactly as spec.md 4.B requires.
package tlv8

import (
	"github.com/bluenviron/airplay2/internal/liberrors"
)

// Type identifies a TLV8 field. The concrete numbering matches HAP's
// pairing TLVs.
type Type uint8

// Field types used by Pair-Setup/Pair-Verify/Pair-Add/Transient.
const (
	TypeMethod        Type = 0
	TypeIdentifier     Type = 1
	TypeSalt           Type = 2
	TypePublicKey      Type = 3
	TypeProof          Type = 4
	TypeEncryptedData  Type = 5
	TypeState          Type = 6
	TypeError          Type = 7
	TypeRetryDelay     Type = 8
	TypeCertificate    Type = 9
	TypeSignature      Type = 10
	TypePermissions    Type = 11
	TypeSeparator      Type = 0xff
)

// DeviceErrorCode is the value carried by an Error field.
type DeviceErrorCode uint8

// Known device error codes.
const (
	ErrorUnknown         DeviceErrorCode = 1
	ErrorAuthentication  DeviceErrorCode = 2
	ErrorBackoff         DeviceErrorCode = 3
	ErrorMaxPeers        DeviceErrorCode = 4
	ErrorMaxTries        DeviceErrorCode = 5
	ErrorUnavailable     DeviceErrorCode = 6
	ErrorBusy            DeviceErrorCode = 7
)

const maxFragmentLen = 255

// Container is a decoded TLV8 message keyed by field type, with
// fragments of the same type already concatenated; it does not keep the
// wire order of the fields.
type Container map[Type][]byte

// Encode serializes fields in the given order, fragmenting any value
// longer than 255 bytes into consecutive same-type records. Encoded
// length equals ceil(len(value)/255)*2 + len(value) for each non-empty
// field, per spec.md 8; an empty value takes one 2-byte record.
func Encode(order []Type, fields Container) []byte {
	var out []byte
	for _, t := range order {
		v, ok := fields[t]
		if !ok {
			continue
		}
		if len(v) == 0 {
			out = append(out, byte(t), 0)
			continue
		}
		for off := 0; off < len(v); off += maxFragmentLen {
			end := off + maxFragmentLen
			if end > len(v) {
				end = len(v)
			}
			chunk := v[off:end]
			out = append(out, byte(t), byte(len(chunk)))
			out = append(out, chunk...)
		}
	}
	return out
}

// Decode parses a TLV8 byte stream into a Container, concatenating
// contiguous same-type fragments.
func Decode(data []byte) (Container, error) {
	out := make(Container)
	var lastType Type
	haveLast := false

	for i := 0; i < len(data); {
		if i+2 > len(data) {
			return nil, liberrors.ErrProtocol{Where: "tlv8", Err: errShortRecord}
		}
		t := Type(data[i])
		l := int(data[i+1])
		i += 2
		if i+l > len(data) {
			return nil, liberrors.ErrProtocol{Where: "tlv8", Err: errShortRecord}
		}
		value := data[i : i+l]
		i += l

		if haveLast && lastType == t {
			out[t] = append(out[t], value...)
		} else {
			out[t] = append([]byte(nil), value...)
		}
		lastType = t
		haveLast = true
	}
	return out, nil
}

var errShortRecord = shortRecordError{}

type shortRecordError struct{}

func (shortRecordError) Error() string { return "truncated TLV8 record" }

// GetRequired returns the value of field, failing with a protocol error
// carrying MissingField semantics when absent.
func (c Container) GetRequired(field Type) ([]byte, error) {
	v, ok := c[field]
	if !ok {
		return nil, liberrors.ErrProtocol{Where: "tlv8", Err: missingFieldError{field}}
	}
	return v, nil
}

type missingFieldError struct{ field Type }

func (e missingFieldError) Error() string { return "missing required TLV8 field" }

// State returns the numeric <State=N> value, if present.
func (c Container) State() (int, bool) {
	v, ok := c[TypeState]
	if !ok || len(v) == 0 {
		return 0, false
	}
	return int(v[0]), true
}

// DeviceError returns a non-nil error if the container carries a
// non-zero Error field, surfaced verbatim as liberrors.ErrDevice.
func (c Container) DeviceError() error {
	v, ok := c[TypeError]
	if !ok || len(v) == 0 {
		return nil
	}
	code := int(v[0])
	if code == 0 {
		return nil
	}
	return liberrors.ErrDevice{Code: code}
}
