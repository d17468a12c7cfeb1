// Package pairing implements the three HomeKit-derived pairing
// exchanges carried over the control channel before streaming: Pair-
// Setup (SRP-6a plus Ed25519 identity exchange), Pair-Verify (ephemeral
// X25519 plus Ed25519 signatures) and Transient (Pair-Setup through M4
// without persisting an identity), per spec.md 4.D. Each exchange is
// driven message-by-message: the caller decodes a TLV8 body off the
// wire, hands it to the matching Handle method, and writes the returned
// container back out. Calling a method out of the expected order
// returns an error instead of panicking.
package pairing

import (
	"github.com/bluenviron/airplay2/internal/liberrors"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

// Result carries the directional 32-byte keys used to rekey the
// encrypted framing channel (pkg/framing), produced by a completed
// Pair-Verify or Transient exchange.
type Result struct {
	PeerIdentifier string
	ReadKey        [32]byte
	WriteKey       [32]byte
}

// HKDF salt/info labels, fixed strings exactly as spec.md 4.D specifies.
const (
	saltPairSetupControllerSign = "Pair-Setup-Controller-Sign-Salt"
	infoPairSetupControllerSign = "Pair-Setup-Controller-Sign-Info"
	saltPairSetupAccessorySign  = "Pair-Setup-Accessory-Sign-Salt"
	infoPairSetupAccessorySign  = "Pair-Setup-Accessory-Sign-Info"
	saltPairSetupEncrypt        = "Pair-Setup-Encrypt-Salt"
	infoPairSetupEncrypt        = "Pair-Setup-Encrypt-Info"

	saltPairVerifyEncrypt = "Pair-Verify-Encrypt-Salt"
	infoPairVerifyEncrypt = "Pair-Verify-Encrypt-Info"

	saltControl      = "Control-Salt"
	infoControlRead  = "Control-Read-Encryption-Key"
	infoControlWrite = "Control-Write-Encryption-Key"
)

// Literal nonces: the fixed 8-byte ASCII tags spec.md 4.D assigns to
// each encrypted message, zero-padded to the AEAD's 12-byte nonce size.
var (
	nonceM5 = literalNonce("PS-Msg05")
	nonceM6 = literalNonce("PS-Msg06")
	nonceV2 = literalNonce("PV-Msg02")
	nonceV3 = literalNonce("PV-Msg03")
)

func literalNonce(tag string) [12]byte {
	var n [12]byte
	copy(n[:], tag)
	return n
}

// deriveControlKeys computes the directional control-channel keys from a
// shared secret (either a Pair-Verify X25519 shared secret or a
// Transient SRP session key K). readLabel/writeLabel let the two peers
// swap which HKDF label they call "read": a controller's write key must
// equal the device's read key, and vice versa.
func deriveControlKeys(shared []byte, readLabel, writeLabel string) (readKey, writeKey [32]byte, err error) {
	r, err := airplaycrypto.HKDFExpand([]byte(saltControl), shared, readLabel, 32)
	if err != nil {
		return readKey, writeKey, err
	}
	w, err := airplaycrypto.HKDFExpand([]byte(saltControl), shared, writeLabel, 32)
	if err != nil {
		return readKey, writeKey, err
	}
	copy(readKey[:], r)
	copy(writeKey[:], w)
	return readKey, writeKey, nil
}

// signedTranscript builds the ownEphPub||ownIdentifier||peerEphPub
// transcript both Pair-Verify peers sign, per spec.md 4.D.
func signedTranscript(ownEphPub [32]byte, ownIdentifier string, peerEphPub []byte) []byte {
	out := make([]byte, 0, 32+len(ownIdentifier)+len(peerEphPub))
	out = append(out, ownEphPub[:]...)
	out = append(out, []byte(ownIdentifier)...)
	out = append(out, peerEphPub...)
	return out
}

// encodeIdentitySubTLV builds the Identifier/PublicKey/Signature
// sub-message carried inside EncryptedData.
func encodeIdentitySubTLV(identifier string, publicKey, signature []byte) []byte {
	fields := tlv8.Container{tlv8.TypeIdentifier: []byte(identifier), tlv8.TypeSignature: signature}
	order := []tlv8.Type{tlv8.TypeIdentifier, tlv8.TypeSignature}
	if publicKey != nil {
		fields[tlv8.TypePublicKey] = publicKey
		order = []tlv8.Type{tlv8.TypeIdentifier, tlv8.TypePublicKey, tlv8.TypeSignature}
	}
	return tlv8.Encode(order, fields)
}

var errUnexpectedMessage = stateError("pairing message received out of order")

type stateError string

func (e stateError) Error() string { return string(e) }

func protoErr(where string, err error) error {
	return liberrors.ErrProtocol{Where: where, Err: err}
}
