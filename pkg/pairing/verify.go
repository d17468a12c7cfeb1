package pairing

import (
	"github.com/bluenviron/airplay2/internal/liberrors"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/keystore"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

type verifyControllerState int

const (
	verifyControllerStateInitial verifyControllerState = iota
	verifyControllerStateAwaitM2
	verifyControllerStateAwaitM4
	verifyControllerStateDone
)

// VerifyController drives the controller side of Pair-Verify: M1 and M3
// out, M2 and M4 in. Requires the device's identity already present in
// store (put there by a prior Pair-Setup).
type VerifyController struct {
	state      verifyControllerState
	identifier string
	identity   *airplaycrypto.Ed25519KeyPair
	store      keystore.Store

	ourEph         *airplaycrypto.X25519KeyPair
	peerEph        []byte
	shared         []byte
	peerIdentifier string
}

// NewVerifyController generates the controller's ephemeral X25519 keypair
// and prepares to drive a Pair-Verify exchange.
func NewVerifyController(identifier string, identity *airplaycrypto.Ed25519KeyPair, store keystore.Store) (*VerifyController, error) {
	eph, err := airplaycrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	return &VerifyController{identifier: identifier, identity: identity, store: store, ourEph: eph}, nil
}

// M1 builds the first message: our ephemeral public key and identifier.
func (c *VerifyController) M1() (tlv8.Container, error) {
	if c.state != verifyControllerStateInitial {
		return nil, errUnexpectedMessage
	}
	c.state = verifyControllerStateAwaitM2
	return tlv8.Container{
		tlv8.TypeState:      {1},
		tlv8.TypePublicKey:  append([]byte{}, c.ourEph.PublicKey[:]...),
		tlv8.TypeIdentifier: []byte(c.identifier),
	}, nil
}

// HandleM2 derives the shared secret, verifies the device's signature
// against its stored identity, and returns M3.
func (c *VerifyController) HandleM2(m2 tlv8.Container) (tlv8.Container, error) {
	if c.state != verifyControllerStateAwaitM2 {
		return nil, errUnexpectedMessage
	}
	if err := m2.DeviceError(); err != nil {
		return nil, err
	}
	peerEph, err := m2.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, protoErr("pair-verify M2", err)
	}
	ct, err := m2.GetRequired(tlv8.TypeEncryptedData)
	if err != nil {
		return nil, protoErr("pair-verify M2", err)
	}

	shared, err := c.ourEph.SharedSecret(peerEph)
	if err != nil {
		return nil, err
	}
	sessionKey, err := airplaycrypto.HKDFExpand([]byte(saltPairVerifyEncrypt), shared, infoPairVerifyEncrypt, 32)
	if err != nil {
		return nil, err
	}
	aead, err := airplaycrypto.NewChaCha20Poly1305(sessionKey)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nonceV2[:], ct, nil)
	if err != nil {
		return nil, err
	}
	inner, err := tlv8.Decode(pt)
	if err != nil {
		return nil, protoErr("pair-verify M2", err)
	}
	peerID, err := inner.GetRequired(tlv8.TypeIdentifier)
	if err != nil {
		return nil, protoErr("pair-verify M2", err)
	}
	peerSig, err := inner.GetRequired(tlv8.TypeSignature)
	if err != nil {
		return nil, protoErr("pair-verify M2", err)
	}

	peer, err := c.store.Load(string(peerID))
	if err != nil {
		return nil, peerUnknownErr(err)
	}

	transcript := signedTranscript(arr32(peerEph), string(peerID), c.ourEph.PublicKey[:])
	if err := airplaycrypto.Ed25519Verify(peer.DevicePublicKey[:], transcript, peerSig); err != nil {
		return nil, err
	}

	mySigned := signedTranscript(c.ourEph.PublicKey, c.identifier, peerEph)
	mySig := c.identity.Sign(mySigned)
	myInner := encodeIdentitySubTLV(c.identifier, nil, mySig)
	ct2, err := aead.Seal(nonceV3[:], myInner, nil)
	if err != nil {
		return nil, err
	}

	c.shared = shared
	c.peerEph = peerEph
	c.peerIdentifier = string(peerID)
	c.state = verifyControllerStateAwaitM4
	return tlv8.Container{
		tlv8.TypeState:         {3},
		tlv8.TypeEncryptedData: ct2,
	}, nil
}

// HandleM4 acknowledges the device's success and derives the directional
// control-channel keys.
func (c *VerifyController) HandleM4(m4 tlv8.Container) (*Result, error) {
	if c.state != verifyControllerStateAwaitM4 {
		return nil, errUnexpectedMessage
	}
	if err := m4.DeviceError(); err != nil {
		return nil, err
	}
	readKey, writeKey, err := deriveControlKeys(c.shared, infoControlRead, infoControlWrite)
	if err != nil {
		return nil, err
	}
	c.state = verifyControllerStateDone
	return &Result{PeerIdentifier: c.peerIdentifier, ReadKey: readKey, WriteKey: writeKey}, nil
}

type verifyDeviceState int

const (
	verifyDeviceStateInitial verifyDeviceState = iota
	verifyDeviceStateAwaitM3
	verifyDeviceStateDone
)

// VerifyDevice drives the device side of Pair-Verify: M2 out, M1 and M3
// in, M4 out.
type VerifyDevice struct {
	state      verifyDeviceState
	identifier string
	identity   *airplaycrypto.Ed25519KeyPair
	store      keystore.Store

	ourEph         *airplaycrypto.X25519KeyPair
	peerEph        []byte
	peerIdentifier string
	shared         []byte
	sessionKey     []byte
}

// NewVerifyDevice prepares to drive a Pair-Verify exchange as the device.
func NewVerifyDevice(identifier string, identity *airplaycrypto.Ed25519KeyPair, store keystore.Store) *VerifyDevice {
	return &VerifyDevice{identifier: identifier, identity: identity, store: store}
}

// HandleM1 generates our ephemeral keypair, derives the shared secret,
// and returns M2.
func (d *VerifyDevice) HandleM1(m1 tlv8.Container) (tlv8.Container, error) {
	if d.state != verifyDeviceStateInitial {
		return nil, errUnexpectedMessage
	}
	peerEph, err := m1.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, protoErr("pair-verify M1", err)
	}
	peerID, err := m1.GetRequired(tlv8.TypeIdentifier)
	if err != nil {
		return nil, protoErr("pair-verify M1", err)
	}

	eph, err := airplaycrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	shared, err := eph.SharedSecret(peerEph)
	if err != nil {
		return nil, err
	}
	sessionKey, err := airplaycrypto.HKDFExpand([]byte(saltPairVerifyEncrypt), shared, infoPairVerifyEncrypt, 32)
	if err != nil {
		return nil, err
	}

	signed := signedTranscript(eph.PublicKey, d.identifier, peerEph)
	sig := d.identity.Sign(signed)
	inner := encodeIdentitySubTLV(d.identifier, nil, sig)

	aead, err := airplaycrypto.NewChaCha20Poly1305(sessionKey)
	if err != nil {
		return nil, err
	}
	ct, err := aead.Seal(nonceV2[:], inner, nil)
	if err != nil {
		return nil, err
	}

	d.ourEph = eph
	d.peerEph = peerEph
	d.peerIdentifier = string(peerID)
	d.shared = shared
	d.sessionKey = sessionKey
	d.state = verifyDeviceStateAwaitM3
	return tlv8.Container{
		tlv8.TypeState:         {2},
		tlv8.TypePublicKey:     append([]byte{}, eph.PublicKey[:]...),
		tlv8.TypeEncryptedData: ct,
	}, nil
}

// HandleM3 verifies the controller's signature against its stored
// identity, derives the directional control-channel keys, and returns M4.
func (d *VerifyDevice) HandleM3(m3 tlv8.Container) (tlv8.Container, *Result, error) {
	if d.state != verifyDeviceStateAwaitM3 {
		return nil, nil, errUnexpectedMessage
	}
	ct, err := m3.GetRequired(tlv8.TypeEncryptedData)
	if err != nil {
		return nil, nil, protoErr("pair-verify M3", err)
	}

	aead, err := airplaycrypto.NewChaCha20Poly1305(d.sessionKey)
	if err != nil {
		return nil, nil, err
	}
	pt, err := aead.Open(nonceV3[:], ct, nil)
	if err != nil {
		return nil, nil, err
	}
	inner, err := tlv8.Decode(pt)
	if err != nil {
		return nil, nil, protoErr("pair-verify M3", err)
	}
	sig, err := inner.GetRequired(tlv8.TypeSignature)
	if err != nil {
		return nil, nil, protoErr("pair-verify M3", err)
	}

	peer, err := d.store.Load(d.peerIdentifier)
	if err != nil {
		return nil, nil, peerUnknownErr(err)
	}

	transcript := signedTranscript(arr32(d.peerEph), d.peerIdentifier, d.ourEph.PublicKey[:])
	if err := airplaycrypto.Ed25519Verify(peer.DevicePublicKey[:], transcript, sig); err != nil {
		return nil, nil, err
	}

	// Our read key is the controller's write key and vice versa.
	readKey, writeKey, err := deriveControlKeys(d.shared, infoControlWrite, infoControlRead)
	if err != nil {
		return nil, nil, err
	}

	d.state = verifyDeviceStateDone
	return tlv8.Container{tlv8.TypeState: {4}},
		&Result{PeerIdentifier: d.peerIdentifier, ReadKey: readKey, WriteKey: writeKey},
		nil
}

func arr32(b []byte) [32]byte {
	var out [32]byte
	copy(out[:], b)
	return out
}

// peerUnknownErr turns a keystore miss into the authentication failure
// spec.md 4.D requires when a Pair-Verify peer identifier is unknown.
func peerUnknownErr(err error) error {
	if _, ok := err.(keystore.ErrNotFound); ok {
		return liberrors.ErrAuthenticationFailed{Reason: err.Error()}
	}
	return err
}
