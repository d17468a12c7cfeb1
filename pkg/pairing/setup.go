package pairing

import (
	"github.com/bluenviron/airplay2/internal/liberrors"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/keystore"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

type setupControllerState int

const (
	setupControllerStateInitial setupControllerState = iota
	setupControllerStateAwaitM2
	setupControllerStateAwaitM4
	setupControllerStateAwaitM6
	setupControllerStateDone
)

func (s setupControllerState) String() string {
	switch s {
	case setupControllerStateInitial:
		return "initial"
	case setupControllerStateAwaitM2:
		return "awaitM2"
	case setupControllerStateAwaitM4:
		return "awaitM4"
	case setupControllerStateAwaitM6:
		return "awaitM6"
	case setupControllerStateDone:
		return "done"
	default:
		return "invalid"
	}
}

// SetupController drives the controller side of Pair-Setup: M1, M3 and
// M5 out; M2, M4 and M6 in. On success the device's long-term Ed25519
// identity is persisted to store under its announced identifier.
type SetupController struct {
	state      setupControllerState
	identifier string
	identity   *airplaycrypto.Ed25519KeyPair
	pin        string
	store      keystore.Store

	srp            *airplaycrypto.SRPClient
	sessionKey     []byte
	expectedM1     []byte
	peerIdentifier string
}

// NewSetupController starts a Pair-Setup attempt. identifier is this
// controller's own identifier, advertised to the device in M5.
func NewSetupController(identifier string, identity *airplaycrypto.Ed25519KeyPair, pin string, store keystore.Store) (*SetupController, error) {
	srp, err := airplaycrypto.NewSRPClient()
	if err != nil {
		return nil, err
	}
	return &SetupController{identifier: identifier, identity: identity, pin: pin, store: store, srp: srp}, nil
}

// M1 builds the first message: State=1, Method=0 (standard Pair-Setup).
func (c *SetupController) M1() (tlv8.Container, error) {
	if c.state != setupControllerStateInitial {
		return nil, errUnexpectedMessage
	}
	c.state = setupControllerStateAwaitM2
	return tlv8.Container{
		tlv8.TypeState:  {1},
		tlv8.TypeMethod: {0},
	}, nil
}

// HandleM2 consumes the device's salt and SRP public key B and returns M3.
func (c *SetupController) HandleM2(m2 tlv8.Container) (tlv8.Container, error) {
	if c.state != setupControllerStateAwaitM2 {
		return nil, errUnexpectedMessage
	}
	if err := m2.DeviceError(); err != nil {
		return nil, err
	}
	salt, err := m2.GetRequired(tlv8.TypeSalt)
	if err != nil {
		return nil, protoErr("pair-setup M2", err)
	}
	pubB, err := m2.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, protoErr("pair-setup M2", err)
	}

	sessionKey, m1, err := c.srp.ComputeSessionKey(salt, pubB, c.pin)
	if err != nil {
		return nil, err
	}
	c.sessionKey = sessionKey
	c.expectedM1 = m1

	c.state = setupControllerStateAwaitM4
	return tlv8.Container{
		tlv8.TypeState:     {3},
		tlv8.TypePublicKey: c.srp.PublicKey(),
		tlv8.TypeProof:     m1,
	}, nil
}

// HandleM4 verifies the device's SRP proof M2 and returns the encrypted
// M5 carrying our Ed25519 identity.
func (c *SetupController) HandleM4(m4 tlv8.Container) (tlv8.Container, error) {
	if c.state != setupControllerStateAwaitM4 {
		return nil, errUnexpectedMessage
	}
	if err := m4.DeviceError(); err != nil {
		return nil, err
	}
	proof, err := m4.GetRequired(tlv8.TypeProof)
	if err != nil {
		return nil, protoErr("pair-setup M4", err)
	}

	if c.expectedM1 == nil {
		return nil, liberrors.ErrCrypto{Reason: "pair-setup session key not yet derived"}
	}
	if err := c.srp.VerifyM2(c.expectedM1, proof); err != nil {
		return nil, err
	}

	signKey, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupControllerSign), c.sessionKey, infoPairSetupControllerSign, 32)
	if err != nil {
		return nil, err
	}
	signed := append(append([]byte{}, signKey...), []byte(c.identifier)...)
	signed = append(signed, c.identity.PublicKey...)
	signature := c.identity.Sign(signed)

	inner := encodeIdentitySubTLV(c.identifier, c.identity.PublicKey, signature)

	encKey, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupEncrypt), c.sessionKey, infoPairSetupEncrypt, 32)
	if err != nil {
		return nil, err
	}
	aead, err := airplaycrypto.NewChaCha20Poly1305(encKey)
	if err != nil {
		return nil, err
	}
	ct, err := aead.Seal(nonceM5[:], inner, nil)
	if err != nil {
		return nil, err
	}

	c.state = setupControllerStateAwaitM6
	return tlv8.Container{
		tlv8.TypeState:         {5},
		tlv8.TypeEncryptedData: ct,
	}, nil
}

// HandleM6 decrypts and verifies the device's Ed25519 identity, then
// persists it under its announced identifier.
func (c *SetupController) HandleM6(m6 tlv8.Container) (string, error) {
	if c.state != setupControllerStateAwaitM6 {
		return "", errUnexpectedMessage
	}
	if err := m6.DeviceError(); err != nil {
		return "", err
	}
	ct, err := m6.GetRequired(tlv8.TypeEncryptedData)
	if err != nil {
		return "", protoErr("pair-setup M6", err)
	}

	encKey, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupEncrypt), c.sessionKey, infoPairSetupEncrypt, 32)
	if err != nil {
		return "", err
	}
	aead, err := airplaycrypto.NewChaCha20Poly1305(encKey)
	if err != nil {
		return "", err
	}
	pt, err := aead.Open(nonceM6[:], ct, nil)
	if err != nil {
		return "", err
	}
	inner, err := tlv8.Decode(pt)
	if err != nil {
		return "", protoErr("pair-setup M6", err)
	}
	peerID, err := inner.GetRequired(tlv8.TypeIdentifier)
	if err != nil {
		return "", protoErr("pair-setup M6", err)
	}
	peerPub, err := inner.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return "", protoErr("pair-setup M6", err)
	}
	peerSig, err := inner.GetRequired(tlv8.TypeSignature)
	if err != nil {
		return "", protoErr("pair-setup M6", err)
	}

	signKey, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupAccessorySign), c.sessionKey, infoPairSetupAccessorySign, 32)
	if err != nil {
		return "", err
	}
	signed := append(append([]byte{}, signKey...), peerID...)
	signed = append(signed, peerPub...)
	if err := airplaycrypto.Ed25519Verify(peerPub, signed, peerSig); err != nil {
		return "", err
	}

	record := &keystore.PeerKeys{Identifier: c.identifier}
	copy(record.SecretKey[:], c.identity.Seed())
	copy(record.PublicKey[:], c.identity.PublicKey)
	copy(record.DevicePublicKey[:], peerPub)
	if err := c.store.Save(string(peerID), record); err != nil {
		return "", err
	}

	c.peerIdentifier = string(peerID)
	c.state = setupControllerStateDone
	return c.peerIdentifier, nil
}

type setupDeviceState int

const (
	setupDeviceStateInitial setupDeviceState = iota
	setupDeviceStateAwaitM3
	setupDeviceStateAwaitM5
	setupDeviceStateDone
)

// SetupDevice drives the device (accessory) side of Pair-Setup.
type SetupDevice struct {
	state      setupDeviceState
	identifier string
	identity   *airplaycrypto.Ed25519KeyPair
	pin        string
	store      keystore.Store

	srp            *airplaycrypto.SRPServer
	sessionKey     []byte
	pubA           []byte
	peerIdentifier string
}

// NewSetupDevice starts a Pair-Setup session for a freshly presented PIN.
func NewSetupDevice(identifier string, identity *airplaycrypto.Ed25519KeyPair, pin string, store keystore.Store) (*SetupDevice, error) {
	srp, err := airplaycrypto.NewSRPServer(pin)
	if err != nil {
		return nil, err
	}
	return &SetupDevice{identifier: identifier, identity: identity, pin: pin, store: store, srp: srp}, nil
}

// HandleM1 returns M2: our SRP salt and public key B.
func (d *SetupDevice) HandleM1(m1 tlv8.Container) (tlv8.Container, error) {
	if d.state != setupDeviceStateInitial {
		return nil, errUnexpectedMessage
	}
	if _, err := m1.GetRequired(tlv8.TypeMethod); err != nil {
		return nil, protoErr("pair-setup M1", err)
	}
	d.state = setupDeviceStateAwaitM3
	return tlv8.Container{
		tlv8.TypeState:     {2},
		tlv8.TypePublicKey: d.srp.PublicKey(),
		tlv8.TypeSalt:      d.srp.Salt(),
	}, nil
}

// HandleM3 verifies the controller's SRP proof M1 and returns M4.
func (d *SetupDevice) HandleM3(m3 tlv8.Container) (tlv8.Container, error) {
	if d.state != setupDeviceStateAwaitM3 {
		return nil, errUnexpectedMessage
	}
	pubA, err := m3.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, protoErr("pair-setup M3", err)
	}
	proof, err := m3.GetRequired(tlv8.TypeProof)
	if err != nil {
		return nil, protoErr("pair-setup M3", err)
	}

	sessionKey, expectedM1, err := d.srp.ComputeSessionKey(pubA)
	if err != nil {
		return nil, err
	}
	if !constantTimeEqualBytes(expectedM1, proof) {
		return nil, liberrors.ErrAuthenticationFailed{Reason: "SRP M1 proof mismatch"}
	}
	d.sessionKey = sessionKey
	d.pubA = pubA

	m2Proof := d.srp.ComputeM2(pubA, proof)
	d.state = setupDeviceStateAwaitM5
	return tlv8.Container{
		tlv8.TypeState: {4},
		tlv8.TypeProof: m2Proof,
	}, nil
}

// HandleM5 decrypts and verifies the controller's Ed25519 identity,
// persists it, then returns our own encrypted identity as M6.
func (d *SetupDevice) HandleM5(m5 tlv8.Container) (tlv8.Container, error) {
	if d.state != setupDeviceStateAwaitM5 {
		return nil, errUnexpectedMessage
	}
	ct, err := m5.GetRequired(tlv8.TypeEncryptedData)
	if err != nil {
		return nil, protoErr("pair-setup M5", err)
	}

	encKey, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupEncrypt), d.sessionKey, infoPairSetupEncrypt, 32)
	if err != nil {
		return nil, err
	}
	aead, err := airplaycrypto.NewChaCha20Poly1305(encKey)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nonceM5[:], ct, nil)
	if err != nil {
		return nil, err
	}
	inner, err := tlv8.Decode(pt)
	if err != nil {
		return nil, protoErr("pair-setup M5", err)
	}
	peerID, err := inner.GetRequired(tlv8.TypeIdentifier)
	if err != nil {
		return nil, protoErr("pair-setup M5", err)
	}
	peerPub, err := inner.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, protoErr("pair-setup M5", err)
	}
	peerSig, err := inner.GetRequired(tlv8.TypeSignature)
	if err != nil {
		return nil, protoErr("pair-setup M5", err)
	}

	signKey, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupControllerSign), d.sessionKey, infoPairSetupControllerSign, 32)
	if err != nil {
		return nil, err
	}
	signed := append(append([]byte{}, signKey...), peerID...)
	signed = append(signed, peerPub...)
	if err := airplaycrypto.Ed25519Verify(peerPub, signed, peerSig); err != nil {
		return nil, err
	}

	record := &keystore.PeerKeys{Identifier: d.identifier}
	copy(record.SecretKey[:], d.identity.Seed())
	copy(record.PublicKey[:], d.identity.PublicKey)
	copy(record.DevicePublicKey[:], peerPub)
	if err := d.store.Save(string(peerID), record); err != nil {
		return nil, err
	}
	d.peerIdentifier = string(peerID)

	signKey2, err := airplaycrypto.HKDFExpand([]byte(saltPairSetupAccessorySign), d.sessionKey, infoPairSetupAccessorySign, 32)
	if err != nil {
		return nil, err
	}
	signed2 := append(append([]byte{}, signKey2...), []byte(d.identifier)...)
	signed2 = append(signed2, d.identity.PublicKey...)
	signature2 := d.identity.Sign(signed2)

	ourInner := encodeIdentitySubTLV(d.identifier, d.identity.PublicKey, signature2)
	ct2, err := aead.Seal(nonceM6[:], ourInner, nil)
	if err != nil {
		return nil, err
	}

	d.state = setupDeviceStateDone
	return tlv8.Container{
		tlv8.TypeState:         {6},
		tlv8.TypeEncryptedData: ct2,
	}, nil
}

func constantTimeEqualBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
