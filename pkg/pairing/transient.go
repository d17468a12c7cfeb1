package pairing

import (
	"github.com/bluenviron/airplay2/internal/liberrors"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

// Transient runs the same SRP exchange as Pair-Setup through M4 but
// skips the Ed25519 identity exchange entirely: no keystore lookup, no
// persisted record, just an ephemeral control-channel key pair derived
// straight from the SRP session key K, per spec.md 4.D. Useful for
// AirPlay-2 senders that were told (via the device's feature bitfield)
// that no password is required.
type TransientController struct {
	state setupControllerState
	pin   string
	srp   *airplaycrypto.SRPClient

	expectedM1 []byte
	shared     []byte
}

// NewTransientController starts a transient Pair-Setup attempt.
func NewTransientController(pin string) (*TransientController, error) {
	srp, err := airplaycrypto.NewSRPClient()
	if err != nil {
		return nil, err
	}
	return &TransientController{pin: pin, srp: srp}, nil
}

// M1 is identical in shape to SetupController.M1 but flags the
// transient method.
func (c *TransientController) M1() (tlv8.Container, error) {
	if c.state != setupControllerStateInitial {
		return nil, errUnexpectedMessage
	}
	c.state = setupControllerStateAwaitM2
	return tlv8.Container{
		tlv8.TypeState:  {1},
		tlv8.TypeMethod: {1},
	}, nil
}

// HandleM2 mirrors SetupController.HandleM2.
func (c *TransientController) HandleM2(m2 tlv8.Container) (tlv8.Container, error) {
	if c.state != setupControllerStateAwaitM2 {
		return nil, errUnexpectedMessage
	}
	if err := m2.DeviceError(); err != nil {
		return nil, err
	}
	salt, err := m2.GetRequired(tlv8.TypeSalt)
	if err != nil {
		return nil, protoErr("transient M2", err)
	}
	pubB, err := m2.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, protoErr("transient M2", err)
	}

	sessionKey, m1, err := c.srp.ComputeSessionKey(salt, pubB, c.pin)
	if err != nil {
		return nil, err
	}
	c.shared = sessionKey
	c.expectedM1 = m1

	c.state = setupControllerStateAwaitM4
	return tlv8.Container{
		tlv8.TypeState:     {3},
		tlv8.TypePublicKey: c.srp.PublicKey(),
		tlv8.TypeProof:     m1,
	}, nil
}

// HandleM4 verifies the device's proof and derives the directional
// control-channel keys from the raw SRP session key.
func (c *TransientController) HandleM4(m4 tlv8.Container) (*Result, error) {
	if c.state != setupControllerStateAwaitM4 {
		return nil, errUnexpectedMessage
	}
	if err := m4.DeviceError(); err != nil {
		return nil, err
	}
	proof, err := m4.GetRequired(tlv8.TypeProof)
	if err != nil {
		return nil, protoErr("transient M4", err)
	}
	if err := c.srp.VerifyM2(c.expectedM1, proof); err != nil {
		return nil, err
	}

	readKey, writeKey, err := deriveControlKeys(c.shared, infoControlRead, infoControlWrite)
	if err != nil {
		return nil, err
	}
	c.state = setupControllerStateDone
	return &Result{ReadKey: readKey, WriteKey: writeKey}, nil
}

// TransientDevice is the device-side half of Transient pairing.
type TransientDevice struct {
	state setupDeviceState
	pin   string
	srp   *airplaycrypto.SRPServer
}

// NewTransientDevice starts a transient Pair-Setup session.
func NewTransientDevice(pin string) (*TransientDevice, error) {
	srp, err := airplaycrypto.NewSRPServer(pin)
	if err != nil {
		return nil, err
	}
	return &TransientDevice{pin: pin, srp: srp}, nil
}

// HandleM1 mirrors SetupDevice.HandleM1.
func (d *TransientDevice) HandleM1(m1 tlv8.Container) (tlv8.Container, error) {
	if d.state != setupDeviceStateInitial {
		return nil, errUnexpectedMessage
	}
	if _, err := m1.GetRequired(tlv8.TypeMethod); err != nil {
		return nil, protoErr("transient M1", err)
	}
	d.state = setupDeviceStateAwaitM3
	return tlv8.Container{
		tlv8.TypeState:     {2},
		tlv8.TypePublicKey: d.srp.PublicKey(),
		tlv8.TypeSalt:      d.srp.Salt(),
	}, nil
}

// HandleM3 verifies the controller's proof and derives the directional
// control-channel keys directly from the SRP session key K, skipping
// the identity exchange entirely.
func (d *TransientDevice) HandleM3(m3 tlv8.Container) (tlv8.Container, *Result, error) {
	if d.state != setupDeviceStateAwaitM3 {
		return nil, nil, errUnexpectedMessage
	}
	pubA, err := m3.GetRequired(tlv8.TypePublicKey)
	if err != nil {
		return nil, nil, protoErr("transient M3", err)
	}
	proof, err := m3.GetRequired(tlv8.TypeProof)
	if err != nil {
		return nil, nil, protoErr("transient M3", err)
	}

	sessionKey, expectedM1, err := d.srp.ComputeSessionKey(pubA)
	if err != nil {
		return nil, nil, err
	}
	if !constantTimeEqualBytes(expectedM1, proof) {
		return nil, nil, liberrors.ErrAuthenticationFailed{Reason: "SRP M1 proof mismatch"}
	}
	m2Proof := d.srp.ComputeM2(pubA, proof)

	readKey, writeKey, err := deriveControlKeys(sessionKey, infoControlWrite, infoControlRead)
	if err != nil {
		return nil, nil, err
	}

	d.state = setupDeviceStateDone
	return tlv8.Container{tlv8.TypeState: {4}, tlv8.TypeProof: m2Proof},
		&Result{ReadKey: readKey, WriteKey: writeKey},
		nil
}
