package pairing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/airplay2/internal/liberrors"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/keystore"
)

func runSetup(t *testing.T, controllerPIN, devicePIN string) (*SetupController, *SetupDevice, error) {
	t.Helper()

	controllerIdentity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	deviceIdentity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	controllerStore := keystore.NewMemoryStore()
	deviceStore := keystore.NewMemoryStore()

	controller, err := NewSetupController("sender-1", controllerIdentity, controllerPIN, controllerStore)
	require.NoError(t, err)
	device, err := NewSetupDevice("receiver-1", deviceIdentity, devicePIN, deviceStore)
	require.NoError(t, err)

	m1, err := controller.M1()
	require.NoError(t, err)
	m2, err := device.HandleM1(m1)
	require.NoError(t, err)
	m3, err := controller.HandleM2(m2)
	require.NoError(t, err)
	m4, err := device.HandleM3(m3)
	if err != nil {
		return controller, device, err
	}
	m5, err := controller.HandleM4(m4)
	if err != nil {
		return controller, device, err
	}
	m6, err := device.HandleM5(m5)
	require.NoError(t, err)
	_, err = controller.HandleM6(m6)
	return controller, device, err
}

func TestSetupSucceedsAndPersistsIdentities(t *testing.T) {
	controller, device, err := runSetup(t, "1234", "1234")
	require.NoError(t, err)

	require.Equal(t, "receiver-1", controller.peerIdentifier)
	require.Equal(t, "sender-1", device.peerIdentifier)

	ids, err := controller.store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"receiver-1"}, ids)

	ids, err = device.store.List()
	require.NoError(t, err)
	require.Equal(t, []string{"sender-1"}, ids)
}

func TestSetupWrongPINFailsAtM4(t *testing.T) {
	_, _, err := runSetup(t, "0000", "1234")
	require.Error(t, err)
	require.IsType(t, liberrors.ErrAuthenticationFailed{}, err)
}

func TestSetupMethodOutOfOrderRejected(t *testing.T) {
	identity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	store := keystore.NewMemoryStore()
	device, err := NewSetupDevice("receiver-1", identity, "1234", store)
	require.NoError(t, err)

	_, err = device.HandleM3(nil)
	require.Error(t, err)
}

func runVerify(t *testing.T) (*Result, *Result) {
	t.Helper()

	controllerIdentity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	deviceIdentity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	controllerStore := keystore.NewMemoryStore()
	deviceStore := keystore.NewMemoryStore()

	// Seed both stores as a prior Pair-Setup would have.
	require.NoError(t, controllerStore.Save("receiver-1", &keystore.PeerKeys{
		Identifier:      "sender-1",
		SecretKey:       seedFrom(controllerIdentity),
		PublicKey:       pubFrom(controllerIdentity),
		DevicePublicKey: pubFrom(deviceIdentity),
	}))
	require.NoError(t, deviceStore.Save("sender-1", &keystore.PeerKeys{
		Identifier:      "receiver-1",
		SecretKey:       seedFrom(deviceIdentity),
		PublicKey:       pubFrom(deviceIdentity),
		DevicePublicKey: pubFrom(controllerIdentity),
	}))

	controller, err := NewVerifyController("sender-1", controllerIdentity, controllerStore)
	require.NoError(t, err)
	device := NewVerifyDevice("receiver-1", deviceIdentity, deviceStore)

	m1, err := controller.M1()
	require.NoError(t, err)
	m2, err := device.HandleM1(m1)
	require.NoError(t, err)
	m3, err := controller.HandleM2(m2)
	require.NoError(t, err)
	m4, deviceResult, err := device.HandleM3(m3)
	require.NoError(t, err)
	controllerResult, err := controller.HandleM4(m4)
	require.NoError(t, err)

	return controllerResult, deviceResult
}

func TestVerifyDerivesMatchingCrossedKeys(t *testing.T) {
	controllerResult, deviceResult := runVerify(t)
	require.Equal(t, controllerResult.ReadKey, deviceResult.WriteKey)
	require.Equal(t, controllerResult.WriteKey, deviceResult.ReadKey)
	require.Equal(t, "receiver-1", controllerResult.PeerIdentifier)
	require.Equal(t, "sender-1", deviceResult.PeerIdentifier)
}

func TestVerifyUnknownPeerFails(t *testing.T) {
	controllerIdentity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)
	deviceIdentity, err := airplaycrypto.GenerateEd25519KeyPair()
	require.NoError(t, err)

	controller, err := NewVerifyController("sender-1", controllerIdentity, keystore.NewMemoryStore())
	require.NoError(t, err)
	device := NewVerifyDevice("receiver-1", deviceIdentity, keystore.NewMemoryStore())

	m1, err := controller.M1()
	require.NoError(t, err)
	m2, err := device.HandleM1(m1)
	require.NoError(t, err)
	_, err = controller.HandleM2(m2)
	require.Error(t, err)
	require.IsType(t, liberrors.ErrAuthenticationFailed{}, err)
}

func runTransient(t *testing.T, pin string) (*Result, *Result, error) {
	t.Helper()
	controller, err := NewTransientController(pin)
	require.NoError(t, err)
	device, err := NewTransientDevice(pin)
	require.NoError(t, err)

	m1, err := controller.M1()
	require.NoError(t, err)
	m2, err := device.HandleM1(m1)
	require.NoError(t, err)
	m3, err := controller.HandleM2(m2)
	require.NoError(t, err)
	m4, deviceResult, err := device.HandleM3(m3)
	require.NoError(t, err)
	controllerResult, err := controller.HandleM4(m4)
	return controllerResult, deviceResult, err
}

func TestTransientDerivesMatchingCrossedKeys(t *testing.T) {
	controllerResult, deviceResult, err := runTransient(t, "1234")
	require.NoError(t, err)
	require.Equal(t, controllerResult.ReadKey, deviceResult.WriteKey)
	require.Equal(t, controllerResult.WriteKey, deviceResult.ReadKey)
}

func seedFrom(k *airplaycrypto.Ed25519KeyPair) [32]byte {
	var out [32]byte
	copy(out[:], k.Seed())
	return out
}

func pubFrom(k *airplaycrypto.Ed25519KeyPair) [32]byte {
	var out [32]byte
	copy(out[:], k.PublicKey)
	return out
}

