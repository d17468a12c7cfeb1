package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAESCTRRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	for i := range key {
		key[i] = 0x42
	}
	iv := make([]byte, 16)

	enc, err := NewAESCTR(key, iv)
	require.NoError(t, err)
	dec, err := NewAESCTR(key, iv)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog....")
	buf := append([]byte(nil), plaintext...)
	enc.Process(buf)
	require.NotEqual(t, plaintext, buf)
	dec.Process(buf)
	require.Equal(t, plaintext, buf)
}

func TestAESCTRSeekIsDeterministic(t *testing.T) {
	key := make([]byte, 16)
	iv := make([]byte, 16)
	c1, err := NewAESCTR(key, iv)
	require.NoError(t, err)
	c2, err := NewAESCTR(key, iv)
	require.NoError(t, err)

	a := make([]byte, 32)
	b := make([]byte, 32)
	c1.ProcessAt(48, a)
	c2.ProcessAt(48, b)
	require.Equal(t, a, b)
}

func TestAESGCMRoundTrip(t *testing.T) {
	key := make([]byte, 16)
	nonce := make([]byte, 12)
	aad := []byte("aad")
	g, err := NewAESGCM(key)
	require.NoError(t, err)

	ct, err := g.Seal(nonce, []byte("hello world"), aad)
	require.NoError(t, err)
	pt, err := g.Open(nonce, ct, aad)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), pt)

	ct[0] ^= 0xff
	_, err = g.Open(nonce, ct, aad)
	require.Error(t, err)
}

func TestChaCha20Poly1305RoundTrip(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 12)
	c, err := NewChaCha20Poly1305(key)
	require.NoError(t, err)

	ct, err := c.Seal(nonce, []byte("payload"), []byte{0x00, 0x07})
	require.NoError(t, err)
	pt, err := c.Open(nonce, ct, []byte{0x00, 0x07})
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), pt)

	// flipping a tag bit must fail
	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0x01
	_, err = c.Open(nonce, tampered, []byte{0x00, 0x07})
	require.Error(t, err)
}

func TestEd25519SignVerify(t *testing.T) {
	kp, err := GenerateEd25519KeyPair()
	require.NoError(t, err)

	msg := []byte("pair-verify transcript")
	sig := kp.Sign(msg)
	require.NoError(t, Ed25519Verify(kp.PublicKey, msg, sig))

	sig[0] ^= 0xff
	require.Error(t, Ed25519Verify(kp.PublicKey, msg, sig))
}

func TestX25519SharedSecretsMatch(t *testing.T) {
	a, err := GenerateX25519KeyPair()
	require.NoError(t, err)
	b, err := GenerateX25519KeyPair()
	require.NoError(t, err)

	sa, err := a.SharedSecret(b.PublicKey[:])
	require.NoError(t, err)
	sb, err := b.SharedSecret(a.PublicKey[:])
	require.NoError(t, err)
	require.Equal(t, sa, sb)
}

func TestHKDFExpandDeterministic(t *testing.T) {
	ikm := []byte("shared-secret")
	out1, err := HKDFExpand([]byte("salt"), ikm, "info", 32)
	require.NoError(t, err)
	out2, err := HKDFExpand([]byte("salt"), ikm, "info", 32)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
	require.Len(t, out1, 32)
}

func TestSRPHandshakeAgrees(t *testing.T) {
	server, err := NewSRPServer("1234")
	require.NoError(t, err)

	client, err := NewSRPClient()
	require.NoError(t, err)

	clientK, m1, err := client.ComputeSessionKey(server.Salt(), server.PublicKey(), "1234")
	require.NoError(t, err)

	serverK, expectedM1, err := server.ComputeSessionKey(client.PublicKey())
	require.NoError(t, err)

	require.Equal(t, serverK, clientK)
	require.Equal(t, expectedM1, m1)

	m2 := server.ComputeM2(client.PublicKey(), m1)
	require.NoError(t, client.VerifyM2(m1, m2))
}

func TestSRPWrongPINFailsM1(t *testing.T) {
	server, err := NewSRPServer("1234")
	require.NoError(t, err)
	client, err := NewSRPClient()
	require.NoError(t, err)

	_, m1, err := client.ComputeSessionKey(server.Salt(), server.PublicKey(), "0000")
	require.NoError(t, err)

	_, expectedM1, err := server.ComputeSessionKey(client.PublicKey())
	require.NoError(t, err)
	require.NotEqual(t, expectedM1, m1)
}

func TestRSAOAEPRoundTrip(t *testing.T) {
	pub, err := AppleRAOPPublicKey()
	require.NoError(t, err)
	_ = pub // the embedded key is structurally valid but not used for round-trip below

	priv, err := GenerateRAOPKeyPair()
	require.NoError(t, err)

	aesKey := make([]byte, 16)
	for i := range aesKey {
		aesKey[i] = byte(i)
	}

	ct, err := RSAOAEPEncrypt(&priv.PublicKey, aesKey)
	require.NoError(t, err)
	pt, err := RSAOAEPDecrypt(priv, ct)
	require.NoError(t, err)
	require.Equal(t, aesKey, pt)
}
