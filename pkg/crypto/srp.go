package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"math/big"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// srpNHex is the 3072-bit SRP group modulus from RFC 5054 appendix A,
// the group HomeKit Pair-Setup uses.
const srpNHex = "" +
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC7" +
	"4020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14" +
	"374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B" +
	"7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163" +
	"BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208" +
	"552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E" +
	"36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF69" +
	"55817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFF" +
	"FFFFFFFF"

const srpGenerator = 5

// the username HomeKit Pair-Setup always uses.
const srpUsername = "Pair-Setup"

var srpN *big.Int
var srpG = big.NewInt(srpGenerator)
var srpK *big.Int

func init() {
	srpN = new(big.Int)
	srpN.SetString(srpNHex, 16)
	srpK = srpHash(padToN(srpN), padToN(srpG))
}

func srpHash(parts ...[]byte) *big.Int {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

func padToN(x *big.Int) []byte {
	nLen := (srpN.BitLen() + 7) / 8
	b := x.Bytes()
	if len(b) >= nLen {
		return b
	}
	out := make([]byte, nLen)
	copy(out[nLen-len(b):], b)
	return out
}

// srpModExp computes base^exp mod srpN.
func srpModExp(base, exp *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, srpN)
}

// SRPServer is the device-side half of HomeKit Pair-Setup's SRP-6a
// exchange: salt and verifier are derived once from the PIN, and a fresh
// ephemeral keypair (b, B) is generated per Pair-Setup attempt.
type SRPServer struct {
	salt     []byte
	verifier *big.Int
	b        *big.Int
	bPub     *big.Int
	a        *big.Int // set once the controller's A arrives
	sessionK []byte
}

// NewSRPServer derives the verifier from a 4-digit PIN and a random salt,
// then generates an ephemeral server keypair.
func NewSRPServer(pin string) (*SRPServer, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	s := &SRPServer{salt: salt}
	x := srpHash(salt, srpHash([]byte(srpUsername+":"+pin)).Bytes())
	s.verifier = srpModExp(srpG, x)

	b, err := rand.Int(rand.Reader, srpN)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	s.b = b
	// B = k*v + g^b mod N
	gb := srpModExp(srpG, s.b)
	kv := new(big.Int).Mul(srpK, s.verifier)
	s.bPub = new(big.Int).Mod(new(big.Int).Add(kv, gb), srpN)
	return s, nil
}

// Salt returns the salt to send in M2.
func (s *SRPServer) Salt() []byte { return s.salt }

// PublicKey returns B to send in M2.
func (s *SRPServer) PublicKey() []byte { return padToN(s.bPub) }

// ComputeSessionKey consumes the controller's A (from M3) and computes
// the shared session key K plus the expected M1 using the HomeKit M1
// formula: M1 = H(H(N) xor H(g), H(username), salt, A, B, K).
func (s *SRPServer) ComputeSessionKey(aBytes []byte) ([]byte, []byte, error) {
	a := new(big.Int).SetBytes(aBytes)
	if new(big.Int).Mod(a, srpN).Sign() == 0 {
		return nil, nil, liberrors.ErrAuthenticationFailed{Reason: "SRP public key A is degenerate"}
	}
	s.a = a

	u := srpHash(padToN(a), padToN(s.bPub))
	if u.Sign() == 0 {
		return nil, nil, liberrors.ErrAuthenticationFailed{Reason: "SRP scrambling parameter u is zero"}
	}

	// S = (A * v^u) ^ b mod N
	vu := srpModExp(s.verifier, u)
	base := new(big.Int).Mod(new(big.Int).Mul(a, vu), srpN)
	S := srpModExp(base, s.b)
	K := sha512.Sum512(padToN(S))
	s.sessionK = K[:]

	m1 := s.expectedM1(aBytes)
	return s.sessionK, m1, nil
}

func (s *SRPServer) expectedM1(aBytes []byte) []byte {
	hN := sha512.Sum512(padToN(srpN))
	hG := sha512.Sum512(padToN(srpG))
	xored := make([]byte, len(hN))
	for i := range xored {
		xored[i] = hN[i] ^ hG[i]
	}
	hUser := sha512.Sum512([]byte(srpUsername))
	return srpHash(xored, hUser[:], s.salt, aBytes, padToN(s.bPub), s.sessionK).Bytes()
}

// ComputeM2 computes the device's proof M2 = H(A, M1, K), sent back to
// the controller once M1 has verified.
func (s *SRPServer) ComputeM2(aBytes, m1 []byte) []byte {
	return srpHash(aBytes, m1, s.sessionK).Bytes()
}

// SRPClient is the controller-side half of the exchange.
type SRPClient struct {
	a        *big.Int
	aPub     *big.Int
	sessionK []byte
	salt     []byte
	bPub     *big.Int
}

// NewSRPClient generates the controller's ephemeral keypair (a, A).
func NewSRPClient() (*SRPClient, error) {
	a, err := rand.Int(rand.Reader, srpN)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	c := &SRPClient{a: a, aPub: srpModExp(srpG, a)}
	return c, nil
}

// PublicKey returns A to send in M3.
func (c *SRPClient) PublicKey() []byte { return padToN(c.aPub) }

// ComputeSessionKey consumes the device's salt and B (from M2) plus the
// user's PIN, and computes the shared session key K and the M1 proof to
// send in M3.
func (c *SRPClient) ComputeSessionKey(salt, bBytes []byte, pin string) ([]byte, []byte, error) {
	c.salt = salt
	b := new(big.Int).SetBytes(bBytes)
	if new(big.Int).Mod(b, srpN).Sign() == 0 {
		return nil, nil, liberrors.ErrAuthenticationFailed{Reason: "SRP public key B is degenerate"}
	}
	c.bPub = b

	u := srpHash(padToN(c.aPub), padToN(b))
	if u.Sign() == 0 {
		return nil, nil, liberrors.ErrAuthenticationFailed{Reason: "SRP scrambling parameter u is zero"}
	}

	x := srpHash(salt, srpHash([]byte(srpUsername+":"+pin)).Bytes())

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := srpModExp(srpG, x)
	kgx := new(big.Int).Mod(new(big.Int).Mul(srpK, gx), srpN)
	base := new(big.Int).Mod(new(big.Int).Sub(b, kgx), srpN)
	if base.Sign() < 0 {
		base.Add(base, srpN)
	}
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	S := srpModExp(base, exp)
	K := sha512.Sum512(padToN(S))
	c.sessionK = K[:]

	m1 := c.computeM1()
	return c.sessionK, m1, nil
}

func (c *SRPClient) computeM1() []byte {
	hN := sha512.Sum512(padToN(srpN))
	hG := sha512.Sum512(padToN(srpG))
	xored := make([]byte, len(hN))
	for i := range xored {
		xored[i] = hN[i] ^ hG[i]
	}
	hUser := sha512.Sum512([]byte(srpUsername))
	return srpHash(xored, hUser[:], c.salt, padToN(c.aPub), padToN(c.bPub), c.sessionK).Bytes()
}

// VerifyM2 checks the device's proof M2 = H(A, M1, K) received in M4.
func (c *SRPClient) VerifyM2(m1, m2 []byte) error {
	expected := srpHash(padToN(c.aPub), m1, c.sessionK).Bytes()
	if !constantTimeEqual(expected, m2) {
		return liberrors.ErrAuthenticationFailed{Reason: "SRP M2 proof mismatch"}
	}
	return nil
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
