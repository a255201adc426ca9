// Package crypto defines the opaque primitive interfaces the exchange
// machine programs against (DH groups, PRFs, symmetric keys) and the DH
// task pipeline that runs the expensive half of a Diffie-Hellman exchange
// off the event loop.
//
// Concrete cipher and hash implementations are a deliberately thin layer
// over the standard library and golang.org/x/crypto: the primitives
// themselves are treated as out of scope and assumed available; what
// belongs to this module is the task scheduling and key-ladder
// plumbing around them.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// SymKey is an opaque symmetric key material handle. Once consumed via
// Bytes, callers are expected to Zero it; the pipeline itself zeroes every
// intermediate it owns as soon as it hands ownership elsewhere, the same
// discipline crypt_dh.c applies to its `secret` buffers.
type SymKey struct {
	b []byte
}

// NewSymKey wraps raw key bytes. It takes ownership of the slice.
func NewSymKey(b []byte) SymKey { return SymKey{b: b} }

// Bytes returns the underlying key material. Callers must not retain the
// slice past the SymKey's lifetime if Zero will be called.
func (k SymKey) Bytes() []byte { return k.b }

// Len reports the key length in bytes.
func (k SymKey) Len() int { return len(k.b) }

// Zero overwrites the key material in place. Safe to call on an
// already-zeroed or empty key.
func (k SymKey) Zero() {
	for i := range k.b {
		k.b[i] = 0
	}
}

// DHGroup is a Diffie-Hellman group: it generates a local keypair and
// computes the shared secret from a peer's public value. Implementations
// must be safe to use from a worker goroutine — they hold no reference to
// event-loop state.
type DHGroup interface {
	// GeneratePrivate returns a new local private value and its
	// corresponding public value to send on the wire.
	GeneratePrivate() (private []byte, public []byte, err error)
	// SharedSecret computes g^(ab) from a local private value and a
	// peer's public value.
	SharedSecret(private, peerPublic []byte) ([]byte, error)
}

// PRF is a keyed pseudorandom function as used by the IKEv1 key-derivation
// ladder and the IKEv2 key material expansion (orig: ikev1_prf.c, RFC 2409
// Appendix B).
type PRF interface {
	// Compute returns prf(key, data).
	Compute(key, data []byte) []byte
	// Size returns the PRF's native output length in bytes.
	Size() int
}

type hmacPRF struct {
	newHash func() hash.Hash
	size    int
}

// HMACSHA1PRF is the RFC 2409 default PRF (HMAC-SHA1), used when a
// connection doesn't negotiate a different pseudorandom function.
func HMACSHA1PRF() PRF { return hmacPRF{newHash: sha1.New, size: sha1.Size} }

// HMACSHA256PRF is HMAC-SHA2-256 as a PRF.
func HMACSHA256PRF() PRF { return hmacPRF{newHash: sha256.New, size: sha256.Size} }

func (p hmacPRF) Compute(key, data []byte) []byte {
	mac := hmac.New(p.newHash, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (p hmacPRF) Size() int { return p.size }

// curve25519Group implements DHGroup over Curve25519 (RFC 7748), used for
// IKEv2's DH group 31.
type curve25519Group struct{}

// Curve25519Group returns the Curve25519 elliptic-curve DH group.
func Curve25519Group() DHGroup { return curve25519Group{} }

func (curve25519Group) GeneratePrivate() (private, public []byte, err error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, errors.Wrap(err, "crypto: curve25519: generate private scalar")
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, errors.Wrap(err, "crypto: curve25519: derive public value")
	}
	return priv, pub, nil
}

func (curve25519Group) SharedSecret(private, peerPublic []byte) ([]byte, error) {
	secret, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return nil, errors.Wrap(err, "crypto: curve25519: compute shared secret")
	}
	return secret, nil
}

// modpGroup implements DHGroup over a classic MODP group (RFC 3526),
// performing modular exponentiation with math/big the way pluto's
// mpz-based modp_group does — this is the one place the primitives-are-
// out-of-scope carve-out is satisfied with math/big rather than a
// third-party bignum library, since no example in this module's
// dependency pack vendors one.
type modpGroup struct {
	prime     *big.Int
	generator *big.Int
	byteLen   int
}

// MODPGroup constructs a MODP DH group from its prime modulus (big-endian
// bytes) and generator.
func MODPGroup(primeHex string, generator int64) DHGroup {
	p := new(big.Int)
	p.SetString(primeHex, 16)
	return modpGroup{
		prime:     p,
		generator: big.NewInt(generator),
		byteLen:   (p.BitLen() + 7) / 8,
	}
}

func (g modpGroup) GeneratePrivate() (private, public []byte, err error) {
	priv, err := rand.Int(rand.Reader, g.prime)
	if err != nil {
		return nil, nil, errors.Wrap(err, "crypto: modp: generate private exponent")
	}
	pub := new(big.Int).Exp(g.generator, priv, g.prime)
	return priv.Bytes(), leftPad(pub.Bytes(), g.byteLen), nil
}

func (g modpGroup) SharedSecret(private, peerPublic []byte) ([]byte, error) {
	priv := new(big.Int).SetBytes(private)
	peer := new(big.Int).SetBytes(peerPublic)
	if peer.Sign() <= 0 || peer.Cmp(g.prime) >= 0 {
		return nil, errors.New("crypto: modp: peer public value out of range")
	}
	secret := new(big.Int).Exp(peer, priv, g.prime)
	return leftPad(secret.Bytes(), g.byteLen), nil
}

func leftPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	out := make([]byte, n)
	copy(out[n-len(b):], b)
	return out
}

// MODP2048 is RFC 3526 Group 14, the most commonly negotiated MODP group.
func MODP2048() DHGroup {
	return MODPGroup(
		"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1"+
			"29024E088A67CC74020BBEA63B139B22514A08798E3404DD"+
			"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245"+
			"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
			"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D"+
			"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F"+
			"83655D23DCA3AD961C62F356208552BB9ED529077096966D"+
			"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B"+
			"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9"+
			"DE2BCBF6955817183995497CEA956AE515D2261898FA0510"+
			"15728E5A8AACAA68FFFFFFFFFFFFFFFF",
		2,
	)
}
