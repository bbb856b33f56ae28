// Crypto facade: RSA-PSS signing and the DS4 wire/flash key formats
// https://github.com/arcade-dev/ds4gadget
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dsauth wraps RSA-PSS sign/verify and the manufacturer key
// material behind the wire and flash layouts the authentication protocol
// requires. It never touches AuthState directly; package auth owns the
// buffer, and the idle worker (package sched, via a signing function it is
// handed) calls Sign between BeginSigning and CompleteSigning.
package dsauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"math/big"
)

const (
	// FieldLen is the width, in bytes, of a zero-padded big-endian RSA
	// field (modulus, exponent, or a 2048-bit signature) in wire/flash
	// layouts.
	FieldLen = 256
	// SerialLen is the width of the manufacturer serial field.
	SerialLen = 16
	// SignatureLen is the total length of the DS4Signature wire encoding.
	SignatureLen = 1064
	// KeyLen is the total length of the DS4Key flash layout: serial(16) +
	// n(256) + e(256) + sig(256) + p(128) + q(128) + dp(128) + dq(128) +
	// qinv(128) = 1424 bytes.
	KeyLen = 1424

	halfFieldLen = 128
)

// DS4Signature is the 1064-byte authentication response blob: a signature
// over the host's nonce, the manufacturer serial, the signing public key,
// and a CA signature over that public key, per §3.
type DS4Signature struct {
	NonceSig [FieldLen]byte
	Serial   [SerialLen]byte
	N        [FieldLen]byte
	E        [FieldLen]byte
	KeySig   [FieldLen]byte
}

// Encode serializes s into its 1064-byte wire form: the five fields above
// followed by 24 bytes of zero padding.
func (s DS4Signature) Encode() [SignatureLen]byte {
	var out [SignatureLen]byte

	off := 0
	off += copy(out[off:], s.NonceSig[:])
	off += copy(out[off:], s.Serial[:])
	off += copy(out[off:], s.N[:])
	off += copy(out[off:], s.E[:])
	off += copy(out[off:], s.KeySig[:])
	// remaining 24 bytes stay zero.

	return out
}

// ParseWireSignature decodes a 1064-byte wire blob into a DS4Signature.
// R1 (§8) requires ParseWireSignature(sig.Encode()) == sig byte-for-byte,
// which holds because every field is a fixed-width straight copy.
func ParseWireSignature(b [SignatureLen]byte) DS4Signature {
	var s DS4Signature

	off := 0
	off += copy(s.NonceSig[:], b[off:off+FieldLen])
	off += copy(s.Serial[:], b[off:off+SerialLen])
	off += copy(s.N[:], b[off:off+FieldLen])
	off += copy(s.E[:], b[off:off+FieldLen])
	copy(s.KeySig[:], b[off:off+FieldLen])

	return s
}

// DS4Key is an in-memory manufacturer signing key, deserialized from the
// 1424-byte (KeyLen) flash layout and loaded read-only at boot.
type DS4Key struct {
	Serial [SerialLen]byte
	CASig  [FieldLen]byte // CA signature over SHA256(serial || n || e)

	private *rsa.PrivateKey
}

// LoadEmbeddedKey deserializes a 1424-byte flash blob into a DS4Key. It
// returns an error, rather than panicking, if the embedded primes are
// inconsistent with the embedded modulus — a malformed key is a crypto
// error (§7 kind 2), not a fatal one.
func LoadEmbeddedKey(b [KeyLen]byte) (*DS4Key, error) {
	off := 0
	readField := func(n int) []byte {
		f := b[off : off+n]
		off += n
		return f
	}

	var serial [SerialLen]byte
	copy(serial[:], readField(SerialLen))

	n := new(big.Int).SetBytes(readField(FieldLen))
	e := new(big.Int).SetBytes(readField(FieldLen))

	var sig [FieldLen]byte
	copy(sig[:], readField(FieldLen))

	p := new(big.Int).SetBytes(readField(halfFieldLen))
	q := new(big.Int).SetBytes(readField(halfFieldLen))
	_ = readField(halfFieldLen) // dp: redundant with e/p/q, recomputed below
	_ = readField(halfFieldLen) // dq: redundant with e/p/q, recomputed below
	_ = readField(halfFieldLen) // qinv: recomputed by (*rsa.PrivateKey).Precompute

	if p.Sign() == 0 || q.Sign() == 0 {
		return nil, errors.New("dsauth: embedded key has zero prime factor")
	}

	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: n,
			E: int(e.Int64()),
		},
		Primes: []*big.Int{p, q},
	}

	d, err := privateExponent(p, q, priv.PublicKey.E)
	if err != nil {
		return nil, err
	}
	priv.D = d
	priv.Precompute()

	if new(big.Int).Mul(p, q).Cmp(n) != 0 {
		return nil, errors.New("dsauth: embedded prime factors do not multiply to the embedded modulus")
	}

	return &DS4Key{
		Serial:  serial,
		CASig:   sig,
		private: priv,
	}, nil
}

// privateExponent computes the RSA private exponent d = e^-1 mod lcm(p-1,q-1).
func privateExponent(p, q *big.Int, e int) (*big.Int, error) {
	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(p, one)
	qMinus1 := new(big.Int).Sub(q, one)

	gcd := new(big.Int).GCD(nil, nil, pMinus1, qMinus1)
	lambda := new(big.Int).Div(new(big.Int).Mul(pMinus1, qMinus1), gcd)

	d := new(big.Int).ModInverse(big.NewInt(int64(e)), lambda)
	if d == nil {
		return nil, errors.New("dsauth: public exponent has no inverse mod lambda(n); key is malformed")
	}

	return d, nil
}

// PublicKey returns the key's RSA public key.
func (k *DS4Key) PublicKey() *rsa.PublicKey {
	return &k.private.PublicKey
}

// Sign computes the DS4Signature over a 256-byte nonce: RSA-PSS with
// SHA-256, MGF1-SHA-256, and salt length equal to the hash length, per
// §4.6. The public modulus and exponent are left-padded to 256 bytes for
// transmission.
func (k *DS4Key) Sign(nonce [FieldLen]byte) (DS4Signature, error) {
	digest := sha256.Sum256(nonce[:])

	sig, err := rsa.SignPSS(rand.Reader, k.private, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return DS4Signature{}, err
	}

	var out DS4Signature
	copy(out.NonceSig[:], leftPad(sig, FieldLen))
	out.Serial = k.Serial
	copy(out.N[:], leftPad(k.private.PublicKey.N.Bytes(), FieldLen))
	copy(out.E[:], leftPad(big.NewInt(int64(k.private.PublicKey.E)).Bytes(), FieldLen))
	out.KeySig = k.CASig

	return out, nil
}

// Verify reports whether sig is a valid RSA-PSS-SHA256 signature over
// nonce under pub. The modulus is accepted between 2048 and 8192 bits
// inclusive, per §4.6; anything outside that range is rejected before the
// cryptographic check runs.
func Verify(pub *rsa.PublicKey, nonce []byte, sig []byte) bool {
	bits := pub.N.BitLen()
	if bits < 2048 || bits > 8192 {
		return false
	}

	digest := sha256.Sum256(nonce)

	err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})

	return err == nil
}

// leftPad zero-pads b on the left to exactly size bytes. It is the wire
// encoding rule for n and e (§4.6); parsing does the reverse with
// trimLeadingZeros.
func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}

	out := make([]byte, size)
	copy(out[size-len(b):], b)

	return out
}

// trimLeadingZeros strips leading zero bytes, the inverse of leftPad, used
// when lifting a received n or e field back into a *big.Int.
func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] == 0 {
		i++
	}

	return b[i:]
}

// PublicKeyFromFields reconstructs an *rsa.PublicKey from the wire-encoded
// n and e fields of a DS4Signature, stripping left-padding per §4.6.
func PublicKeyFromFields(n, e [FieldLen]byte) *rsa.PublicKey {
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(trimLeadingZeros(n[:])),
		E: int(new(big.Int).SetBytes(trimLeadingZeros(e[:])).Int64()),
	}
}
