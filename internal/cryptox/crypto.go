// Package cryptox implements the content cipher: per-recipient public-key
// sealing of chat payloads, the PEM key encoding exchanged at key binding,
// and the secret derivative sent during authentication.
package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/common"
)

// Scheme names a public-key sealing algorithm.
type Scheme string

const (
	SchemeRSA  Scheme = "rsa-oaep"
	SchemeNaCl Scheme = "nacl-box"
)

// DefaultRSABits is the modulus size generated by clients unless configured.
const DefaultRSABits = 2048

// PublicKey seals payloads for the holder of the matching PrivateKey.
type PublicKey interface {
	Scheme() Scheme
	// Capacity is the largest plaintext, in bytes, a single Seal accepts.
	Capacity() int
	Seal(plaintext []byte) ([]byte, error)
	MarshalPEM() ([]byte, error)
}

// PrivateKey opens payloads sealed under its public half.
type PrivateKey interface {
	Scheme() Scheme
	Public() PublicKey
	Open(ciphertext []byte) ([]byte, error)
}

// GenerateKey creates a fresh key pair. bits only applies to SchemeRSA; zero
// selects DefaultRSABits.
func GenerateKey(scheme Scheme, bits int) (PrivateKey, error) {
	switch scheme {
	case SchemeRSA, "":
		if bits == 0 {
			bits = DefaultRSABits
		}
		return generateRSA(bits)
	case SchemeNaCl:
		return generateNaCl()
	default:
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
}

// ParsePublicKey decodes a PEM public key produced by PublicKey.MarshalPEM.
// The PEM block type selects the scheme.
func ParsePublicKey(data []byte) (PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in key material", common.ErrCrypto)
	}
	switch block.Type {
	case rsaPEMType:
		return parseRSAPublic(block.Bytes)
	case naclPEMType:
		return parseNaClPublic(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unsupported key type %q", common.ErrCrypto, block.Type)
	}
}

// Seal encrypts plaintext for the holder of pub.
func Seal(plaintext []byte, pub PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, common.ErrKeyNotBound
	}
	if len(plaintext) > pub.Capacity() {
		return nil, fmt.Errorf("%w: %d > %d bytes", common.ErrPayloadTooLarge, len(plaintext), pub.Capacity())
	}
	return pub.Seal(plaintext)
}

// Open decrypts ciphertext with priv. Corrupt, truncated or foreign
// ciphertext fails with common.ErrCrypto.
func Open(ciphertext []byte, priv PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: no private key", common.ErrCrypto)
	}
	return priv.Open(ciphertext)
}

// SealString seals text and returns it base64 encoded, ready to be placed in
// an envelope's content.
func SealString(text string, pub PublicKey) (string, error) {
	ct, err := Seal([]byte(text), pub)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// OpenString reverses SealString.
func OpenString(content string, priv PrivateKey) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64 content: %v", common.ErrCrypto, err)
	}
	pt, err := Open(ct, priv)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// SecretDerivative turns a password into the value presented to the relay:
// the lowercase hex SHA-256 digest. Unsalted and single-round; the credential
// store holds the same string as its verifier.
func SecretDerivative(password []byte) string {
	sum := sha256.Sum256(password)
	return hex.EncodeToString(sum[:])
}
