package cryptox

import (
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/common"
	"golang.org/x/crypto/nacl/box"
)

const (
	naclPEMType = "NACL BOX PUBLIC KEY"

	// naclCapacity caps sealed-box payloads at chat length; the relay never
	// chunks a message across several boxes.
	naclCapacity = 4096
)

type naclPublicKey struct {
	k *[32]byte
}

type naclPrivateKey struct {
	pub  *[32]byte
	priv *[32]byte
}

func generateNaCl() (*naclPrivateKey, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate box key: %w", err)
	}
	return &naclPrivateKey{pub: pub, priv: priv}, nil
}

func parseNaClPublic(b []byte) (*naclPublicKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: box public key is %d bytes, want 32", common.ErrCrypto, len(b))
	}
	var k [32]byte
	copy(k[:], b)
	return &naclPublicKey{k: &k}, nil
}

func (p *naclPublicKey) Scheme() Scheme { return SchemeNaCl }

func (p *naclPublicKey) Capacity() int { return naclCapacity }

func (p *naclPublicKey) Seal(plaintext []byte) ([]byte, error) {
	ct, err := box.SealAnonymous(nil, plaintext, p.k, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return ct, nil
}

func (p *naclPublicKey) MarshalPEM() ([]byte, error) {
	return pem.EncodeToMemory(&pem.Block{Type: naclPEMType, Bytes: p.k[:]}), nil
}

func (k *naclPrivateKey) Scheme() Scheme { return SchemeNaCl }

func (k *naclPrivateKey) Public() PublicKey {
	return &naclPublicKey{k: k.pub}
}

func (k *naclPrivateKey) Open(ciphertext []byte) ([]byte, error) {
	pt, ok := box.OpenAnonymous(nil, ciphertext, k.pub, k.priv)
	if !ok {
		return nil, fmt.Errorf("%w: sealed box authentication failed", common.ErrCrypto)
	}
	return pt, nil
}
