package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/securechat/internal/common"
)

const rsaPEMType = "PUBLIC KEY"

type rsaPublicKey struct {
	k *rsa.PublicKey
}

type rsaPrivateKey struct {
	k *rsa.PrivateKey
}

func generateRSA(bits int) (*rsaPrivateKey, error) {
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &rsaPrivateKey{k: k}, nil
}

func parseRSAPublic(der []byte) (*rsaPublicKey, error) {
	k, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	pub, ok := k.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: PUBLIC KEY is %T, want RSA", common.ErrCrypto, k)
	}
	return &rsaPublicKey{k: pub}, nil
}

func (p *rsaPublicKey) Scheme() Scheme { return SchemeRSA }

// Capacity for OAEP is k - 2*hLen - 2.
func (p *rsaPublicKey) Capacity() int {
	return p.k.Size() - 2*sha256.Size - 2
}

func (p *rsaPublicKey) Seal(plaintext []byte) ([]byte, error) {
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, p.k, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return ct, nil
}

func (p *rsaPublicKey) MarshalPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(p.k)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: rsaPEMType, Bytes: der}), nil
}

func (k *rsaPrivateKey) Scheme() Scheme { return SchemeRSA }

func (k *rsaPrivateKey) Public() PublicKey {
	return &rsaPublicKey{k: &k.k.PublicKey}
}

func (k *rsaPrivateKey) Open(ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, k.k, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCrypto, err)
	}
	return pt, nil
}
