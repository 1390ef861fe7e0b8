package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoKeyPair reports that no mobile key pair is provisioned (§6:
// "get mobile_key_pair() → KeyPair | null"). The providers in this
// package generate a key pair on first use and never return it.
var ErrNoKeyPair = errors.New("keystore: no mobile key pair provisioned")

// KeyPair is the mobile client's own long-term P-256 identity key
// pair (§6 Keystore capability), distinct from the lock's access
// certificate stored by Store. The lock's REGISTER_DEVICE operation
// binds a new access certificate to the public half; the private
// half never leaves this package — Sign delegates to it rather than
// exposing it, matching the spec's "the private key never leaves the
// keystore (signing is delegated)".
type KeyPair struct {
	public *ecdsa.PublicKey
	priv   *ecdsa.PrivateKey
}

// PublicKey returns the public half.
func (k *KeyPair) PublicKey() *ecdsa.PublicKey { return k.public }

// PublicKeyBytes returns the uncompressed SEC1 point encoding of the
// public half, the same wire form pkg/cert.Decode accepts for a
// device public key.
func (k *KeyPair) PublicKeyBytes() []byte {
	return elliptic.Marshal(k.public.Curve, k.public.X, k.public.Y)
}

// Sign signs digest with the private half. Callers never see the
// private key itself.
func (k *KeyPair) Sign(digest []byte) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, k.priv, digest)
}

func newKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate mobile key pair: %w", err)
	}
	return &KeyPair{public: &priv.PublicKey, priv: priv}, nil
}

// MobileKeyProvider provides the mobile client's own identity key
// pair (§6 Keystore capability), generating one on first use.
// Implementations must be safe for concurrent use.
type MobileKeyProvider interface {
	// GetMobileKeyPair returns the persistent identity key pair,
	// generating and persisting one if none exists yet.
	GetMobileKeyPair() (*KeyPair, error)
}

// MemKeyProvider is an in-memory MobileKeyProvider: the key pair it
// generates does not survive process restart. Used in tests and in
// short-lived add-lock flows that re-register on every run.
type MemKeyProvider struct {
	mu sync.Mutex
	kp *KeyPair
}

// NewMemKeyProvider creates an empty in-memory provider.
func NewMemKeyProvider() *MemKeyProvider {
	return &MemKeyProvider{}
}

func (p *MemKeyProvider) GetMobileKeyPair() (*KeyPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kp == nil {
		kp, err := newKeyPair()
		if err != nil {
			return nil, err
		}
		p.kp = kp
	}
	return p.kp, nil
}

var _ MobileKeyProvider = (*MemKeyProvider)(nil)

// mobileKeyFileName is the PEM file a FileKeyProvider persists the
// private key under, mirroring FileStore's one-file-per-concern
// layout rather than bundling it into the certificate store.
const mobileKeyFileName = "mobile_key.pem"

// FileKeyProvider is a file-backed MobileKeyProvider rooted at a
// directory, generating and persisting an EC private key on first
// use with owner-only permissions.
type FileKeyProvider struct {
	mu      sync.Mutex
	baseDir string
	kp      *KeyPair
}

// NewFileKeyProvider creates a file-backed provider rooted at
// baseDir. The key file is read lazily on the first GetMobileKeyPair
// call.
func NewFileKeyProvider(baseDir string) *FileKeyProvider {
	return &FileKeyProvider{baseDir: baseDir}
}

func (p *FileKeyProvider) keyPath() string {
	return filepath.Join(p.baseDir, mobileKeyFileName)
}

func (p *FileKeyProvider) GetMobileKeyPair() (*KeyPair, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.kp != nil {
		return p.kp, nil
	}

	kp, err := p.load()
	if errors.Is(err, os.ErrNotExist) {
		kp, err = newKeyPair()
		if err != nil {
			return nil, err
		}
		if err := p.save(kp); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	p.kp = kp
	return kp, nil
}

func (p *FileKeyProvider) load() (*KeyPair, error) {
	data, err := os.ReadFile(p.keyPath())
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, fmt.Errorf("keystore: %s: not an EC private key", p.keyPath())
	}
	priv, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse mobile key: %w", err)
	}
	return &KeyPair{public: &priv.PublicKey, priv: priv}, nil
}

func (p *FileKeyProvider) save(kp *KeyPair) error {
	if err := os.MkdirAll(p.baseDir, 0o755); err != nil {
		return fmt.Errorf("keystore: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(kp.priv)
	if err != nil {
		return fmt.Errorf("keystore: marshal mobile key: %w", err)
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	if err := os.WriteFile(p.keyPath(), pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("keystore: write mobile key: %w", err)
	}
	return nil
}

var _ MobileKeyProvider = (*FileKeyProvider)(nil)
