package simlock

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// Identity is a simulated lock's long-term key material: the ECDSA
// P-256 signer used to produce the SERVER_VERIFY record, wrapped in a
// self-signed certificate so callers can exercise the real
// cert.Decode path exactly as they would against a field device's
// access certificate.
type Identity struct {
	Serial      string
	Signer      *ecdsa.PrivateKey
	CertDER     []byte
	RawCertB64  string
	PublicKeyB64 string
}

// NewIdentity generates a fresh signer and a self-signed certificate
// for serial.
func NewIdentity(serial string) (*Identity, error) {
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("simlock: generate signer: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: serial},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &signer.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("simlock: self-sign certificate: %w", err)
	}

	pubRaw := elliptic.Marshal(elliptic.P256(), signer.PublicKey.X, signer.PublicKey.Y)

	return &Identity{
		Serial:       serial,
		Signer:       signer,
		CertDER:      der,
		RawCertB64:   base64.StdEncoding.EncodeToString(der),
		PublicKeyB64: base64.StdEncoding.EncodeToString(pubRaw),
	}, nil
}
