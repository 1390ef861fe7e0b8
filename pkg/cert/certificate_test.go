package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedCert(t *testing.T) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-lock"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	return der, priv
}

func TestDecodeParsesCertAndPublicKey(t *testing.T) {
	der, priv := selfSignedCert(t)
	certB64 := base64.StdEncoding.EncodeToString(der)

	pubBytes := elliptic.Marshal(priv.PublicKey.Curve, priv.PublicKey.X, priv.PublicKey.Y)
	pubB64 := base64.StdEncoding.EncodeToString(pubBytes)

	dc, err := Decode(certB64, pubB64)
	require.NoError(t, err)

	require.NotNil(t, dc.Certificate)
	require.NotNil(t, dc.DevicePublicKey)
	require.Equal(t, priv.PublicKey.X, dc.DevicePublicKey.X)
	require.Equal(t, priv.PublicKey.Y, dc.DevicePublicKey.Y)
}

func TestDecodeParsesPKIXPublicKey(t *testing.T) {
	der, priv := selfSignedCert(t)
	certB64 := base64.StdEncoding.EncodeToString(der)

	pkix, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(pkix)

	dc, err := Decode(certB64, pubB64)
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey.X, dc.DevicePublicKey.X)
}

func TestDecodeRejectsInvalidBase64(t *testing.T) {
	_, err := Decode("not-base64!!", "also-not-base64!!")
	require.ErrorIs(t, err, ErrInvalidCert)
}

func TestDecodeRejectsMalformedCertBytes(t *testing.T) {
	badCert := base64.StdEncoding.EncodeToString([]byte("not a certificate"))
	_, priv := selfSignedCert(t)
	pubBytes := elliptic.Marshal(priv.PublicKey.Curve, priv.PublicKey.X, priv.PublicKey.Y)
	pubB64 := base64.StdEncoding.EncodeToString(pubBytes)

	_, err := Decode(badCert, pubB64)
	require.ErrorIs(t, err, ErrInvalidCert)
}
