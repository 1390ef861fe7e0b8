package keystore

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

	"github.com/lockengine/lockengine-go/pkg/cert"
)

func testCertificate(t *testing.T) *cert.DeviceCertificate {
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

	certB64 := base64.StdEncoding.EncodeToString(der)
	pubBytes := elliptic.Marshal(priv.PublicKey.Curve, priv.PublicKey.X, priv.PublicKey.Y)
	pubB64 := base64.StdEncoding.EncodeToString(pubBytes)

	dc, err := cert.Decode(certB64, pubB64)
	require.NoError(t, err)
	return dc
}

func TestMemStoreGetMissingReturnsErrNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.Get("12345678-123456")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStorePutGetRemove(t *testing.T) {
	s := NewMemStore()
	dc := testCertificate(t)

	require.NoError(t, s.Put("12345678-123456", dc))

	got, err := s.Get("12345678-123456")
	require.NoError(t, err)
	require.Equal(t, dc.Certificate.Raw, got.Certificate.Raw)

	require.Equal(t, []string{"12345678-123456"}, s.Serials())

	require.NoError(t, s.Remove("12345678-123456"))
	_, err = s.Get("12345678-123456")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStorePutRejectsNilCertificate(t *testing.T) {
	s := NewMemStore()
	require.ErrorIs(t, s.Put("serial", nil), ErrInvalidCertificate)
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dc := testCertificate(t)

	store := NewFileStore(dir)
	require.NoError(t, store.Put("12345678-123456", dc))
	require.NoError(t, store.Save())

	reloaded := NewFileStore(dir)
	require.NoError(t, reloaded.Load())

	got, err := reloaded.Get("12345678-123456")
	require.NoError(t, err)
	require.Equal(t, dc.Certificate.Raw, got.Certificate.Raw)
	require.Equal(t, dc.DevicePublicKey.X, got.DevicePublicKey.X)
	require.Equal(t, dc.DevicePublicKey.Y, got.DevicePublicKey.Y)
}

func TestFileStoreLoadEmptyDirIsEmptyStore(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.Load())
	require.Empty(t, store.Serials())
}

func TestFileStoreRemoveDeletesFromDisk(t *testing.T) {
	dir := t.TempDir()
	dc := testCertificate(t)

	store := NewFileStore(dir)
	require.NoError(t, store.Put("12345678-123456", dc))
	require.NoError(t, store.Save())
	require.NoError(t, store.Remove("12345678-123456"))

	reloaded := NewFileStore(dir)
	require.NoError(t, reloaded.Load())
	require.Empty(t, reloaded.Serials())
}
