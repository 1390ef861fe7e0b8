package securesession

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// deviceSim reproduces the server side of ReferenceCrypto's scheme,
// standing in for real lock firmware so the client-side handshake
// state machine can be exercised end to end.
type deviceSim struct {
	t      *testing.T
	signer *ecdsa.PrivateKey

	ephemeralPriv *ecdh.PrivateKey
	clientPub     []byte
	serverPub     []byte

	sendKey [32]byte // device-to-client
	recvKey [32]byte // client-to-device
	confirm [32]byte

	sendAEAD chacha20poly1305Cipher
	recvAEAD chacha20poly1305Cipher
}

func newDeviceSim(t *testing.T) *deviceSim {
	t.Helper()
	signer, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate device signer: %v", err)
	}
	return &deviceSim{t: t, signer: signer}
}

func (d *deviceSim) devicePublicKey() *ecdsa.PublicKey {
	return &d.signer.PublicKey
}

// Hello consumes the client's HELLO blob and returns the server's.
func (d *deviceSim) Hello(clientHello []byte) []byte {
	d.t.Helper()
	d.clientPub = clientHello

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		d.t.Fatalf("generate device key: %v", err)
	}
	d.ephemeralPriv = priv
	d.serverPub = priv.PublicKey().Bytes()

	clientPub, err := ecdh.P256().NewPublicKey(clientHello)
	if err != nil {
		d.t.Fatalf("parse client hello: %v", err)
	}
	shared, err := priv.ECDH(clientPub)
	if err != nil {
		d.t.Fatalf("ecdh: %v", err)
	}

	read := func(info []byte, out []byte) {
		r := hkdf.New(sha256.New, shared, nil, info)
		if _, err := io.ReadFull(r, out); err != nil {
			d.t.Fatalf("hkdf: %v", err)
		}
	}
	read(hkdfInfoDeviceToClient, d.sendKey[:])
	read(hkdfInfoClientToDevice, d.recvKey[:])
	read(hkdfInfoConfirm, d.confirm[:])

	sendAEAD, err := chacha20poly1305.New(d.sendKey[:])
	if err != nil {
		d.t.Fatalf("aead: %v", err)
	}
	recvAEAD, err := chacha20poly1305.New(d.recvKey[:])
	if err != nil {
		d.t.Fatalf("aead: %v", err)
	}
	d.sendAEAD = sendAEAD
	d.recvAEAD = recvAEAD

	return d.serverPub
}

// SignRecord produces the SERVER_VERIFY record the client verifies
// against devicePublicKey().
func (d *deviceSim) SignRecord() []byte {
	d.t.Helper()
	digest := sha256.Sum256(handshakeTranscript(d.clientPub, d.serverPub))
	sig, err := ecdsa.SignASN1(rand.Reader, d.signer, digest[:])
	if err != nil {
		d.t.Fatalf("sign record: %v", err)
	}
	return sig
}

// VerifyClientVerify checks the client's CLIENT_VERIFY confirmation
// tag.
func (d *deviceSim) VerifyClientVerify(tag []byte) bool {
	mac := hmac.New(sha256.New, d.confirm[:])
	mac.Write(handshakeTranscript(d.clientPub, d.serverPub))
	return hmac.Equal(mac.Sum(nil), tag)
}

// Encrypt produces a DATA_ENCRYPTED frame body as the device would
// send it, for counter value counter.
func (d *deviceSim) Encrypt(t *testing.T, counter uint64, command byte, payload []byte) []byte {
	t.Helper()
	nonce := nonceFor(counter)
	plaintext := append([]byte{command}, payload...)
	sealed := d.sendAEAD.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 8+len(sealed))
	binary.BigEndian.PutUint64(out[:8], counter)
	copy(out[8:], sealed)
	return out
}

// Decrypt consumes a DATA_ENCRYPTED frame body as the device would
// receive it.
func (d *deviceSim) Decrypt(t *testing.T, body []byte) (byte, []byte) {
	t.Helper()
	counter := binary.BigEndian.Uint64(body[:8])
	plaintext, err := d.recvAEAD.Open(nil, nonceFor(counter), body[8:], nil)
	if err != nil {
		t.Fatalf("device decrypt: %v", err)
	}
	return plaintext[0], plaintext[1:]
}
