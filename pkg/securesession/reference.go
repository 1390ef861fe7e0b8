package securesession

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// hkdfInfo* label the subkeys derived from the ECDH shared secret.
// Client-to-device and device-to-client traffic use distinct keys so
// a nonce counter restarting on one side can never collide with a
// ciphertext encrypted under the same key on the other.
var (
	hkdfInfoClientToDevice = []byte("lockengine-c2d-v1")
	hkdfInfoDeviceToClient = []byte("lockengine-d2c-v1")
	hkdfInfoConfirm        = []byte("lockengine-confirm-v1")
)

// ReferenceCrypto is a concrete SecureSessionCrypto: P-256 ECDH key
// agreement, HKDF-SHA256 key derivation, ECDSA-P256 record
// verification against the device's long-term public key, and
// ChaCha20-Poly1305 AEAD for the post-handshake data channel.
//
// The device-side equivalent of this scheme lives in this package's
// tests and in internal/simlock; real lock firmware implements its own
// (undocumented) algorithm behind the same frame contract.
type ReferenceCrypto struct {
	devicePub *ecdsa.PublicKey

	clientPriv *ecdh.PrivateKey
	clientPub  []byte
	serverPub  []byte

	sendKey    [32]byte
	recvKey    [32]byte
	confirmKey [32]byte

	sendAEAD    chacha20poly1305Cipher
	recvAEAD    chacha20poly1305Cipher
	sendCounter uint64
	recvCounter uint64
	recvSeen    bool
}

// chacha20poly1305Cipher narrows the AEAD interface to what Encrypt/
// Decrypt need.
type chacha20poly1305Cipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// NewReferenceCrypto creates a reference crypto instance that will
// verify the handshake against devicePub (from the access
// certificate's DeviceCertificate).
func NewReferenceCrypto(devicePub *ecdsa.PublicKey) *ReferenceCrypto {
	return &ReferenceCrypto{devicePub: devicePub}
}

func (r *ReferenceCrypto) ClientHello() ([]byte, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate client key: %w", err)
	}
	r.clientPriv = priv
	r.clientPub = priv.PublicKey().Bytes()
	return r.clientPub, nil
}

func (r *ReferenceCrypto) HandleServerHello(serverHello []byte) error {
	serverPub, err := ecdh.P256().NewPublicKey(serverHello)
	if err != nil {
		return fmt.Errorf("parse server hello: %w", err)
	}
	r.serverPub = serverHello

	shared, err := r.clientPriv.ECDH(serverPub)
	if err != nil {
		return fmt.Errorf("ecdh: %w", err)
	}

	if err := r.deriveKeys(shared); err != nil {
		return err
	}

	sendAEAD, err := chacha20poly1305.New(r.sendKey[:])
	if err != nil {
		return fmt.Errorf("aead init: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(r.recvKey[:])
	if err != nil {
		return fmt.Errorf("aead init: %w", err)
	}
	r.sendAEAD = sendAEAD
	r.recvAEAD = recvAEAD
	return nil
}

func (r *ReferenceCrypto) deriveKeys(shared []byte) error {
	c2d := hkdf.New(sha256.New, shared, nil, hkdfInfoClientToDevice)
	if _, err := io.ReadFull(c2d, r.sendKey[:]); err != nil {
		return fmt.Errorf("derive client-to-device key: %w", err)
	}

	d2c := hkdf.New(sha256.New, shared, nil, hkdfInfoDeviceToClient)
	if _, err := io.ReadFull(d2c, r.recvKey[:]); err != nil {
		return fmt.Errorf("derive device-to-client key: %w", err)
	}

	confirmReader := hkdf.New(sha256.New, shared, nil, hkdfInfoConfirm)
	if _, err := io.ReadFull(confirmReader, r.confirmKey[:]); err != nil {
		return fmt.Errorf("derive confirm key: %w", err)
	}
	return nil
}

// handshakeTranscript binds the verification record and confirmation
// tag to both parties' key-exchange blobs, so a record replayed from a
// different handshake fails to verify.
func handshakeTranscript(clientPub, serverPub []byte) []byte {
	t := make([]byte, 0, len(clientPub)+len(serverPub))
	t = append(t, clientPub...)
	t = append(t, serverPub...)
	return t
}

func (r *ReferenceCrypto) VerifyServerRecord(record []byte) error {
	digest := sha256.Sum256(handshakeTranscript(r.clientPub, r.serverPub))
	if !ecdsa.VerifyASN1(r.devicePub, digest[:], record) {
		return ErrVerificationFailed
	}
	return nil
}

func (r *ReferenceCrypto) ClientVerifyPayload() ([]byte, error) {
	mac := hmac.New(sha256.New, r.confirmKey[:])
	mac.Write(handshakeTranscript(r.clientPub, r.serverPub))
	return mac.Sum(nil), nil
}

func (r *ReferenceCrypto) HandleSessionInitialized(params []byte) error {
	// The reference scheme defines no post-handshake parameters; any
	// payload is accepted and ignored.
	return nil
}

func (r *ReferenceCrypto) Encrypt(command protocol.Command, payload []byte) ([]byte, error) {
	if r.sendAEAD == nil {
		return nil, ErrNotReady
	}

	nonce := nonceFor(r.sendCounter)
	r.sendCounter++

	plaintext := make([]byte, 1+len(payload))
	plaintext[0] = byte(command)
	copy(plaintext[1:], payload)

	sealed := r.sendAEAD.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 8+len(sealed))
	binary.BigEndian.PutUint64(out[:8], nonceCounter(nonce))
	copy(out[8:], sealed)
	return out, nil
}

func (r *ReferenceCrypto) Decrypt(body []byte) (protocol.Command, []byte, error) {
	if r.recvAEAD == nil {
		return 0, nil, ErrNotReady
	}
	if len(body) < 8 {
		return 0, nil, ErrMalformedFrame
	}

	counter := binary.BigEndian.Uint64(body[:8])
	if r.recvSeen && counter <= r.recvCounter {
		return 0, nil, ErrAuthTagMismatch
	}

	plaintext, err := r.recvAEAD.Open(nil, nonceFor(counter), body[8:], nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrAuthTagMismatch, err)
	}
	if len(plaintext) < 1 {
		return 0, nil, ErrMalformedFrame
	}

	r.recvCounter = counter
	r.recvSeen = true
	return protocol.Command(plaintext[0]), plaintext[1:], nil
}

func (r *ReferenceCrypto) Close() {
	for i := range r.sendKey {
		r.sendKey[i] = 0
	}
	for i := range r.recvKey {
		r.recvKey[i] = 0
	}
	for i := range r.confirmKey {
		r.confirmKey[i] = 0
	}
	r.sendAEAD = nil
	r.recvAEAD = nil
}

func nonceFor(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-8:], counter)
	return nonce
}

func nonceCounter(nonce []byte) uint64 {
	return binary.BigEndian.Uint64(nonce[len(nonce)-8:])
}
