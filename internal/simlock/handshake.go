package simlock

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// These labels must match the client-side labels in
// pkg/securesession/reference.go: both parties derive their
// send/receive keys from the same ECDH shared secret, so the label
// strings are part of the wire agreement between client and firmware
// even though each side is a separate codebase.
var (
	hkdfInfoClientToDevice = []byte("lockengine-c2d-v1")
	hkdfInfoDeviceToClient = []byte("lockengine-d2c-v1")
	hkdfInfoConfirm        = []byte("lockengine-confirm-v1")
)

// ErrConfirmMismatch indicates the client's CLIENT_VERIFY payload did
// not match the device's own HMAC over the handshake transcript.
var ErrConfirmMismatch = errors.New("simlock: client verify confirmation mismatch")

// handshake runs the server (device) side of §4.4's key exchange for
// one connection attempt.
type handshake struct {
	id *Identity

	ephemeralPriv *ecdh.PrivateKey
	clientPub     []byte
	serverPub     []byte

	sendKey [32]byte // device-to-client
	recvKey [32]byte // client-to-device
	confirm [32]byte

	sendAEAD aeadCipher
	recvAEAD aeadCipher

	sendCounter uint64
	recvCounter uint64
	recvSeen    bool
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

func newHandshake(id *Identity) *handshake {
	return &handshake{id: id}
}

// hello consumes the client's HELLO blob and returns the device's own.
func (h *handshake) hello(clientHello []byte) ([]byte, error) {
	h.clientPub = clientHello

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("simlock: generate ephemeral key: %w", err)
	}
	h.ephemeralPriv = priv
	h.serverPub = priv.PublicKey().Bytes()

	clientPub, err := ecdh.P256().NewPublicKey(clientHello)
	if err != nil {
		return nil, fmt.Errorf("simlock: parse client hello: %w", err)
	}
	shared, err := priv.ECDH(clientPub)
	if err != nil {
		return nil, fmt.Errorf("simlock: ecdh: %w", err)
	}

	if err := h.deriveKeys(shared); err != nil {
		return nil, err
	}
	return h.serverPub, nil
}

func (h *handshake) deriveKeys(shared []byte) error {
	derive := func(info []byte, out []byte) error {
		r := hkdf.New(sha256.New, shared, nil, info)
		_, err := io.ReadFull(r, out)
		return err
	}
	if err := derive(hkdfInfoDeviceToClient, h.sendKey[:]); err != nil {
		return fmt.Errorf("simlock: derive send key: %w", err)
	}
	if err := derive(hkdfInfoClientToDevice, h.recvKey[:]); err != nil {
		return fmt.Errorf("simlock: derive recv key: %w", err)
	}
	if err := derive(hkdfInfoConfirm, h.confirm[:]); err != nil {
		return fmt.Errorf("simlock: derive confirm key: %w", err)
	}

	sendAEAD, err := chacha20poly1305.New(h.sendKey[:])
	if err != nil {
		return fmt.Errorf("simlock: aead init: %w", err)
	}
	recvAEAD, err := chacha20poly1305.New(h.recvKey[:])
	if err != nil {
		return fmt.Errorf("simlock: aead init: %w", err)
	}
	h.sendAEAD = sendAEAD
	h.recvAEAD = recvAEAD
	return nil
}

// serverVerify signs the handshake transcript with the device's
// long-term key, producing the SERVER_VERIFY record the client
// validates against the access certificate's device public key.
func (h *handshake) serverVerify(clientTimestamp []byte) ([]byte, error) {
	_ = clientTimestamp // accepted but not validated by this simulator
	digest := sha256.Sum256(transcript(h.clientPub, h.serverPub))
	return ecdsa.SignASN1(rand.Reader, h.id.Signer, digest[:])
}

// verifyClient checks the client's CLIENT_VERIFY confirmation payload
// against the device's own HMAC over the transcript.
func (h *handshake) verifyClient(payload []byte) error {
	mac := hmac.New(sha256.New, h.confirm[:])
	mac.Write(transcript(h.clientPub, h.serverPub))
	want := mac.Sum(nil)
	if !hmac.Equal(payload, want) {
		return ErrConfirmMismatch
	}
	return nil
}

func transcript(clientPub, serverPub []byte) []byte {
	t := make([]byte, 0, len(clientPub)+len(serverPub))
	t = append(t, clientPub...)
	t = append(t, serverPub...)
	return t
}

// encrypt produces a DATA_ENCRYPTED frame body for (command, payload),
// using the device-to-client key.
func (h *handshake) encrypt(command byte, payload []byte) []byte {
	nonce := nonceFor(h.sendCounter)
	h.sendCounter++

	plaintext := make([]byte, 1+len(payload))
	plaintext[0] = command
	copy(plaintext[1:], payload)

	sealed := h.sendAEAD.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 8+len(sealed))
	binary.BigEndian.PutUint64(out[:8], h.sendCounter-1)
	copy(out[8:], sealed)
	return out
}

// decrypt consumes a DATA_ENCRYPTED frame body written by the client.
func (h *handshake) decrypt(body []byte) (byte, []byte, error) {
	if len(body) < 8 {
		return 0, nil, fmt.Errorf("simlock: malformed encrypted frame")
	}
	counter := binary.BigEndian.Uint64(body[:8])
	if h.recvSeen && counter <= h.recvCounter {
		return 0, nil, fmt.Errorf("simlock: replayed or out-of-order counter")
	}
	plaintext, err := h.recvAEAD.Open(nil, nonceFor(counter), body[8:], nil)
	if err != nil {
		return 0, nil, fmt.Errorf("simlock: auth tag mismatch: %w", err)
	}
	if len(plaintext) < 1 {
		return 0, nil, fmt.Errorf("simlock: empty decrypted payload")
	}
	h.recvCounter = counter
	h.recvSeen = true
	return plaintext[0], plaintext[1:], nil
}

func nonceFor(counter uint64) []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.BigEndian.PutUint64(nonce[chacha20poly1305.NonceSize-8:], counter)
	return nonce
}
