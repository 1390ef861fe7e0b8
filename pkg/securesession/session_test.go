package securesession

import (
	"errors"
	"testing"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

func runHandshake(t *testing.T) (*Session, *deviceSim) {
	t.Helper()

	sim := newDeviceSim(t)
	crypto := NewReferenceCrypto(sim.devicePublicKey())
	session := New(crypto, func() time.Time { return time.UnixMilli(1700000000000) })

	hello, err := session.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if hello.Kind != protocol.FrameHello {
		t.Fatalf("Start() kind = %v, want HELLO", hello.Kind)
	}
	if session.State() != StateHelloSent {
		t.Fatalf("State() = %v, want HELLO_SENT", session.State())
	}

	serverHello := sim.Hello(hello.Payload)

	serverVerify, err := session.HandleHello(serverHello)
	if err != nil {
		t.Fatalf("HandleHello() error = %v", err)
	}
	if serverVerify.Kind != protocol.FrameServerVerify {
		t.Fatalf("HandleHello() kind = %v, want SERVER_VERIFY", serverVerify.Kind)
	}
	if len(serverVerify.Payload) != 8 {
		t.Fatalf("HandleHello() timestamp payload len = %d, want 8", len(serverVerify.Payload))
	}

	record := sim.SignRecord()
	frames, err := session.HandleServerVerify(record)
	if err != nil {
		t.Fatalf("HandleServerVerify() error = %v", err)
	}
	if len(frames) == 0 {
		t.Fatal("HandleServerVerify() produced no CLIENT_VERIFY frames")
	}
	if frames[len(frames)-1].Kind != protocol.FrameClientVerifyEnd {
		t.Errorf("last frame kind = %v, want CLIENT_VERIFY_END", frames[len(frames)-1].Kind)
	}
	for _, f := range frames[:len(frames)-1] {
		if f.Kind != protocol.FrameClientVerify {
			t.Errorf("intermediate frame kind = %v, want CLIENT_VERIFY", f.Kind)
		}
	}

	var tag []byte
	for _, f := range frames {
		tag = append(tag, f.Payload...)
	}
	if !sim.VerifyClientVerify(tag) {
		t.Fatal("device failed to verify CLIENT_VERIFY tag")
	}

	if err := session.HandleSessionInitialized([]byte("params")); err != nil {
		t.Fatalf("HandleSessionInitialized() error = %v", err)
	}
	if session.State() != StateReady {
		t.Fatalf("State() = %v, want READY", session.State())
	}

	return session, sim
}

func TestSessionFullHandshake(t *testing.T) {
	runHandshake(t)
}

func TestSessionEncryptDecryptRoundTrip(t *testing.T) {
	session, sim := runHandshake(t)

	frame, err := session.Encrypt(protocol.CmdOpen, []byte{0x00})
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if frame.Kind != protocol.FrameDataEncrypted {
		t.Fatalf("Encrypt() kind = %v, want DATA_ENCRYPTED", frame.Kind)
	}

	cmd, payload := sim.Decrypt(t, frame.Payload)
	if cmd != byte(protocol.CmdOpen) {
		t.Errorf("device decrypted command = 0x%02X, want 0x%02X", cmd, protocol.CmdOpen)
	}
	if len(payload) != 1 || payload[0] != 0x00 {
		t.Errorf("device decrypted payload = %v, want [0x00]", payload)
	}

	body := sim.Encrypt(t, 0, byte(protocol.CmdOpen), []byte{0x00})
	gotCmd, gotPayload, err := session.Decrypt(body)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if gotCmd != protocol.CmdOpen {
		t.Errorf("Decrypt() command = %v, want CmdOpen", gotCmd)
	}
	if len(gotPayload) != 1 || gotPayload[0] != 0x00 {
		t.Errorf("Decrypt() payload = %v, want [0x00]", gotPayload)
	}
}

func TestSessionDecryptRejectsReplay(t *testing.T) {
	session, sim := runHandshake(t)

	body := sim.Encrypt(t, 0, byte(protocol.CmdGetState), nil)
	if _, _, err := session.Decrypt(body); err != nil {
		t.Fatalf("first Decrypt() error = %v", err)
	}

	replay := sim.Encrypt(t, 0, byte(protocol.CmdGetState), nil)
	if _, _, err := session.Decrypt(replay); !errors.Is(err, ErrAuthTagMismatch) {
		t.Fatalf("replay Decrypt() error = %v, want ErrAuthTagMismatch", err)
	}
}

func TestSessionVerificationFailureCloses(t *testing.T) {
	sim := newDeviceSim(t)
	other := newDeviceSim(t)
	crypto := NewReferenceCrypto(other.devicePublicKey())
	session := New(crypto, nil)

	hello, _ := session.Start()
	serverHello := sim.Hello(hello.Payload)
	if _, err := session.HandleHello(serverHello); err != nil {
		t.Fatalf("HandleHello() error = %v", err)
	}

	record := sim.SignRecord()
	_, err := session.HandleServerVerify(record)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("HandleServerVerify() error = %v, want ErrVerificationFailed", err)
	}
	if session.State() != StateClosed {
		t.Fatalf("State() = %v, want CLOSED", session.State())
	}
}

func TestSessionOutOfOrderFrameRejected(t *testing.T) {
	crypto := NewReferenceCrypto(newDeviceSim(t).devicePublicKey())
	session := New(crypto, nil)

	if _, err := session.HandleHello(nil); !errors.Is(err, ErrUnexpectedFrame) {
		t.Fatalf("HandleHello() before Start() error = %v, want ErrUnexpectedFrame", err)
	}
}

func TestSessionEncryptBeforeReadyFails(t *testing.T) {
	crypto := NewReferenceCrypto(newDeviceSim(t).devicePublicKey())
	session := New(crypto, nil)

	if _, err := session.Encrypt(protocol.CmdOpen, nil); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Encrypt() before ready error = %v, want ErrNotReady", err)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	session, _ := runHandshake(t)
	session.Close()
	session.Close()
	if session.State() != StateClosed {
		t.Fatalf("State() = %v, want CLOSED", session.State())
	}
}

func TestChunkClientVerifySplitsLargePayload(t *testing.T) {
	payload := make([]byte, MaxClientVerifyChunkSize*2+5)
	frames := chunkClientVerify(payload)
	if len(frames) != 3 {
		t.Fatalf("chunkClientVerify() produced %d frames, want 3", len(frames))
	}
	for _, f := range frames[:2] {
		if f.Kind != protocol.FrameClientVerify {
			t.Errorf("frame kind = %v, want CLIENT_VERIFY", f.Kind)
		}
	}
	if frames[2].Kind != protocol.FrameClientVerifyEnd {
		t.Errorf("last frame kind = %v, want CLIENT_VERIFY_END", frames[2].Kind)
	}
	var total int
	for _, f := range frames {
		total += len(f.Payload)
	}
	if total != len(payload) {
		t.Errorf("reassembled length = %d, want %d", total, len(payload))
	}
}
