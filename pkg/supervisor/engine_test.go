package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lockengine/lockengine-go/pkg/cert"
	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/securesession"
	"github.com/lockengine/lockengine-go/pkg/transport"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

const testSerial = "12345678-123456"

func testServiceUUID() string {
	encoded := "12345678123456" // testSerial without its dash, 14 chars
	return "0000" + encoded
}

// fakeCrypto is a minimal securesession.Crypto that always succeeds,
// letting engine tests exercise the handshake state machine without
// real cryptography.
type fakeCrypto struct{}

func (fakeCrypto) ClientHello() ([]byte, error)                 { return []byte("client-hello"), nil }
func (fakeCrypto) HandleServerHello(serverHello []byte) error   { return nil }
func (fakeCrypto) VerifyServerRecord(record []byte) error       { return nil }
func (fakeCrypto) ClientVerifyPayload() ([]byte, error)         { return []byte("verify"), nil }
func (fakeCrypto) HandleSessionInitialized(params []byte) error { return nil }
func (fakeCrypto) Encrypt(cmd protocol.Command, payload []byte) ([]byte, error) {
	return append([]byte{byte(cmd)}, payload...), nil
}
func (fakeCrypto) Decrypt(body []byte) (protocol.Command, []byte, error) {
	if len(body) == 0 {
		return 0, nil, securesession.ErrMalformedFrame
	}
	return protocol.Command(body[0]), body[1:], nil
}
func (fakeCrypto) Close() {}

var _ securesession.Crypto = fakeCrypto{}

type writtenFrame struct {
	char transport.CharacteristicID
	data []byte
}

// fakeLink is an in-memory transport.Link whose writes are observable
// on writesCh, so a test goroutine can play the device side of the
// protocol.
type fakeLink struct {
	writesCh     chan writtenFrame
	secureNotify chan []byte
	lockNotify   chan []byte
	lockIndicate chan []byte
	closeOnce    sync.Once
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		writesCh:     make(chan writtenFrame, 32),
		secureNotify: make(chan []byte, 32),
		lockNotify:   make(chan []byte, 32),
		lockIndicate: make(chan []byte, 32),
	}
}

func (l *fakeLink) SetupNotifications(ctx context.Context) (<-chan []byte, <-chan []byte, <-chan []byte, error) {
	return l.secureNotify, l.lockNotify, l.lockIndicate, nil
}

func (l *fakeLink) Write(ctx context.Context, char transport.CharacteristicID, data []byte) error {
	frame := append([]byte(nil), data...)
	select {
	case l.writesCh <- writtenFrame{char: char, data: frame}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *fakeLink) RequestHighPriority(ctx context.Context) error { return nil }

func (l *fakeLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.secureNotify)
		close(l.lockNotify)
		close(l.lockIndicate)
	})
	return nil
}

var _ transport.Link = (*fakeLink)(nil)

// fakeCentral hands out a single fakeLink for every Connect call.
type fakeCentral struct {
	link        *fakeLink
	serviceUUID string
}

func (c *fakeCentral) Scan(ctx context.Context) (<-chan transport.Advertisement, error) {
	ch := make(chan transport.Advertisement, 1)
	ch <- transport.Advertisement{ServiceUUIDs: []string{c.serviceUUID}, DeviceRef: "device-ref"}
	return ch, nil
}

func (c *fakeCentral) Connect(ctx context.Context, ref any) (transport.Link, error) {
	return c.link, nil
}

var _ transport.Central = (*fakeCentral)(nil)

// fakeListener records the callbacks a Supervisor delivers.
type fakeListener struct {
	mu     sync.Mutex
	events [][2]bool
	errs   []error
}

func (f *fakeListener) OnConnectionChanged(connecting, connected bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, [2]bool{connecting, connected})
}
func (f *fakeListener) OnLockStatusChanged(protocol.LockState, protocol.LockStatus) {}
func (f *fakeListener) OnNotification([]byte)                                      {}
func (f *fakeListener) OnError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *fakeListener) connectionEvents() [][2]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]bool(nil), f.events...)
}

var _ SecureListener = (*fakeListener)(nil)

func noopSignedTimeProvider(ctx context.Context) (string, string, error) {
	return "", "", nil
}

// deviceScript plays the device side of the handshake over link,
// consuming writesCh until it has sent SESSION_INITIALIZED or the
// test cancels ctx. onHello lets a test inject alternate behavior
// (timeout, alert) on the Nth HELLO it observes (1-indexed).
func deviceScript(ctx context.Context, link *fakeLink, onHello func(n int) (respond bool, frame []byte)) {
	helloCount := 0
	for {
		select {
		case wf, ok := <-link.writesCh:
			if !ok {
				return
			}
			stripped, err := wireframe.Strip(wf.data)
			if err != nil {
				continue
			}
			switch stripped.Kind {
			case protocol.FrameHello:
				helloCount++
				if onHello != nil {
					if respond, frame := onHello(helloCount); !respond {
						continue
					} else if frame != nil {
						link.secureNotify <- frame
						continue
					}
				}
				link.secureNotify <- wireframe.Build(protocol.FrameHello, []byte("server-hello"))
			case protocol.FrameServerVerify:
				link.secureNotify <- wireframe.Build(protocol.FrameServerVerify, []byte("record"))
			case protocol.FrameClientVerifyEnd:
				link.secureNotify <- wireframe.Build(protocol.FrameSessionInitialized, nil)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func newSecureConfig(listener *fakeListener) Config {
	return Config{
		Serial:             testSerial,
		Certificate:        &cert.DeviceCertificate{},
		NewCrypto:          func() (securesession.Crypto, error) { return fakeCrypto{}, nil },
		SignedTimeProvider: noopSignedTimeProvider,
		Secure:             listener,
	}
}

func TestSupervisorConnectReachesReady(t *testing.T) {
	link := newFakeLink()
	central := &fakeCentral{link: link, serviceUUID: testServiceUUID()}
	listener := &fakeListener{}

	deviceCtx, cancelDevice := context.WithCancel(context.Background())
	defer cancelDevice()
	go deviceScript(deviceCtx, link, nil)

	sup, err := New(central, newSecureConfig(listener))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := sup.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Clear()

	if got := sup.Phase(); got != PhaseReady {
		t.Errorf("Phase() = %s, want READY", got)
	}

	api, err := sup.API()
	if err != nil {
		t.Fatalf("API() error = %v", err)
	}
	if api == nil {
		t.Fatal("API() = nil")
	}

	events := listener.connectionEvents()
	if len(events) == 0 || events[len(events)-1] != [2]bool{false, true} {
		t.Errorf("final connection event = %v, want (connecting=false, connected=true)", events)
	}
}

func TestSupervisorInvalidCertificateAlertFailsClosed(t *testing.T) {
	link := newFakeLink()
	central := &fakeCentral{link: link, serviceUUID: testServiceUUID()}
	listener := &fakeListener{}

	deviceCtx, cancelDevice := context.WithCancel(context.Background())
	defer cancelDevice()
	go deviceScript(deviceCtx, link, func(n int) (bool, []byte) {
		return true, wireframe.Build(protocol.FrameAlert, []byte{byte(protocol.AlertInvalidCert)})
	})

	sup, err := New(central, newSecureConfig(listener))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = sup.Connect(ctx)
	if err == nil {
		t.Fatal("Connect() error = nil, want ErrInvalidCertificate")
	}
	if err != protocol.ErrInvalidCertificate {
		t.Errorf("Connect() error = %v, want ErrInvalidCertificate", err)
	}
	if got := sup.Phase(); got != PhaseClosed {
		t.Errorf("Phase() = %s, want CLOSED", got)
	}
}

func TestSupervisorHelloTimeoutThenSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("exercises the real 5s hello timer")
	}

	link := newFakeLink()
	central := &fakeCentral{link: link, serviceUUID: testServiceUUID()}
	listener := &fakeListener{}

	deviceCtx, cancelDevice := context.WithCancel(context.Background())
	defer cancelDevice()
	go deviceScript(deviceCtx, link, func(n int) (bool, []byte) {
		if n == 1 {
			return false, nil // swallow the first HELLO, forcing the 5s timer
		}
		return true, nil
	})

	sup, err := New(central, newSecureConfig(listener))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	if err := sup.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Clear()

	if got := sup.Phase(); got != PhaseReady {
		t.Errorf("Phase() = %s, want READY", got)
	}
}

func TestSupervisorClearIsIdempotent(t *testing.T) {
	link := newFakeLink()
	central := &fakeCentral{link: link, serviceUUID: testServiceUUID()}
	listener := &fakeListener{}

	deviceCtx, cancelDevice := context.WithCancel(context.Background())
	defer cancelDevice()
	go deviceScript(deviceCtx, link, nil)

	sup, err := New(central, newSecureConfig(listener))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	sup.Clear()
	sup.Clear() // must not panic or block

	if _, err := sup.API(); err == nil {
		t.Error("API() error = nil after Clear(), want ErrNotReady")
	}
}

func TestAddLockModeSkipsHandshake(t *testing.T) {
	link := newFakeLink()
	central := &fakeCentral{link: link, serviceUUID: testServiceUUID()}
	listener := &fakeListener{}

	sup, err := New(central, Config{
		Serial:   testSerial,
		Unsecure: listener,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sup.Clear()

	if got := sup.Phase(); got != PhaseReadyUnsecure {
		t.Errorf("Phase() = %s, want READY_UNSECURE", got)
	}
}

// fakeListener also implements UnsecureListener via an explicit method
// so Config's add-lock branch can use the same fake.
func (f *fakeListener) OnUnsecureConnectionChanged(connecting, connected bool) {
	f.OnConnectionChanged(connecting, connected)
}

var _ UnsecureListener = (*fakeListener)(nil)
