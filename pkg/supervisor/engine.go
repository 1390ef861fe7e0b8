package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lockengine/lockengine-go/pkg/commandmux"
	"github.com/lockengine/lockengine-go/pkg/lockapi"
	"github.com/lockengine/lockengine-go/pkg/log"
	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/securesession"
	"github.com/lockengine/lockengine-go/pkg/transport"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

// HelloTimeout bounds the wait for the server's HELLO reply after the
// client sends its own (§4.3, §5).
const HelloTimeout = 5 * time.Second

// Supervisor owns the lifetime of one lock connection: it drives
// Transport through the phases of §4.3, runs the SecureSession
// handshake, wires the resulting session into a CommandMux, and
// reacts to alerts and link loss by tearing down and re-establishing.
// Only the internal run goroutine mutates session/mux state, per the
// single-task discipline of §5; external callers interact through
// Connect, API, and Clear/Disconnect.
type Supervisor struct {
	central transport.Central
	cfg     Config
	policy  *transport.RetryPolicy
	logger  log.Logger
	connID  string

	mu    sync.Mutex
	phase Phase
	mux   *commandmux.Mux
	api   *lockapi.API

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Supervisor that drives central under cfg. cfg must set
// exactly one of Secure/Unsecure matching whether Certificate is set.
func New(central transport.Central, cfg Config) (*Supervisor, error) {
	if cfg.AddLockMode() && cfg.Unsecure == nil {
		return nil, protocol.ErrNoWrapperListener
	}
	if !cfg.AddLockMode() && cfg.Secure == nil {
		return nil, protocol.ErrNoWrapperListener
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	connID := cfg.ConnectionID
	if connID == "" {
		connID = uuid.NewString()
	}

	return &Supervisor{
		central: central,
		cfg:     cfg,
		policy:  transport.NewRetryPolicy(cfg.KeepConnection),
		logger:  logger,
		connID:  connID,
		phase:   PhaseDisconnected,
	}, nil
}

// logEvent stamps e with this connection's ID and timestamp and
// forwards it to the configured logger.
func (s *Supervisor) logEvent(e log.Event) {
	e.ConnectionID = s.connID
	e.Timestamp = time.Now()
	s.logger.Log(e)
}

// Phase returns the supervisor's current top-level state.
func (s *Supervisor) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// reportError logs err at layer and forwards it to the configured
// listener's OnError.
func (s *Supervisor) reportError(layer log.Layer, err error) {
	s.logEvent(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		Error:    &log.ErrorEvent{Layer: layer, Message: err.Error()},
	})
	s.cfg.notifyError(err)
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	old := s.phase
	s.phase = p
	s.mu.Unlock()

	if old != p {
		s.logEvent(log.Event{
			Layer:    log.LayerSupervisor,
			Category: log.CategoryStateChange,
			StateChange: &log.StateChangeEvent{
				Entity:   "supervisor",
				OldState: old.String(),
				NewState: p.String(),
			},
		})
	}
}

// API returns the typed operation layer once the session is ready
// (Ready or ReadyUnsecure). Returns ErrNotReady otherwise.
func (s *Supervisor) API() (*lockapi.API, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.api == nil {
		return nil, ErrNotReady
	}
	return s.api, nil
}

// Connect scans for the configured serial, establishes the radio
// link, and — unless running in add-lock mode — completes the secure
// handshake, blocking until the session reaches Ready/ReadyUnsecure or
// a non-recoverable error occurs. Once it returns successfully, a
// background task continues supervising the connection: reconnecting
// on link loss and re-keying on alert, exactly as §4.3 describes,
// until Clear/Disconnect is called.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseDisconnected && s.phase != PhaseClosed {
		s.mu.Unlock()
		return ErrAlreadyConnecting
	}
	s.phase = PhaseScanning
	s.mu.Unlock()

	device, err := transport.ScanFor(ctx, s.central, s.cfg.Serial, s.cfg.KeepConnection)
	if err != nil {
		s.setPhase(PhaseClosed)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	ready := make(chan error, 1)
	go s.run(runCtx, device, ready)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the supervisor's single background task. It owns every
// mutation of session/mux state (§5) and loops across reconnects
// until ctx is cancelled. The first outcome (nil once ready, or a
// non-recoverable error) is delivered on ready; every outcome after
// that is only reported to the configured listener's OnError.
func (s *Supervisor) run(ctx context.Context, device transport.DeviceHandle, ready chan<- error) {
	defer close(s.done)

	first := true
	report := func(err error) {
		if first {
			ready <- err
			first = false
		} else if err != nil {
			s.reportError(log.LayerSupervisor, err)
		}
	}

	for {
		if ctx.Err() != nil {
			return
		}

		s.setPhase(PhaseLinking)
		conn, link, secureNotify, lockNotify, lockIndicate, err := s.establishLink(ctx, device)
		if err != nil {
			s.setPhase(PhaseClosed)
			report(err)
			return
		}

		var session *securesession.Session
		if s.cfg.AddLockMode() {
			s.setPhase(PhaseReadyUnsecure)
		} else {
			session, err = s.handshakeLoop(ctx, link, secureNotify, lockNotify)
			if err != nil {
				_ = conn.Link.Close()
				s.setPhase(PhaseClosed)
				report(err)
				return
			}
			s.setPhase(PhaseReady)
		}

		s.installMux(link, lockIndicate, lockNotify, session)
		report(nil)

		linkDown := s.pumpUntilDown(ctx, lockIndicate, lockNotify)
		s.teardownMux(session)
		_ = conn.Link.Close()

		if ctx.Err() != nil {
			return
		}
		if linkDown != nil {
			s.reportError(log.LayerSupervisor, linkDown)
		}
		// Loop back to Linking and re-establish (§4.3: Ready --link
		// down--> Linking).
	}
}

// establishLink opens the radio link and subscribes to all three
// inbound characteristics (§4.1).
func (s *Supervisor) establishLink(ctx context.Context, device transport.DeviceHandle) (conn *transport.Connection, link transport.Link, secureNotify, lockNotify, lockIndicate <-chan []byte, err error) {
	conn, err = transport.Connect(ctx, s.central, device, s.policy, connectionListenerFunc(s.cfg.notifyConnectionChanged))
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	transport.RequestHighPriority(ctx, conn.Link)

	secureNotify, lockNotify, lockIndicate, err = conn.Link.SetupNotifications(ctx)
	if err != nil {
		_ = conn.Link.Close()
		return nil, nil, nil, nil, nil, err
	}

	return conn, conn.Link, secureNotify, lockNotify, lockIndicate, nil
}

// connectionListenerFunc adapts a plain callback to
// transport.ConnectionListener.
type connectionListenerFunc func(connecting, connected bool)

func (f connectionListenerFunc) OnConnectionChanged(connecting, connected bool) { f(connecting, connected) }

// handshakeLoop runs the secure-session handshake, restarting on a
// resend-eligible alert or hello timeout, refreshing signed time on
// ALERT:NoTrustedTime, and failing permanently on ALERT:InvalidCert or
// ALERT:NotRegistered (§4.3).
func (s *Supervisor) handshakeLoop(ctx context.Context, link transport.Link, secureNotify, lockNotify <-chan []byte) (*securesession.Session, error) {
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		crypto, err := s.cfg.NewCrypto()
		if err != nil {
			return nil, err
		}
		session := securesession.New(crypto, nil)

		s.setPhase(PhaseHandshaking)
		err = runHandshake(ctx, session, s.writeFunc(ctx, link, transport.CharSend), s.tapInbound(ctx, secureNotify))
		if err == nil {
			return session, nil
		}

		var alertErr *AlertError
		if !errors.As(err, &alertErr) {
			if errors.Is(err, ErrHelloTimeout) {
				continue // resend Hello with a fresh attempt
			}
			return nil, err
		}

		s.logEvent(log.Event{
			Layer:    log.LayerSession,
			Category: log.CategoryAlert,
			Alert:    &log.AlertEvent{Code: alertErr.Code},
		})

		switch alertErr.Code {
		case protocol.AlertNoTrustedTime:
			s.setPhase(PhaseRefreshingTime)
			if rerr := s.refreshTime(ctx, link, lockNotify); rerr != nil {
				return nil, fmt.Errorf("%w: %v", protocol.ErrNoSignedTime, rerr)
			}
			// success: loop back into Handshaking and resend Hello.
		case protocol.AlertTimeout:
			// loop back into Handshaking and resend Hello.
		case protocol.AlertInvalidCert:
			return nil, protocol.ErrInvalidCertificate
		case protocol.AlertNotRegistered:
			return nil, protocol.ErrDeviceNotInitialized
		default:
			return nil, alertErr
		}
	}
}

// refreshTime runs the signed-time recovery flow of §4.3 over the
// plaintext SET_SIGNED_TIME request/NOTIFICATION_SIGNED_DATETIME
// reply, written directly to the link rather than through CommandMux.
// It runs before a secure session exists (pre-handshake, where
// CommandMux is not yet available) and, via handleNeedDateTime, during
// an active session.
func (s *Supervisor) refreshTime(ctx context.Context, link transport.Link, lockNotify <-chan []byte) error {
	write := func(ctx context.Context, payload []byte) (protocol.ResultCode, error) {
		body := make([]byte, 1+len(payload))
		body[0] = byte(protocol.CmdSetSignedTime)
		copy(body[1:], payload)
		frame := wireframe.Build(protocol.FrameDataNotEncrypted, body)
		if err := link.Write(ctx, transport.CharLockNotify, frame); err != nil {
			return 0, err
		}
		return awaitSignedDateTime(ctx, lockNotify)
	}
	return refreshSignedTime(ctx, s.cfg.SignedTimeProvider, write)
}

// awaitSignedDateTime blocks for the next NOTIFICATION_SIGNED_DATETIME
// frame on lockNotify and returns its result byte (§4.3, §8 scenario
// S4).
func awaitSignedDateTime(ctx context.Context, lockNotify <-chan []byte) (protocol.ResultCode, error) {
	for {
		select {
		case raw, ok := <-lockNotify:
			if !ok {
				return 0, ErrLinkClosed
			}
			stripped, err := wireframe.Strip(raw)
			if err != nil {
				continue
			}
			if stripped.Kind != protocol.FrameDataNotEncrypted || len(stripped.Body) < 2 {
				continue
			}
			if protocol.NotificationType(stripped.Body[1]) != protocol.NotificationSignedDateTime {
				continue
			}
			if len(stripped.Body) < 3 {
				return 0, wireframe.ErrEmptyFrame
			}
			return protocol.ResultCode(stripped.Body[2]), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// writeFunc adapts a Link.Write call to the sendFunc shape the
// handshake driver uses, logging each outbound frame (§10 of
// SPEC_FULL).
func (s *Supervisor) writeFunc(ctx context.Context, link transport.Link, char transport.CharacteristicID) sendFunc {
	return func(frame []byte) error {
		s.logFrame(log.DirectionOut, frame)
		return link.Write(ctx, char, frame)
	}
}

// tapInbound relays ch onto a new channel, logging each frame as it
// passes through, and exits once ch closes or ctx is cancelled.
func (s *Supervisor) tapInbound(ctx context.Context, ch <-chan []byte) <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case raw, ok := <-ch:
				if !ok {
					return
				}
				s.logFrame(log.DirectionIn, raw)
				select {
				case out <- raw:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// logFrame records a raw frame crossing the wire in either direction.
func (s *Supervisor) logFrame(dir log.Direction, frame []byte) {
	data := frame
	truncated := false
	if len(data) > log.MaxLogFrameDataSize {
		data = data[:log.MaxLogFrameDataSize]
		truncated = true
	}
	kind := protocol.FrameKind(0)
	if len(frame) > 0 {
		kind = protocol.FrameKind(frame[0] & 0x0F)
	}
	s.logEvent(log.Event{
		Layer:     log.LayerWireframe,
		Direction: dir,
		Category:  log.CategoryFrame,
		Frame: &log.FrameEvent{
			Kind:      kind,
			Size:      len(frame),
			Data:      data,
			Truncated: truncated,
		},
	})
}

// installMux builds the CommandMux for the newly ready session (or, in
// add-lock mode, for plaintext-only operation) and starts the
// goroutines that pump the indication/notification streams into it.
func (s *Supervisor) installMux(link transport.Link, lockIndicate, lockNotify <-chan []byte, session *securesession.Session) {
	write := func(ctx context.Context, frame []byte) error {
		s.logFrame(log.DirectionOut, frame)
		return link.Write(ctx, transport.CharLockNotify, frame)
	}
	mux := commandmux.New(write)
	if session != nil {
		mux.SetSession(session)
	}
	mux.OnLockStatusChange(s.cfg.notifyLockStatusChanged)
	mux.OnNeedDateTime(func() {
		go s.handleNeedDateTime(link, lockNotify)
	})

	s.mu.Lock()
	s.mux = mux
	s.api = lockapi.New(mux, session != nil)
	s.mu.Unlock()
}

func (s *Supervisor) teardownMux(session *securesession.Session) {
	s.mu.Lock()
	s.mux = nil
	s.api = nil
	s.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// handleNeedDateTime runs the signed-time refresh flow triggered by a
// NOTIFICATION_NEED_DATE_TIME received during an active session
// (§4.3). It is best-effort and does not tear the session down on
// failure; the supervisor relies on the device re-alerting if the
// condition persists.
func (s *Supervisor) handleNeedDateTime(link transport.Link, lockNotify <-chan []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), (SignedTimeMaxAttempts+1)*SignedTimeRetryDelay)
	defer cancel()
	_ = s.refreshTime(ctx, link, lockNotify)
}

// pumpUntilDown reads indication and notification frames into the mux
// until either stream closes (link down) or ctx is cancelled,
// returning the triggering error.
func (s *Supervisor) pumpUntilDown(ctx context.Context, lockIndicate, lockNotify <-chan []byte) error {
	errCh := make(chan error, 2)

	pump := func(ch <-chan []byte, handle func(wireframe.Stripped) error) {
		for {
			select {
			case raw, ok := <-ch:
				if !ok {
					errCh <- ErrLinkClosed
					return
				}
				s.logFrame(log.DirectionIn, raw)
				stripped, err := wireframe.Strip(raw)
				if err != nil {
					s.reportError(log.LayerSupervisor, err)
					continue
				}
				if err := handle(stripped); err != nil {
					s.reportError(log.LayerSupervisor, err)
				}
			case <-ctx.Done():
				errCh <- nil
				return
			}
		}
	}

	s.mu.Lock()
	mux := s.mux
	s.mu.Unlock()
	if mux == nil {
		return ErrLinkClosed
	}

	go pump(lockIndicate, mux.HandleIndication)
	go pump(lockNotify, func(stripped wireframe.Stripped) error {
		if len(stripped.Body) >= 2 {
			s.cfg.notifyNotification(stripped.Body[1:])
		}
		return mux.HandleNotification(stripped)
	})

	return <-errCh
}

// Clear tears the connection down: it cancels the background task,
// closes the session (zeroing its keys), and waits for the task to
// exit before returning. Equivalent to Disconnect (§3 Lifecycle).
func (s *Supervisor) Clear() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.phase = PhaseClosed
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Disconnect is an alias for Clear (§3 Lifecycle).
func (s *Supervisor) Disconnect() { s.Clear() }
