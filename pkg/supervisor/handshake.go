package supervisor

import (
	"context"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/securesession"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

// sendFunc writes a fully framed message over the secure-handshake
// characteristic.
type sendFunc func(frame []byte) error

// runHandshake drives one attempt of the client side of §4.4's
// handshake over recv (raw frames from the secure-notify
// characteristic) and send (writes to it), arming the 5s hello timer
// on the client's own HELLO (§4.3). It returns nil once
// SESSION_INITIALIZED is processed and the session is ready, or an
// error — *AlertError for an inbound ALERT frame, ErrHelloTimeout if
// the timer fires first, or a securesession/wireframe error.
func runHandshake(ctx context.Context, session *securesession.Session, send sendFunc, recv <-chan []byte) error {
	hello, err := session.Start()
	if err != nil {
		return err
	}
	if err := send(wireframe.Build(hello.Kind, hello.Payload)); err != nil {
		return err
	}

	timer := time.NewTimer(HelloTimeout)
	defer timer.Stop()
	helloTimeout := timer.C

	for {
		select {
		case raw, ok := <-recv:
			if !ok {
				return ErrLinkClosed
			}

			stripped, err := wireframe.Strip(raw)
			if err != nil {
				return err
			}

			switch stripped.Kind {
			case protocol.FrameAlert:
				code := protocol.AlertCode(0)
				if len(stripped.Body) > 1 {
					code = protocol.AlertCode(stripped.Body[1])
				}
				return &AlertError{Code: code}

			case protocol.FrameHello:
				helloTimeout = nil // server HELLO arrived: disarm the hello timer
				out, err := session.HandleHello(stripped.Body[1:])
				if err != nil {
					return err
				}
				if err := send(wireframe.Build(out.Kind, out.Payload)); err != nil {
					return err
				}

			case protocol.FrameServerVerify:
				frames, err := session.HandleServerVerify(stripped.Body[1:])
				if err != nil {
					return err
				}
				for _, f := range frames {
					if err := send(wireframe.Build(f.Kind, f.Payload)); err != nil {
						return err
					}
				}

			case protocol.FrameSessionInitialized:
				return session.HandleSessionInitialized(stripped.Body[1:])

			default:
				// Any other frame kind observed mid-handshake is
				// ignored rather than treated as fatal; §4.4 defines
				// no other inbound kind on this channel.
			}

		case <-helloTimeout:
			return ErrHelloTimeout

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
