package supervisor

import (
	"context"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// SignedTimeMaxAttempts and SignedTimeRetryDelay bound the
// signed-time refresh retry loop (§4.3).
const (
	SignedTimeMaxAttempts = 4
	SignedTimeRetryDelay  = 5 * time.Second
)

// SignedTimeProvider supplies a freshly signed wall-clock time on
// demand. The callback is invoked exactly once per call (§6).
type SignedTimeProvider func(ctx context.Context) (datetimeB64, signatureB64 string, err error)

// signedTimeWriter writes the SET_SIGNED_TIME request (plaintext, over
// the lock notification characteristic) and returns the result code
// from the response.
type signedTimeWriter func(ctx context.Context, payload []byte) (protocol.ResultCode, error)

// refreshSignedTime runs the signed-time recovery flow: invoke
// provider, write SET_SIGNED_TIME, and on any failure retry up to
// SignedTimeMaxAttempts with SignedTimeRetryDelay spacing. On
// exhaustion it returns the last error: handshakeLoop surfaces it as
// ErrNoSignedTime, while handleNeedDateTime discards it.
func refreshSignedTime(ctx context.Context, provider SignedTimeProvider, write signedTimeWriter) error {
	var lastErr error

	for attempt := 0; attempt < SignedTimeMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(SignedTimeRetryDelay):
			}
		}

		datetimeB64, signatureB64, err := provider(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		payload, err := protocol.EncodeSignedTime(datetimeB64, signatureB64)
		if err != nil {
			lastErr = err
			continue
		}

		code, err := write(ctx, payload)
		if err != nil {
			lastErr = err
			continue
		}
		if code == protocol.ResultSuccess {
			return nil
		}
		lastErr = &protocol.GeneralLockErrorCode{Code: code}
	}

	return lastErr
}
