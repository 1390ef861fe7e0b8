package lockapi

import (
	"context"
	"errors"
	"time"

	"github.com/lockengine/lockengine-go/pkg/protocol"
)

// BusyMaxAttempts and BusyRetryDelay bound the transparent retry of a
// BUSY result code (§4.6, §7): up to 3 retries after the initial
// attempt, spaced 1s apart. Two consecutive BUSY responses followed by
// SUCCESS therefore cost exactly 3 writes (§8 invariant 4, scenario
// S2), well within the 4-attempt budget.
const (
	BusyMaxAttempts = 4
	BusyRetryDelay  = 1 * time.Second
)

// withBusyRetry runs attempt repeatedly while it returns ErrLockBusy,
// up to BusyMaxAttempts total calls, sleeping BusyRetryDelay between
// them. Any other error, including a successful nil, stops the loop
// immediately.
func withBusyRetry(ctx context.Context, attempt func() ([]byte, error)) ([]byte, error) {
	var resp []byte
	var err error

	for i := 0; i < BusyMaxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(BusyRetryDelay):
			}
		}

		resp, err = attempt()
		if !errors.Is(err, protocol.ErrLockBusy) {
			return resp, err
		}
	}

	return resp, err
}
