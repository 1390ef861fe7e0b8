package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLink struct {
	highPriorityErr error
	highPriorityHit bool
}

func (f *fakeLink) SetupNotifications(ctx context.Context) (<-chan []byte, <-chan []byte, <-chan []byte, error) {
	return nil, nil, nil, nil
}

func (f *fakeLink) Write(ctx context.Context, char CharacteristicID, data []byte) error {
	return nil
}

func (f *fakeLink) RequestHighPriority(ctx context.Context) error {
	f.highPriorityHit = true
	return f.highPriorityErr
}

func (f *fakeLink) Close() error { return nil }

type recordingListener struct {
	transitions [][2]bool
}

func (r *recordingListener) OnConnectionChanged(connecting, connected bool) {
	r.transitions = append(r.transitions, [2]bool{connecting, connected})
}

func TestConnectSucceedsOnFirstAttempt(t *testing.T) {
	link := &fakeLink{}
	central := &fakeCentral{link: link}
	listener := &recordingListener{}

	conn, err := Connect(context.Background(), central, DeviceHandle{}, NewRetryPolicy(false), listener)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if conn.Link != link {
		t.Error("Connect() did not return the connected link")
	}

	want := [][2]bool{{true, false}, {false, true}}
	if len(listener.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", listener.transitions, want)
	}
	for i, w := range want {
		if listener.transitions[i] != w {
			t.Errorf("transition[%d] = %v, want %v", i, listener.transitions[i], w)
		}
	}
}

func TestConnectExhaustsRetryBudget(t *testing.T) {
	central := &fakeCentral{connErr: ErrCharacteristicNotFound}
	listener := &recordingListener{}

	policy := &RetryPolicy{AttemptBudget: 1}
	_, err := Connect(context.Background(), central, DeviceHandle{}, policy, listener)

	var dead *ConnectionDeadError
	if !errors.As(err, &dead) {
		t.Fatalf("Connect() error = %v, want *ConnectionDeadError", err)
	}

	last := listener.transitions[len(listener.transitions)-1]
	if last != [2]bool{false, false} {
		t.Errorf("final transition = %v, want (false, false)", last)
	}
}

func TestConnectNonRetryableStopsImmediately(t *testing.T) {
	central := &fakeCentral{connErr: ErrNoTrustedTime}
	listener := &recordingListener{}

	_, err := Connect(context.Background(), central, DeviceHandle{}, NewRetryPolicy(false), listener)
	if !errors.Is(err, ErrNoTrustedTime) {
		t.Fatalf("Connect() error = %v, want ErrNoTrustedTime", err)
	}
}

func TestRequestHighPrioritySwallowsErrors(t *testing.T) {
	link := &fakeLink{highPriorityErr: errors.New("unsupported")}

	done := make(chan struct{})
	go func() {
		RequestHighPriority(context.Background(), link)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RequestHighPriority() did not return")
	}

	if !link.highPriorityHit {
		t.Error("RequestHighPriority() never called Link.RequestHighPriority")
	}
}

func TestRequestHighPriorityTimesOut(t *testing.T) {
	link := &blockingLink{}

	start := time.Now()
	RequestHighPriority(context.Background(), link)
	if elapsed := time.Since(start); elapsed < HighPriorityTimeout {
		t.Errorf("RequestHighPriority() returned after %v, want >= %v", elapsed, HighPriorityTimeout)
	}
}

type blockingLink struct{ fakeLink }

func (b *blockingLink) RequestHighPriority(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
