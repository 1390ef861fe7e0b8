package simlock

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lockengine/lockengine-go/pkg/protocol"
	"github.com/lockengine/lockengine-go/pkg/transport"
	"github.com/lockengine/lockengine-go/pkg/wireframe"
)

func TestScanAdvertisesMatchingSerial(t *testing.T) {
	id, err := NewIdentity(testSerial)
	require.NoError(t, err)
	dev := NewDevice(id)
	central := NewCentral(id, dev)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	handle, err := transport.ScanFor(ctx, central, testSerial, false)
	require.NoError(t, err)
	require.Equal(t, testSerial, handle.Serial)
	require.Same(t, dev, handle.Ref)
}

func TestConnectResetsHandshakeState(t *testing.T) {
	id, err := NewIdentity(testSerial)
	require.NoError(t, err)
	dev := NewDevice(id)
	central := NewCentral(id, dev)

	link, err := central.Connect(context.Background(), dev)
	require.NoError(t, err)
	defer link.Close()

	secureNotify, lockNotify, lockIndicate, err := link.SetupNotifications(context.Background())
	require.NoError(t, err)
	require.NotNil(t, secureNotify)
	require.NotNil(t, lockNotify)
	require.NotNil(t, lockIndicate)

	require.NoError(t, link.RequestHighPriority(context.Background()))
}

func TestConnectRejectsUnknownRef(t *testing.T) {
	id, err := NewIdentity(testSerial)
	require.NoError(t, err)
	dev := NewDevice(id)
	central := NewCentral(id, dev)

	_, err = central.Connect(context.Background(), "not-a-device")
	require.Error(t, err)
}

func TestWriteAfterCloseFails(t *testing.T) {
	id, err := NewIdentity(testSerial)
	require.NoError(t, err)
	dev := NewDevice(id)
	central := NewCentral(id, dev)

	l, err := central.Connect(context.Background(), dev)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	frame := wireframe.Build(protocol.FrameHello, clientKey.PublicKey().Bytes())
	err = l.Write(context.Background(), transport.CharSend, frame)
	require.ErrorIs(t, err, transport.ErrLinkClosed)
}
