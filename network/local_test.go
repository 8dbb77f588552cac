package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalConnectUnknownAddress(t *testing.T) {
	_, err := Connect("local://does-not-exist")
	assert.Error(t, err)
}

func TestLocalEndpointCloseUnblocksAccept(t *testing.T) {
	ep, err := Open(KindLocal)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := ep.Accept()
		done <- err
	}()

	require.NoError(t, ep.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Accept did not unblock after Close")
	}
}

func TestLocalDisconnectIdempotent(t *testing.T) {
	a, b := pipe(t)
	require.NoError(t, a.Disconnect())
	require.NoError(t, a.Disconnect())
	require.NoError(t, b.Disconnect())
}
