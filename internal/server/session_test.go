package server

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/config"
	"roomchat/internal/protocol"
)

func TestSession_WriteOrderIsFIFO(t *testing.T) {
	srv := newTestServer(t, nil)
	s, client := newPipeSession(t, srv, 1)
	go s.writePump()
	defer s.terminate()

	const n = 25
	for i := 0; i < n; i++ {
		s.enqueue([]byte(fmt.Sprintf("payload-%02d", i)))
	}

	for i := 0; i < n; i++ {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		payload, err := protocol.ReadFrame(client)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("payload-%02d", i), string(payload))
	}
}

func TestSession_BackpressureKick(t *testing.T) {
	srv := newTestServer(t, func(c *config.Config) { c.MaxSendQueue = 2 })
	s, client := newPipeSession(t, srv, 1)
	go s.writePump()

	// Nobody reads the client side, so the writer blocks on its first frame
	// and the queue can only absorb MaxSendQueue more payloads.  Everything
	// past that must trip the overflow kick.
	for i := 0; i < 10; i++ {
		s.enqueue([]byte("flood"))
	}

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("session was not terminated on queue overflow")
	}

	// The kicked session's socket is closed: the peer sees EOF once the
	// in-flight frame is consumed.
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, err := protocol.ReadFrame(client); err != nil {
			assert.ErrorIs(t, err, io.EOF)
			return
		}
	}
}

func TestSession_EnqueueAfterTerminateIsSafe(t *testing.T) {
	srv := newTestServer(t, nil)
	s, _ := newPipeSession(t, srv, 1)

	s.terminate()
	s.enqueue([]byte("late"))
	s.terminate() // idempotent
}
