package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"roomchat/internal/protocol"
)

// idleTimeout is how long a session may go without any inbound frame before
// the watchdog disconnects it.  A package-level var so tests can shorten it.
var idleTimeout = 60 * time.Second

var errIdleTimeout = errors.New("idle timeout")

// Session owns one TCP connection.
//
// Three goroutines run per session:
//
//	readPump     – reads length-prefixed frames, decodes envelopes, and
//	               dispatches them to the Server.
//	idleWatchdog – disconnects the session after idleTimeout without a frame.
//	writePump    – drains the outbound channel and writes framed payloads.
//
// readPump and idleWatchdog race under one errgroup: whichever finishes
// first cancels the group context, which closes the connection and unblocks
// the other.  writePump is long-lived and exits when the session terminates.
type Session struct {
	id   uint32
	conn net.Conn
	srv  *Server
	log  zerolog.Logger

	// out carries pre-serialized frame payloads, strict FIFO.  Its capacity
	// is the configured max_send_queue; a full channel is a backpressure
	// overflow and kicks the session.
	out chan []byte

	// activity signals the watchdog to re-arm its deadline.
	activity chan struct{}

	// done is closed exactly once when the session terminates.
	done      chan struct{}
	closeOnce sync.Once

	// user and room are owned by the reader goroutine.  Room membership as
	// seen by broadcasts lives in the Registry, not here.
	user string
	room string
}

func newSession(id uint32, conn net.Conn, srv *Server) *Session {
	return &Session{
		id:       id,
		conn:     conn,
		srv:      srv,
		log:      srv.log.With().Uint32("sid", id).Str("remote", conn.RemoteAddr().String()).Logger(),
		out:      make(chan []byte, srv.cfg.MaxSendQueue),
		activity: make(chan struct{}, 1),
		done:     make(chan struct{}),
		user:     protocol.DefaultUser,
	}
}

// run drives the session until it terminates, then removes it from the
// registry and closes the socket.  It is launched as a goroutine by the
// accept loop.
func (s *Session) run() {
	s.log.Info().Msg("session started")
	go s.writePump()

	g, ctx := errgroup.WithContext(context.Background())
	g.Go(s.readPump)
	g.Go(func() error { return s.idleWatchdog(ctx) })

	// Interrupt blocked socket I/O as soon as either pump finishes.
	go func() {
		<-ctx.Done()
		s.terminate()
	}()

	if err := g.Wait(); err != nil {
		s.log.Info().Err(err).Msg("session end")
	}

	// Leaving the room and dropping out of the arena happen under one
	// registry lock, so no broadcast can see a destroyed session.
	s.srv.registry.Remove(s.id)
	s.terminate()
	s.log.Info().Msg("session closed")
}

// readPump reads frames until the connection fails or a payload is not valid
// JSON.  Both end the session; there is no resynchronization.
func (s *Session) readPump() error {
	for {
		payload, err := protocol.ReadFrame(s.conn)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		s.touch() // any inbound frame counts as activity, not just pings

		env, err := protocol.DecodeEnvelope(payload)
		if err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		s.srv.handleEnvelope(s, env)
	}
}

// idleWatchdog arms a deadline of idleTimeout and re-arms it on every touch.
// If the deadline fires first the session is torn down; resets that arrive
// after firing are lost, which is the intended race.
func (s *Session) idleWatchdog(ctx context.Context) error {
	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.log.Info().Msg("idle timeout, closing session")
			return errIdleTimeout
		case <-s.activity:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idleTimeout)
		case <-ctx.Done():
			return nil
		}
	}
}

// writePump drains the outbound channel and writes one framed payload at a
// time, preserving enqueue order.  A write error ends the session's write
// side; nothing is retried.
func (s *Session) writePump() {
	for {
		select {
		case data := <-s.out:
			if err := protocol.WriteFrame(s.conn, data); err != nil {
				s.log.Info().Err(err).Msg("writer end")
				s.terminate()
				return
			}
		case <-s.done:
			return
		}
	}
}

// touch resets the idle deadline.  Non-blocking: a pending reset already
// covers this frame.
func (s *Session) touch() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

// enqueue appends a serialized payload to the outbound queue.  Safe to call
// from any goroutine.  When the queue is full the payload is dropped and the
// session is forcibly disconnected rather than buffering without bound; that
// case reports false so the caller can log it with whatever context it has.
func (s *Session) enqueue(data []byte) bool {
	select {
	case s.out <- data:
	case <-s.done:
		// Session already ending; the drop is not an overflow.
	default:
		s.terminate()
		return false
	}
	return true
}

// send encodes env and queues it for this session only.
func (s *Session) send(env *protocol.Envelope) {
	data, err := env.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("encode envelope")
		return
	}
	if !s.enqueue(data) {
		s.log.Warn().Msg("send queue overflow, dropping connection")
	}
}

// terminate closes the session exactly once: the done channel stops the
// writer and the socket close unblocks any in-flight read or write.  Close
// errors are swallowed.
func (s *Session) terminate() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
