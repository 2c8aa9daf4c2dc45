// Package server implements the framed TCP chat server.
//
// Concurrency overview
// --------------------
//
//	Accept loop            one goroutine; spawns a Session per connection.
//	Session                readPump + idleWatchdog raced under an errgroup,
//	                       plus one long-lived writePump (see session.go).
//	Registry               mutex-guarded session arena + room member sets;
//	                       the only state shared across sessions.
//	Worker pool            N goroutines persisting chat messages to the
//	                       per-room logs so the broadcast path never waits
//	                       on disk I/O.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"roomchat/internal/config"
	"roomchat/internal/protocol"
	"roomchat/internal/store"
)

const persistWorkers = 4

// ---------------------------------------------------------------------------
// Worker pool – async message persistence
// ---------------------------------------------------------------------------

type persistJob struct {
	room string
	env  *protocol.Envelope
}

// workerPool appends chat messages to the room logs in the background.
// Append failures are logged and swallowed: persistence never blocks or
// aborts delivery to connected members.
type workerPool struct {
	mu      sync.RWMutex
	stopped bool
	jobs    chan persistJob
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func newWorkerPool(n int, st *store.Store, log zerolog.Logger) *workerPool {
	p := &workerPool{
		jobs: make(chan persistJob, 1024),
		log:  log,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				if err := st.Append(job.room, job.env); err != nil {
					p.log.Error().Err(err).Str("room", job.room).Msg("persist append failed")
				}
			}
		}()
	}
	return p
}

func (p *workerPool) submit(job persistJob) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return
	}
	// Non-blocking submit; drop silently if the queue is full.
	select {
	case p.jobs <- job:
	default:
		p.log.Warn().Str("room", job.room).Msg("persist queue full, message dropped from persistence")
	}
}

// stop drains queued jobs and waits for the workers.  Submissions racing a
// stop are dropped, not panics.
func (p *workerPool) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server ties together the accept loop, the Registry, the Store, and the
// persistence worker pool.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	registry *Registry
	pool     *workerPool
	listener net.Listener
	log      zerolog.Logger

	connID atomic.Uint32 // monotonically increasing session ID source
}

// New creates a Server around an already-opened store.
func New(cfg *config.Config, st *store.Store, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		registry: NewRegistry(),
		pool:     newWorkerPool(persistWorkers, st, log),
		log:      log,
	}
}

// ListenAndServe binds the configured host:port and runs the accept loop.
// Bind failure is fatal and returned to the caller.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until the listener is closed, spawning one
// session goroutine per connection.  The accept loop never blocks on session
// activity.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// Closed by Shutdown.
				return nil
			}
			s.log.Warn().Err(err).Msg("accept error")
			continue
		}
		sess := newSession(s.connID.Add(1), conn, s)
		s.registry.Add(sess)
		go sess.run()
	}
}

// Shutdown closes the listener and drains the persistence pool.  Connected
// sessions fall away as their sockets fail.
func (s *Server) Shutdown() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.pool.stop()
}

// ---------------------------------------------------------------------------
// Envelope dispatch
// ---------------------------------------------------------------------------

// handleEnvelope is called by each session's readPump, one envelope at a
// time, in arrival order.
func (s *Server) handleEnvelope(sess *Session, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoin:
		s.handleJoin(sess, env)
	case protocol.TypeChat:
		s.handleChat(sess, env)
	case protocol.TypeHistory:
		s.handleHistory(sess, env)
	case protocol.TypePing:
		sess.send(protocol.NewPong())
	default:
		// Unknown types are ignored, not errors.
	}
}

// handleJoin moves the session into the requested room and replays recent
// history to it.  Joining the room it is already in only updates the display
// name; no welcome or history is re-sent.
func (s *Server) handleJoin(sess *Session, env *protocol.Envelope) {
	name := env.Room
	if name == "" {
		name = protocol.DefaultRoom
	}
	sess.user = env.User
	if sess.user == "" {
		sess.user = protocol.DefaultUser
	}

	if !s.registry.Join(sess.id, name) {
		return // already a member
	}
	sess.room = name
	s.log.Info().Uint32("sid", sess.id).Str("room", name).Str("user", sess.user).Msg("join")

	sess.send(protocol.NewSys("welcome", name))

	hist, err := s.store.LoadLast(name, s.cfg.HistoryOnJoin)
	if err != nil {
		s.log.Error().Err(err).Str("room", name).Msg("history load failed")
		return
	}
	for _, msg := range hist {
		sess.send(msg)
	}
}

// handleChat broadcasts a chat message to the session's current room and
// queues it for persistence.  A session in no room is ignored.
func (s *Server) handleChat(sess *Session, env *protocol.Envelope) {
	if sess.room == "" {
		return
	}
	out := &protocol.Envelope{
		Type: protocol.TypeChat,
		Room: sess.room,
		User: sess.user,
		Text: env.Text,
		Ts:   time.Now().Unix(),
	}
	data, err := out.Encode()
	if err != nil {
		s.log.Error().Err(err).Msg("encode chat")
		return
	}

	// 1. Fan out immediately to every room member, sender included.
	s.registry.Broadcast(sess.room, data)

	// 2. Persist asynchronously via the worker pool.
	s.pool.submit(persistJob{room: sess.room, env: out})
}

// handleHistory replays up to n persisted messages directly to the requester,
// oldest-first.  The room defaults to the session's current room, then to
// the default room for sessions that never joined.
func (s *Server) handleHistory(sess *Session, env *protocol.Envelope) {
	name := env.Room
	if name == "" {
		name = sess.room
		if name == "" {
			name = protocol.DefaultRoom
		}
	}
	n := env.N
	if n <= 0 {
		n = protocol.DefaultHistoryN
	}

	hist, err := s.store.LoadLast(name, n)
	if err != nil {
		s.log.Error().Err(err).Str("room", name).Msg("history load failed")
		return
	}
	for _, msg := range hist {
		sess.send(msg)
	}
}
