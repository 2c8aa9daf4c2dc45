package server

import (
	"sync"
)

// room is a named broadcast group.  Members are stored as session IDs, never
// as session pointers: a broadcast resolves each ID through the registry's
// session arena, and an ID with no live session is simply skipped.
type room struct {
	name    string
	members map[uint32]struct{}
}

// Registry is the process-wide shared state: the session arena plus the
// name→room map.  One mutex guards all of it.  Every operation is synchronous
// and bounded; nothing blocks while the lock is held (enqueue never blocks),
// so a leave concurrent with a broadcast can never dangle or deadlock.
//
// Rooms are created lazily on first join and are never removed, even when
// empty.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*room
	sessions map[uint32]*Session // arena: live sessions by stable ID
	memberOf map[uint32]string   // session ID → current room name
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]*room),
		sessions: make(map[uint32]*Session),
		memberOf: make(map[uint32]string),
	}
}

// Add registers a session in the arena.  The session joins no room yet.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// Remove takes the session out of its room (if any) and out of the arena in
// one critical section, so no broadcast can observe a destroyed session.
// Removing an unknown ID is a no-op.
func (r *Registry) Remove(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(id)
	delete(r.sessions, id)
}

// Join moves the session into the named room, leaving its previous room
// first.  The room is created if it does not exist.  Joining the room the
// session is already in reports false and changes nothing.
func (r *Registry) Join(id uint32, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memberOf[id] == name {
		return false
	}
	r.leaveLocked(id)

	rm := r.fetchOrCreateLocked(name)
	rm.members[id] = struct{}{}
	r.memberOf[id] = name
	return true
}

// RoomOf returns the name of the session's current room, or "" when the
// session is in no room.
func (r *Registry) RoomOf(id uint32) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberOf[id]
}

// Members returns the IDs currently in the named room.
func (r *Registry) Members(name string) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(rm.members))
	for id := range rm.members {
		out = append(out, id)
	}
	return out
}

// Broadcast fans a pre-serialized payload out to every current member of the
// named room.  Each member gets the backpressure policy independently: an
// overflowing member is kicked without aborting delivery to the rest.  A
// room that does not exist is a no-op.
func (r *Registry) Broadcast(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[name]
	if !ok {
		return
	}
	for id := range rm.members {
		s, ok := r.sessions[id]
		if !ok {
			continue // already gone
		}
		if !s.enqueue(data) {
			s.log.Warn().Str("room", rm.name).Msg("send queue overflow, dropping member")
		}
	}
}

// leaveLocked removes the session from its current room.  Caller holds r.mu.
func (r *Registry) leaveLocked(id uint32) {
	name, ok := r.memberOf[id]
	if !ok {
		return
	}
	if rm, ok := r.rooms[name]; ok {
		delete(rm.members, id)
	}
	delete(r.memberOf, id)
}

// fetchOrCreateLocked returns the room for name, creating and registering an
// empty one if needed.  Caller holds r.mu.
func (r *Registry) fetchOrCreateLocked(name string) *room {
	if rm, ok := r.rooms[name]; ok {
		return rm
	}
	rm := &room{name: name, members: make(map[uint32]struct{})}
	r.rooms[name] = rm
	return rm
}
