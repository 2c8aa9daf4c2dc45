// Package store persists chat messages as append-only per-room logs.  Each
// room gets one file, <data_dir>/<room>.log, holding one JSON envelope per
// line.  There is no compaction or rotation; logs only grow.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"roomchat/internal/protocol"
)

// Store writes and reads per-room message logs.  A single mutex serialises
// appends so two goroutines never interleave partial lines in one file;
// reads take the same lock so a history query sees whole lines only.
type Store struct {
	mu      sync.Mutex
	dataDir string
}

// New creates (or reopens) a Store backed by files in dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &Store{dataDir: dataDir}, nil
}

// Append durably records one message for room by appending a JSON line to the
// room's log file.
func (s *Store) Append(room string, env *protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("store: marshal message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.roomFile(room), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open log for %q: %w", room, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: append to %q: %w", room, err)
	}
	return nil
}

// LoadLast returns up to the last n valid messages appended for room,
// oldest-first.  Malformed lines are skipped, not errors.  A room with no log
// file yet has an empty history.
func (s *Store) LoadLast(room string, n int) ([]*protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.roomFile(room))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open log for %q: %w", room, err)
	}
	defer f.Close()

	var out []*protocol.Envelope
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxFramePayload)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(line, &env); err != nil {
			continue // skip malformed
		}
		out = append(out, &env)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("store: read log for %q: %w", room, err)
	}

	if n >= 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

// roomFile maps a room name to its log path.  Path separators in the name are
// flattened so a room cannot escape the data directory.
func (s *Store) roomFile(room string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, room)
	return filepath.Join(s.dataDir, safe+".log")
}
