// Package protocol defines the wire format for all client-server communication.
// Each message is a length-prefixed frame (see frame.go) whose payload is a
// single JSON Envelope.
package protocol

import (
	"bytes"
	"encoding/json"
)

// MessageType identifies what kind of envelope is being sent.
type MessageType string

const (
	// Client → Server
	TypeJoin    MessageType = "join"
	TypeChat    MessageType = "chat"
	TypeHistory MessageType = "history"
	TypePing    MessageType = "ping"

	// Server → Client
	TypeSys  MessageType = "sys"
	TypePong MessageType = "pong"
)

const (
	// DefaultRoom is joined when a join envelope names no room, and queried
	// when a roomless session asks for history.
	DefaultRoom = "general"

	// DefaultUser is the display name of a session before a join sets one.
	DefaultUser = "anon"

	// DefaultHistoryN is the history count used when n is absent or invalid.
	DefaultHistoryN = 20
)

// Envelope is the top-level wire object.  Every frame payload is exactly one
// JSON-encoded Envelope; which of the optional fields are meaningful depends
// on Type.  Ts is a Unix-epoch second timestamp assigned by the server at
// broadcast time; clients never set it.
type Envelope struct {
	Type MessageType `json:"type"`
	Room string      `json:"room,omitempty"`
	User string      `json:"user,omitempty"`
	Text string      `json:"text,omitempty"`
	N    int         `json:"n,omitempty"`
	Ts   int64       `json:"ts,omitempty"`
}

// Encode returns the strict JSON bytes for e.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses the first JSON value in payload into an Envelope.
// The decode is permissive: // and /* */ comments are blanked out first, and
// trailing bytes after the value are tolerated.  A malformed value is an
// error, and is fatal to the session that received it.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var e Envelope
	dec := json.NewDecoder(bytes.NewReader(stripComments(payload)))
	if err := dec.Decode(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// stripComments overwrites // line and /* */ block comments with spaces so a
// commented payload still decodes.  Comment markers inside JSON strings are
// left alone.  The input is not modified.
func stripComments(in []byte) []byte {
	out := append([]byte(nil), in...)
	inStr, esc := false, false
	for i := 0; i < len(out); i++ {
		c := out[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '/':
			if i+1 >= len(out) {
				break
			}
			switch out[i+1] {
			case '/':
				for i < len(out) && out[i] != '\n' {
					out[i] = ' '
					i++
				}
			case '*':
				out[i], out[i+1] = ' ', ' '
				i += 2
				for i < len(out) {
					if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
						out[i], out[i+1] = ' ', ' '
						i++
						break
					}
					if out[i] != '\n' {
						out[i] = ' '
					}
					i++
				}
			}
		}
	}
	return out
}

// NewSys builds a server system notice for a room.
func NewSys(text, room string) *Envelope {
	return &Envelope{Type: TypeSys, Text: text, Room: room}
}

// NewPong builds the reply to a ping.
func NewPong() *Envelope {
	return &Envelope{Type: TypePong}
}
