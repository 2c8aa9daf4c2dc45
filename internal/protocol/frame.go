package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxFramePayload is the largest payload length accepted on decode.  The
// length prefix can claim up to 2^32-1 bytes; a cap keeps a hostile or broken
// peer from making the server allocate arbitrary memory.
const MaxFramePayload = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by ReadFrame when the declared payload length
// exceeds MaxFramePayload.
var ErrFrameTooLarge = errors.New("protocol: frame payload exceeds maximum allowed size")

// WriteFrame serializes one frame to w: a 4-byte big-endian unsigned length
// prefix followed by the payload bytes.  An empty payload is a valid frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads exactly one frame from r and returns its payload.  A peer
// that closes mid-frame surfaces as io.ErrUnexpectedEOF; both that and a
// declared length above MaxFramePayload are fatal to the session.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFramePayload {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
