package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("full chat envelope", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"chat","room":"g","user":"alice","text":"hi","ts":1735689600}`))
		require.NoError(t, err)
		assert.Equal(t, TypeChat, env.Type)
		assert.Equal(t, "g", env.Room)
		assert.Equal(t, "alice", env.User)
		assert.Equal(t, "hi", env.Text)
		assert.Equal(t, int64(1735689600), env.Ts)
	})

	t.Run("absent fields decode to zero values", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"join"}`))
		require.NoError(t, err)
		assert.Equal(t, TypeJoin, env.Type)
		assert.Empty(t, env.Room)
		assert.Empty(t, env.User)
		assert.Zero(t, env.N)
	})

	t.Run("trailing bytes are tolerated", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"ping"} and some trailing garbage`))
		require.NoError(t, err)
		assert.Equal(t, TypePing, env.Type)
	})

	t.Run("line comment before the value is tolerated", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte("// keepalive\n{\"type\":\"ping\"}"))
		require.NoError(t, err)
		assert.Equal(t, TypePing, env.Type)
	})

	t.Run("block comment inside the value is tolerated", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":/* why not */"join","room":"g"}`))
		require.NoError(t, err)
		assert.Equal(t, TypeJoin, env.Type)
		assert.Equal(t, "g", env.Room)
	})

	t.Run("comment after the value is tolerated", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte("{\"type\":\"ping\"} // done"))
		require.NoError(t, err)
		assert.Equal(t, TypePing, env.Type)
	})

	t.Run("comment markers inside strings survive", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"chat","text":"see https://example.com /* not a comment */"}`))
		require.NoError(t, err)
		assert.Equal(t, "see https://example.com /* not a comment */", env.Text)
	})

	t.Run("malformed JSON is an error", func(t *testing.T) {
		_, err := DecodeEnvelope([]byte(`{"type":`))
		assert.Error(t, err)

		_, err = DecodeEnvelope([]byte(`not json at all`))
		assert.Error(t, err)
	})

	t.Run("unknown type still decodes", func(t *testing.T) {
		env, err := DecodeEnvelope([]byte(`{"type":"frobnicate"}`))
		require.NoError(t, err)
		assert.Equal(t, MessageType("frobnicate"), env.Type)
	})
}

func TestEnvelopeEncode(t *testing.T) {
	t.Run("pong carries only its type", func(t *testing.T) {
		data, err := NewPong().Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"pong"}`, string(data))
	})

	t.Run("sys carries text and room", func(t *testing.T) {
		data, err := NewSys("welcome", "g").Encode()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"sys","text":"welcome","room":"g"}`, string(data))
	})

	t.Run("round trip preserves chat fields", func(t *testing.T) {
		in := &Envelope{Type: TypeChat, Room: "g", User: "bob", Text: "yo", Ts: 42}
		data, err := in.Encode()
		require.NoError(t, err)

		out, err := DecodeEnvelope(data)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}
