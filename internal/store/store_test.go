package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/protocol"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := New(dir)
	require.NoError(t, err)
	return st, dir
}

func chatMsg(text string, ts int64) *protocol.Envelope {
	return &protocol.Envelope{Type: protocol.TypeChat, Room: "g", User: "alice", Text: text, Ts: ts}
}

func TestAppendAndLoadLast(t *testing.T) {
	st, _ := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.Append("g", chatMsg(fmt.Sprintf("msg-%d", i), int64(i))))
	}

	t.Run("returns all when n exceeds count", func(t *testing.T) {
		got, err := st.LoadLast("g", 20)
		require.NoError(t, err)
		require.Len(t, got, 5)
	})

	t.Run("returns last n oldest-first", func(t *testing.T) {
		got, err := st.LoadLast("g", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "msg-3", got[0].Text)
		assert.Equal(t, "msg-4", got[1].Text)
	})

	t.Run("unknown room has empty history", func(t *testing.T) {
		got, err := st.LoadLast("nowhere", 20)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestLoadLast_SkipsMalformedLines(t *testing.T) {
	st, dir := newTestStore(t)

	require.NoError(t, st.Append("g", chatMsg("first", 1)))

	// Corrupt the log by hand: a half-written line and a blank line.
	f, err := os.OpenFile(filepath.Join(dir, "g.log"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"type\":\"chat\",\"tex\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, st.Append("g", chatMsg("second", 2)))

	got, err := st.LoadLast("g", 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
}

func TestRoomsAreIsolated(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.Append("a", chatMsg("in-a", 1)))
	require.NoError(t, st.Append("b", chatMsg("in-b", 2)))

	gotA, err := st.LoadLast("a", 20)
	require.NoError(t, err)
	require.Len(t, gotA, 1)
	assert.Equal(t, "in-a", gotA[0].Text)

	gotB, err := st.LoadLast("b", 20)
	require.NoError(t, err)
	require.Len(t, gotB, 1)
	assert.Equal(t, "in-b", gotB[0].Text)
}

func TestRoomFile_FlattensPathSeparators(t *testing.T) {
	st, dir := newTestStore(t)

	require.NoError(t, st.Append("../evil", chatMsg("trapped", 1)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".._evil.log", entries[0].Name())

	got, err := st.LoadLast("../evil", 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
}
