package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *RoomStore {
	t.Helper()

	store, err := openRoomStore(filepath.Join(t.TempDir(), "rooms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestRoomStore_RoundTrip(t *testing.T) {
	store := testStore(t)

	s := testState()
	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	s.startGame("Eiffel Tower")
	require.NoError(t, s.submitPrompt("s1", "Who designed this Paris landmark?"))

	require.NoError(t, store.Save(s))

	loaded, err := store.Load("ABCD")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, s.RoomCode, loaded.RoomCode)
	assert.Equal(t, s.Phase, loaded.Phase)
	assert.Equal(t, s.CurrentRoundID, loaded.CurrentRoundID)
	require.Len(t, loaded.Participants, 1)
	assert.Equal(t, "alice", loaded.Participants[0].Nickname)
	require.Len(t, loaded.Submissions, 1)
	assert.Equal(t, "Who designed this Paris landmark?", loaded.Submissions[0].Prompt)
}

func TestRoomStore_LoadMissingRoom(t *testing.T) {
	store := testStore(t)

	loaded, err := store.Load("NOPE")

	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRoomStore_SaveOverwrites(t *testing.T) {
	store := testStore(t)

	s := testState()
	require.NoError(t, store.Save(s))

	s.upsertParticipant("s1", "c1", "alice", rolePlayer)
	require.NoError(t, store.Save(s))

	loaded, err := store.Load("ABCD")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Len(t, loaded.Participants, 1)
}
