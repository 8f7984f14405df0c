package main

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conceptRequest(t *testing.T, store *RoomStore, rawQuery string) map[string]string {
	t.Helper()

	handler := serveConcept(testConfig(), store, make(chan error, 8))
	req := httptest.NewRequest("GET", "/api/concept?"+rawQuery, nil)
	rec := httptest.NewRecorder()

	handler(rec, req, nil)

	require.Equal(t, 200, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestServeConcept_ExcludesRoomHistory(t *testing.T) {
	store := testStore(t)

	s := testState()
	for _, concept := range defaultConcepts[1:] {
		s.RoundHistory = append(s.RoundHistory, RoundSnapshot{Target: concept})
	}
	require.NoError(t, store.Save(s))

	for i := 0; i < 10; i++ {
		body := conceptRequest(t, store, "room=ABCD")
		assert.Equal(t, defaultConcepts[0], body["concept"])
	}
}

func TestServeConcept_ExcludesCurrentTarget(t *testing.T) {
	store := testStore(t)

	s := testState()
	s.CurrentTarget = defaultConcepts[0]
	for _, concept := range defaultConcepts[2:] {
		s.RoundHistory = append(s.RoundHistory, RoundSnapshot{Target: concept})
	}
	require.NoError(t, store.Save(s))

	for i := 0; i < 10; i++ {
		body := conceptRequest(t, store, "room=ABCD")
		assert.Equal(t, defaultConcepts[1], body["concept"])
	}
}

func TestServeConcept_UnknownRoomStillServes(t *testing.T) {
	store := testStore(t)

	body := conceptRequest(t, store, "room=NOPE")

	assert.NotEmpty(t, body["concept"])
	assert.NotEmpty(t, body["suggestedTopic"])
}
