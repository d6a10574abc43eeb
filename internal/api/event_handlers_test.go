package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"chmura-plikow/internal/database"

	"github.com/stretchr/testify/require"
)

func TestGetEventsHandler(t *testing.T) {
	// Zapisz zdarzenie bezpośrednio w dzienniku
	_, err := testServer.store.LogEvent(context.Background(), testUserClaims.OwnerID(), "node_created", map[string]string{"id": "evt_node"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/events?since=0", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(testServer.GetEventsHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusOK, rr.Code)
	var events []database.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	require.NotEmpty(t, events)

	last := events[len(events)-1]

	// Paginacja po ostatnim id
	req = httptest.NewRequest("GET", "/api/v1/events?since="+strconv.FormatInt(last.ID, 10), nil)
	rr = httptest.NewRecorder()
	http.HandlerFunc(testServer.GetEventsHandler).ServeHTTP(rr, asUser(req, testUserClaims))

	require.Equal(t, http.StatusOK, rr.Code)
	var newer []database.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &newer))
	require.Len(t, newer, 0)

	t.Run("invalid since parameter", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/events?since=abc", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(testServer.GetEventsHandler).ServeHTTP(rr, asUser(req, testUserClaims))
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("events are private per owner", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/events?since=0", nil)
		rr := httptest.NewRecorder()
		http.HandlerFunc(testServer.GetEventsHandler).ServeHTTP(rr, asUser(req, otherUserClaims))
		require.Equal(t, http.StatusOK, rr.Code)

		var events []database.Event
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
		for _, e := range events {
			var payload map[string]string
			if json.Unmarshal(e.Payload, &payload) == nil {
				require.NotEqual(t, "evt_node", payload["id"])
			}
		}
	})
}
