package api

import (
	"net/http"
	"strconv"

	"chmura-plikow/internal/auth"
	"chmura-plikow/internal/websocket"
)

// @Summary      Poll the event journal
// @Description  Returns up to 100 events newer than the given id, oldest first. Clients page by passing the last id they saw.
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        since  query  int  false  "Return events with id greater than this"
// @Success      200  {array}  database.Event
// @Router       /events [get]
func (s *Server) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var sinceID int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeErrorMessage(w, http.StatusBadRequest, "Invalid 'since' parameter")
			return
		}
		sinceID = n
	}

	events, err := s.store.GetEventsSince(r.Context(), claims.OwnerID(), sinceID)
	if err != nil {
		writeErrorMessage(w, http.StatusInternalServerError, "Failed to fetch events")
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// ServeWsHandler upgrades to a websocket that streams the owner's mutation
// events. Browsers cannot set headers on websocket dials, so the token rides
// in the query string instead of the Authorization header.
func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		writeErrorMessage(w, http.StatusUnauthorized, "Token query parameter required")
		return
	}

	claims, err := auth.VerifyJWT(tokenString, s.config.JWT.Secret)
	if err != nil {
		writeErrorMessage(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}

	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(s.wsHub, conn, claims.OwnerID())
	s.wsHub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
