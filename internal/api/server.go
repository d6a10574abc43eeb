package api

import (
	"net/http"

	"chmura-plikow/internal/config"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/files"
	"chmura-plikow/internal/storage"
	"chmura-plikow/internal/websocket"

	"github.com/rs/zerolog"
)

type Server struct {
	config      *config.Config
	store       *database.Store
	blobs       storage.BlobStore
	coordinator *files.Coordinator
	wsHub       *websocket.Hub
	log         zerolog.Logger
}

func NewServer(cfg *config.Config, store *database.Store, blobs storage.BlobStore, wsHub *websocket.Hub, log zerolog.Logger) *Server {
	return &Server{
		config:      cfg,
		store:       store,
		blobs:       blobs,
		coordinator: files.NewCoordinator(store, blobs, wsHub, log),
		wsHub:       wsHub,
		log:         log,
	}
}

func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.GetPool().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
