// @title           Chmura Plikow API
// @version         1.0
// @host            localhost
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"net/http"
	"os"

	"chmura-plikow/internal/api"
	"chmura-plikow/internal/config"
	"chmura-plikow/internal/database"
	"chmura-plikow/internal/storage"
	"chmura-plikow/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Nie można wczytać konfiguracji")
	}

	dbpool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		logger.Fatal().Err(err).Msg("Nie można połączyć się z bazą danych")
	}
	defer dbpool.Close()

	if err := dbpool.Ping(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Nie można pingować bazy danych")
	}
	logger.Info().Msg("Pomyślnie połączono z bazą danych")

	blobStore, err := storage.NewS3BlobStore(context.Background(), cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("Nie można zainicjować object storage")
	}
	logger.Info().Str("bucket", cfg.Storage.Bucket).Msg("Pliki będą przechowywane w S3")

	wsHub := websocket.NewHub()
	go wsHub.Run()

	store := database.NewStore(dbpool)
	server := api.NewServer(cfg, store, blobStore, wsHub, logger)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/ws", server.ServeWsHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Chmura plików działa!"))
	})

	r.Get("/health", server.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(server.AuthMiddleware)
		r.Get("/nodes", server.ListNodesHandler)
		r.Post("/nodes/folder", server.CreateFolderHandler)
		r.Post("/nodes/file", server.UploadFileHandler)
		r.Get("/nodes/{nodeId}/download", server.DownloadFileHandler)
		r.Patch("/nodes/{nodeId}", server.UpdateNodeHandler)
		r.Delete("/nodes/{nodeId}", server.DeleteNodeHandler)
		r.Delete("/nodes/{nodeId}/hard", server.HardDeleteNodeHandler)
		r.Post("/nodes/{nodeId}/restore", server.RestoreNodeHandler)
		r.Post("/nodes/{nodeId}/star", server.StarNodeHandler)
		r.Delete("/nodes/{nodeId}/star", server.UnstarNodeHandler)
		r.Get("/starred", server.ListStarredHandler)
		r.Get("/trash", server.ListTrashHandler)
		r.Delete("/trash/purge", server.PurgeTrashHandler)
		r.Get("/events", server.GetEventsHandler)
	})

	logger.Info().Msg("Uruchamianie serwera na porcie :8080")
	if err := http.ListenAndServe(":8080", r); err != nil {
		logger.Fatal().Err(err).Msg("Nie można uruchomić serwera")
	}
}
