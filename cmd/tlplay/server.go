package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jdeisenh/tlplay/pkg/player"
	"github.com/jdeisenh/tlplay/pkg/timeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type statusResponse struct {
	Info     timeline.Info  `json:"info"`
	Player   player.Status  `json:"player"`
	Timeline timeline.Stats `json:"timeline"`
}

func newRouter(p *player.Player, tl *timeline.Timeline) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Info:     p.Info(),
			Player:   p.Status(),
			Timeline: tl.Stats(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serve runs the status server until it fails
func serve(listen string, handler http.Handler, logger zerolog.Logger) {
	logger.Info().Msgf("Starting server listening on %s", listen)
	logger.Error().Err(http.ListenAndServe(listen, handler)).Msg("Status server")
}
