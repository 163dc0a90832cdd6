package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/voithos/swiftcode/internal/auth"
	"github.com/voithos/swiftcode/internal/config"
	"github.com/voithos/swiftcode/internal/gateway"
)

func setupServer(cfg config.Config, manager *gateway.Manager, verifier *auth.Verifier) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	r.Get("/ws/lobby", manager.HandleLobby)
	r.Get("/ws/match", manager.HandleMatch)

	// Dev-only token mint; production deployments front this with a real
	// identity service signing with the same secret.
	r.Post("/auth/dev-token", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			PlayerID string `json:"playerId"`
			Name     string `json:"name"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.PlayerID == "" {
			http.Error(w, "playerId required", http.StatusBadRequest)
			return
		}
		token, err := verifier.NewToken(body.PlayerID, body.Name, 24*time.Hour)
		if err != nil {
			http.Error(w, "failed to issue token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      h2c.NewHandler(c.Handler(r), &http2.Server{}),
		ReadTimeout:  0,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}
}
