package main

import (
	"io"
	"net/http"
	"os"

	"security-gateway/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

// Upstream de teste para validar o gateway manualmente: responde qualquer rota
// ecoando método, path e o que chegou de body.
func main() {
	log := logger.New("info", "text", os.Stderr)

	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		log.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("body_bytes", len(body)).Msg("request")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"body_bytes": len(body),
			"forwarded":  r.Header.Get("X-Forwarded-For"),
		})
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Info().Str("addr", addr).Msg("upstream demo listening")
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}
