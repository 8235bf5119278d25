package app

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/arcgis-mcp/server/internal/agent/model"
	"github.com/arcgis-mcp/server/internal/arcgis"
	logx "github.com/arcgis-mcp/server/pkg/logger"
)

// LayerService is the slice of the resolution service the read-only lookup
// endpoints use.
type LayerService interface {
	LayerInfo(ctx context.Context, name string) arcgis.LookupResult
	ListLayers(ctx context.Context, name string) arcgis.LookupResult
}

// ChatService runs one dispatch cycle per prompt.
type ChatService interface {
	Dispatch(ctx context.Context, sessionID, prompt string) model.Envelope
}

// Server exposes the gateway's HTTP surface.
type Server struct {
	layers         LayerService
	chat           ChatService
	defaultSession string
}

func NewServer(layers LayerService, chat ChatService, defaultSession string) *Server {
	return &Server{
		layers:         layers,
		chat:           chat,
		defaultSession: defaultSession,
	}
}

// Handler builds the chi router for the gateway.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/arcgis_layer_info/{layer_name}", s.handleLayerInfo)
		r.Get("/arcgis_layers/{layer_name}", s.handleLayerList)
		r.Post("/chat", s.handleChat)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Error().Err(err).Msg("Failed to encode response body")
	}
}
