package app

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/arcgis-mcp/server/internal/agent/model"
	logx "github.com/arcgis-mcp/server/pkg/logger"
)

// ChatRequest is the body of POST /api/chat. SessionID is optional; requests
// without one share the configured default session.
type ChatRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		logx.Warn().Err(err).Msg("Malformed chat request body")
		env := model.ErrorEnvelope(model.CodeInvalidArguments, "invalid request body")
		writeJSON(w, env.HTTPStatus(), env)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.defaultSession
	}

	logx.Debug().Str("session_id", sessionID).Msg("Received chat prompt")

	// An empty prompt is forwarded unchanged; the model decides how to respond.
	env := s.chat.Dispatch(r.Context(), sessionID, req.Prompt)
	writeJSON(w, env.HTTPStatus(), env)
}

func (s *Server) handleLayerInfo(w http.ResponseWriter, r *http.Request) {
	name := layerNameParam(r)
	result := s.layers.LayerInfo(r.Context(), name)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLayerList(w http.ResponseWriter, r *http.Request) {
	name := layerNameParam(r)
	result := s.layers.ListLayers(r.Context(), name)
	writeJSON(w, http.StatusOK, result)
}

// layerNameParam extracts and unescapes the {layer_name} route parameter.
func layerNameParam(r *http.Request) string {
	raw := chi.URLParam(r, "layer_name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}
