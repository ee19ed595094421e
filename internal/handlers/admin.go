package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/prompts"
)

// AdminHandler exposes the prompt section store for live tuning.
// All routes require the configured bearer token.
//
//	GET  /v1/prompts              list all sections
//	PUT  /v1/prompts/{key}        replace a section's content
//	POST /v1/prompts/reset        restore every section to its default
//	POST /v1/prompts/{key}/reset  restore one section
type AdminHandler struct {
	store  *prompts.Store
	token  string
	logger *slog.Logger
}

func NewAdminHandler(store *prompts.Store, token string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		token:  token,
		logger: logger,
	}
}

type updateSectionRequest struct {
	Content string `json:"content"`
}

type sectionsResponse struct {
	Sections []prompts.Section `json:"sections"`
}

func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !h.authorized(r) {
		writeJSONError(w, http.StatusForbidden, "unauthorized")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/prompts"), "/")

	switch {
	case r.Method == http.MethodGet && rest == "":
		h.list(w)
	case r.Method == http.MethodPost && rest == "reset":
		h.resetAll(w)
	case r.Method == http.MethodPost && strings.HasSuffix(rest, "/reset"):
		h.resetOne(w, strings.TrimSuffix(rest, "/reset"))
	case r.Method == http.MethodPut && rest != "" && !strings.Contains(rest, "/"):
		h.update(w, r, rest)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *AdminHandler) authorized(r *http.Request) bool {
	if h.token == "" {
		return false
	}
	auth := r.Header.Get("Authorization")
	provided, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.token)) == 1
}

func (h *AdminHandler) list(w http.ResponseWriter) {
	if err := json.NewEncoder(w).Encode(sectionsResponse{Sections: h.store.All()}); err != nil {
		h.logger.Error("Failed to encode sections response", "error", err)
	}
}

func (h *AdminHandler) update(w http.ResponseWriter, r *http.Request, key string) {
	var req updateSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "content must be a non-empty string")
		return
	}
	if !h.store.Update(key, req.Content) {
		writeJSONError(w, http.StatusNotFound, "section not found")
		return
	}
	h.logger.Info("Prompt section updated", "key", key)
	writeOK(w)
}

func (h *AdminHandler) resetAll(w http.ResponseWriter) {
	h.store.ResetAll()
	h.logger.Info("All prompt sections reset to defaults")
	if err := json.NewEncoder(w).Encode(sectionsResponse{Sections: h.store.All()}); err != nil {
		h.logger.Error("Failed to encode sections response", "error", err)
	}
}

func (h *AdminHandler) resetOne(w http.ResponseWriter, key string) {
	if !h.store.Reset(key) {
		writeJSONError(w, http.StatusNotFound, "section not found")
		return
	}
	h.logger.Info("Prompt section reset", "key", key)
	writeOK(w)
}

func writeOK(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
