package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shadowmere/dungeon-gm/internal/services"
	"github.com/shadowmere/dungeon-gm/pkg/session"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Provider  string    `json:"provider"`
	Sessions  int       `json:"sessions"`
}

type HealthHandler struct {
	provider services.GMProvider
	sessions *session.Manager
	logger   *slog.Logger
}

func NewHealthHandler(provider services.GMProvider, sessions *session.Manager, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		provider: provider,
		sessions: sessions,
		logger:   logger,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   "dungeon-gm",
		Provider:  h.provider.Name(),
		Sessions:  h.sessions.Count(),
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
