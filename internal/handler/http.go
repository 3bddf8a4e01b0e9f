package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/creature-backend/internal/domain"
	"github.com/creature-backend/internal/service"
	"github.com/creature-backend/internal/websocket"
)

// maxBodyBytes limits request bodies to 1 MiB
const maxBodyBytes = 1 << 20

// Pinger reports store connectivity for the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the player and world API
type Handler struct {
	players *service.PlayerService
	world   *service.WorldService
	hub     *websocket.Hub
	db      Pinger
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(players *service.PlayerService, world *service.WorldService, hub *websocket.Hub, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		players: players,
		world:   world,
		hub:     hub,
		db:      db,
		logger:  logger,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)

	// WebSocket endpoint for world-state updates
	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	r.Route("/players", func(r chi.Router) {
		r.Post("/", h.CreatePlayer)
		r.Get("/by-name/{name}", h.GetPlayerByName)
		r.Get("/by-name/{name}/exists", h.PlayerNameExists)

		r.Route("/{playerID}", func(r chi.Router) {
			r.Get("/", h.GetPlayer)
			r.Put("/", h.ReplacePlayer)
			r.Patch("/social", h.PatchSocial)
			r.Delete("/", h.DeletePlayer)
		})
	})

	r.Get("/world", h.GetWorld)
	r.Put("/world", h.ReplaceWorld)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// errorResponse is the JSON body of every failure
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeServiceError translates a store/service failure into the error
// taxonomy: NotFound 404, Conflict 409, Validation 400, everything else 500
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	case domain.IsConflictError(err):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrNameRequired), errors.Is(err, domain.ErrInvalidPatch):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.logger.Error(logMsg, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// readBody reads a request body under the size limit
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// HealthCheck reports service and database health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"db":     "disconnected",
			"error":  err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"db":     "connected",
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetPlayerByName returns a player record by display name, or an empty
// object when no such player exists (absence is not an error here)
func (h *Handler) GetPlayerByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	player, err := h.players.GetByName(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, err, "failed to get player by name")
		return
	}
	if player == nil {
		h.writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	h.writeJSON(w, http.StatusOK, player)
}

// PlayerNameExists reports whether a display name is taken without leaking
// the record contents
func (h *Handler) PlayerNameExists(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	exists, err := h.players.NameExists(r.Context(), name)
	if err != nil {
		h.writeServiceError(w, err, "failed to check player name")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GetPlayer returns a player record by identifier
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	player, err := h.players.GetByID(r.Context(), playerID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get player")
		return
	}
	h.writeJSON(w, http.StatusOK, player)
}

// CreatePlayer creates a new player record with a minted identifier
func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrNameRequired)
		return
	}

	var player domain.Player
	if err := json.Unmarshal(body, &player); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrNameRequired)
		return
	}

	created, err := h.players.Create(r.Context(), &player)
	if err != nil {
		h.writeServiceError(w, err, "failed to create player")
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// ReplacePlayer upserts a full player record; the identifier in the path is
// authoritative and overrides the body
func (h *Handler) ReplacePlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPatch)
		return
	}

	var player domain.Player
	if err := json.Unmarshal(body, &player); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPatch)
		return
	}

	upserted, err := h.players.Replace(r.Context(), playerID, &player)
	if err != nil {
		h.writeServiceError(w, err, "failed to replace player")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":       true,
		"upserted": upserted,
	})
}

// PatchSocial applies a batch of social mutation operations to a player
func (h *Handler) PatchSocial(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPatch)
		return
	}

	var patch domain.SocialPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPatch)
		return
	}

	if err := h.players.ApplySocial(r.Context(), playerID, patch); err != nil {
		h.writeServiceError(w, err, "failed to apply social patch")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// DeletePlayer removes a player record by identifier
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	if err := h.players.Delete(r.Context(), playerID); err != nil {
		h.writeServiceError(w, err, "failed to delete player")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetWorld returns the world-state attribute map, empty if never written
func (h *Handler) GetWorld(w http.ResponseWriter, r *http.Request) {
	attrs, err := h.world.Load(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to load world state")
		return
	}
	h.writeJSON(w, http.StatusOK, attrs)
}

// ReplaceWorld overwrites the entire world-state attribute map
func (h *Handler) ReplaceWorld(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPatch)
		return
	}

	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(body, &attrs); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidPatch)
		return
	}

	if err := h.world.Replace(r.Context(), attrs); err != nil {
		h.writeServiceError(w, err, "failed to replace world state")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
