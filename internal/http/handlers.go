package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-deck/internal/deck"
	"github.com/kjstillabower/weather-deck/internal/observability"
	"github.com/kjstillabower/weather-deck/internal/validation"
)

// Handler exposes the deck's user intents over HTTP.
type Handler struct {
	deck         *deck.Deck
	healthConfig *HealthConfig
	logger       *zap.Logger
	health       healthState
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(d *deck.Deck, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deck: d, healthConfig: healthConfig, logger: logger}
}

// Register mounts every route on r. Deck routes get rate limiting and the request timeout.
func Register(r *mux.Router, h *Handler, mw ...mux.MiddlewareFunc) {
	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(mw...)
	api.HandleFunc("/locations", h.GetLocations).Methods(http.MethodGet)
	api.HandleFunc("/view", h.GetView).Methods(http.MethodGet)
	api.HandleFunc("/view/next", h.PostNext).Methods(http.MethodPost)
	api.HandleFunc("/view/prev", h.PostPrev).Methods(http.MethodPost)
	api.HandleFunc("/view/retry", h.PostRetry).Methods(http.MethodPost)
	api.HandleFunc("/view/forecast/{item}", h.GetForecastItem).Methods(http.MethodGet)
	api.HandleFunc("/view/{index}", h.PutView).Methods(http.MethodPut)
	api.HandleFunc("/favorites", h.GetFavorites).Methods(http.MethodGet)
	api.HandleFunc("/favorites", h.PostFavorite).Methods(http.MethodPost)
	api.HandleFunc("/favorites/toggle", h.PostToggleFavorite).Methods(http.MethodPost)
	api.HandleFunc("/favorites/{id}", h.DeleteFavorite).Methods(http.MethodDelete)
}

// GetLocations handles GET /locations.
func (h *Handler) GetLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locations": h.deck.Locations(),
		"viewed":    h.deck.Viewed(),
	})
}

// GetView handles GET /view. ?wait=true blocks until the viewed location
// leaves Loading or the request deadline passes.
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "true" {
		select {
		case <-h.deck.EnsureLoaded(h.deck.Viewed()):
		case <-r.Context().Done():
		}
	}
	writeJSON(w, http.StatusOK, h.deck.View())
}

// PutView handles PUT /view/{index}.
func (h *Handler) PutView(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INDEX", "index must be an integer")
		return
	}
	if err := h.deck.SetViewed(index); err != nil {
		writeDeckError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.deck.View())
}

// PostNext handles POST /view/next.
func (h *Handler) PostNext(w http.ResponseWriter, r *http.Request) {
	h.deck.Next()
	writeJSON(w, http.StatusOK, h.deck.View())
}

// PostPrev handles POST /view/prev.
func (h *Handler) PostPrev(w http.ResponseWriter, r *http.Request) {
	h.deck.Prev()
	writeJSON(w, http.StatusOK, h.deck.View())
}

// PostRetry handles POST /view/retry and waits for the retried load.
func (h *Handler) PostRetry(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.deck.Retry(h.deck.Viewed()):
	case <-r.Context().Done():
	}
	writeJSON(w, http.StatusOK, h.deck.View())
}

// GetForecastItem handles GET /view/forecast/{item}.
func (h *Handler) GetForecastItem(w http.ResponseWriter, r *http.Request) {
	item, err := strconv.Atoi(mux.Vars(r)["item"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INDEX", "item must be an integer")
		return
	}
	detail, err := h.deck.ForecastItem(item)
	if err != nil {
		writeDeckError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetFavorites handles GET /favorites.
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	locs := h.deck.Locations()
	writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": locs[1:]})
}

// PostFavorite handles POST /favorites {"name": "..."}.
func (h *Handler) PostFavorite(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be JSON with a name field")
		return
	}
	notice, err := h.deck.AddFavoriteByName(r.Context(), body.Name)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}
	writeJSON(w, noticeStatus(notice.Kind), notice)
}

func noticeStatus(kind deck.NoticeKind) int {
	switch kind {
	case deck.NoticeAdded:
		return http.StatusCreated
	case deck.NoticeNotFound:
		return http.StatusNotFound
	case deck.NoticeOffline, deck.NoticeFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}

// DeleteFavorite handles DELETE /favorites/{id}. Unknown ids return 404.
func (h *Handler) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "id must be an integer")
		return
	}
	removed, err := h.deck.RemoveFavorite(r.Context(), id)
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Warn("favorite removal", zap.Error(err))
	}
	if !removed {
		writeError(w, r, http.StatusNotFound, "FAVORITE_NOT_FOUND", "no favorite with that id")
		return
	}
	writeJSON(w, http.StatusOK, h.deck.View())
}

// PostToggleFavorite handles POST /favorites/toggle for the viewed location.
func (h *Handler) PostToggleFavorite(w http.ResponseWriter, r *http.Request) {
	favorite, err := h.deck.ToggleFavorite(r.Context())
	if err != nil && errors.Is(err, deck.ErrNotLoaded) {
		writeDeckError(w, r, err)
		return
	}
	if err != nil {
		observability.LoggerFromContext(r.Context(), h.logger).Warn("favorite toggle", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isFavorite": favorite,
		"view":       h.deck.View(),
	})
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {"error":{"code","message","requestId"}}.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

func writeDeckError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, deck.ErrIndexOutOfRange):
		writeError(w, r, http.StatusNotFound, "INDEX_OUT_OF_RANGE", err.Error())
	case errors.Is(err, deck.ErrNotLoaded):
		writeError(w, r, http.StatusConflict, "NOT_LOADED", err.Error())
	case errors.Is(err, deck.ErrNoForecast):
		writeError(w, r, http.StatusNotFound, "FORECAST_UNAVAILABLE", err.Error())
	default:
		observability.LoggerFromContext(r.Context(), nil).Error("unexpected deck error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "invalid city name"
	switch {
	case errors.Is(err, validation.ErrCityNameEmpty),
		errors.Is(err, validation.ErrCityNameTooLong),
		errors.Is(err, validation.ErrCityNameInvalidChars):
		msg = err.Error()
	}
	writeError(w, r, http.StatusBadRequest, "INVALID_CITY_NAME", msg)
}
