package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/axiagw/gateway/cache"
)

// CacheHandler serves cache management REST endpoints over the
// response cache (C2): stats, group invalidation, and single-entry
// deletion.
type CacheHandler struct {
	engine *cache.Engine
	logger zerolog.Logger
}

// NewCacheHandler creates a new cache handler.
func NewCacheHandler(engine *cache.Engine, logger zerolog.Logger) *CacheHandler {
	return &CacheHandler{
		engine: engine,
		logger: logger.With().Str("component", "cache_handler").Logger(),
	}
}

// Stats handles GET /api/v1/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

// InvalidateGroup handles DELETE /api/v1/cache/groups/{group} — removes
// every entry tagged with the group, transitively invalidating entries
// that depend on any removed key.
func (h *CacheHandler) InvalidateGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	count := h.engine.InvalidateGroup(r.Context(), group)
	h.logger.Info().Str("group", group).Int("evicted", count).Msg("cache group invalidated")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invalidated": true,
		"group":       group,
		"evicted":     count,
	})
}

// DeleteEntry handles DELETE /api/v1/cache/{namespace}/{key}.
func (h *CacheHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	key := chi.URLParam(r, "key")
	h.engine.Delete(r.Context(), namespace, key)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deleted":   true,
		"namespace": namespace,
		"key":       key,
	})
}
