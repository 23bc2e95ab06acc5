package stats

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"tracker-api/internal/auth"
	"tracker-api/internal/authz"
	"tracker-api/internal/cache"
)

type Handler struct {
	repo     *Repository
	cache    cache.Cache
	cacheTTL time.Duration
}

func NewHandler(repo *Repository, responseCache cache.Cache, cacheTTL time.Duration) *Handler {
	return &Handler{repo: repo, cache: responseCache, cacheTTL: cacheTTL}
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "overview", func(ctx context.Context, scope authz.Scope) (any, error) {
		return h.repo.Overview(ctx, scope)
	})
}

func (h *Handler) Charts(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "charts", func(ctx context.Context, scope authz.Scope) (any, error) {
		return h.repo.Charts(ctx, scope)
	})
}

// serve answers from the response cache when possible; the cache key
// is scoped so one tenant can never see another's aggregates. Cache
// failures degrade to a recompute, never to an error.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, name string, build func(context.Context, authz.Scope) (any, error)) {
	actor, ok := auth.ActorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	scope := authz.ListScope(actor)
	key := cacheKey(name, scope)

	if cached, err := h.cache.Get(r.Context(), key); err == nil {
		writeRawJSON(w, cached)
		return
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		sentry.CaptureException(err)
	}

	payload, err := build(r.Context(), scope)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to encode statistics")
		return
	}

	if err := h.cache.Set(r.Context(), key, encoded, h.cacheTTL); err != nil {
		sentry.CaptureException(err)
	}

	writeRawJSON(w, encoded)
}

func cacheKey(name string, scope authz.Scope) string {
	if scope.All {
		return "stats:" + name + ":all"
	}
	return "stats:" + name + ":owner:" + scope.OwnerID
}

func writeRawJSON(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
