// Package maintenance exposes the scheduled-cleanup endpoint invoked
// by an external cron with a shared bearer secret.
package maintenance

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"tracker-api/internal/auth"
	"tracker-api/internal/observability"
)

type CleanupHandler struct {
	repo             *auth.Repository
	logger           *observability.Logger
	cronSecret       string
	ipLimitRetention time.Duration
	batchSize        int
}

func NewCleanupHandler(
	repo *auth.Repository,
	logger *observability.Logger,
	cronSecret string,
	ipLimitRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		repo:             repo,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		ipLimitRetention: ipLimitRetention,
		batchSize:        batchSize,
	}
}

// Handle clears naturally expired account locks and prunes idle login
// throttle rows. The route pretends not to exist unless a cron secret
// is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.repo.CleanupStaleSecurityState(r.Context(), h.ipLimitRetention, h.batchSize)
	if err != nil {
		h.logger.Error("security_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("security_cleanup_completed", map[string]any{
		"cleared_expired_locks": result.ClearedExpiredLocks,
		"deleted_ip_limits":     result.DeletedIPLimits,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
