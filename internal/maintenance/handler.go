package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"publish-auth/internal/observability"
)

// LineagePruner drops refresh lineages whose token can no longer be used.
type LineagePruner interface {
	DeleteExpiredLineages(ctx context.Context, batchSize int) (int64, error)
}

type CleanupHandler struct {
	pruner     LineagePruner
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(pruner LineagePruner, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		pruner:     pruner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

// Handle is hidden entirely unless a cron secret is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "msg": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	scheme, secret, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(secret)), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "msg": "unauthorized"})
		return
	}

	deleted, err := h.pruner.DeleteExpiredLineages(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "msg": "cleanup failed"})
		return
	}

	h.logger.Info("auth_cleanup_completed", map[string]any{"deleted_refresh_lineages": deleted})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"data":   map[string]int64{"deletedRefreshLineages": deleted},
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
