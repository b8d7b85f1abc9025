package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/trustgate/trustgate/internal/metrics"
)

// DefaultRetention is how long entries are kept when no window is configured.
const DefaultRetention = 180 * 24 * time.Hour

// purgeInterval is how often the retention job wakes up. A day-granular
// retention window does not need tighter scheduling.
const purgeInterval = time.Hour

// RunRetention deletes entries older than window until ctx is cancelled.
// One purge runs immediately on start so a long-stopped instance catches up.
func RunRetention(ctx context.Context, store Store, window time.Duration, logger *slog.Logger) {
	if window <= 0 {
		window = DefaultRetention
	}

	purge := func() {
		cutoff := time.Now().Add(-window)
		n, err := store.PurgeAuditBefore(ctx, cutoff)
		if err != nil {
			logger.Error("audit retention purge failed", "error", err)
			return
		}
		if n > 0 {
			metrics.AuditPurged.Add(float64(n))
			logger.Info("audit retention purge", "removed", n, "cutoff", cutoff)
		}
	}

	purge()
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}
