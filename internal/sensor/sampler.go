package sensor

import (
	"context"
	"log/slog"
	"time"
)

const errorBackoff = time.Second

// Sample reads the source into the cache until ctx is cancelled. Read
// errors are logged and retried after a short backoff; the cache keeps its
// last good value throughout.
func Sample(ctx context.Context, src Source, cache *Cache, every time.Duration, logger *slog.Logger) {
	logger = logger.With("component", "sensor")
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		r, err := src.Read()
		if err != nil {
			logger.Warn("sensor read failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		cache.Update(r)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
