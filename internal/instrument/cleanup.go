package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"qindex/internal/store"
)

// CleanupQueryLog deletes query log rows older than retentionDays.
func CleanupQueryLog(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) (int64, error) {
	pb := dialect.NewParamBuilder()
	whereExpr := dialect.IntervalDeleteExpr("created_at", pb, retentionDays)
	sqlStr := fmt.Sprintf("DELETE FROM query_log WHERE %s", whereExpr)
	n, err := store.Exec(ctx, db, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("query log cleanup: %w", err)
	}
	if n > 0 {
		log.Printf("Query log cleanup: deleted %d old entries", n)
	}
	return n, nil
}

// StartCleanup runs CleanupQueryLog once immediately and then every interval
// until ctx is cancelled.
func StartCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := CleanupQueryLog(ctx, db, dialect, retentionDays); err != nil {
				log.Printf("ERROR: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
