package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"qindex/internal/store"
)

// QueryEvent is one executed (or rejected) query.
type QueryEvent struct {
	ID         string
	ResultType string
	WhereText  string
	SQL        string
	ParamCount int
	RowCount   int
	CountOnly  bool
	DurationMs float64
	Status     string // "ok" or "error"
	Error      string
}

// Recorder receives query events.
type Recorder interface {
	Record(event QueryEvent)
}

// QueryLog collects query events in memory and periodically flushes them
// to the query_log table in a batch insert.
type QueryLog struct {
	mu      sync.Mutex
	events  []QueryEvent
	db      *sql.DB
	dialect store.Dialect
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
	stopped sync.Once
}

// NewQueryLog creates a buffer that flushes on a timer or when full.
func NewQueryLog(db *sql.DB, dialect store.Dialect, maxSize int, flushIntervalMs int) *QueryLog {
	if maxSize <= 0 {
		maxSize = 500
	}
	if flushIntervalMs <= 0 {
		flushIntervalMs = 1000
	}
	ql := &QueryLog{
		db:      db,
		dialect: dialect,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	ql.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go ql.run()
	return ql
}

func (ql *QueryLog) run() {
	for {
		select {
		case <-ql.done:
			return
		case <-ql.ticker.C:
			ql.Flush()
		}
	}
}

// Record adds an event to the buffer. If the buffer is full, a flush
// is triggered asynchronously.
func (ql *QueryLog) Record(event QueryEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	ql.mu.Lock()
	ql.events = append(ql.events, event)
	shouldFlush := len(ql.events) >= ql.maxSize
	ql.mu.Unlock()
	if shouldFlush {
		go ql.Flush()
	}
}

// Pending returns the number of buffered events.
func (ql *QueryLog) Pending() int {
	ql.mu.Lock()
	defer ql.mu.Unlock()
	return len(ql.events)
}

var queryLogColumns = []string{"id", "result_type", "where_text", "sql_text", "param_count", "row_count", "count_only", "duration_ms", "status", "error"}

// Flush writes all buffered events to the database in a single batch insert.
func (ql *QueryLog) Flush() {
	ql.mu.Lock()
	if len(ql.events) == 0 {
		ql.mu.Unlock()
		return
	}
	batch := ql.events
	ql.events = nil
	ql.mu.Unlock()

	ctx := context.Background()
	tx, err := ql.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("ERROR: query log begin tx: %v", err)
		return
	}

	if ql.dialect.Name() == "postgres" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
			tx.Rollback()
			log.Printf("ERROR: query log set sync commit: %v", err)
			return
		}
	}

	pb := ql.dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, e := range batch {
		countOnly := any(e.CountOnly)
		if ql.dialect.NeedsBoolFix() {
			countOnly = boolToInt(e.CountOnly)
		}
		values := []any{e.ID, e.ResultType, e.WhereText, e.SQL, e.ParamCount, e.RowCount, countOnly, e.DurationMs, e.Status, e.Error}
		ph := make([]string, len(values))
		for j, v := range values {
			ph[j] = pb.Add(v)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO query_log (%s) VALUES %s", strings.Join(queryLogColumns, ","), strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		tx.Rollback()
		log.Printf("ERROR: query log insert: %v", err)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("ERROR: query log commit: %v", err)
	}
}

// Stop halts the background ticker and flushes remaining events.
func (ql *QueryLog) Stop() {
	ql.stopped.Do(func() {
		ql.ticker.Stop()
		close(ql.done)
		ql.Flush()
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
