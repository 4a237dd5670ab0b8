package engine

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"qindex/internal/indexing"
	"qindex/internal/instrument"
	"qindex/internal/metadata"
	"qindex/internal/query"
	"qindex/internal/store"
)

// Search is a query in its textual form, as received over HTTP or the CLI.
type Search struct {
	Type    string `json:"type"`
	Where   string `json:"where"`
	OrderBy string `json:"order_by"`
	First   int    `json:"first"`
	Max     int    `json:"max"`
	Count   bool   `json:"count"`
}

// Request parses the textual parts of s against reg.
func (s Search) Request(reg *metadata.Registry) (query.Request, error) {
	if !reg.Types().Known(s.Type) {
		return query.Request{}, fmt.Errorf("%w: %q", metadata.ErrUnknownType, s.Type)
	}
	where, err := query.Parse(reg, s.Type, s.Where)
	if err != nil {
		return query.Request{}, err
	}
	order, err := query.ParseOrder(reg, s.Type, s.OrderBy)
	if err != nil {
		return query.Request{}, err
	}
	return query.Request{
		ResultType:  s.Type,
		Where:       where,
		OrderBy:     order,
		FirstResult: s.First,
		MaxResults:  s.Max,
		CountOnly:   s.Count,
	}, nil
}

// published is everything derived from one registry. It is replaced as a
// whole when the schema is synchronized again.
type published struct {
	reg      *metadata.Registry
	compiler *query.Compiler
	writer   *indexing.Writer
}

type SearcherOptions struct {
	AppVersion string
	Recorder   instrument.Recorder
	SlowQuery  time.Duration // 0 disables slow query warnings
}

// Searcher compiles and executes queries against the current registry.
type Searcher struct {
	store   *store.Store
	opts    SearcherOptions
	current atomic.Pointer[published]
}

func NewSearcher(s *store.Store, reg *metadata.Registry, opts SearcherOptions) *Searcher {
	if opts.Recorder == nil {
		opts.Recorder = instrument.NoopRecorder{}
	}
	sr := &Searcher{store: s, opts: opts}
	sr.Publish(reg)
	return sr
}

// Publish makes reg the registry used by subsequent calls. Calls already in
// flight keep the registry they started with.
func (s *Searcher) Publish(reg *metadata.Registry) {
	s.current.Store(&published{
		reg:      reg,
		compiler: query.NewCompiler(reg, s.store.Dialect),
		writer:   indexing.NewWriter(s.store, reg, s.opts.AppVersion),
	})
}

// Registry returns the current registry.
func (s *Searcher) Registry() *metadata.Registry {
	return s.current.Load().reg
}

// Explain compiles search without executing it.
func (s *Searcher) Explain(search Search) (*query.Compiled, error) {
	p := s.current.Load()
	req, err := search.Request(p.reg)
	if err != nil {
		return nil, err
	}
	return p.compiler.Compile(req)
}

// Find returns the identities selected by search, in order.
func (s *Searcher) Find(ctx context.Context, search Search) ([]string, error) {
	search.Count = false
	var ids []string
	err := s.run(ctx, search, func(compiled *query.Compiled) (int, error) {
		var err error
		ids, err = store.QueryStrings(ctx, s.store.DB, compiled.SQL, compiled.Params...)
		return len(ids), err
	})
	if ids == nil && err == nil {
		ids = []string{}
	}
	return ids, err
}

// Count returns the number of entities selected by search. Ordering and
// pagination are ignored.
func (s *Searcher) Count(ctx context.Context, search Search) (int64, error) {
	search.Count = true
	var n int64
	err := s.run(ctx, search, func(compiled *query.Compiled) (int, error) {
		err := s.store.DB.QueryRowContext(ctx, compiled.SQL, compiled.Params...).Scan(&n)
		return 1, err
	})
	return n, err
}

func (s *Searcher) run(ctx context.Context, search Search, exec func(*query.Compiled) (int, error)) error {
	start := time.Now()
	event := instrument.QueryEvent{
		ResultType: search.Type,
		WhereText:  search.Where,
		CountOnly:  search.Count,
		Status:     "ok",
	}
	defer func() {
		event.DurationMs = float64(time.Since(start).Microseconds()) / 1000
		s.opts.Recorder.Record(event)
	}()

	compiled, err := s.Explain(search)
	if err != nil {
		event.Status, event.Error = "error", err.Error()
		return err
	}
	event.SQL = compiled.SQL
	event.ParamCount = len(compiled.Params)

	rows, err := exec(compiled)
	if err != nil {
		err = store.MapError(s.store.Dialect, err)
		event.Status, event.Error = "error", err.Error()
		log.Printf("ERROR: query %s failed: %v", search.Type, err)
		return fmt.Errorf("execute query: %w", err)
	}
	event.RowCount = rows

	if elapsed := time.Since(start); s.opts.SlowQuery > 0 && elapsed > s.opts.SlowQuery {
		log.Printf("WARN: slow query on %s (%s): %s", search.Type, elapsed, search.Where)
	}
	return nil
}

// Index stores entity states using the current registry.
func (s *Searcher) Index(ctx context.Context, states ...indexing.EntityState) ([]indexing.EntityState, error) {
	return s.current.Load().writer.Index(ctx, states...)
}

// Remove deletes entities by identity and returns how many existed.
func (s *Searcher) Remove(ctx context.Context, identities ...string) (int, error) {
	return s.current.Load().writer.Remove(ctx, identities...)
}
