package alias

import (
	"log/slog"
	"sync"

	"github.com/c360/turbologger/metric"
	"github.com/c360/turbologger/structs"
	"github.com/c360/turbologger/table"
)

// Option configures a Store.
type Option func(*Store)

// WithReporter sets the diagnostic reporter. The default logs through the
// Store's logger.
func WithReporter(r Reporter) Option {
	return func(s *Store) {
		s.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records store activity in m.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithRegistry sets the record descriptor registry.
func WithRegistry(r *structs.Registry) Option {
	return func(s *Store) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithPrefix places every canonical path under prefix in the table, so
// "motors/m1/voltage" with prefix "TurboLogger" is stored at
// "TurboLogger/motors/m1/voltage". Names passed to the Store never carry
// the prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// Store resolves names, caches typed channels and tracks staleness over a
// table.Table. It is safe for concurrent use.
type Store struct {
	tbl      table.Table
	registry *structs.Registry
	reporter Reporter
	logger   *slog.Logger
	metrics  *metric.Metrics
	prefix   string

	// mu guards the four maps below as one unit. Table calls are made with
	// mu held; the table never calls back into the Store.
	mu            sync.Mutex
	aliasToPath   map[string]string
	pathToAliases map[string][]string
	channels      map[string]*channel // keyed by canonical path
	markers       map[string]int64    // keyed by name, alias or canonical
}

// New creates a Store over tbl.
func New(tbl table.Table, opts ...Option) *Store {
	s := &Store{
		tbl:           tbl,
		registry:      structs.NewRegistry(),
		logger:        slog.Default(),
		aliasToPath:   make(map[string]string),
		pathToAliases: make(map[string][]string),
		channels:      make(map[string]*channel),
		markers:       make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.reporter == nil {
		s.reporter = LogReporter(s.logger)
	}
	return s
}

// Registry returns the record descriptor registry used by the Store.
func (s *Store) Registry() *structs.Registry {
	return s.registry
}

// Close releases every cached channel. Aliases and markers are kept, and
// channels are reopened on the next access.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, ch := range s.channels {
		ch.close()
		delete(s.channels, path)
	}
	s.recordSizes()
}

// emit hands diagnostics to the reporter. Never call with mu held.
func (s *Store) emit(diags ...Diagnostic) {
	for _, d := range diags {
		if s.metrics != nil {
			s.metrics.RecordDiagnostic(d.Condition(), d.Severity.String())
		}
		if s.reporter != nil {
			s.reporter(d)
		}
	}
}

// recordSizes updates the cache gauges. Caller holds mu.
func (s *Store) recordSizes() {
	if s.metrics != nil {
		s.metrics.RecordCacheSize(len(s.channels), len(s.aliasToPath))
	}
}

// topicPath maps a canonical path to its table key.
func (s *Store) topicPath(path string) string {
	if s.prefix == "" {
		return path
	}
	return s.prefix + "/" + path
}
