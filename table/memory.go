package table

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Clock is the time source of a Memory table, in microseconds.
type Clock func() int64

// MemoryOption configures a Memory table.
type MemoryOption func(*Memory)

// WithClock replaces the default monotonic clock.
func WithClock(c Clock) MemoryOption {
	return func(m *Memory) {
		if c != nil {
			m.now = c
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Memory is an in-process Table. It is safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex // serializes listener delivery
	topics    map[string]*memTopic
	listeners map[int]func(Change)
	nextID    int

	now  Clock
	last int64 // latest instant handed out

	logger *slog.Logger
}

// NewMemory creates an empty in-process table.
func NewMemory(opts ...MemoryOption) *Memory {
	start := time.Now()
	m := &Memory{
		topics:    make(map[string]*memTopic),
		listeners: make(map[int]func(Change)),
		now: func() int64 {
			return time.Since(start).Microseconds() + 1
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tick returns a change instant strictly greater than every instant
// handed out before, by tick or by Now.
// Caller holds m.mu.
func (m *Memory) tick() int64 {
	n := m.now()
	if n <= m.last {
		n = m.last + 1
	}
	m.last = n
	return n
}

// Now implements Table. The instant returned is also handed out, so any
// change published afterwards gets a strictly later one.
func (m *Memory) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.now()
	if n < m.last {
		n = m.last
	}
	m.last = n
	return n
}

// Topic implements Table.
func (m *Memory) Topic(path string) Topic {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[path]
	if !ok {
		t = &memTopic{mem: m, path: path}
		m.topics[path] = t
	}
	return t
}

// Exists implements Table.
func (m *Memory) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.topics[path]
	return ok && t.declared
}

// Remove implements Table.
func (m *Memory) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.topics[path]; ok {
		t.removed = true
		delete(m.topics, path)
		m.logger.Debug("Removed topic", "path", path)
	}
}

// AddListener implements Table.
func (m *Memory) AddListener(fn func(Change)) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.listeners[m.nextID] = fn
	return m.nextID
}

// RemoveListener implements Table.
func (m *Memory) RemoveListener(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Paths returns the declared topic paths.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	paths := make([]string, 0, len(m.topics))
	for p, t := range m.topics {
		if t.declared {
			paths = append(paths, p)
		}
	}
	return paths
}

type memTopic struct {
	mem  *Memory
	path string

	// guarded by mem.mu
	typ        Type
	declared   bool
	removed    bool
	value      any
	hasValue   bool
	lastChange int64
}

func (t *memTopic) Path() string { return t.path }

func (t *memTopic) Type() (Type, bool) {
	t.mem.mu.Lock()
	defer t.mem.mu.Unlock()
	return t.typ, t.declared
}

// bind checks typ against the declared type. Caller holds mem.mu.
func (t *memTopic) bind(typ Type, declare bool) error {
	if t.removed {
		return ErrRemoved
	}
	if t.declared && t.typ != typ {
		return fmt.Errorf("%w: %q is %s, not %s", ErrTypeMismatch, t.path, t.typ, typ)
	}
	if declare && !t.declared {
		t.typ = typ
		t.declared = true
	}
	return nil
}

func (t *memTopic) Publish(typ Type) (Publisher, error) {
	t.mem.mu.Lock()
	defer t.mem.mu.Unlock()

	if err := t.bind(typ, true); err != nil {
		return nil, err
	}
	return &memPublisher{topic: t, typ: typ}, nil
}

func (t *memTopic) Subscribe(typ Type, def any) (Subscriber, error) {
	if def == nil {
		def = typ.Zero()
	}
	if err := typ.Check(def); err != nil {
		return nil, err
	}

	t.mem.mu.Lock()
	defer t.mem.mu.Unlock()

	if err := t.bind(typ, false); err != nil {
		return nil, err
	}
	return &memSubscriber{topic: t, typ: typ, def: Copy(def)}, nil
}

type memPublisher struct {
	topic *memTopic
	typ   Type
}

func (p *memPublisher) Set(v any) error {
	if err := p.typ.Check(v); err != nil {
		return err
	}
	v = Copy(v)

	m := p.topic.mem
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if p.topic.removed {
		m.mu.Unlock()
		return ErrRemoved
	}
	p.topic.value = v
	p.topic.hasValue = true
	p.topic.lastChange = m.tick()
	change := Change{Path: p.topic.path, Type: p.typ, Value: v, Instant: p.topic.lastChange}
	listeners := make([]func(Change), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
	return nil
}

func (p *memPublisher) Close() {}

type memSubscriber struct {
	topic *memTopic
	typ   Type
	def   any
}

// visible reports whether the topic holds a value of the subscribed type.
// A topic declared later with another type reads as empty. Caller holds
// mem.mu.
func (s *memSubscriber) visible() bool {
	return s.topic.hasValue && s.topic.typ == s.typ
}

func (s *memSubscriber) Get() any {
	s.topic.mem.mu.Lock()
	defer s.topic.mem.mu.Unlock()

	if !s.visible() {
		return Copy(s.def)
	}
	return Copy(s.topic.value)
}

func (s *memSubscriber) LastChange() int64 {
	s.topic.mem.mu.Lock()
	defer s.topic.mem.mu.Unlock()

	if !s.visible() {
		return 0
	}
	return s.topic.lastChange
}

func (s *memSubscriber) Close() {}
