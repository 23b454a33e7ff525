package natstable

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/turbologger/errors"
	"github.com/c360/turbologger/metric"
	"github.com/c360/turbologger/table"
)

// Bucket is the part of jetstream.KeyValue the Table uses.
type Bucket interface {
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	WatchAll(ctx context.Context, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error)
}

// Option configures a Table.
type Option func(*Table)

// WithPublishTimeout bounds each KV put or delete.
func WithPublishTimeout(d time.Duration) Option {
	return func(t *Table) {
		if d > 0 {
			t.publishTimeout = d
		}
	}
}

// WithTableLogger sets the logger.
func WithTableLogger(logger *slog.Logger) Option {
	return func(t *Table) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTableMetrics records publish and remote update counts in m.
func WithTableMetrics(m *metric.Metrics) Option {
	return func(t *Table) {
		t.metrics = m
	}
}

// maxInflight bounds the remembered unacknowledged puts per key.
const maxInflight = 16

type pendingOp struct {
	delete bool
	data   []byte
}

// Table is a table.Table kept in a NATS KV bucket. Reads and writes are
// served from local state; writes reach the bucket from a background
// flusher and updates from other writers arrive through a bucket watcher.
type Table struct {
	bucket         Bucket
	logger         *slog.Logger
	metrics        *metric.Metrics
	publishTimeout time.Duration
	epoch          time.Time

	mu        sync.Mutex
	notifyMu  sync.Mutex // serializes listener delivery
	topics    map[string]*topic
	keys      map[string]string // KV key to path
	listeners map[int]func(table.Change)
	nextID    int
	last      int64

	pending    map[string]pendingOp // by KV key, latest op wins
	inflight   map[string][][]byte  // sent puts not yet seen on the watcher
	ownDeletes map[string]int

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool
	wake        chan struct{}
	done        chan struct{}
	ready       chan struct{}
	watcher     jetstream.KeyWatcher
	cancel      context.CancelFunc
	flushWG     sync.WaitGroup
	watchWG     sync.WaitGroup
}

var _ table.Table = (*Table)(nil)

// New creates a Table over bucket. Call Start to load the bucket and begin
// syncing.
func New(bucket Bucket, opts ...Option) *Table {
	t := &Table{
		bucket:         bucket,
		logger:         slog.Default(),
		publishTimeout: 2 * time.Second,
		epoch:          time.Now(),
		topics:         make(map[string]*topic),
		keys:           make(map[string]string),
		listeners:      make(map[int]func(table.Change)),
		pending:        make(map[string]pendingOp),
		inflight:       make(map[string][][]byte),
		ownDeletes:     make(map[string]int),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
		ready:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start watches the bucket and waits until its current contents are
// loaded, or ctx is done.
func (t *Table) Start(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Table", "Start", "table already started")
	}
	if t.stopped {
		return errors.WrapInvalid(errors.ErrStopped, "Table", "Start", "restart stopped table")
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	watcher, err := t.bucket.WatchAll(watchCtx)
	if err != nil {
		cancel()
		return errors.WrapTransient(err, "Table", "Start", "KV watcher creation failed")
	}
	t.watcher = watcher
	t.cancel = cancel
	t.started = true

	t.watchWG.Add(1)
	go t.watchLoop()
	t.flushWG.Add(1)
	go t.flushLoop()

	select {
	case <-t.ready:
		t.logger.Info("NATS table synced", "topics", len(t.Paths()))
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Table", "Start", "initial sync")
	}
}

// Stop flushes pending writes and stops watching. Writes after Stop stay
// local. A stopped Table can not be started again.
func (t *Table) Stop(ctx context.Context) error {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if !t.started {
		return nil
	}
	t.started = false
	t.stopped = true

	close(t.done)
	flushed := make(chan struct{})
	go func() {
		t.flushWG.Wait()
		close(flushed)
	}()

	var err error
	select {
	case <-flushed:
	case <-ctx.Done():
		err = errors.WrapTransient(ctx.Err(), "Table", "Stop", "flush pending writes")
	}

	if stopErr := t.watcher.Stop(); stopErr != nil {
		t.logger.Debug("KV watcher stop failed", "error", stopErr)
	}
	t.cancel()
	t.watchWG.Wait()
	return err
}

// Ready is closed once the bucket contents have been loaded.
func (t *Table) Ready() <-chan struct{} {
	return t.ready
}

// tick returns a change instant strictly greater than every instant
// handed out before. Caller holds mu.
func (t *Table) tick() int64 {
	n := time.Since(t.epoch).Microseconds() + 1
	if n <= t.last {
		n = t.last + 1
	}
	t.last = n
	return n
}

// Now implements table.Table.
func (t *Table) Now() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := time.Since(t.epoch).Microseconds() + 1
	if n < t.last {
		n = t.last
	}
	t.last = n
	return n
}

// Topic implements table.Table.
func (t *Table) Topic(path string) table.Topic {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.topicLocked(path)
}

func (t *Table) topicLocked(path string) *topic {
	tp, ok := t.topics[path]
	if !ok {
		tp = &topic{tbl: t, path: path, key: encodeKey(path)}
		t.topics[path] = tp
		t.keys[tp.key] = path
	}
	return tp
}

// Exists implements table.Table.
func (t *Table) Exists(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	tp, ok := t.topics[path]
	return ok && tp.declared
}

// Remove implements table.Table. The key is deleted from the bucket
// asynchronously.
func (t *Table) Remove(path string) {
	t.mu.Lock()
	tp, ok := t.topics[path]
	if ok {
		tp.removed = true
		delete(t.topics, path)
		delete(t.keys, tp.key)
		t.pending[tp.key] = pendingOp{delete: true}
	}
	t.mu.Unlock()

	if ok {
		t.signal()
		t.logger.Debug("Removed topic", "path", path)
	}
}

// AddListener implements table.Table. Listeners see local and remote
// changes.
func (t *Table) AddListener(fn func(table.Change)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	t.listeners[t.nextID] = fn
	return t.nextID
}

// RemoveListener implements table.Table.
func (t *Table) RemoveListener(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners, id)
}

// Paths returns the declared topic paths.
func (t *Table) Paths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	paths := make([]string, 0, len(t.topics))
	for p, tp := range t.topics {
		if tp.declared {
			paths = append(paths, p)
		}
	}
	return paths
}

// snapshotListeners copies the listener set. Caller holds mu.
func (t *Table) snapshotListeners() []func(table.Change) {
	out := make([]func(table.Change), 0, len(t.listeners))
	for _, fn := range t.listeners {
		out = append(out, fn)
	}
	return out
}

func (t *Table) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Table) flushLoop() {
	defer t.flushWG.Done()
	for {
		select {
		case <-t.wake:
			t.flush()
		case <-t.done:
			t.flush()
			return
		}
	}
}

// flush sends every pending operation to the bucket.
func (t *Table) flush() {
	t.mu.Lock()
	ops := t.pending
	if len(ops) == 0 {
		t.mu.Unlock()
		return
	}
	t.pending = make(map[string]pendingOp)
	for key, op := range ops {
		if op.delete {
			t.ownDeletes[key]++
			continue
		}
		sent := append(t.inflight[key], op.data)
		if len(sent) > maxInflight {
			sent = sent[len(sent)-maxInflight:]
		}
		t.inflight[key] = sent
	}
	t.mu.Unlock()

	for key, op := range ops {
		ctx, cancel := context.WithTimeout(context.Background(), t.publishTimeout)
		var err error
		if op.delete {
			err = t.bucket.Delete(ctx, key)
		} else {
			_, err = t.bucket.Put(ctx, key, op.data)
		}
		cancel()

		if err != nil {
			t.logger.Warn("KV publish failed", "key", key, "delete", op.delete, "error", err)
			t.forget(key, op)
			t.recordPublish("error")
			continue
		}
		t.recordPublish("ok")
	}
}

// forget drops the echo bookkeeping of a failed operation.
func (t *Table) forget(key string, op pendingOp) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if op.delete {
		if t.ownDeletes[key]--; t.ownDeletes[key] <= 0 {
			delete(t.ownDeletes, key)
		}
		return
	}
	sent := t.inflight[key]
	for i := len(sent) - 1; i >= 0; i-- {
		if bytes.Equal(sent[i], op.data) {
			t.inflight[key] = append(sent[:i:i], sent[i+1:]...)
			break
		}
	}
}

func (t *Table) recordPublish(status string) {
	if t.metrics != nil {
		t.metrics.RecordNATSPublish(status)
	}
}

func (t *Table) watchLoop() {
	defer t.watchWG.Done()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("KV watcher panic recovered", "panic", r)
		}
	}()

	synced := false
	for entry := range t.watcher.Updates() {
		if entry == nil {
			// The watcher sends nil once the initial values are delivered.
			if !synced {
				synced = true
				close(t.ready)
			}
			continue
		}
		t.apply(entry)
	}
	if !synced {
		close(t.ready)
	}
}

// apply merges one bucket entry into local state.
func (t *Table) apply(entry jetstream.KeyValueEntry) {
	switch entry.Operation() {
	case jetstream.KeyValuePut:
		t.applyPut(entry.Key(), entry.Value())
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		t.applyDelete(entry.Key())
	}
}

func (t *Table) applyPut(key string, data []byte) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.isEcho(key, data) {
		t.mu.Unlock()
		return
	}

	path, typ, v, err := decode(data)
	if err != nil {
		t.mu.Unlock()
		t.logger.Warn("Ignoring undecodable KV entry", "key", key, "error", err)
		return
	}

	if want := encodeKey(path); want != key {
		t.mu.Unlock()
		t.logger.Warn("Ignoring KV entry stored under a foreign key", "key", key, "path", path, "expected", want)
		return
	}

	tp := t.topicLocked(path)
	if tp.declared && tp.typ != typ {
		t.mu.Unlock()
		t.logger.Warn("Ignoring KV entry with conflicting type",
			"path", path, "type", typ.String(), "declared", tp.typ.String())
		return
	}
	if bytes.Equal(tp.encoded, data) {
		t.mu.Unlock()
		return
	}

	tp.typ = typ
	tp.declared = true
	tp.value = v
	tp.hasValue = true
	tp.encoded = data
	tp.lastChange = t.tick()
	change := table.Change{Path: path, Type: typ, Value: v, Instant: tp.lastChange}
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.RecordNATSRemote()
	}
	for _, fn := range listeners {
		fn(change)
	}
}

// isEcho reports whether data is one of our own puts coming back, and
// drops it and anything sent before it from the inflight list. Caller
// holds mu.
func (t *Table) isEcho(key string, data []byte) bool {
	sent := t.inflight[key]
	for i, b := range sent {
		if bytes.Equal(b, data) {
			if rest := sent[i+1:]; len(rest) > 0 {
				t.inflight[key] = rest
			} else {
				delete(t.inflight, key)
			}
			return true
		}
	}
	return false
}

func (t *Table) applyDelete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := t.ownDeletes[key]; n > 0 {
		if n == 1 {
			delete(t.ownDeletes, key)
		} else {
			t.ownDeletes[key] = n - 1
		}
		return
	}

	path, ok := t.keys[key]
	if !ok {
		return
	}
	// Another writer deleted the key: the topic goes back to undeclared
	// and open handles keep working.
	tp := t.topics[path]
	tp.declared = false
	tp.hasValue = false
	tp.value = nil
	tp.encoded = nil
	tp.lastChange = 0
	t.logger.Debug("Topic deleted remotely", "path", path)
}

type topic struct {
	tbl  *Table
	path string
	key  string

	// guarded by tbl.mu
	typ        table.Type
	declared   bool
	removed    bool
	value      any
	hasValue   bool
	encoded    []byte
	lastChange int64
}

func (tp *topic) Path() string { return tp.path }

func (tp *topic) Type() (table.Type, bool) {
	tp.tbl.mu.Lock()
	defer tp.tbl.mu.Unlock()
	return tp.typ, tp.declared
}

// bind checks typ against the declared type. Caller holds tbl.mu.
func (tp *topic) bind(typ table.Type, declare bool) error {
	if tp.removed {
		return table.ErrRemoved
	}
	if tp.declared && tp.typ != typ {
		return fmt.Errorf("%w: %q is %s, not %s", table.ErrTypeMismatch, tp.path, tp.typ, typ)
	}
	if declare && !tp.declared {
		tp.typ = typ
		tp.declared = true
	}
	return nil
}

func (tp *topic) Publish(typ table.Type) (table.Publisher, error) {
	tp.tbl.mu.Lock()
	defer tp.tbl.mu.Unlock()

	if err := tp.bind(typ, true); err != nil {
		return nil, err
	}
	return &publisher{topic: tp, typ: typ}, nil
}

func (tp *topic) Subscribe(typ table.Type, def any) (table.Subscriber, error) {
	if def == nil {
		def = typ.Zero()
	}
	if err := typ.Check(def); err != nil {
		return nil, err
	}

	tp.tbl.mu.Lock()
	defer tp.tbl.mu.Unlock()

	if err := tp.bind(typ, false); err != nil {
		return nil, err
	}
	return &subscriber{topic: tp, typ: typ, def: table.Copy(def)}, nil
}

type publisher struct {
	topic *topic
	typ   table.Type
}

func (p *publisher) Set(v any) error {
	if err := p.typ.Check(v); err != nil {
		return err
	}
	v = table.Copy(v)
	data, err := encode(p.topic.path, p.typ, v)
	if err != nil {
		return err
	}

	t := p.topic.tbl
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if p.topic.removed {
		t.mu.Unlock()
		return table.ErrRemoved
	}
	if !p.topic.declared {
		// Deleted by another writer since this handle was opened.
		p.topic.typ = p.typ
		p.topic.declared = true
	} else if p.topic.typ != p.typ {
		t.mu.Unlock()
		return fmt.Errorf("%w: %q is %s, not %s", table.ErrTypeMismatch, p.topic.path, p.topic.typ, p.typ)
	}
	p.topic.value = v
	p.topic.hasValue = true
	p.topic.encoded = data
	p.topic.lastChange = t.tick()
	t.pending[p.topic.key] = pendingOp{data: data}
	change := table.Change{Path: p.topic.path, Type: p.typ, Value: v, Instant: p.topic.lastChange}
	listeners := t.snapshotListeners()
	t.mu.Unlock()

	t.signal()
	for _, fn := range listeners {
		fn(change)
	}
	return nil
}

func (p *publisher) Close() {}

type subscriber struct {
	topic *topic
	typ   table.Type
	def   any
}

func (s *subscriber) Get() any {
	s.topic.tbl.mu.Lock()
	defer s.topic.tbl.mu.Unlock()

	if !s.topic.hasValue || s.topic.typ != s.typ {
		return table.Copy(s.def)
	}
	return table.Copy(s.topic.value)
}

func (s *subscriber) LastChange() int64 {
	s.topic.tbl.mu.Lock()
	defer s.topic.tbl.mu.Unlock()

	if s.topic.typ != s.typ {
		return 0
	}
	return s.topic.lastChange
}

func (s *subscriber) Close() {}
