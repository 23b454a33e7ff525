// Package datalog records every table change to a JSON lines file.
package datalog

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c360/turbologger/errors"
	"github.com/c360/turbologger/metric"
	"github.com/c360/turbologger/table"
)

// Record is one line of the log.
type Record struct {
	Session string `json:"session"`
	Instant int64  `json:"instant"`
	Path    string `json:"path"`
	Type    string `json:"type"`
	Value   any    `json:"value"`
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics counts written records in m.
func WithMetrics(m *metric.Metrics) Option {
	return func(l *Log) {
		l.metrics = m
	}
}

// WithFlushInterval sets how often buffered records are written.
func WithFlushInterval(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.flushInterval = d
		}
	}
}

// WithBufferSize sets how many records are buffered before a write.
func WithBufferSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.bufferSize = n
		}
	}
}

// Log mirrors the changes of a table into a file. The table's change
// listener only encodes and buffers records; file writes happen on the
// flush goroutine.
type Log struct {
	tbl           table.Table
	logger        *slog.Logger
	metrics       *metric.Metrics
	flushInterval time.Duration
	bufferSize    int

	// File handling
	file   *os.File
	path   string
	fileMu sync.Mutex

	buffer   [][]byte
	bufferMu sync.Mutex
	full     chan struct{} // buffer reached bufferSize

	// Lifecycle management
	lifecycleMu sync.Mutex
	running     bool
	session     string
	listenerID  int
	mirroring   bool
	shutdown    chan struct{}
	wg          sync.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
}

// New creates a Log for tbl. Nothing is recorded until Start.
func New(tbl table.Table, opts ...Option) *Log {
	l := &Log{
		tbl:           tbl,
		logger:        slog.Default(),
		flushInterval: time.Second,
		bufferSize:    100,
		full:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Split interprets a log location. An existing directory, or a path ending
// in a slash, is a directory and the file name is left empty. Anything else
// is a file inside its parent directory.
func Split(location string) (dir, file string) {
	if strings.HasSuffix(location, "/") {
		return location, ""
	}
	if info, err := os.Stat(location); err == nil && info.IsDir() {
		return location, ""
	}
	return filepath.Dir(location), filepath.Base(location)
}

// Enable starts logging to location, as split by Split, and mirrors table
// changes into it.
func (l *Log) Enable(location string) error {
	dir, file := Split(location)
	if err := l.Start(dir, file); err != nil && !stderrors.Is(err, errors.ErrAlreadyStarted) {
		return err
	}
	return l.SetMirror(true)
}

// Disable stops mirroring table changes. The file stays open.
func (l *Log) Disable() {
	_ = l.SetMirror(false)
}

// Start opens dir/file for appending and starts the flush loop. An empty
// file name gets a timestamped one.
func (l *Log) Start(dir, file string) error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Log", "Start", "check running state")
	}

	if dir == "" {
		dir = "."
	}
	if file == "" {
		file = fmt.Sprintf("turbologger_%s.jsonl", time.Now().UTC().Format("20060102_150405"))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WrapFatal(err, "Log", "Start", "create log directory")
	}

	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.WrapFatal(err, "Log", "Start", "open log file")
	}

	l.fileMu.Lock()
	l.file = f
	l.path = path
	l.fileMu.Unlock()

	l.session = uuid.NewString()
	l.shutdown = make(chan struct{})
	l.running = true

	l.wg.Add(1)
	go l.flushLoop(l.shutdown)

	l.logger.Info("Data log started", "path", path, "session", l.session)
	return nil
}

// SetMirror attaches or detaches the table change listener. Enabling
// requires a started log.
func (l *Log) SetMirror(on bool) error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if on == l.mirroring {
		return nil
	}
	if !on {
		l.tbl.RemoveListener(l.listenerID)
		l.mirroring = false
		l.logger.Debug("Data log mirroring disabled", "path", l.path)
		return nil
	}
	if !l.running {
		return errors.WrapInvalid(errors.ErrNotStarted, "Log", "SetMirror", "log not started")
	}

	session := l.session
	l.listenerID = l.tbl.AddListener(func(c table.Change) {
		l.handleChange(session, c)
	})
	l.mirroring = true
	l.logger.Debug("Data log mirroring enabled", "path", l.path)
	return nil
}

// Mirroring reports whether table changes are being recorded.
func (l *Log) Mirroring() bool {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	return l.mirroring
}

// Session returns the identifier stamped on records of the current run.
func (l *Log) Session() string {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	return l.session
}

// Path returns the file being written, or "" before Start.
func (l *Log) Path() string {
	l.fileMu.Lock()
	defer l.fileMu.Unlock()
	return l.path
}

// Written returns the number of records written to the file.
func (l *Log) Written() int64 {
	return l.written.Load()
}

// Stop detaches from the table, writes buffered records and closes the
// file. It is safe to call more than once.
func (l *Log) Stop(timeout time.Duration) error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if !l.running {
		return nil
	}
	if l.mirroring {
		l.tbl.RemoveListener(l.listenerID)
		l.mirroring = false
	}

	close(l.shutdown)
	waitCh := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(waitCh)
	}()

	var err error
	select {
	case <-waitCh:
	case <-time.After(timeout):
		err = errors.WrapTransient(fmt.Errorf("shutdown timeout after %v", timeout), "Log", "Stop", "shutdown")
	}

	l.flush()

	l.fileMu.Lock()
	if l.file != nil {
		if closeErr := l.file.Close(); closeErr != nil {
			l.logger.Warn("Failed to close data log", "error", closeErr, "path", l.path)
		}
		l.file = nil
	}
	l.fileMu.Unlock()

	l.running = false
	l.logger.Info("Data log stopped",
		"path", l.path,
		"written", l.written.Load(),
		"dropped", l.dropped.Load())
	return err
}

func (l *Log) handleChange(session string, c table.Change) {
	line, err := json.Marshal(Record{
		Session: session,
		Instant: c.Instant,
		Path:    c.Path,
		Type:    c.Type.String(),
		Value:   c.Value,
	})
	if err != nil {
		l.dropped.Add(1)
		l.logger.Warn("Failed to encode data log record", "path", c.Path, "error", err)
		return
	}

	l.bufferMu.Lock()
	l.buffer = append(l.buffer, line)
	shouldFlush := len(l.buffer) >= l.bufferSize
	l.bufferMu.Unlock()

	if shouldFlush {
		select {
		case l.full <- struct{}{}:
		default:
		}
	}
}

func (l *Log) flushLoop(shutdown <-chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			l.flush()
		case <-l.full:
			l.flush()
		}
	}
}

// flush writes buffered records to the file.
func (l *Log) flush() {
	l.bufferMu.Lock()
	if len(l.buffer) == 0 {
		l.bufferMu.Unlock()
		return
	}
	lines := l.buffer
	l.buffer = make([][]byte, 0, l.bufferSize)
	l.bufferMu.Unlock()

	l.fileMu.Lock()
	defer l.fileMu.Unlock()

	if l.file == nil {
		l.dropped.Add(int64(len(lines)))
		l.logger.Error("Data log file closed during flush", "records_lost", len(lines))
		return
	}

	for _, line := range lines {
		if _, err := l.file.Write(append(line, '\n')); err != nil {
			l.dropped.Add(1)
			l.logger.Error("Failed to write data log record", "error", err)
			continue
		}
		l.written.Add(1)
		if l.metrics != nil {
			l.metrics.RecordDatalog()
		}
	}
}
