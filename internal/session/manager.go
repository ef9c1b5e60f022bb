package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/entl/termstate/internal/console"
	"github.com/entl/termstate/internal/logfile"
	"github.com/entl/termstate/internal/metrics"
	"github.com/entl/termstate/internal/storage"
)

var (
	// ErrNotFound is returned for handles with no registered record.
	ErrNotFound = errors.New("console process not found")
	// ErrHandleInUse is returned when a supplied handle is already registered.
	ErrHandleInUse = errors.New("console handle already in use")
	// ErrNotReady is returned by Create before Restore or MarkReady ran.
	ErrNotReady = errors.New("session not restored yet")
	// ErrRestoreFailed is returned by Save after the saved metadata could not
	// be read. The unreadable payload still names the owners of the log
	// files, so it is never overwritten.
	ErrRestoreFailed = errors.New("console metadata could not be restored")
)

// Options configures a Manager.
type Options struct {
	Factory *console.Factory
	Logs    *logfile.Store
	Store   storage.MetadataStore
	Logger  *zap.Logger
	Metrics *metrics.Metrics // optional

	// MaxOutputLines is the cap given to created records that set none.
	// Pass a negative cap to Create for an unbounded buffer.
	MaxOutputLines int
}

// Manager manages the console process records of one session.
type Manager struct {
	factory  *console.Factory
	logs     *logfile.Store
	store    storage.MetadataStore
	logger   *zap.Logger
	metrics  *metrics.Metrics
	maxLines int

	mu        sync.RWMutex
	procs     map[string]*Process
	order     []string
	ready      bool
	restoreErr error
	lastSaved  []byte

	saveMu sync.Mutex
}

// NewManager creates a new manager.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		factory:  opts.Factory,
		logs:     opts.Logs,
		store:    opts.Store,
		logger:   logger,
		metrics:  opts.Metrics,
		maxLines: opts.MaxOutputLines,
		procs:    make(map[string]*Process),
	}
}

// Restore loads the saved records, registers them, and deletes every log
// file that no restored record owns. It must run before any record is
// created; afterwards the manager accepts Create calls. When the metadata
// cannot be read nothing is reaped, and Save refuses until a later Restore
// succeeds.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return 0, fmt.Errorf("session already restored")
	}

	data, err := m.store.Load(ctx)
	if err != nil {
		m.restoreErr = err
		return 0, fmt.Errorf("failed to load console metadata: %w", err)
	}
	infos, err := m.factory.DecodeAll(data)
	if err != nil {
		m.restoreErr = err
		return 0, err
	}
	m.restoreErr = nil

	for _, info := range infos {
		info.EnsureHandle()
		h := info.Handle()
		if reason := m.rejectRestored(h); reason != "" {
			m.logger.Warn("skipping restored record", zap.String("handle", h), zap.String("reason", reason))
			if m.metrics != nil {
				m.metrics.RecordsSkipped.Inc()
			}
			continue
		}
		m.register(info)
	}
	restored := len(m.order)
	if m.metrics != nil {
		m.metrics.RecordsRestored.Add(float64(restored))
	}

	deleted, err := m.logs.DeleteOrphaned(func(h string) bool {
		_, ok := m.procs[h]
		return ok
	})
	if len(deleted) > 0 {
		m.logger.Info("deleted orphaned console logs", zap.Strings("handles", deleted))
		if m.metrics != nil {
			m.metrics.OrphansDeleted.Add(float64(len(deleted)))
		}
	}
	if err != nil {
		// Remaining orphans are retried on the next restore.
		m.logger.Warn("failed to delete some orphaned logs", zap.Error(err))
	}

	m.ready = true
	m.logger.Info("console session restored", zap.Int("records", restored))
	return restored, nil
}

// rejectRestored reports why a restored handle cannot be registered, or ""
// if it can. Callers hold m.mu.
func (m *Manager) rejectRestored(h string) string {
	if !logfile.ValidHandle(h) {
		return "invalid handle"
	}
	if _, dup := m.procs[h]; dup {
		return "duplicate handle"
	}
	return ""
}

// MarkReady lets a session that has nothing to restore create records
// without running Restore. After a failed Restore the session accepts
// records but Save keeps refusing with ErrRestoreFailed.
func (m *Manager) MarkReady() {
	m.mu.Lock()
	m.ready = true
	m.mu.Unlock()
}

// register adds a record. Callers hold m.mu.
func (m *Manager) register(info *console.ProcessInfo) *Process {
	p := &Process{
		Handle:    info.Handle(),
		CreatedAt: time.Now(),
		info:      info,
	}
	m.procs[p.Handle] = p
	m.order = append(m.order, p.Handle)
	if m.metrics != nil {
		m.metrics.ProcessesActive.Set(float64(len(m.order)))
	}
	return p
}

// Create registers a new record, generating a handle unless one is supplied.
func (m *Manager) Create(opts console.Options) (*Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ready {
		return nil, ErrNotReady
	}

	if opts.MaxOutputLines == 0 {
		opts.MaxOutputLines = m.maxLines
	}
	info := m.factory.New(opts)
	info.EnsureHandle()
	h := info.Handle()
	if !logfile.ValidHandle(h) {
		return nil, fmt.Errorf("%w: %q", logfile.ErrInvalidHandle, h)
	}
	if _, exists := m.procs[h]; exists {
		if opts.Handle == "" {
			panic(fmt.Sprintf("session: handle generator produced duplicate %q", h))
		}
		return nil, fmt.Errorf("%w: %s", ErrHandleInUse, h)
	}

	p := m.register(info)
	m.logger.Debug("console process created",
		zap.String("handle", h),
		zap.String("mode", info.Buffer().Mode().String()))
	return p, nil
}

// Get retrieves a record by handle.
func (m *Manager) Get(handle string) (*Process, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.procs[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return p, nil
}

// List returns all records in creation order.
func (m *Manager) List() []*Process {
	m.mu.RLock()
	defer m.mu.RUnlock()

	procs := make([]*Process, 0, len(m.order))
	for _, h := range m.order {
		procs = append(procs, m.procs[h])
	}
	return procs
}

// Discard unregisters a record and deletes its log file.
func (m *Manager) Discard(handle string) error {
	m.mu.Lock()
	p, ok := m.procs[handle]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	delete(m.procs, handle)
	for i, h := range m.order {
		if h == handle {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.metrics != nil {
		m.metrics.ProcessesActive.Set(float64(len(m.order)))
	}
	m.mu.Unlock()

	return p.Do(func(info *console.ProcessInfo) error {
		return info.DeleteLogFile()
	})
}

// Append adds output to a record.
func (m *Manager) Append(handle, text string) error {
	p, err := m.Get(handle)
	if err != nil {
		return err
	}
	return p.Do(func(info *console.ProcessInfo) error {
		return m.appendLocked(info, text)
	})
}

func (m *Manager) appendLocked(info *console.ProcessInfo, text string) error {
	err := info.AppendOutput(text)
	if m.metrics != nil {
		if err != nil {
			m.metrics.AppendErrors.Inc()
		} else {
			m.metrics.OutputBytes.WithLabelValues(info.Buffer().Mode().String()).Add(float64(len(text)))
		}
	}
	return err
}

// Pump copies process output from r into the record until r is exhausted or
// ctx is cancelled. It is the single writer of the record's buffer.
//
// ctx is checked between reads only; close r to stop a pump blocked in Read.
func (m *Manager) Pump(ctx context.Context, handle string, r io.Reader) error {
	p, err := m.Get(handle)
	if err != nil {
		return err
	}

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			if err := p.Do(func(info *console.ProcessInfo) error {
				return m.appendLocked(info, chunk)
			}); err != nil {
				m.logger.Error("failed to append console output",
					zap.String("handle", handle), zap.Error(err))
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("failed to read console output: %w", readErr)
		}
	}
}

// Exited records the exit status of a record's process.
func (m *Manager) Exited(handle string, code int) error {
	p, err := m.Get(handle)
	if err != nil {
		return err
	}
	m.logger.Info("console process exited", zap.String("handle", handle), zap.Int("exit_code", code))
	return p.Do(func(info *console.ProcessInfo) error {
		info.SetExitCode(code)
		info.SetHasChildProcs(false)
		return nil
	})
}

// Save encodes every record and writes the result to the metadata store
// unless it is identical to the last save. It reports whether it wrote.
func (m *Manager) Save(ctx context.Context) (bool, error) {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	if err := m.failedRestore(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}

	start := time.Now()
	data, err := m.encode()
	if err == nil && bytes.Equal(data, m.lastSavedBytes()) {
		m.observeSave("unchanged", start)
		return false, nil
	}
	if err == nil {
		err = m.store.Save(ctx, data)
	}
	if err != nil {
		m.observeSave("error", start)
		return false, fmt.Errorf("failed to save console metadata: %w", err)
	}

	m.mu.Lock()
	m.lastSaved = data
	m.mu.Unlock()
	m.observeSave("ok", start)
	m.logger.Debug("console metadata saved", zap.Int("bytes", len(data)))
	return true, nil
}

func (m *Manager) failedRestore() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restoreErr
}

func (m *Manager) lastSavedBytes() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSaved
}

// encode holds each record's lock only while that record is serialized.
func (m *Manager) encode() ([]byte, error) {
	procs := m.List()
	objs := make([]map[string]any, 0, len(procs))
	for _, p := range procs {
		p.mu.Lock()
		objs = append(objs, p.info.ToJSON())
		p.mu.Unlock()
	}
	return console.EncodeObjects(objs)
}

func (m *Manager) observeSave(result string, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.SavesTotal.WithLabelValues(result).Inc()
	m.metrics.SaveDuration.Observe(time.Since(start).Seconds())
}

// Close saves the session one last time.
func (m *Manager) Close(ctx context.Context) error {
	_, err := m.Save(ctx)
	return err
}
