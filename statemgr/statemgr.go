package statemgr

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Exit codes passed to the shutdown handler on fatal conditions.
const (
	// ExitRegistrationFailure means the bookie could not register
	// itself with the metadata store and cannot safely keep running,
	// because the rest of the cluster would consider it unavailable.
	ExitRegistrationFailure = 4

	// ExitBookieError covers fatal state errors, such as a required
	// read-only transition when read-only mode is disabled.
	ExitBookieError = 5
)

// ErrClosed is returned by operations submitted after Close.
var ErrClosed = errors.New("state manager is closed")

// ErrRegistration wraps metadata store registration failures.
var ErrRegistration = errors.New("bookie registration failed")

// RegistrationManager advertises a bookie's availability in the shared
// metadata store. A bookie is registered under either a writable or a
// read-only marker, never both.
type RegistrationManager interface {
	Register(ctx context.Context, bookieID string, readOnly bool) error
	Unregister(ctx context.Context, bookieID string, readOnly bool) error
}

// ShutdownHandler terminates (or begins terminating) the process. The
// state manager fires it on fatal conditions and does not wait for it.
type ShutdownHandler interface {
	Shutdown(exitCode int)
}

type Config struct {
	// AdvertisedAddress is the host other cluster members use to
	// reach this bookie. Empty means use the machine hostname.
	AdvertisedAddress string
	Port              int

	// StatusDirs are the directories the persisted bookie status is
	// mirrored into.
	StatusDirs []string

	PersistStatusEnabled bool
	ReadOnlyModeEnabled  bool

	// RegistrationTimeout bounds each metadata store call made from
	// the state worker.
	RegistrationTimeout time.Duration
}

// StateManager owns the authoritative lifecycle state of a bookie:
// running, shutting down, read-only or writable, and registered with
// the metadata store. Accessors read atomic flags and are safe from
// any goroutine. All state-changing operations are serialized on a
// single worker goroutine and executed one at a time in submission
// order, so concurrent read-only/writable toggles can never
// interleave.
type StateManager struct {
	conf     Config
	bookieID string

	// rm is nil when registration is disabled. Every call site
	// treats nil as unconditional no-op success.
	rm RegistrationManager

	status *Status

	running                     atomic.Bool
	shuttingDown                atomic.Bool
	forceReadOnly               atomic.Bool
	registered                  atomic.Bool
	highPriorityWritesAvailable atomic.Bool

	// mu guards the operation queue and the shutdown handler.
	mu         sync.Mutex
	cond       *sync.Cond
	pending    []*task
	closed     bool
	handler    ShutdownHandler
	workerDone chan struct{}
}

type task struct {
	fn  func() error
	fut *Future
}

// Future is the completion handle for a queued state operation.
type Future struct {
	done chan struct{}
	err  error
}

// Done is closed once the operation has finished executing.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the operation completes or ctx is done, and
// returns the operation's error.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return f.err
	}
}

func completedFuture(err error) *Future {
	fut := &Future{done: make(chan struct{}), err: err}
	close(fut.done)
	return fut
}

// New resolves the bookie identity and starts the state worker. A nil
// RegistrationManager disables registration entirely, leaving the
// manager purely in-memory.
func New(conf Config, rm RegistrationManager) (*StateManager, error) {
	bookieID, err := resolveBookieID(conf.AdvertisedAddress, conf.Port)
	if err != nil {
		return nil, err
	}

	if conf.RegistrationTimeout <= 0 {
		conf.RegistrationTimeout = 10 * time.Second
	}

	m := &StateManager{
		conf:       conf,
		bookieID:   bookieID,
		rm:         rm,
		status:     NewStatus(),
		workerDone: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)
	m.highPriorityWritesAvailable.Store(true)

	go m.runWorker()

	return m, nil
}

// BookieID returns the identity this bookie registers under.
func (m *StateManager) BookieID() string { return m.bookieID }

// InitState seeds the persisted status and marks the manager running.
// It must be called exactly once, before any transition is submitted.
func (m *StateManager) InitState() {
	if m.forceReadOnly.Load() {
		m.status.SetToReadOnlyMode()
	} else if m.conf.PersistStatusEnabled {
		m.status.ReadFromDirectories(m.conf.StatusDirs)
	}
	m.running.Store(true)
}

func (m *StateManager) IsRunning() bool      { return m.running.Load() }
func (m *StateManager) IsShuttingDown() bool { return m.shuttingDown.Load() }

func (m *StateManager) IsReadOnly() bool {
	return m.forceReadOnly.Load() || m.status.IsReadOnlyMode()
}

// IsRegistered reports whether the last registration attempt with the
// metadata store succeeded. Diagnostic only.
func (m *StateManager) IsRegistered() bool { return m.registered.Load() }

func (m *StateManager) IsAvailableForHighPriorityWrites() bool {
	return m.highPriorityWritesAvailable.Load()
}

func (m *StateManager) SetHighPriorityWritesAvailability(available bool) {
	if m.highPriorityWritesAvailable.Load() && !available {
		log.Printf("Disabling high priority writes on this bookie")
	} else if !m.highPriorityWritesAvailable.Load() && available {
		log.Printf("Enabling high priority writes on this bookie")
	}
	m.highPriorityWritesAvailable.Store(available)
}

// StatusGauge samples the bookie's availability as seen by the
// cluster: 1 writable, 0 read-only, -1 not registered. Computed fresh
// on every call.
func (m *StateManager) StatusGauge() int {
	if !m.registered.Load() {
		return -1
	}
	if m.forceReadOnly.Load() || m.status.IsReadOnlyMode() {
		return 0
	}
	return 1
}

// ForceToShuttingDown marks the bookie as shutting down. Irreversible;
// all subsequent transitions become no-ops.
func (m *StateManager) ForceToShuttingDown() {
	m.shuttingDown.Store(true)
}

// ForceToReadOnly forces the bookie read-only regardless of persisted
// status. Cleared only by a restart.
func (m *StateManager) ForceToReadOnly() {
	m.forceReadOnly.Store(true)
}

// ForceToUnregistered clears the registered flag without talking to
// the metadata store, for when an external actor (e.g. a lost metadata
// store session) learns the registration is no longer valid.
func (m *StateManager) ForceToUnregistered() {
	m.registered.Store(false)
}

// SetShutdownHandler wires the process-level shutdown trigger. It must
// be set before any operation that can hit a fatal path runs; the
// manager does not guard against a nil handler.
func (m *StateManager) SetShutdownHandler(h ShutdownHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *StateManager) GetShutdownHandler() ShutdownHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// RegisterBookie registers the bookie with the metadata store under
// its current read-only/writable state. If propagateError is true a
// registration failure is returned through the future; otherwise it is
// fatal and the shutdown handler fires with ExitRegistrationFailure.
func (m *StateManager) RegisterBookie(propagateError bool) *Future {
	return m.submit(func() error {
		err := m.doRegisterBookie(m.IsReadOnly())
		if err != nil {
			if propagateError {
				return err
			}
			log.Printf("Failed to register bookie with the metadata store, shutting down: %v", err)
			m.GetShutdownHandler().Shutdown(ExitRegistrationFailure)
		}
		return nil
	})
}

// TransitionToWritableMode enqueues a transition to writable mode.
func (m *StateManager) TransitionToWritableMode() *Future {
	return m.submit(func() error {
		m.doTransitionToWritableMode()
		return nil
	})
}

// TransitionToReadOnlyMode enqueues a transition to read-only mode.
func (m *StateManager) TransitionToReadOnlyMode() *Future {
	return m.submit(func() error {
		m.doTransitionToReadOnlyMode()
		return nil
	})
}

// Close stops the manager. Operations already submitted are drained;
// later submissions complete immediately with ErrClosed.
func (m *StateManager) Close() {
	m.running.Store(false)
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.cond.Signal()
	}
	m.mu.Unlock()
	<-m.workerDone
}

func (m *StateManager) submit(fn func() error) *Future {
	fut := &Future{done: make(chan struct{})}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return completedFuture(ErrClosed)
	}
	m.pending = append(m.pending, &task{fn: fn, fut: fut})
	m.cond.Signal()
	m.mu.Unlock()
	return fut
}

// runWorker drains the operation queue one task at a time. Each task
// runs to completion before the next starts; a fallback submitted from
// inside a task becomes a new queue entry, never a recursive call.
func (m *StateManager) runWorker() {
	for {
		m.mu.Lock()
		for len(m.pending) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.pending) == 0 {
			m.mu.Unlock()
			close(m.workerDone)
			return
		}
		t := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		t.fut.err = t.fn()
		close(t.fut.done)
	}
}

// doRegisterBookie performs one registration attempt. The registered
// flag is reset before the attempt and only set on success.
func (m *StateManager) doRegisterBookie(readOnly bool) error {
	if m.rm == nil {
		log.Printf("Registration is disabled, skipping metadata store registration")
		return nil
	}

	m.registered.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), m.conf.RegistrationTimeout)
	defer cancel()

	if err := m.rm.Register(ctx, m.bookieID, readOnly); err != nil {
		return fmt.Errorf("%w: bookie %s: %w", ErrRegistration, m.bookieID, err)
	}

	m.registered.Store(true)
	return nil
}

func (m *StateManager) doTransitionToWritableMode() {
	if m.shuttingDown.Load() || m.forceReadOnly.Load() {
		return
	}

	if !m.status.SetToWritableMode() {
		// Already writable.
		return
	}

	log.Printf("Transitioning bookie to writable mode, serving read and write requests")
	if m.conf.PersistStatusEnabled {
		m.status.WriteToDirectories(m.conf.StatusDirs)
	}

	if m.rm == nil {
		return
	}

	if err := m.doRegisterBookie(false); err != nil {
		log.Printf("Failed to register bookie as writable, falling back to read-only: %v", err)
		m.TransitionToReadOnlyMode()
		return
	}

	// Clear the stale read-only marker. If this fails, clients
	// already see the bookie as writable, so just log it.
	ctx, cancel := context.WithTimeout(context.Background(), m.conf.RegistrationTimeout)
	defer cancel()
	if err := m.rm.Unregister(ctx, m.bookieID, true); err != nil {
		log.Printf("Failed to remove stale read-only registration for bookie %s: %v", m.bookieID, err)
	}
}

func (m *StateManager) doTransitionToReadOnlyMode() {
	if m.shuttingDown.Load() {
		return
	}

	if !m.status.SetToReadOnlyMode() {
		// Already read-only.
		return
	}

	if !m.conf.ReadOnlyModeEnabled {
		log.Printf("Read-only mode is disabled (enable with -readonly-enabled), shutting down bookie")
		m.GetShutdownHandler().Shutdown(ExitBookieError)
		return
	}

	log.Printf("Transitioning bookie to read-only mode, serving only read requests")
	if m.conf.PersistStatusEnabled {
		m.status.WriteToDirectories(m.conf.StatusDirs)
	}

	if m.rm == nil {
		return
	}

	if err := m.doRegisterBookie(true); err != nil {
		// No lesser state to fall back to.
		log.Printf("Failed to register bookie as read-only, shutting down: %v", err)
		m.GetShutdownHandler().Shutdown(ExitBookieError)
	}
}
