package draft

import (
	"context"
	"sync"
	"time"

	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/sirupsen/logrus"
)

// DefaultQuietWindow is how long the scheduler waits after the last change.
const DefaultQuietWindow = 500 * time.Millisecond

// Saver receives autosaved snapshots. Implementations log and swallow their
// own failures.
type Saver interface {
	Save(ctx context.Context, id string, tree map[string]any)
}

type SchedulerState int

const (
	StateSuppressed SchedulerState = iota
	StateActive
)

func (s SchedulerState) String() string {
	if s == StateActive {
		return "active"
	}
	return "suppressed"
}

// Scheduler debounces document changes into local draft writes. It starts
// Suppressed so hydration does not echo back into the store.
type Scheduler struct {
	id    string
	doc   *Document
	saver Saver
	quiet time.Duration

	mu      sync.Mutex
	state   SchedulerState
	timer   *time.Timer
	gen     uint64
	stopped bool

	writeMu     sync.Mutex
	unsubscribe func()
}

func NewScheduler(id string, doc *Document, saver Saver, quiet time.Duration) *Scheduler {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	s := &Scheduler{id: id, doc: doc, saver: saver, quiet: quiet}
	s.unsubscribe = doc.Subscribe(func(Change) { s.Notify() })
	return s
}

// Activate ends the hydration phase; later changes are saved.
func (s *Scheduler) Activate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.state = StateActive
	}
}

func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Notify (re)arms the quiet window. It never blocks on the store.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.state != StateActive {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.quiet, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.mu.Unlock()
	s.write(context.Background())
}

// Flush cancels any armed window and writes the current state now.
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.mu.Unlock()
	s.write(ctx)
}

// Stop detaches the scheduler from its document; an armed window is dropped.
// It returns once a write already in progress has finished, and no write
// starts afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.state = StateSuppressed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.unsubscribe()
	s.writeMu.Lock()
	s.writeMu.Unlock()
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// write takes the snapshot under writeMu so a later write never carries an
// older state than an earlier one.
func (s *Scheduler) write(ctx context.Context) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isStopped() {
		return
	}
	snap := s.doc.Snapshot()
	s.saver.Save(ctx, s.id, snap)
	logger.WithFields(logrus.Fields{"draft": s.id}).Debug("draft autosaved")
}
