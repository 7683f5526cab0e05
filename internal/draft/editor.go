package draft

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Options struct {
	Schema      *Schema
	Saver       Saver
	Derivers    []DeriverSpec
	QuietWindow time.Duration
}

type editorState int

const (
	editorOpen editorState = iota
	editorFrozen
	editorClosed
)

// Editor owns one open draft: its document, reconciler, derivers and
// autosave scheduler. All edits go through Section.
type Editor struct {
	id       string
	schema   *Schema
	doc      *Document
	rec      *Reconciler
	derivers *Derivers
	autosave *Scheduler

	// gate is held shared by every edit and exclusively to change state.
	gate  sync.RWMutex
	state editorState

	closeOnce sync.Once
}

type discardSaver struct{}

func (discardSaver) Save(context.Context, string, map[string]any) {}

func NewEditor(id string, doc *Document, opts Options) *Editor {
	if doc == nil {
		doc = NewDocument(nil)
	}
	saver := opts.Saver
	if saver == nil {
		saver = discardSaver{}
	}
	return &Editor{
		id:       id,
		schema:   opts.Schema,
		doc:      doc,
		rec:      NewReconciler(doc, opts.Schema),
		derivers: NewDerivers(doc, opts.Derivers),
		autosave: NewScheduler(id, doc, saver, opts.QuietWindow),
	}
}

// Start settles hydrated groups and then enables autosave, so the settle
// itself is not written back.
func (e *Editor) Start() error {
	if err := e.rec.SettleAll(); err != nil {
		return fmt.Errorf("settle draft %s: %w", e.id, err)
	}
	e.autosave.Activate()
	return nil
}

func (e *Editor) ID() string { return e.id }
func (e *Editor) Document() *Document { return e.doc }
func (e *Editor) Snapshot() map[string]any { return e.doc.Snapshot() }
func (e *Editor) Autosave() SchedulerState { return e.autosave.State() }
func (e *Editor) Pending() []PendingTruncation { return e.rec.Pending() }

func (e *Editor) Section(name string) (*SectionController, error) {
	sec, ok := e.schema.Section(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
	return &SectionController{editor: e, section: sec}, nil
}

// SetIdentity writes a record-level field such as organization or status.
func (e *Editor) SetIdentity(field string, value any) error {
	if _, ok := findField(e.schema.Identity, field); !ok {
		return fmt.Errorf("%w: %s", ErrInvalidPath, field)
	}
	return e.edit(func() error { return e.doc.Set(field, value) })
}

func (e *Editor) stateErr() error {
	switch e.state {
	case editorFrozen:
		return fmt.Errorf("%w: %s", ErrSubmitting, e.id)
	case editorClosed:
		return fmt.Errorf("%w: %s", ErrClosed, e.id)
	}
	return nil
}

// Err reports why the editor does not accept edits, or nil.
func (e *Editor) Err() error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.stateErr()
}

func (e *Editor) edit(fn func() error) error {
	e.gate.RLock()
	defer e.gate.RUnlock()
	if err := e.stateErr(); err != nil {
		return err
	}
	return fn()
}

// Freeze waits for edits in progress and rejects new ones with ErrSubmitting
// until Thaw.
func (e *Editor) Freeze() error {
	e.gate.Lock()
	defer e.gate.Unlock()
	if err := e.stateErr(); err != nil {
		return err
	}
	e.state = editorFrozen
	return nil
}

func (e *Editor) Thaw() {
	e.gate.Lock()
	defer e.gate.Unlock()
	if e.state == editorFrozen {
		e.state = editorOpen
	}
}

// Wait blocks until in-flight lookups have been applied or discarded.
func (e *Editor) Wait() { e.derivers.Wait() }

// Flush writes the current state to the local draft store now.
func (e *Editor) Flush(ctx context.Context) { e.autosave.Flush(ctx) }

// Close cancels in-flight lookups, writes the final state unless discard is
// set, and detaches autosave. Later edits fail with ErrClosed.
func (e *Editor) Close(ctx context.Context, discard bool) {
	e.gate.Lock()
	e.state = editorClosed
	e.gate.Unlock()
	e.closeOnce.Do(func() {
		e.derivers.Close()
		if !discard {
			e.autosave.Flush(ctx)
		}
		e.autosave.Stop()
	})
}
