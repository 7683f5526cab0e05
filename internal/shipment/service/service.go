package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shipdraft/draft-service/internal/draft"
	"github.com/shipdraft/draft-service/internal/draftstore"
	"github.com/shipdraft/draft-service/internal/shipment"
	"github.com/shipdraft/draft-service/internal/shipment/repository"
	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound    = errors.New("draft not found")
	ErrBackend     = errors.New("backend request failed")
	ErrStorage     = errors.New("file storage failed")
	ErrNotURLField = errors.New("field does not accept an upload")
)

// DefaultLockTTL bounds how long a submit may hold a draft.
const DefaultLockTTL = 30 * time.Second

// Backend is the persisted record store.
type Backend interface {
	Fetch(ctx context.Context, id string) (map[string]any, error)
	Create(ctx context.Context, payload map[string]any) (map[string]any, error)
	Update(ctx context.Context, id string, payload map[string]any) (map[string]any, error)
}

// Uploader stores a file and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
}

type Options struct {
	Backend     Backend
	Store       draftstore.Store
	Locker      draftstore.Locker
	Uploader    Uploader
	Lookups     shipment.Lookups
	QuietWindow time.Duration
	LockTTL     time.Duration
}

// Source tells where an opened draft was hydrated from.
type Source string

const (
	SourceNew     Source = "new"
	SourceLocal   Source = "local"
	SourceBackend Source = "backend"
)

// Draft is the client view of an open draft.
type Draft struct {
	ID        string                    `json:"id"`
	Document  map[string]any            `json:"document"`
	Pending   []draft.PendingTruncation `json:"pending"`
	Persisted bool                      `json:"persisted"`
	Source    Source                    `json:"source"`
	SavedAt   *time.Time                `json:"savedAt,omitempty"`
}

type session struct {
	editor    *draft.Editor
	source    Source
	persisted atomic.Bool
}

// Service keeps one editor per open draft and runs the draft workflow:
// open, edit, save, upload and submit.
type Service struct {
	schema     *draft.Schema
	normalizer draft.Normalizer
	cleaner    *draft.Cleaner
	derivers   []draft.DeriverSpec
	opts       Options

	mu       sync.Mutex
	sessions map[string]*session
	opens    singleflight.Group
}

func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("service: backend is required")
	}
	if opts.Store == nil {
		opts.Store = draftstore.NewMemoryStore()
	}
	if opts.Locker == nil {
		opts.Locker = draftstore.NewMemoryLocker()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	var specs []draft.DeriverSpec
	if opts.Lookups != nil {
		var err error
		if specs, err = shipment.Derivers(opts.Lookups); err != nil {
			return nil, fmt.Errorf("build derivers: %w", err)
		}
	}
	schema := shipment.Schema()
	return &Service{
		schema:     schema,
		normalizer: draft.Normalizer{Schema: schema},
		cleaner:    draft.NewCleaner(schema),
		derivers:   specs,
		opts:       opts,
		sessions:   map[string]*session{},
	}, nil
}

func (s *Service) Schema() *draft.Schema { return s.schema }

func (s *Service) start(id string, doc *draft.Document, source Source, persisted bool) (*session, error) {
	e := draft.NewEditor(id, doc, draft.Options{
		Schema:      s.schema,
		Saver:       s.opts.Store,
		Derivers:    s.derivers,
		QuietWindow: s.opts.QuietWindow,
	})
	if err := e.Start(); err != nil {
		e.Close(context.Background(), true)
		return nil, err
	}
	sess := &session{editor: e, source: source}
	sess.persisted.Store(persisted)
	return sess, nil
}

func (s *Service) register(id string, sess *session) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[id]; ok {
		sess.editor.Close(context.Background(), true)
		return prev
	}
	s.sessions[id] = sess
	return sess
}

func (s *Service) lookup(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Service) unregister(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	return sess, ok
}

func (s *Service) view(ctx context.Context, id string, sess *session) *Draft {
	d := &Draft{
		ID:        id,
		Document:  sess.editor.Snapshot(),
		Pending:   sess.editor.Pending(),
		Persisted: sess.persisted.Load(),
		Source:    sess.source,
	}
	if d.Pending == nil {
		d.Pending = []draft.PendingTruncation{}
	}
	if at, ok := s.opts.Store.SavedAt(ctx, id); ok {
		d.SavedAt = &at
	}
	return d
}

// Create starts a new, never persisted draft and writes it to the local store.
func (s *Service) Create(ctx context.Context, organization, createdBy string) (*Draft, error) {
	if !draft.IsReference(organization) {
		return nil, &draft.ValidationError{Field: "organization", Reason: "is not a valid id"}
	}
	id := primitive.NewObjectID().Hex()
	doc := s.normalizer.Normalize(map[string]any{
		draft.IDField:  id,
		"organization": organization,
		"createdBy":    createdBy,
		"status":       shipment.StatusDraft,
	})
	sess, err := s.start(id, doc, SourceNew, false)
	if err != nil {
		return nil, err
	}
	sess = s.register(id, sess)
	sess.editor.Flush(ctx)
	logger.WithFields(logrus.Fields{"draft": id, "organization": organization}).Info("draft created")
	return s.view(ctx, id, sess), nil
}

// Open returns the open editor for id, hydrating it on first use. A local
// draft wins over the backend record; the backend is still asked so the
// draft knows whether the record was ever persisted.
func (s *Service) Open(ctx context.Context, id string) (*Draft, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, id, sess), nil
}

func (s *Service) session(ctx context.Context, id string) (*session, error) {
	if sess, ok := s.lookup(id); ok {
		return sess, nil
	}
	if !draft.IsReference(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	v, err, _ := s.opens.Do(id, func() (any, error) {
		if sess, ok := s.lookup(id); ok {
			return sess, nil
		}
		sess, err := s.hydrate(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.register(id, sess), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*session), nil
}

func (s *Service) hydrate(ctx context.Context, id string) (*session, error) {
	var (
		local  map[string]any
		record map[string]any
		g      errgroup.Group
	)
	g.Go(func() error {
		local = s.opts.Store.Load(ctx, id)
		return nil
	})
	g.Go(func() error {
		rec, err := s.opts.Backend.Fetch(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		record = rec
		return err
	})
	fetchErr := g.Wait()
	log := logger.WithFields(logrus.Fields{"draft": id})

	switch {
	case local != nil:
		if fetchErr != nil {
			log.Warnf("backend fetch failed, opening local draft: %v", fetchErr)
		}
		log.Debug("opening local draft")
		return s.start(id, draft.NewDocument(local), SourceLocal, record != nil)
	case fetchErr != nil:
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrBackend, id, fetchErr)
	case record != nil:
		log.Debug("opening backend record")
		return s.start(id, s.normalizer.Normalize(record), SourceBackend, true)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Service) section(ctx context.Context, id, name string) (*draft.SectionController, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	return sess.editor.Section(name)
}

// SetField writes one section-relative field; count fields reconcile their group.
func (s *Service) SetField(ctx context.Context, id, section, field string, value any) error {
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return err
	}
	return sc.Set(field, value)
}

func (s *Service) SetCount(ctx context.Context, id, section, group string, n *int) (draft.Outcome, error) {
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return draft.OutcomeApplied, err
	}
	return sc.SetCount(group, n)
}

func (s *Service) Confirm(ctx context.Context, id, section, group string) error {
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return err
	}
	return sc.Confirm(group)
}

func (s *Service) Cancel(ctx context.Context, id, section, group string) error {
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return err
	}
	return sc.Cancel(group)
}

func (s *Service) AppendEntry(ctx context.Context, id, section, group string) (int, error) {
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return 0, err
	}
	return sc.AppendEntry(group)
}

func (s *Service) RemoveEntry(ctx context.Context, id, section, group string, index int) error {
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return err
	}
	return sc.RemoveEntry(group, index)
}

// SaveDraft writes the local draft now and, when the record already exists
// on the backend, updates it with the cleaned draft payload.
func (s *Service) SaveDraft(ctx context.Context, id string) (*Draft, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := sess.editor.Err(); err != nil {
		return nil, err
	}
	sess.editor.Wait()
	sess.editor.Flush(ctx)
	if sess.persisted.Load() {
		payload, _ := s.cleaner.Clean(sess.editor.Snapshot(), draft.ModeDraft)
		payload["status"] = shipment.StatusDraft
		if _, err := s.opts.Backend.Update(ctx, id, payload); err != nil {
			return nil, fmt.Errorf("%w: update %s: %w", ErrBackend, id, err)
		}
	}
	return s.view(ctx, id, sess), nil
}

// Submit sends the final payload to the backend: create when the record was
// never persisted, update otherwise. Edits are rejected with
// draft.ErrSubmitting while it runs. On success the local draft is cleared
// and the editor closed.
func (s *Service) Submit(ctx context.Context, id string) (map[string]any, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock, err := s.opts.Locker.Obtain(ctx, id, s.opts.LockTTL)
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(logrus.Fields{"draft": id})
	defer func() {
		if err := unlock(context.Background()); err != nil {
			log.Warnf("release submit lock: %v", err)
		}
	}()

	e := sess.editor
	if err := e.Freeze(); err != nil {
		return nil, err
	}
	submitted := false
	defer func() {
		if !submitted {
			e.Thaw()
		}
	}()
	e.Wait()
	if pending := e.Pending(); len(pending) > 0 {
		return nil, fmt.Errorf("%w: %s", draft.ErrPendingConfirmation, pending[0].Group)
	}
	snap := e.Snapshot()
	snap["status"] = shipment.StatusFinal
	payload, err := s.cleaner.Clean(snap, draft.ModeFinal)
	if err != nil {
		return nil, err
	}

	rec, err := s.write(ctx, id, payload, sess.persisted.Load())
	if err != nil {
		log.Errorf("submit failed: %v", err)
		return nil, fmt.Errorf("%w: submit %s: %w", ErrBackend, id, err)
	}
	sess.persisted.Store(true)
	submitted = true

	s.unregister(id)
	e.Close(ctx, true)
	if err := s.opts.Store.Clear(ctx, id); err != nil {
		log.Warnf("clear local draft: %v", err)
	}
	log.Info("draft submitted")
	return s.normalizer.NormalizeTree(rec), nil
}

func (s *Service) write(ctx context.Context, id string, payload map[string]any, persisted bool) (map[string]any, error) {
	if persisted {
		rec, err := s.opts.Backend.Update(ctx, id, payload)
		if !errors.Is(err, repository.ErrNotFound) {
			return rec, err
		}
		return s.opts.Backend.Create(ctx, payload)
	}
	rec, err := s.opts.Backend.Create(ctx, payload)
	if !errors.Is(err, repository.ErrExists) {
		return rec, err
	}
	return s.opts.Backend.Update(ctx, id, payload)
}

// Upload stores a file for a URL field and writes the returned URL into it.
func (s *Service) Upload(ctx context.Context, id, section, field, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if s.opts.Uploader == nil {
		return "", fmt.Errorf("%w: no uploader configured", ErrStorage)
	}
	if kind, ok := s.schema.FieldKind(section + "." + field); !ok || kind != draft.KindURL {
		return "", fmt.Errorf("%w: %s.%s", ErrNotURLField, section, field)
	}
	sc, err := s.section(ctx, id, section)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("shipments/%s/%s%s", id, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	url, err := s.opts.Uploader.Upload(ctx, key, r, size, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := sc.Set(field, url); err != nil {
		return "", err
	}
	return url, nil
}

// Discard drops the local draft and closes the editor without saving. The
// backend record, if any, is left alone.
func (s *Service) Discard(ctx context.Context, id string) error {
	if sess, ok := s.unregister(id); ok {
		sess.editor.Close(ctx, true)
	}
	return s.opts.Store.Clear(ctx, id)
}

// Close flushes the draft to the local store and releases its editor.
func (s *Service) Close(ctx context.Context, id string) error {
	sess, ok := s.unregister(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.editor.Close(ctx, false)
	return nil
}

// Shutdown flushes and closes every open draft.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = map[string]*session{}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.editor.Close(ctx, false)
	}
	logger.Infof("closed %d open drafts", len(sessions))
}
