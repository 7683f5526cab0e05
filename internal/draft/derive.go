package draft

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/shipdraft/draft-service/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// Patch maps scope-relative field names to new values; nil removes the field.
type Patch map[string]any

// Input is what a deriver sees: the changed field, its value and a copy of
// the surrounding scope (a section or one repeating-group entry).
type Input struct {
	Field string
	Value any
	Scope map[string]any
}

// DeriveFunc must be idempotent: the same input yields the same patch.
type DeriveFunc func(ctx context.Context, in Input) (Patch, error)

// DeriverSpec declares when a deriver runs. Group is the dotted chain of
// group names inside Section ("containers", "suppliers.invoices"), empty for
// section-level fields.
type DeriverSpec struct {
	Name    string
	Section string
	Group   string
	Sources []string
	Async   bool
	Derive  DeriveFunc
}

func (s DeriverSpec) watches(section, group, field string) bool {
	if s.Section != section || s.Group != group {
		return false
	}
	for _, src := range s.Sources {
		if src == field {
			return true
		}
	}
	return false
}

const maxDeriveDepth = 3

var (
	errDiscard   = errors.New("draft: derivation discarded")
	errUnchanged = errors.New("draft: derivation changed nothing")
)

// Derivers runs DeriverSpecs against a Document. Async results are matched
// back to their entry by _key, so a row removed or moved while a lookup is in
// flight never receives another row's data.
type Derivers struct {
	doc    *Document
	specs  []DeriverSpec
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	closed   bool
}

func NewDerivers(doc *Document, specs []DeriverSpec) *Derivers {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Derivers{doc: doc, specs: specs, ctx: ctx, cancel: cancel}
	d.idle = sync.NewCond(&d.mu)
	return d
}

// Trigger runs every deriver watching field inside the scope at scopePath
// ("shippingDetails.containers[2]" or "bookingDetails"). It does nothing
// after Close.
func (d *Derivers) Trigger(scopePath, field string) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	segs, err := parsePath(scopePath)
	if err != nil {
		return
	}
	d.trigger(segs, field, "", 0)
}

func (d *Derivers) trigger(scopeSegs []segment, field, skip string, depth int) {
	if depth > maxDeriveDepth {
		return
	}
	names := keyNames(scopeSegs)
	section, group := names[0], strings.Join(names[1:], ".")
	for _, spec := range d.specs {
		if spec.Name == skip || !spec.watches(section, group, field) {
			continue
		}
		d.dispatch(spec, scopeSegs, field, depth)
	}
}

func (d *Derivers) dispatch(spec DeriverSpec, scopeSegs []segment, field string, depth int) {
	snap := d.doc.Snapshot()
	raw, ok := lookup(snap, scopeSegs)
	if !ok {
		return
	}
	scope, ok := raw.(map[string]any)
	if !ok {
		return
	}
	keys := anchorKeys(snap, scopeSegs)
	in := Input{Field: field, Value: scope[field], Scope: scope}

	run := func() {
		patch, err := spec.Derive(d.ctx, in)
		if err != nil {
			if d.ctx.Err() == nil {
				logger.WithFields(logrus.Fields{"deriver": spec.Name, "scope": formatPath(scopeSegs)}).Warnf("derivation failed: %v", err)
			}
			metrics.Derivations.WithLabelValues(spec.Name, "error").Inc()
			return
		}
		d.apply(spec, scopeSegs, keys, field, in.Value, patch, depth)
	}
	if !spec.Async {
		run()
		return
	}
	if !d.begin() {
		return
	}
	go func() {
		defer d.done()
		run()
	}()
}

func (d *Derivers) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.inflight++
	return true
}

func (d *Derivers) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight--
	if d.inflight == 0 {
		d.idle.Broadcast()
	}
}

func (d *Derivers) apply(spec DeriverSpec, scopeSegs []segment, keys []string, field string, source any, patch Patch, depth int) {
	if len(patch) == 0 {
		return
	}
	if d.ctx.Err() != nil {
		return
	}
	var (
		current []segment
		changed []string
		outcome = "applied"
	)
	err := d.doc.mutate(formatPath(scopeSegs), OriginDeriver, func(root map[string]any) error {
		segs, ok := relocate(root, scopeSegs, keys)
		if !ok {
			outcome = "orphaned"
			return errDiscard
		}
		raw, _ := lookup(root, segs)
		scope, ok := raw.(map[string]any)
		if !ok {
			outcome = "orphaned"
			return errDiscard
		}
		if !reflect.DeepEqual(scope[field], source) {
			outcome = "stale"
			return errDiscard
		}
		for k, v := range patch {
			if k == KeyField || k == IDField {
				continue
			}
			if v == nil {
				if _, had := scope[k]; had {
					delete(scope, k)
					changed = append(changed, k)
				}
				continue
			}
			v = plain(v)
			if !reflect.DeepEqual(scope[k], v) {
				scope[k] = v
				changed = append(changed, k)
			}
		}
		if len(changed) == 0 {
			outcome = "unchanged"
			return errUnchanged
		}
		current = segs
		return nil
	})
	metrics.Derivations.WithLabelValues(spec.Name, outcome).Inc()
	if errors.Is(err, errUnchanged) {
		return
	}
	if err != nil {
		if !errors.Is(err, errDiscard) {
			logger.WithFields(logrus.Fields{"deriver": spec.Name}).Warnf("apply derivation: %v", err)
		}
		logger.WithFields(logrus.Fields{"deriver": spec.Name, "scope": formatPath(scopeSegs), "outcome": outcome}).Debug("derivation dropped")
		return
	}
	for _, f := range changed {
		d.trigger(current, f, spec.Name, depth+1)
	}
}

// Wait blocks until in-flight async derivations finish.
func (d *Derivers) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.inflight > 0 {
		d.idle.Wait()
	}
}

// Close cancels in-flight derivations; their results are dropped.
func (d *Derivers) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.Wait()
}

// anchorKeys records the _key of every entry crossed by segs.
func anchorKeys(root map[string]any, segs []segment) []string {
	keys := make([]string, len(segs))
	var cur any = root
	for i, s := range segs {
		if s.isIndex {
			arr, _ := cur.([]any)
			if s.index >= len(arr) {
				return keys
			}
			cur = arr[s.index]
			if m, ok := cur.(map[string]any); ok {
				keys[i], _ = m[KeyField].(string)
			}
			continue
		}
		m, _ := cur.(map[string]any)
		cur = m[s.key]
	}
	return keys
}

// relocate rewrites the indices of segs to wherever the keyed entries sit now.
func relocate(root map[string]any, segs []segment, keys []string) ([]segment, bool) {
	out := make([]segment, len(segs))
	var cur any = root
	for i, s := range segs {
		if !s.isIndex {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = m[s.key]
			if !ok {
				return nil, false
			}
			out[i] = s
			continue
		}
		arr, ok := cur.([]any)
		if !ok {
			return nil, false
		}
		idx := -1
		if keys[i] == "" {
			if s.index < len(arr) {
				idx = s.index
			}
		} else {
			for j, el := range arr {
				if m, ok := el.(map[string]any); ok && m[KeyField] == keys[i] {
					idx = j
					break
				}
			}
		}
		if idx < 0 {
			return nil, false
		}
		out[i] = segment{index: idx, isIndex: true}
		cur = arr[idx]
	}
	return out, true
}
