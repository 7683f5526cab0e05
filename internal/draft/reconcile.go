package draft

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shipdraft/draft-service/pkg/logger"
	"github.com/shipdraft/draft-service/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// Outcome of a count change.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomePending
	OutcomeCleared
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCleared:
		return "cleared"
	}
	return "applied"
}

// PendingTruncation is a count reduction waiting for Confirm or Cancel.
type PendingTruncation struct {
	Group  string `json:"group"`
	Count  int    `json:"count"`
	Length int    `json:"length"`
}

// groupRef is a resolved repeating group instance inside a document.
type groupRef struct {
	spec      *Group
	path      string // "supplierDetails.suppliers[0].invoices"
	arraySegs []segment
	countSegs []segment // nil when the group has no count field
}

// Reconciler is the only component that changes a repeating group's length.
type Reconciler struct {
	doc    *Document
	schema *Schema

	mu      sync.Mutex
	pending map[string]PendingTruncation
}

func NewReconciler(doc *Document, schema *Schema) *Reconciler {
	return &Reconciler{doc: doc, schema: schema, pending: map[string]PendingTruncation{}}
}

func (r *Reconciler) resolve(path string) (groupRef, error) {
	segs, err := parsePath(path)
	if err != nil {
		return groupRef{}, err
	}
	if segs[len(segs)-1].isIndex {
		return groupRef{}, fmt.Errorf("%w: %s", ErrUnknownGroup, path)
	}
	names := keyNames(segs)
	sec, ok := r.schema.Section(names[0])
	if !ok {
		return groupRef{}, fmt.Errorf("%w: %s", ErrUnknownSection, names[0])
	}
	spec, ok := sec.Group(names[1:]...)
	if !ok {
		return groupRef{}, fmt.Errorf("%w: %s", ErrUnknownGroup, path)
	}
	ref := groupRef{spec: spec, path: formatPath(segs), arraySegs: segs}
	if spec.CountField != "" {
		parent := append([]segment{}, segs[:len(segs)-1]...)
		ref.countSegs = append(parent, segment{key: spec.CountField})
	}
	return ref, nil
}

// SetCount reconciles the group at path with the count n. A nil or negative
// n clears both the array and the count; n above the group's Limit is
// rejected. Growing pads with empty entries; shrinking is held as a pending
// truncation until Confirm or Cancel.
func (r *Reconciler) SetCount(path string, n *int) (Outcome, error) {
	ref, err := r.resolve(path)
	if err != nil {
		return OutcomeApplied, err
	}
	if ref.countSegs == nil {
		return OutcomeApplied, fmt.Errorf("%w: %s has no count field", ErrUnknownGroup, path)
	}
	if n != nil && *n > ref.spec.Limit() {
		return OutcomeApplied, fmt.Errorf("%w: %s holds at most %d entries", ErrInvalidCount, ref.path, ref.spec.Limit())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nestedPending(ref.path) {
		return OutcomeApplied, fmt.Errorf("%w: rows of %s", ErrPendingConfirmation, ref.path)
	}
	delete(r.pending, ref.path)

	if n == nil || *n < 0 {
		err := r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
			if err := setIn(root, ref.arraySegs, []any{}); err != nil {
				return err
			}
			return deleteIn(root, ref.countSegs)
		})
		return OutcomeCleared, err
	}

	target := *n
	var outcome Outcome
	err = r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
		arr, err := arrayAt(root, ref.arraySegs)
		if err != nil {
			return err
		}
		if target < len(arr) {
			outcome = OutcomePending
			r.pending[ref.path] = PendingTruncation{Group: ref.path, Count: target, Length: len(arr)}
			return setIn(root, ref.countSegs, target)
		}
		for len(arr) < target {
			arr = append(arr, ref.spec.NewEntry())
		}
		if err := setIn(root, ref.arraySegs, arr); err != nil {
			return err
		}
		return setIn(root, ref.countSegs, target)
	})
	if err != nil {
		delete(r.pending, ref.path)
		return OutcomeApplied, err
	}
	if outcome == OutcomePending {
		logger.WithFields(logrus.Fields{"group": ref.path, "count": target}).Debug("truncation awaiting confirmation")
	}
	return outcome, nil
}

// Confirm applies a pending truncation, dropping trailing entries.
func (r *Reconciler) Confirm(path string) error {
	ref, err := r.resolve(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[ref.path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingConfirmation, ref.path)
	}
	if r.nestedPending(ref.path) {
		return fmt.Errorf("%w: rows of %s", ErrPendingConfirmation, ref.path)
	}
	err = r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
		arr, err := arrayAt(root, ref.arraySegs)
		if err != nil {
			return err
		}
		if p.Count < len(arr) {
			arr = arr[:p.Count]
		}
		if err := setIn(root, ref.arraySegs, arr); err != nil {
			return err
		}
		return setIn(root, ref.countSegs, len(arr))
	})
	if err != nil {
		return err
	}
	delete(r.pending, ref.path)
	metrics.Truncations.WithLabelValues("confirmed").Inc()
	return nil
}

// Cancel drops a pending truncation and restores the count to the array length.
func (r *Reconciler) Cancel(path string) error {
	ref, err := r.resolve(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[ref.path]; !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingConfirmation, ref.path)
	}
	err = r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
		arr, err := arrayAt(root, ref.arraySegs)
		if err != nil {
			return err
		}
		return setIn(root, ref.countSegs, len(arr))
	})
	if err != nil {
		return err
	}
	delete(r.pending, ref.path)
	metrics.Truncations.WithLabelValues("canceled").Inc()
	return nil
}

// RemoveEntry deletes one row immediately, without confirmation, and
// re-derives the count from the remaining rows.
func (r *Reconciler) RemoveEntry(path string, index int) error {
	ref, err := r.resolve(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[ref.path]; ok || r.nestedPending(ref.path) {
		return fmt.Errorf("%w: %s", ErrPendingConfirmation, ref.path)
	}
	return r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
		arr, err := arrayAt(root, ref.arraySegs)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(arr) {
			return fmt.Errorf("%w: %s[%d]", ErrIndexOutOfRange, ref.path, index)
		}
		next := make([]any, 0, len(arr)-1)
		next = append(next, arr[:index]...)
		next = append(next, arr[index+1:]...)
		if err := setIn(root, ref.arraySegs, next); err != nil {
			return err
		}
		if ref.countSegs == nil {
			return nil
		}
		return setIn(root, ref.countSegs, max(0, len(arr)-1))
	})
}

// AppendEntry adds one empty row and sets the count to the new length.
func (r *Reconciler) AppendEntry(path string) (int, error) {
	ref, err := r.resolve(path)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[ref.path]; ok || r.nestedPending(ref.path) {
		return 0, fmt.Errorf("%w: %s", ErrPendingConfirmation, ref.path)
	}
	var index int
	err = r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
		arr, err := arrayAt(root, ref.arraySegs)
		if err != nil {
			return err
		}
		if len(arr) >= ref.spec.Limit() {
			return fmt.Errorf("%w: %s holds at most %d entries", ErrInvalidCount, ref.path, ref.spec.Limit())
		}
		index = len(arr)
		arr = append(arr, ref.spec.NewEntry())
		if err := setIn(root, ref.arraySegs, arr); err != nil {
			return err
		}
		if ref.countSegs == nil {
			return nil
		}
		return setIn(root, ref.countSegs, len(arr))
	})
	return index, err
}

// Settle restores count == length after hydration without dropping data:
// missing rows are padded, and a count below the row total is raised. A
// count above the group's Limit is malformed and replaced by the row total.
func (r *Reconciler) Settle(path string) error {
	ref, err := r.resolve(path)
	if err != nil {
		return err
	}
	if ref.countSegs == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.doc.Snapshot()
	arr, err := arrayAt(snap, ref.arraySegs)
	if err != nil {
		return err
	}
	_, arrPresent := lookup(snap, ref.arraySegs)
	raw, countPresent := lookup(snap, ref.countSegs)
	count, valid := asInt(raw)
	valid = valid && count >= 0 && count <= ref.spec.Limit()
	switch {
	case arrPresent && countPresent && valid && count == len(arr):
		return nil
	case !countPresent && len(arr) == 0:
		return nil
	}
	return r.doc.mutate(ref.path, OriginReconciler, func(root map[string]any) error {
		arr, err := arrayAt(root, ref.arraySegs)
		if err != nil {
			return err
		}
		if countPresent && valid {
			for len(arr) < count {
				arr = append(arr, ref.spec.NewEntry())
			}
		}
		if err := setIn(root, ref.arraySegs, arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return deleteIn(root, ref.countSegs)
		}
		return setIn(root, ref.countSegs, len(arr))
	})
}

// SettleAll settles every group instance in the document.
func (r *Reconciler) SettleAll() error {
	for _, p := range r.schema.groupPaths(r.doc.Snapshot()) {
		if err := r.Settle(p); err != nil {
			return err
		}
	}
	return nil
}

// Pending lists truncations awaiting confirmation, ordered by group path.
func (r *Reconciler) Pending() []PendingTruncation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PendingTruncation, 0, len(r.pending))
	for _, p := range r.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// IsPending reports whether the group at path awaits confirmation.
func (r *Reconciler) IsPending(path string) bool {
	ref, err := r.resolve(path)
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[ref.path]
	return ok
}

// nestedPending reports a pending truncation inside one of the rows of path;
// changing the rows would shift the indices it is keyed by.
func (r *Reconciler) nestedPending(path string) bool {
	prefix := path + "["
	for k := range r.pending {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}

// arrayAt returns the array at segs; an absent array is empty, and a missing
// parent entry is an error.
func arrayAt(root map[string]any, segs []segment) ([]any, error) {
	v, ok := lookup(root, segs)
	if !ok {
		if len(segs) > 1 && segs[len(segs)-2].isIndex {
			if _, entryOK := lookup(root, segs[:len(segs)-1]); !entryOK {
				return nil, fmt.Errorf("%w: %s", ErrIndexOutOfRange, formatPath(segs))
			}
		}
		return []any{}, nil
	}
	if v == nil {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w at %s", ErrTypeMismatch, formatPath(segs))
	}
	return arr, nil
}

func deleteIn(root map[string]any, segs []segment) error {
	parent, ok := lookup(root, segs[:len(segs)-1])
	if !ok {
		return nil
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("%w at %s", ErrTypeMismatch, formatPath(segs[:len(segs)-1]))
	}
	delete(m, segs[len(segs)-1].key)
	return nil
}
