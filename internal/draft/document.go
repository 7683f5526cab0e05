package draft

import (
	"fmt"
	"sync"
)

// Change describes one applied mutation.
type Change struct {
	Path   string
	Origin string
}

// Change origins.
const (
	OriginUser       = "user"
	OriginReconciler = "reconciler"
	OriginDeriver    = "deriver"
)

// Document is the in-memory tree of one shipment draft. Values are JSON shaped
// (map[string]any, []any, string, float64/int, bool). Every read returns a copy
// and every write is applied to a copy that replaces the tree only on success,
// so a failed mutation never leaves a partially applied state.
type Document struct {
	mu   sync.RWMutex
	root map[string]any

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

func NewDocument(root map[string]any) *Document {
	if root == nil {
		root = map[string]any{}
	}
	return &Document{root: cloneMap(root), subs: map[int]func(Change){}}
}

// Get returns a copy of the value at path. Absence is reported, not an error.
func (d *Document) Get(path string) (any, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := lookup(d.root, segs)
	if !ok {
		return nil, false
	}
	return plain(v), true
}

// String returns the string at path, or "" when absent or not a string.
func (d *Document) String(path string) string {
	v, _ := d.Get(path)
	s, _ := v.(string)
	return s
}

// Set writes value at path, creating missing intermediate objects. It never
// grows an array: an index past the end is ErrIndexOutOfRange.
func (d *Document) Set(path string, value any) error {
	return d.setWithOrigin(path, value, OriginUser)
}

func (d *Document) setWithOrigin(path string, value any, origin string) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	return d.mutate(formatPath(segs), origin, func(root map[string]any) error {
		return setIn(root, segs, plain(value))
	})
}

// Delete removes the key at path. Deleting an absent key is a no-op.
// Array elements cannot be deleted here; see Reconciler.RemoveEntry.
func (d *Document) Delete(path string) error {
	segs, err := parsePath(path)
	if err != nil {
		return err
	}
	last := segs[len(segs)-1]
	if last.isIndex {
		return ErrArrayLength
	}
	return d.mutate(formatPath(segs), OriginUser, func(root map[string]any) error {
		parent, ok := lookup(root, segs[:len(segs)-1])
		if !ok {
			return nil
		}
		m, ok := parent.(map[string]any)
		if !ok {
			return fmt.Errorf("%w at %s", ErrTypeMismatch, formatPath(segs[:len(segs)-1]))
		}
		delete(m, last.key)
		return nil
	})
}

// Snapshot returns a deep copy of the whole tree.
func (d *Document) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneMap(d.root)
}

// Subscribe registers fn for every applied change and returns its cancel func.
// fn runs after the document lock is released.
func (d *Document) Subscribe(fn func(Change)) func() {
	d.subMu.Lock()
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	d.subMu.Unlock()
	return func() {
		d.subMu.Lock()
		delete(d.subs, id)
		d.subMu.Unlock()
	}
}

func (d *Document) mutate(path, origin string, fn func(root map[string]any) error) error {
	d.mu.Lock()
	work := cloneMap(d.root)
	if err := fn(work); err != nil {
		d.mu.Unlock()
		return err
	}
	d.root = work
	d.mu.Unlock()
	d.notify(Change{Path: path, Origin: origin})
	return nil
}

func (d *Document) notify(c Change) {
	d.subMu.Lock()
	fns := make([]func(Change), 0, len(d.subs))
	for _, fn := range d.subs {
		fns = append(fns, fn)
	}
	d.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

func setIn(root map[string]any, segs []segment, value any) error {
	var cur any = root
	for i, s := range segs {
		last := i == len(segs)-1
		if s.isIndex {
			arr, ok := cur.([]any)
			if !ok {
				return fmt.Errorf("%w at %s", ErrTypeMismatch, formatPath(segs[:i]))
			}
			if s.index >= len(arr) {
				return fmt.Errorf("%w: %s", ErrIndexOutOfRange, formatPath(segs[:i+1]))
			}
			if last {
				arr[s.index] = value
				return nil
			}
			cur = arr[s.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("%w at %s", ErrTypeMismatch, formatPath(segs[:i]))
		}
		if last {
			m[s.key] = value
			return nil
		}
		next, exists := m[s.key]
		if !exists || next == nil {
			if segs[i+1].isIndex {
				return fmt.Errorf("%w: %s", ErrIndexOutOfRange, formatPath(segs[:i+2]))
			}
			next = map[string]any{}
			m[s.key] = next
		}
		cur = next
	}
	return nil
}
