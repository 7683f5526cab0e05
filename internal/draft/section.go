package draft

import (
	"fmt"
	"strings"
)

// SectionController is the only write surface for one section. Paths are
// section relative: "customBroker", "containers[0].product",
// "suppliers[1].invoices".
type SectionController struct {
	editor  *Editor
	section *Section
}

func (c *SectionController) Name() string { return c.section.Name }

func (c *SectionController) full(rel string) string {
	return joinPath(c.section.Name, rel)
}

// Get reads a value inside the section.
func (c *SectionController) Get(path string) (any, bool) {
	return c.editor.doc.Get(c.full(path))
}

// target is a resolved write location inside the section.
type target struct {
	scopeSegs []segment // full path of the section or entry
	field     string
	groups    []Group // child groups of the scope
}

func (c *SectionController) locate(path string) (target, error) {
	segs, err := parsePath(path)
	if err != nil {
		return target{}, err
	}
	last := segs[len(segs)-1]
	if last.isIndex {
		return target{}, fmt.Errorf("%w: %s", ErrGovernedGroup, path)
	}
	scope := segs[:len(segs)-1]
	t := target{
		scopeSegs: append([]segment{{key: c.section.Name}}, scope...),
		field:     last.key,
		groups:    c.section.Groups,
	}
	for i := 0; i < len(scope); i += 2 {
		if scope[i].isIndex || i+1 >= len(scope) || !scope[i+1].isIndex {
			return target{}, fmt.Errorf("%w: %s", ErrInvalidPath, path)
		}
		var found *Group
		for j := range t.groups {
			if t.groups[j].Name == scope[i].key {
				found = &t.groups[j]
				break
			}
		}
		if found == nil {
			return target{}, fmt.Errorf("%w: %s", ErrUnknownGroup, formatPath(scope[:i+1]))
		}
		t.groups = found.Groups
	}
	return t, nil
}

// Set writes one field. Writing a count field reconciles its group; writing
// a group array or an entry's _key or _id directly is rejected. Derivers
// watching the field run after the write.
func (c *SectionController) Set(path string, value any) error {
	return c.editor.edit(func() error { return c.set(path, value) })
}

func (c *SectionController) set(path string, value any) error {
	t, err := c.locate(path)
	if err != nil {
		return err
	}
	if t.field == KeyField || t.field == IDField {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidPath, c.full(path))
	}
	for _, g := range t.groups {
		if g.Name == t.field {
			return fmt.Errorf("%w: %s", ErrGovernedGroup, c.full(path))
		}
		if g.CountField != "" && g.CountField == t.field {
			n, err := countValue(value)
			if err != nil {
				return err
			}
			_, err = c.editor.rec.SetCount(joinPath(formatPath(t.scopeSegs), g.Name), n)
			return err
		}
	}
	full := append(append([]segment{}, t.scopeSegs...), segment{key: t.field})
	if err := c.editor.doc.Set(formatPath(full), value); err != nil {
		return err
	}
	c.editor.derivers.Trigger(formatPath(t.scopeSegs), t.field)
	return nil
}

// SetCount is Set on the count field of group, taking the parsed count.
func (c *SectionController) SetCount(group string, n *int) (Outcome, error) {
	out := OutcomeApplied
	err := c.editor.edit(func() error {
		var err error
		out, err = c.editor.rec.SetCount(c.full(group), n)
		return err
	})
	return out, err
}

func (c *SectionController) Confirm(group string) error {
	return c.editor.edit(func() error { return c.editor.rec.Confirm(c.full(group)) })
}

func (c *SectionController) Cancel(group string) error {
	return c.editor.edit(func() error { return c.editor.rec.Cancel(c.full(group)) })
}

func (c *SectionController) RemoveEntry(group string, index int) error {
	return c.editor.edit(func() error { return c.editor.rec.RemoveEntry(c.full(group), index) })
}

func (c *SectionController) AppendEntry(group string) (int, error) {
	var index int
	err := c.editor.edit(func() error {
		var err error
		index, err = c.editor.rec.AppendEntry(c.full(group))
		return err
	})
	return index, err
}

// Entries returns copies of the rows of group; an absent group is empty.
func (c *SectionController) Entries(group string) ([]map[string]any, error) {
	ref, err := c.editor.rec.resolve(c.full(group))
	if err != nil {
		return nil, err
	}
	v, _ := c.editor.doc.Get(ref.path)
	arr, _ := v.([]any)
	out := make([]map[string]any, 0, len(arr))
	for _, el := range arr {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Pending lists this section's truncations awaiting confirmation.
func (c *SectionController) Pending() []PendingTruncation {
	var out []PendingTruncation
	prefix := c.section.Name + "."
	for _, p := range c.editor.rec.Pending() {
		if strings.HasPrefix(p.Group, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// countValue converts form input into a count: blank clears it.
func countValue(v any) (*int, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
	}
	n, ok := asInt(v)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not a whole number", ErrInvalidCount, v)
	}
	return &n, nil
}
