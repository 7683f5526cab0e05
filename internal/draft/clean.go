package draft

import (
	"math"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Mode selects the payload variant produced by the Cleaner.
type Mode string

const (
	ModeDraft Mode = "draft"
	ModeFinal Mode = "final"
)

// Cleaner prunes a document tree right before it leaves for the backend.
type Cleaner struct {
	References map[string]struct{}
	// Required top-level fields in ModeFinal; each must be a valid ObjectID.
	Required []string

	validate *validator.Validate
}

func NewCleaner(schema *Schema, required ...string) *Cleaner {
	if len(required) == 0 {
		required = []string{IDField, "organization"}
	}
	return &Cleaner{
		References: schema.ReferenceKeys(),
		Required:   required,
		validate:   validator.New(),
	}
}

// Clean returns a pruned copy of tree. ModeDraft never fails; ModeFinal
// returns a *ValidationError naming the first missing required field.
func (c *Cleaner) Clean(tree map[string]any, mode Mode) (map[string]any, error) {
	out := c.cleanMap(tree)
	if out == nil {
		out = map[string]any{}
	}
	if mode != ModeFinal {
		return out, nil
	}
	v := c.validate
	if v == nil {
		v = validator.New()
	}
	for _, field := range c.Required {
		s, _ := out[field].(string)
		if err := v.Var(s, "required,mongodb"); err != nil {
			reason := "is required"
			if s != "" {
				reason = "is not a valid id"
			}
			return nil, &ValidationError{Field: field, Reason: reason}
		}
	}
	return out, nil
}

func (c *Cleaner) cleanMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[string]any, len(m))
	for _, k := range keys {
		if k == KeyField {
			continue
		}
		if v, ok := c.cleanValue(k, m[k]); ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Cleaner) cleanValue(key string, v any) (any, bool) {
	if _, ref := c.References[key]; ref {
		if _, isArr := asSlice(v); !isArr {
			return resolveReference(v)
		}
	}
	if m, ok := asMap(v); ok {
		cleaned := c.cleanMap(m)
		return cleaned, cleaned != nil
	}
	if arr, ok := asSlice(v); ok {
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			if cleaned, ok := c.cleanValue(key, el); ok {
				out = append(out, cleaned)
			}
		}
		return out, len(out) > 0
	}
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return t, strings.TrimSpace(t) != ""
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	}
	return v, true
}
