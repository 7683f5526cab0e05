package draft

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalizer turns a backend record, whose fields may be embedded objects,
// bare ids, ObjectIDs or absent, into the canonical Document shape. It never
// fails: anything it cannot resolve is left out.
type Normalizer struct {
	Schema *Schema
}

func (n Normalizer) Normalize(record any) *Document {
	return NewDocument(n.NormalizeTree(record))
}

// NormalizeTree is Normalize without wrapping the result in a Document.
func (n Normalizer) NormalizeTree(record any) map[string]any {
	rec, _ := asMap(record)
	out := map[string]any{}
	n.fields(out, rec, n.Schema.Identity)
	for _, sec := range n.Schema.Sections {
		src, _ := asMap(rec[sec.Name])
		dst := map[string]any{}
		n.fields(dst, src, sec.Fields)
		n.groups(dst, src, sec.Groups)
		out[sec.Name] = dst
	}
	return out
}

func (n Normalizer) fields(dst, src map[string]any, fields []Field) {
	for _, f := range fields {
		raw, ok := src[f.Name]
		if !ok {
			continue
		}
		if v, ok := normalizeScalar(f.Kind, raw); ok {
			dst[f.Name] = v
		}
	}
}

func (n Normalizer) groups(dst, src map[string]any, groups []Group) {
	for _, g := range groups {
		raw, _ := asSlice(src[g.Name])
		entries := make([]any, 0, len(raw))
		for _, el := range raw {
			m, ok := asMap(el)
			if !ok {
				continue
			}
			entries = append(entries, n.entry(&g, m))
		}
		dst[g.Name] = entries
		if g.CountField == "" {
			continue
		}
		if c, ok := asInt(src[g.CountField]); ok && c > 0 && c <= g.Limit() {
			dst[g.CountField] = c
		} else if len(entries) > 0 {
			dst[g.CountField] = len(entries)
		}
	}
}

func (n Normalizer) entry(g *Group, src map[string]any) map[string]any {
	e := map[string]any{}
	if id, ok := resolveReference(src[IDField]); ok {
		e[IDField] = id
		e[KeyField] = id
	} else {
		e[KeyField] = newKey()
	}
	n.fields(e, src, g.Fields)
	n.groups(e, src, g.Groups)
	return e
}

func normalizeScalar(kind Kind, raw any) (any, bool) {
	switch kind {
	case KindReference:
		return resolveReference(raw)
	case KindNumber:
		return asFloat(raw)
	case KindDate:
		return resolveDate(raw)
	case KindBool:
		switch t := raw.(type) {
		case bool:
			return t, true
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			return b, err == nil
		}
		return nil, false
	case KindURL:
		s, ok := raw.(string)
		s = strings.TrimSpace(s)
		return s, ok && s != ""
	default:
		switch t := raw.(type) {
		case string:
			return t, t != ""
		case bool:
			return strconv.FormatBool(t), true
		}
		if f, ok := asFloat(raw); ok {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return nil, false
	}
}

// resolveReference maps an embedded object, an ObjectID or a hex string to
// the canonical lowercase hex id.
func resolveReference(raw any) (string, bool) {
	switch t := raw.(type) {
	case string:
		return canonicalReference(t)
	case primitive.ObjectID:
		if t.IsZero() {
			return "", false
		}
		return t.Hex(), true
	}
	if m, ok := asMap(raw); ok {
		for _, key := range []string{IDField, "id"} {
			v, present := m[key]
			if !present {
				continue
			}
			if _, nested := asMap(v); nested {
				continue
			}
			if id, ok := resolveReference(v); ok {
				return id, true
			}
		}
	}
	return "", false
}

func resolveDate(raw any) (string, bool) {
	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v
	case primitive.DateTime:
		t = v.Time()
	case string:
		s := strings.TrimSpace(v)
		parsed := false
		for _, layout := range dateLayouts {
			if p, err := time.Parse(layout, s); err == nil {
				t, parsed = p, true
				break
			}
		}
		if !parsed {
			return "", false
		}
	default:
		return "", false
	}
	if t.IsZero() {
		return "", false
	}
	return t.UTC().Format(time.RFC3339Nano), true
}
