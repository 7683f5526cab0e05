package draft

import (
	"fmt"
	"strconv"
	"strings"
)

// segment is one step of a document path: a map key or an array index.
type segment struct {
	key     string
	index   int
	isIndex bool
}

func (s segment) String() string {
	if s.isIndex {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	return s.key
}

// parsePath accepts "a.b[2].c" and "a.b.2.c"; both address the same value.
func parsePath(path string) ([]segment, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var segs []segment
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		name := part
		var idxs []int
		if open := strings.IndexByte(part, '['); open >= 0 {
			name = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil || n < 0 {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				idxs = append(idxs, n)
				rest = rest[end+1:]
			}
		}
		if name != "" {
			if n, err := strconv.Atoi(name); err == nil {
				if n < 0 {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
				}
				segs = append(segs, segment{index: n, isIndex: true})
			} else {
				segs = append(segs, segment{key: name})
			}
		} else if len(idxs) == 0 || len(segs) == 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
		for _, n := range idxs {
			segs = append(segs, segment{index: n, isIndex: true})
		}
	}
	if segs[0].isIndex {
		return nil, fmt.Errorf("%w: %q must start with a key", ErrInvalidPath, path)
	}
	return segs, nil
}

func formatPath(segs []segment) string {
	var b strings.Builder
	for i, s := range segs {
		if !s.isIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// keyNames drops index segments: "suppliers[1].invoices" -> [suppliers invoices].
func keyNames(segs []segment) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if !s.isIndex {
			out = append(out, s.key)
		}
	}
	return out
}

func joinPath(base, rel string) string {
	if base == "" {
		return rel
	}
	if rel == "" {
		return base
	}
	return base + "." + rel
}

// lookup walks segs from root without modifying anything.
func lookup(root map[string]any, segs []segment) (any, bool) {
	var cur any = root
	for _, s := range segs {
		if s.isIndex {
			arr, ok := cur.([]any)
			if !ok || s.index >= len(arr) {
				return nil, false
			}
			cur = arr[s.index]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[s.key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
