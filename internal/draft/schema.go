package draft

// Kind is the canonical representation of a scalar field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindDate
	KindBool
	KindReference
	KindURL
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindBool:
		return "bool"
	case KindReference:
		return "reference"
	case KindURL:
		return "url"
	}
	return "string"
}

type Field struct {
	Name string
	Kind Kind
}

// DefaultMaxEntries caps a repeating group whose MaxEntries is unset.
const DefaultMaxEntries = 200

// Group is a repeating group. CountField, when set, names the sibling field
// that states how many entries the group should hold.
type Group struct {
	Name       string
	CountField string
	MaxEntries int
	Fields     []Field
	Groups     []Group
}

// Limit is the most entries the group may hold.
func (g *Group) Limit() int {
	if g.MaxEntries > 0 {
		return g.MaxEntries
	}
	return DefaultMaxEntries
}

type Section struct {
	Name   string
	Fields []Field
	Groups []Group
}

// Schema describes the identity fields and sections of one document type.
type Schema struct {
	Identity []Field
	Sections []Section
}

func (s *Schema) Section(name string) (*Section, bool) {
	for i := range s.Sections {
		if s.Sections[i].Name == name {
			return &s.Sections[i], true
		}
	}
	return nil, false
}

// Group resolves a chain of group names ("suppliers", "invoices").
func (s *Section) Group(names ...string) (*Group, bool) {
	if len(names) == 0 {
		return nil, false
	}
	groups := s.Groups
	var found *Group
	for _, name := range names {
		found = nil
		for i := range groups {
			if groups[i].Name == name {
				found = &groups[i]
				break
			}
		}
		if found == nil {
			return nil, false
		}
		groups = found.Groups
	}
	return found, true
}

// NewEntry builds an empty entry: scalars absent, nested groups empty.
func (g *Group) NewEntry() map[string]any {
	e := map[string]any{KeyField: newKey()}
	for _, sub := range g.Groups {
		e[sub.Name] = []any{}
	}
	return e
}

// FieldKind resolves the declared kind of the field at a full document path
// ("bookingDetails.customBroker", "supplierDetails.suppliers[0].invoices[1].invoiceDocument").
func (s *Schema) FieldKind(path string) (Kind, bool) {
	segs, err := parsePath(path)
	if err != nil {
		return 0, false
	}
	names := keyNames(segs)
	switch len(names) {
	case 0:
		return 0, false
	case 1:
		f, ok := findField(s.Identity, names[0])
		return f.Kind, ok
	}
	sec, ok := s.Section(names[0])
	if !ok {
		return 0, false
	}
	fields, groups := sec.Fields, sec.Groups
	for _, name := range names[1 : len(names)-1] {
		var found *Group
		for i := range groups {
			if groups[i].Name == name {
				found = &groups[i]
				break
			}
		}
		if found == nil {
			return 0, false
		}
		fields, groups = found.Fields, found.Groups
	}
	f, ok := findField(fields, names[len(names)-1])
	return f.Kind, ok
}

func findField(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// ReferenceKeys collects every field name declared as a reference, plus _id.
func (s *Schema) ReferenceKeys() map[string]struct{} {
	out := map[string]struct{}{IDField: {}}
	add := func(fields []Field) {
		for _, f := range fields {
			if f.Kind == KindReference {
				out[f.Name] = struct{}{}
			}
		}
	}
	var walk func(groups []Group)
	walk = func(groups []Group) {
		for _, g := range groups {
			add(g.Fields)
			walk(g.Groups)
		}
	}
	add(s.Identity)
	for _, sec := range s.Sections {
		add(sec.Fields)
		walk(sec.Groups)
	}
	return out
}

// groupPaths lists the concrete path of every repeating group instance in
// root, parents before children: "supplierDetails.suppliers",
// "supplierDetails.suppliers[0].invoices", ...
func (s *Schema) groupPaths(root map[string]any) []string {
	var out []string
	var walk func(base string, container map[string]any, groups []Group)
	walk = func(base string, container map[string]any, groups []Group) {
		for _, g := range groups {
			p := joinPath(base, g.Name)
			out = append(out, p)
			arr, _ := container[g.Name].([]any)
			if len(g.Groups) == 0 {
				continue
			}
			for i, el := range arr {
				if m, ok := el.(map[string]any); ok {
					walk(formatIndex(p, i), m, g.Groups)
				}
			}
		}
	}
	for _, sec := range s.Sections {
		m, _ := root[sec.Name].(map[string]any)
		walk(sec.Name, m, sec.Groups)
	}
	return out
}

func formatIndex(base string, i int) string {
	return base + segment{index: i, isIndex: true}.String()
}
