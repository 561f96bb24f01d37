package frontmatter

// Kind identifies which of the supported value shapes a Value holds.
type Kind int

const (
	// KindNull values are omitted when serializing.
	KindNull Kind = iota
	KindScalar
	KindSequence
	KindMapping
)

// Value is a frontmatter value: a scalar string, a sequence of strings, or a
// one-level mapping of string keys to string values.
type Value struct {
	Kind   Kind
	Scalar string
	Items  []string
	Fields *Fields
}

// Scalar returns a scalar value.
func Scalar(s string) Value {
	return Value{Kind: KindScalar, Scalar: s}
}

// Sequence returns a sequence value holding items.
func Sequence(items ...string) Value {
	return Value{Kind: KindSequence, Items: append([]string{}, items...)}
}

// Mapping returns a nested mapping value. A nil fields yields an empty mapping.
func Mapping(fields *Fields) Value {
	if fields == nil {
		fields = NewFields()
	}
	return Value{Kind: KindMapping, Fields: fields}
}

// Fields is an insertion-ordered string to string mapping, used for the
// single level of nesting the header grammar allows.
type Fields struct {
	keys   []string
	values map[string]string
}

// NewFields returns an empty mapping.
func NewFields() *Fields {
	return &Fields{values: make(map[string]string)}
}

// Get returns the value for key.
func (f *Fields) Get(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Set stores value under key. Existing keys keep their position.
func (f *Fields) Set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Delete removes key if present.
func (f *Fields) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string {
	return append([]string{}, f.keys...)
}

// Len returns the number of keys.
func (f *Fields) Len() int {
	return len(f.keys)
}

// Clone returns a deep copy.
func (f *Fields) Clone() *Fields {
	c := NewFields()
	for _, k := range f.keys {
		c.Set(k, f.values[k])
	}
	return c
}

// Frontmatter is the ordered header of a markdown document.
type Frontmatter struct {
	keys   []string
	values map[string]Value
}

// New returns an empty frontmatter.
func New() *Frontmatter {
	return &Frontmatter{values: make(map[string]Value)}
}

// Get returns the value stored under key.
func (fm *Frontmatter) Get(key string) (Value, bool) {
	v, ok := fm.values[key]
	return v, ok
}

// Set stores v under key. Existing keys keep their position.
func (fm *Frontmatter) Set(key string, v Value) {
	if _, ok := fm.values[key]; !ok {
		fm.keys = append(fm.keys, key)
	}
	fm.values[key] = v
}

// Delete removes key if present.
func (fm *Frontmatter) Delete(key string) {
	if _, ok := fm.values[key]; !ok {
		return
	}
	delete(fm.values, key)
	for i, k := range fm.keys {
		if k == key {
			fm.keys = append(fm.keys[:i], fm.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the top-level keys in insertion order.
func (fm *Frontmatter) Keys() []string {
	return append([]string{}, fm.keys...)
}

// Len returns the number of top-level keys.
func (fm *Frontmatter) Len() int {
	return len(fm.keys)
}

// String returns the scalar stored under key, or "" when the key is absent or
// not a scalar.
func (fm *Frontmatter) String(key string) string {
	v, ok := fm.values[key]
	if !ok || v.Kind != KindScalar {
		return ""
	}
	return v.Scalar
}

// Fields returns the nested mapping stored under key, or nil when the key is
// absent or holds another kind of value.
func (fm *Frontmatter) Fields(key string) *Fields {
	v, ok := fm.values[key]
	if !ok || v.Kind != KindMapping {
		return nil
	}
	return v.Fields
}

// Clone returns a deep copy, so callers can mutate without touching fm.
func (fm *Frontmatter) Clone() *Frontmatter {
	c := New()
	for _, k := range fm.keys {
		v := fm.values[k]
		switch v.Kind {
		case KindSequence:
			v.Items = append([]string{}, v.Items...)
		case KindMapping:
			v.Fields = v.Fields.Clone()
		}
		c.Set(k, v)
	}
	return c
}
