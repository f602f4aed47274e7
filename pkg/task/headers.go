package task

import (
	"sort"
	"strings"
)

// Header is one response header field
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of header fields. Duplicate names are kept
// in insertion order.
type Headers []Header

// Add appends a field
func (h *Headers) Add(name, value string) {
	*h = append(*h, Header{Name: name, Value: value})
}

// Get returns the value of the first field whose name matches
// case-insensitively
func (h Headers) Get(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Has reports whether a field with the given name is present
func (h Headers) Has(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Count returns how many fields carry the given name
func (h Headers) Count(name string) int {
	n := 0
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			n++
		}
	}
	return n
}

// Without returns a copy of h with every field named name removed
func (h Headers) Without(name string) Headers {
	out := make(Headers, 0, len(h))
	for _, f := range h {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	return out
}

// Clone returns a copy of h
func (h Headers) Clone() Headers {
	if h == nil {
		return nil
	}
	out := make(Headers, len(h))
	copy(out, h)
	return out
}

// Canonical returns a copy of h with every name rewritten to
// Title-Case-With-Hyphens
func (h Headers) Canonical() Headers {
	out := make(Headers, len(h))
	for i, f := range h {
		out[i] = Header{Name: CanonicalHeaderName(f.Name), Value: f.Value}
	}
	return out
}

// Sorted returns a copy of h ordered by (name, value)
func (h Headers) Sorted() Headers {
	out := h.Clone()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Value < out[j].Value
	})
	return out
}

// CanonicalHeaderName upper-cases the first letter of every
// hyphen-separated part and lower-cases the rest: "x-FORWARDED-for"
// becomes "X-Forwarded-For".
func CanonicalHeaderName(name string) string {
	parts := strings.Split(name, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, "-")
}
