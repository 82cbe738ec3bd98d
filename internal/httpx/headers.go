package httpx

import "strings"

// Header represents a single HTTP header field (case preserved as seen on wire).
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Keys are compared case-sensitively, the
// way they were received; a repeated key keeps its first position and the last value.
type Headers []Header

// Get returns the value stored under exactly name, or empty.
func (h Headers) Get(name string) string {
	for _, f := range h {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// GetFold returns the first value whose key matches name case-insensitively.
func (h Headers) GetFold(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Set replaces the value stored under name or appends a new field.
func (h *Headers) Set(name, value string) {
	for i, f := range *h {
		if f.Name == name {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Header{Name: name, Value: value})
}

// Overlay returns a copy of h with every field of bundle set on top of it. A bundle
// field replaces every client field whose key matches it case-insensitively, taking the
// position of the first match. Applying the same bundle twice is a no-op.
func (h Headers) Overlay(bundle Headers) Headers {
	out := make(Headers, 0, len(h)+len(bundle))
	placed := make([]bool, len(bundle))
	for _, f := range h {
		i := bundle.indexFold(f.Name)
		switch {
		case i < 0:
			out = append(out, f)
		case !placed[i]:
			out = append(out, bundle[i])
			placed[i] = true
		}
	}
	for i, f := range bundle {
		if !placed[i] {
			out = append(out, f)
		}
	}
	return out
}

func (h Headers) indexFold(name string) int {
	for i, f := range h {
		if strings.EqualFold(f.Name, name) {
			return i
		}
	}
	return -1
}
