// Package mapping builds, parses, and validates interchange-variable
// mapping documents: the correspondence between addressed activation
// slices of a teacher and a student transformer used by a
// causal-intervention distillation run.
package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Span is a half-open index range [Lo, Hi).
type Span struct {
	Lo int
	Hi int
}

// NewSpan returns the span [lo, hi).
func NewSpan(lo, hi int) Span {
	return Span{Lo: lo, Hi: hi}
}

// Single returns the one-element span [n, n+1).
func Single(n int) Span {
	return Span{Lo: n, Hi: n + 1}
}

// Len returns the number of indices covered by the span.
func (s Span) Len() int {
	return s.Hi - s.Lo
}

// IsSingle reports whether the span covers exactly one index.
func (s Span) IsSingle() bool {
	return s.Len() == 1
}

// Contains reports whether s fully contains other.
func (s Span) Contains(other Span) bool {
	return other.Lo >= s.Lo && other.Hi <= s.Hi
}

// Overlaps reports whether the two spans share any index.
func (s Span) Overlaps(other Span) bool {
	return s.Lo < other.Hi && other.Lo < s.Hi
}

// Validate checks that the span is non-empty and non-negative.
func (s Span) Validate() error {
	if s.Lo < 0 {
		return fmt.Errorf("span start must be non-negative, got %d", s.Lo)
	}
	if s.Hi <= s.Lo {
		return fmt.Errorf("span [%d:%d] is empty", s.Lo, s.Hi)
	}
	return nil
}

// String formats the span in address syntax: a bare integer for a
// single index, "[lo:hi]" otherwise.
func (s Span) String() string {
	if s.IsSingle() {
		return strconv.Itoa(s.Lo)
	}
	return fmt.Sprintf("[%d:%d]", s.Lo, s.Hi)
}

// Address identifies a slice of a network's internal activations:
// a layer range, an attention-head range, and a feature-dimension
// range. The wire form is "$L:<spec>$H:<spec>$<spec>$" where each
// spec is either a bare integer n (shorthand for [n:n+1]) or a
// half-open range "[lo:hi]".
type Address struct {
	Layers Span
	Heads  Span
	Dims   Span
}

// String renders the address in wire form.
func (a Address) String() string {
	return fmt.Sprintf("$L:%s$H:%s$%s$", a.Layers, a.Heads, a.Dims)
}

// Validate checks all three spans.
func (a Address) Validate() error {
	if err := a.Layers.Validate(); err != nil {
		return fmt.Errorf("layer %w", err)
	}
	if err := a.Heads.Validate(); err != nil {
		return fmt.Errorf("head %w", err)
	}
	if err := a.Dims.Validate(); err != nil {
		return fmt.Errorf("dimension %w", err)
	}
	return nil
}

// ParseAddress parses the wire form of an activation address.
func ParseAddress(s string) (Address, error) {
	orig := s
	if !strings.HasPrefix(s, "$L:") {
		return Address{}, fmt.Errorf("address %q: missing $L: prefix", orig)
	}
	if !strings.HasSuffix(s, "$") {
		return Address{}, fmt.Errorf("address %q: missing trailing $", orig)
	}

	// Strip "$L:" and the trailing "$", leaving "<layers>$H:<heads>$<dims>".
	s = strings.TrimPrefix(s, "$L:")
	s = strings.TrimSuffix(s, "$")

	layersPart, rest, ok := strings.Cut(s, "$H:")
	if !ok {
		return Address{}, fmt.Errorf("address %q: missing $H: field", orig)
	}
	headsPart, dimsPart, ok := strings.Cut(rest, "$")
	if !ok {
		return Address{}, fmt.Errorf("address %q: missing dimension field", orig)
	}

	layers, err := parseSpan(layersPart)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: layer spec: %w", orig, err)
	}
	heads, err := parseSpan(headsPart)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: head spec: %w", orig, err)
	}
	dims, err := parseSpan(dimsPart)
	if err != nil {
		return Address{}, fmt.Errorf("address %q: dimension spec: %w", orig, err)
	}

	addr := Address{Layers: layers, Heads: heads, Dims: dims}
	if err := addr.Validate(); err != nil {
		return Address{}, fmt.Errorf("address %q: %w", orig, err)
	}
	return addr, nil
}

// parseSpan parses a single spec: either "[lo:hi]" or a bare integer.
func parseSpan(s string) (Span, error) {
	if s == "" {
		return Span{}, fmt.Errorf("empty spec")
	}

	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return Span{}, fmt.Errorf("unterminated range %q", s)
		}
		body := s[1 : len(s)-1]
		loStr, hiStr, ok := strings.Cut(body, ":")
		if !ok {
			return Span{}, fmt.Errorf("range %q must be [lo:hi]", s)
		}
		lo, err := strconv.Atoi(loStr)
		if err != nil {
			return Span{}, fmt.Errorf("range start %q is not an integer", loStr)
		}
		hi, err := strconv.Atoi(hiStr)
		if err != nil {
			return Span{}, fmt.Errorf("range end %q is not an integer", hiStr)
		}
		return Span{Lo: lo, Hi: hi}, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return Span{}, fmt.Errorf("spec %q is neither an integer nor a range", s)
	}
	return Single(n), nil
}
