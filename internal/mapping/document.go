package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Geometry describes the shapes the mapping document must fit inside.
// TeacherLayers counts hidden-state blocks (embedding output plus one
// per transformer layer), so a 12-layer teacher has 13 blocks.
type Geometry struct {
	TeacherLayers int `koanf:"teacher_layers"`
	StudentLayers int `koanf:"student_layers"`
	Heads         int `koanf:"heads"`
	HeadDim       int `koanf:"head_dim"`
}

// DefaultGeometry matches a 12-layer teacher (13 hidden-state blocks)
// compressed into a 9-block student, 12 heads of 64 dimensions each.
func DefaultGeometry() Geometry {
	return Geometry{
		TeacherLayers: 13,
		StudentLayers: 9,
		Heads:         12,
		HeadDim:       64,
	}
}

// Validate checks that the geometry is usable for schedule building.
func (g Geometry) Validate() error {
	if g.TeacherLayers <= 0 {
		return fmt.Errorf("teacher_layers must be positive, got %d", g.TeacherLayers)
	}
	if g.StudentLayers <= 0 {
		return fmt.Errorf("student_layers must be positive, got %d", g.StudentLayers)
	}
	if g.StudentLayers > g.TeacherLayers {
		return fmt.Errorf("student_layers (%d) exceeds teacher_layers (%d)", g.StudentLayers, g.TeacherLayers)
	}
	if g.Heads <= 0 {
		return fmt.Errorf("heads must be positive, got %d", g.Heads)
	}
	if g.HeadDim <= 0 {
		return fmt.Errorf("head_dim must be positive, got %d", g.HeadDim)
	}
	return nil
}

// Pairing maps one teacher activation slice to one student activation
// slice. Each side carries exactly one address string in a
// layer-compression schedule.
type Pairing struct {
	TeacherVariableNames []string `json:"teacher_variable_names"`
	StudentVariableNames []string `json:"student_variable_names"`
}

// Document is the persisted interchange-variable mapping.
type Document struct {
	InterchangeVariableMappings []Pairing `json:"interchange_variable_mappings"`
}

// TeacherAddresses parses and returns the teacher-side address of
// every pairing, in document order.
func (d *Document) TeacherAddresses() ([]Address, error) {
	return sideAddresses(d, func(p Pairing) []string { return p.TeacherVariableNames }, "teacher")
}

// StudentAddresses parses and returns the student-side address of
// every pairing, in document order.
func (d *Document) StudentAddresses() ([]Address, error) {
	return sideAddresses(d, func(p Pairing) []string { return p.StudentVariableNames }, "student")
}

func sideAddresses(d *Document, side func(Pairing) []string, name string) ([]Address, error) {
	addrs := make([]Address, 0, len(d.InterchangeVariableMappings))
	for i, p := range d.InterchangeVariableMappings {
		names := side(p)
		if len(names) != 1 {
			return nil, fmt.Errorf("pairing %d: expected exactly one %s variable, got %d", i, name, len(names))
		}
		addr, err := ParseAddress(names[0])
		if err != nil {
			return nil, fmt.Errorf("pairing %d: %w", i, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// Validate checks the document against the geometry:
//   - at least one pairing, exactly one address per side per pairing
//   - teacher layer spans in increasing order, non-overlapping, and
//     together covering [0, TeacherLayers) exactly
//   - student layer indices single, strictly increasing, in range
//   - head and dimension spans within the model geometry
func (d *Document) Validate(geo Geometry) error {
	if err := geo.Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}
	if len(d.InterchangeVariableMappings) == 0 {
		return fmt.Errorf("document has no pairings")
	}

	teacher, err := d.TeacherAddresses()
	if err != nil {
		return err
	}
	student, err := d.StudentAddresses()
	if err != nil {
		return err
	}

	headSpan := NewSpan(0, geo.Heads)
	dimSpan := NewSpan(0, geo.HeadDim)
	teacherLayers := NewSpan(0, geo.TeacherLayers)
	studentLayers := NewSpan(0, geo.StudentLayers)

	cursor := 0
	for i, addr := range teacher {
		if !teacherLayers.Contains(addr.Layers) {
			return fmt.Errorf("pairing %d: teacher layers %s outside [0:%d]", i, addr.Layers, geo.TeacherLayers)
		}
		if addr.Layers.Lo != cursor {
			return fmt.Errorf("pairing %d: teacher layers %s do not continue partition at layer %d", i, addr.Layers, cursor)
		}
		cursor = addr.Layers.Hi
		if !headSpan.Contains(addr.Heads) {
			return fmt.Errorf("pairing %d: teacher heads %s outside [0:%d]", i, addr.Heads, geo.Heads)
		}
		if !dimSpan.Contains(addr.Dims) {
			return fmt.Errorf("pairing %d: teacher dimensions %s outside [0:%d]", i, addr.Dims, geo.HeadDim)
		}
	}
	if cursor != geo.TeacherLayers {
		return fmt.Errorf("teacher layer ranges cover [0:%d], want [0:%d]", cursor, geo.TeacherLayers)
	}

	prev := -1
	for i, addr := range student {
		if !addr.Layers.IsSingle() {
			return fmt.Errorf("pairing %d: student layer spec %s must be a single layer", i, addr.Layers)
		}
		if !studentLayers.Contains(addr.Layers) {
			return fmt.Errorf("pairing %d: student layer %s outside [0:%d]", i, addr.Layers, geo.StudentLayers)
		}
		if addr.Layers.Lo <= prev {
			return fmt.Errorf("pairing %d: student layer %d not strictly increasing", i, addr.Layers.Lo)
		}
		prev = addr.Layers.Lo
		if !headSpan.Contains(addr.Heads) {
			return fmt.Errorf("pairing %d: student heads %s outside [0:%d]", i, addr.Heads, geo.Heads)
		}
		if !dimSpan.Contains(addr.Dims) {
			return fmt.Errorf("pairing %d: student dimensions %s outside [0:%d]", i, addr.Dims, geo.HeadDim)
		}
	}

	return nil
}

// Marshal serializes the document with four-space indentation, the
// layout consumed by the distillation trainer.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to marshal mapping document: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes the document to path, creating parent directories
// as needed.
func (d *Document) WriteFile(path string) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create mapping directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write mapping document: %w", err)
	}
	return nil
}

// ReadFile reads a mapping document from path. It does not validate;
// call Validate with the relevant geometry afterwards.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse mapping document %s: %w", path, err)
	}
	return &doc, nil
}
