package mapping

import (
	"fmt"
)

// BuildSchedule builds a many-to-one layer-compression schedule: the
// teacher's hidden-state blocks are partitioned into StudentLayers
// contiguous ranges, each paired with one student block. When the
// teacher block count is not an exact multiple, the earliest student
// layers absorb the extra blocks. Head and dimension spans are held
// constant at the full geometry on both sides.
func BuildSchedule(geo Geometry) (*Document, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	boundaries := make([]int, 0, geo.StudentLayers+1)
	per := geo.TeacherLayers / geo.StudentLayers
	extra := geo.TeacherLayers % geo.StudentLayers

	cursor := 0
	boundaries = append(boundaries, cursor)
	for i := 0; i < geo.StudentLayers; i++ {
		width := per
		if i < extra {
			width++
		}
		cursor += width
		boundaries = append(boundaries, cursor)
	}

	return BuildScheduleWithBoundaries(geo, boundaries)
}

// BuildScheduleWithBoundaries builds a schedule from explicit
// partition boundaries. boundaries must have StudentLayers+1 strictly
// increasing entries starting at 0 and ending at TeacherLayers; record
// i maps teacher layers [boundaries[i], boundaries[i+1]) to student
// layer i.
func BuildScheduleWithBoundaries(geo Geometry, boundaries []int) (*Document, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if len(boundaries) != geo.StudentLayers+1 {
		return nil, fmt.Errorf("expected %d boundaries for %d student layers, got %d",
			geo.StudentLayers+1, geo.StudentLayers, len(boundaries))
	}
	if boundaries[0] != 0 {
		return nil, fmt.Errorf("boundaries must start at 0, got %d", boundaries[0])
	}
	if last := boundaries[len(boundaries)-1]; last != geo.TeacherLayers {
		return nil, fmt.Errorf("boundaries must end at %d, got %d", geo.TeacherLayers, last)
	}

	heads := NewSpan(0, geo.Heads)
	dims := NewSpan(0, geo.HeadDim)

	doc := &Document{
		InterchangeVariableMappings: make([]Pairing, 0, geo.StudentLayers),
	}
	for i := 0; i < geo.StudentLayers; i++ {
		lo, hi := boundaries[i], boundaries[i+1]
		if hi <= lo {
			return nil, fmt.Errorf("boundary %d: range [%d:%d] is empty", i, lo, hi)
		}

		teacher := Address{Layers: NewSpan(lo, hi), Heads: heads, Dims: dims}
		student := Address{Layers: Single(i), Heads: heads, Dims: dims}
		doc.InterchangeVariableMappings = append(doc.InterchangeVariableMappings, Pairing{
			TeacherVariableNames: []string{teacher.String()},
			StudentVariableNames: []string{student.String()},
		})
	}

	if err := doc.Validate(geo); err != nil {
		return nil, fmt.Errorf("built schedule failed validation: %w", err)
	}
	return doc, nil
}
