package forecast

// Schema is the ordered feature layout the artifact was trained with,
// built once at bundle load. Alignment from a computed feature row to the
// expected vector is O(1) per name; columns the frame does not provide are
// zero-padded and reported through the coverage ratio.
type Schema struct {
	columns []string
	index   map[string]int
}

// NewSchema builds the schema from the artifact's ordered column list.
func NewSchema(columns []string) *Schema {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Schema{columns: cols, index: idx}
}

// Columns returns the expected columns in training order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// Len returns the expected vector length.
func (s *Schema) Len() int { return len(s.columns) }

// Align maps a computed feature row onto the training order. Missing
// names are zero-padded. The second return is the coverage ratio:
// provided expected columns over total expected columns.
func (s *Schema) Align(row map[string]float64) ([]float64, float64) {
	vec := make([]float64, len(s.columns))
	matched := 0
	for name, v := range row {
		if i, ok := s.index[name]; ok {
			vec[i] = v
			matched++
		}
	}
	if len(s.columns) == 0 {
		return vec, 0
	}
	return vec, float64(matched) / float64(len(s.columns))
}
