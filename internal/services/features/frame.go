package features

import (
	"math"
	"time"
)

// Frame is a column-oriented feature table aligned to a bar index.
// Columns keep insertion order so the model-facing schema is stable.
type Frame struct {
	index []time.Time
	order []string
	data  map[string][]float64
}

// NewFrame creates an empty frame over the given bar timestamps.
func NewFrame(index []time.Time) *Frame {
	return &Frame{
		index: index,
		data:  make(map[string][]float64),
	}
}

// Set adds or replaces a column. The column length must match the index.
func (f *Frame) Set(name string, values []float64) {
	if _, ok := f.data[name]; !ok {
		f.order = append(f.order, name)
	}
	f.data[name] = values
}

// Column returns a column by name, or nil when absent.
func (f *Frame) Column(name string) []float64 {
	return f.data[name]
}

// Columns returns column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Index returns the bar timestamps.
func (f *Frame) Index() []time.Time { return f.index }

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.index) }

// Row returns one row as a name→value map.
func (f *Frame) Row(i int) map[string]float64 {
	row := make(map[string]float64, len(f.order))
	for _, name := range f.order {
		row[name] = f.data[name][i]
	}
	return row
}

// DropNaN returns a new frame keeping only rows where every column is
// defined. Leading warm-up rows are removed this way before scoring.
func (f *Frame) DropNaN() *Frame {
	keep := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		ok := true
		for _, name := range f.order {
			if math.IsNaN(f.data[name][i]) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, i)
		}
	}

	out := NewFrame(pickTimes(f.index, keep))
	for _, name := range f.order {
		src := f.data[name]
		col := make([]float64, len(keep))
		for j, i := range keep {
			col[j] = src[i]
		}
		out.Set(name, col)
	}
	return out
}

func pickTimes(ts []time.Time, idx []int) []time.Time {
	out := make([]time.Time, len(idx))
	for j, i := range idx {
		out[j] = ts[i]
	}
	return out
}
