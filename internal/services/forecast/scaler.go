package forecast

import "fmt"

// StandardScaler applies the training-time standardization (x-mean)/scale
// to a feature vector. A zero scale entry is treated as 1 so constant
// training columns pass through centered instead of exploding.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the scaled copy of x.
func (s *StandardScaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) || len(x) != len(s.Scale) {
		return nil, fmt.Errorf("scaler: vector length %d does not match fitted length %d", len(x), len(s.Mean))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		sc := s.Scale[i]
		if sc == 0 {
			sc = 1
		}
		out[i] = (v - s.Mean[i]) / sc
	}
	return out, nil
}
