/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: weights.go
Description: Weighted operator selection for the Choronzon fuzzer. Each operator
family keeps a weight table; an operator that produced an admitted child is
rewarded multiplicatively, one that produced an unserializable child is penalized.
Weights are renormalized per family and floored to preserve exploration.
*/

package strategies

import "math/rand/v2"

// WeightedSelector picks operator names proportionally to their weights.
type WeightedSelector struct {
	names   []string
	weights []float64
	alpha   float64
	floor   float64
}

// NewWeightedSelector creates a selector over the given names. Initial
// weights come from the initial map; missing entries start uniform.
func NewWeightedSelector(names []string, initial map[string]float64, alpha, floor float64) *WeightedSelector {
	s := &WeightedSelector{
		names:   append([]string(nil), names...),
		weights: make([]float64, len(names)),
		alpha:   alpha,
		floor:   floor,
	}
	for i, name := range s.names {
		w := 1.0
		if initial != nil {
			if iw, ok := initial[name]; ok && iw > 0 {
				w = iw
			}
		}
		s.weights[i] = w
	}
	s.normalize()
	return s
}

// Names returns the operator names in selection order.
func (s *WeightedSelector) Names() []string {
	return append([]string(nil), s.names...)
}

// Weight returns the current normalized weight of an operator.
func (s *WeightedSelector) Weight(name string) float64 {
	for i, n := range s.names {
		if n == name {
			return s.weights[i]
		}
	}
	return 0
}

// Pick selects an operator name by roulette over the current weights.
func (s *WeightedSelector) Pick(rng *rand.Rand) string {
	r := rng.Float64()
	acc := 0.0
	for i, w := range s.weights {
		acc += w
		if r < acc {
			return s.names[i]
		}
	}
	return s.names[len(s.names)-1]
}

// PickOther selects an operator name other than the given one, used when
// the scheduler retries after consecutive no-ops.
func (s *WeightedSelector) PickOther(rng *rand.Rand, exclude string) string {
	if len(s.names) < 2 {
		return s.Pick(rng)
	}
	for {
		name := s.Pick(rng)
		if name != exclude {
			return name
		}
	}
}

// Reward multiplies an operator's weight by (1 + alpha).
func (s *WeightedSelector) Reward(name string) {
	s.scale(name, 1+s.alpha)
}

// Penalize multiplies an operator's weight by (1 - alpha).
func (s *WeightedSelector) Penalize(name string) {
	s.scale(name, 1-s.alpha)
}

func (s *WeightedSelector) scale(name string, factor float64) {
	for i, n := range s.names {
		if n == name {
			s.weights[i] *= factor
			break
		}
	}
	s.normalize()
}

// normalize floors every weight, then rescales the table to sum to one.
func (s *WeightedSelector) normalize() {
	total := 0.0
	for i := range s.weights {
		if s.weights[i] < s.floor {
			s.weights[i] = s.floor
		}
		total += s.weights[i]
	}
	for i := range s.weights {
		s.weights[i] /= total
	}
}
