package gnb

// Balancer selects AMFs by smooth weighted round robin. Each AMF's weight is
// its admission capacity; AMFs the caller reports as ineligible are skipped
// but keep accumulating weight.
type Balancer struct {
	weights []int
	current []int
}

// SetWeight sets the weight of AMF i, growing the table as needed.
func (b *Balancer) SetWeight(i, w int) {
	for len(b.weights) <= i {
		b.weights = append(b.weights, 0)
		b.current = append(b.current, 0)
	}
	b.weights[i] = w
	b.current[i] = 0
}

func (b *Balancer) Len() int {
	return len(b.weights)
}

// Pick returns the chosen AMF index, or false when no AMF is eligible.
// Ties go to the lowest index.
func (b *Balancer) Pick(eligible func(i int) bool) (int, bool) {
	total := 0
	best := -1
	for i, w := range b.weights {
		if w <= 0 {
			continue
		}
		b.current[i] += w
		total += w
		if !eligible(i) {
			continue
		}
		if best < 0 || b.current[i] > b.current[best] {
			best = i
		}
	}
	if best < 0 {
		return -1, false
	}
	b.current[best] -= total
	return best, true
}
