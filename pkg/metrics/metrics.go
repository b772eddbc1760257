// Package metrics holds small named accumulators used to reduce per-token
// results into report-level aggregates.
package metrics

// Metric is a named reducer over added samples.
type Metric interface {
	Name() string
	Add(v float64)
	Compute() float64
	Count() int
}

// Accumulate sums its samples. An empty metric computes to 0.
type Accumulate struct {
	name   string
	values []float64
}

func NewAccumulate(name string) *Accumulate {
	return &Accumulate{name: name}
}

func (a *Accumulate) Name() string { return a.name }

func (a *Accumulate) Add(v float64) { a.values = append(a.values, v) }

func (a *Accumulate) Count() int { return len(a.values) }

func (a *Accumulate) Compute() float64 {
	sum := 0.0
	for _, v := range a.values {
		sum += v
	}
	return sum
}

// Average is the mean of its samples, 0 when nothing was added.
type Average struct {
	Accumulate
}

func NewAverage(name string) *Average {
	return &Average{Accumulate{name: name}}
}

func (a *Average) Compute() float64 {
	if len(a.values) == 0 {
		return 0
	}
	return a.Accumulate.Compute() / float64(len(a.values))
}
