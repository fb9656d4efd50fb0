package difference

// Aggregator folds per-pixel comparisons into the motion quantity. Partial
// aggregators built over disjoint index ranges are combined with Merge, so
// implementations must be associative and order independent.
type Aggregator interface {
	Add(d Delta, differs bool)
	Merge(other Aggregator)
	Value() int64
}

// AggregatorFunc creates an empty Aggregator.
type AggregatorFunc func() Aggregator

// CountDiffering is the default: number of pixels flagged as different.
func CountDiffering() Aggregator { return &count{} }

// SumMagnitude adds the largest channel delta of every differing pixel.
func SumMagnitude() Aggregator { return &magnitude{} }

type count struct{ n int64 }

func (c *count) Add(_ Delta, differs bool) {
	if differs {
		c.n++
	}
}

func (c *count) Merge(other Aggregator) { c.n += other.Value() }

func (c *count) Value() int64 { return c.n }

type magnitude struct{ sum int64 }

func (m *magnitude) Add(d Delta, differs bool) {
	if differs {
		m.sum += int64(d.Max())
	}
}

func (m *magnitude) Merge(other Aggregator) { m.sum += other.Value() }

func (m *magnitude) Value() int64 { return m.sum }

// AggregatorByName resolves the names accepted in configuration files.
func AggregatorByName(name string) (AggregatorFunc, bool) {
	switch name {
	case "", "count":
		return CountDiffering, true
	case "magnitude":
		return SumMagnitude, true
	}
	return nil, false
}
