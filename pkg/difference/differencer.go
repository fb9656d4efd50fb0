package difference

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"picam-motion/pkg/frame"
)

// minChunk keeps tiny frames from being split into goroutines that cost more
// than they save.
const minChunk = 1024

// Differencer compares frames with a fixed tolerance and aggregation strategy.
// It holds no per-call state and is safe for concurrent use.
type Differencer struct {
	tolerance int
	aggregate AggregatorFunc
	workers   int
}

type Option func(*Differencer)

func WithAggregator(f AggregatorFunc) Option {
	return func(d *Differencer) {
		if f != nil {
			d.aggregate = f
		}
	}
}

// WithWorkers sets the number of chunks CompareParallel splits the index range
// into. Values below 1 fall back to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(d *Differencer) {
		d.workers = n
	}
}

func New(tolerance int, opts ...Option) (*Differencer, error) {
	if err := ValidateTolerance(tolerance); err != nil {
		return nil, err
	}
	d := &Differencer{
		tolerance: tolerance,
		aggregate: CountDiffering,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.workers < 1 {
		// Use GOMAXPROCS instead of runtime.NumCPU() to respect cgroup limits.
		d.workers = runtime.GOMAXPROCS(0)
	}

	return d, nil
}

func (d *Differencer) Tolerance() int {
	return d.tolerance
}

// Compare runs sequentially over the whole index range.
func (d *Differencer) Compare(a, b []frame.Pixel) (*Result, error) {
	if len(a) != len(b) {
		return nil, &ShapeMismatchError{LenA: len(a), LenB: len(b)}
	}

	mask := make([]bool, len(a))
	agg := d.aggregate()
	d.compareRange(a, b, mask, agg)

	return &Result{Mask: mask, Quantity: agg.Value()}, nil
}

func (d *Differencer) CompareFrames(a, b *frame.Frame) (*Result, error) {
	if err := checkFrames(a, b); err != nil {
		return nil, err
	}
	return d.Compare(a.Pix, b.Pix)
}

// CompareParallel splits the index range into contiguous chunks, compares them
// concurrently and merges the partial aggregates in chunk order. The result is
// identical to Compare.
func (d *Differencer) CompareParallel(ctx context.Context, a, b []frame.Pixel) (*Result, error) {
	if len(a) != len(b) {
		return nil, &ShapeMismatchError{LenA: len(a), LenB: len(b)}
	}

	chunks := Chunks(len(a), d.workers, minChunk)
	if len(chunks) <= 1 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return d.Compare(a, b)
	}

	mask := make([]bool, len(a))
	parts := make([]Aggregator, len(chunks))

	eg, ctx := errgroup.WithContext(ctx)
	for i, c := range chunks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			agg := d.aggregate()
			d.compareRange(a[c.Start:c.End], b[c.Start:c.End], mask[c.Start:c.End], agg)
			parts[i] = agg

			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := d.aggregate()
	for _, p := range parts {
		total.Merge(p)
	}

	return &Result{Mask: mask, Quantity: total.Value()}, nil
}

func (d *Differencer) CompareFramesParallel(ctx context.Context, a, b *frame.Frame) (*Result, error) {
	if err := checkFrames(a, b); err != nil {
		return nil, err
	}
	return d.CompareParallel(ctx, a.Pix, b.Pix)
}

func (d *Differencer) compareRange(a, b []frame.Pixel, mask []bool, agg Aggregator) {
	for i := range a {
		delta := PixelDelta(a[i], b[i])
		differs := delta.Exceeds(d.tolerance)
		mask[i] = differs
		agg.Add(delta, differs)
	}
}

// Chunk is a half-open index range [Start, End).
type Chunk struct {
	Start, End int
}

// Chunks divides n indices into at most parts contiguous ranges of at least
// minSize elements each (the last range absorbs the remainder).
func Chunks(n, parts, minSize int) []Chunk {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if minSize > 0 && n/parts < minSize {
		parts = max(n/minSize, 1)
	}

	size := n / parts
	res := make([]Chunk, 0, parts)
	for i := 0; i < parts; i++ {
		start := i * size
		end := start + size
		if i == parts-1 {
			end = n
		}
		res = append(res, Chunk{Start: start, End: end})
	}
	return res
}
