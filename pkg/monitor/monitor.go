// Package monitor runs the motion detection loop: capture, compare with the
// previous frame, drive the indicator and fan out events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"picam-motion/pkg/difference"
	"picam-motion/pkg/frame"
	"picam-motion/pkg/indicator"
	"picam-motion/pkg/metrics"
	"picam-motion/pkg/notify"
	"picam-motion/pkg/storage"
	"picam-motion/pkg/utils"
	"picam-motion/pkg/utils/image"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Source yields frames to compare.
type Source interface {
	Capture(ctx context.Context) (*frame.Frame, error)
}

// Store persists motion snapshots.
type Store interface {
	SaveEvent(image []byte, quantity int64, t time.Time) (*storage.Event, error)
}

// SnapshotFunc captures the JPEG stored for a motion event.
type SnapshotFunc func(ctx context.Context) ([]byte, error)

type Options struct {
	Interval    time.Duration
	MinQuantity int64
	// Cooldown is the minimum time between two stored snapshots.
	Cooldown time.Duration
}

type Event struct {
	Time     time.Time `json:"time"`
	Quantity int64     `json:"quantity"`
	Motion   bool      `json:"motion"`
	Snapshot string    `json:"snapshot,omitempty"`
}

type Stats struct {
	Running       bool      `json:"running"`
	Frames        uint64    `json:"frames"`
	MotionEvents  uint64    `json:"motionEvents"`
	Snapshots     uint64    `json:"snapshots"`
	CaptureErrors uint64    `json:"captureErrors"`
	Resets        uint64    `json:"resets"`
	LastQuantity  int64     `json:"lastQuantity"`
	LastMotion    time.Time `json:"lastMotion"`
	LastError     string    `json:"lastError,omitempty"`
	Tolerance     int       `json:"tolerance"`
	MinQuantity   int64     `json:"minQuantity"`
}

type Monitor struct {
	src  Source
	diff *difference.Differencer
	opts Options

	ind       indicator.Indicator
	store     Store
	snapshot  SnapshotFunc
	publisher notify.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time

	// serializes Step
	stepLock sync.Mutex
	prev     *frame.Frame
	lastSnap time.Time

	mu      sync.RWMutex
	stats   Stats
	pairA   *frame.Frame
	pairB   *frame.Frame
	subs    map[int]chan Event
	nextSub int
	// set once Run returns; later subscribers get a closed channel
	stopped bool
}

type Option func(*Monitor)

func WithIndicator(ind indicator.Indicator) Option {
	return func(m *Monitor) {
		if ind != nil {
			m.ind = ind
		}
	}
}

// WithStore enables motion snapshots. A nil snap stores the compared frame.
func WithStore(s Store, snap SnapshotFunc) Option {
	return func(m *Monitor) {
		m.store = s
		m.snapshot = snap
	}
}

func WithPublisher(p notify.Publisher) Option {
	return func(m *Monitor) {
		if p != nil {
			m.publisher = p
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func New(src Source, diff *difference.Differencer, opts Options, options ...Option) (*Monitor, error) {
	if src == nil || diff == nil {
		return nil, errors.New("monitor: source and differencer are required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive, got %s", opts.Interval)
	}
	m := &Monitor{
		src:       src,
		diff:      diff,
		opts:      opts,
		ind:       indicator.Nop{},
		publisher: notify.Nop{},
		now:       utils.Now,
		subs:      make(map[int]chan Event),
	}
	for _, o := range options {
		o(m)
	}
	m.stats.Tolerance = diff.Tolerance()
	m.stats.MinQuantity = opts.MinQuantity

	return m, nil
}

// Run steps the monitor every interval until ctx is done. Capture errors are
// logged and the tick is skipped.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.opts.Interval)
	defer t.Stop()

	m.setRunning(true)
	defer func() {
		m.setRunning(false)
		m.ind.Set(false)
		m.closeSubscribers()
		logger.Info("monitor: stopped")
	}()
	logger.Infof("monitor: started, interval %s, tolerance %d, min quantity %d",
		m.opts.Interval, m.diff.Tolerance(), m.opts.MinQuantity)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			start := time.Now()
			e, err := m.Step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Warnf("monitor: %s", err)
				continue
			}
			if e != nil {
				logger.Debugf("monitor: quantity %d, motion %t, took %s", e.Quantity, e.Motion, time.Since(start))
			}
		}
	}
}

// Step captures one frame and compares it with the previous one. The first
// frame and frames following a shape change only become the new reference and
// yield a nil event.
func (m *Monitor) Step(ctx context.Context) (*Event, error) {
	m.stepLock.Lock()
	defer m.stepLock.Unlock()

	cur, err := m.src.Capture(ctx)
	if err != nil {
		m.captureFailed(err)
		return nil, fmt.Errorf("capture: %w", err)
	}

	prev := m.prev
	m.prev = cur
	if prev == nil {
		return nil, nil
	}

	start := time.Now()
	res, err := m.diff.CompareFramesParallel(ctx, prev, cur)
	if err != nil {
		if errors.Is(err, difference.ErrShapeMismatch) {
			logger.Warnf("monitor: frame shape changed, resetting reference: %s", err)
			m.mu.Lock()
			m.stats.Resets++
			m.mu.Unlock()
			if m.metrics != nil {
				m.metrics.ReferenceReset()
			}
			return nil, nil
		}
		m.prev = prev
		return nil, err
	}
	took := time.Since(start)

	motion := res.Quantity > m.opts.MinQuantity
	m.ind.Set(motion)

	e := Event{
		Time:     m.now(),
		Quantity: res.Quantity,
		Motion:   motion,
	}
	if motion {
		e.Snapshot = m.saveSnapshot(ctx, cur, e)
	}

	m.mu.Lock()
	m.stats.Frames++
	m.stats.LastQuantity = res.Quantity
	m.stats.LastError = ""
	if motion {
		m.stats.MotionEvents++
		m.stats.LastMotion = e.Time
	}
	if e.Snapshot != "" {
		m.stats.Snapshots++
	}
	m.pairA, m.pairB = prev, cur
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ObserveFrame(res.Quantity, motion, took)
		m.metrics.Indicator(motion)
	}
	m.broadcast(e)
	if motion {
		if err := m.publisher.Publish(e); err != nil {
			logger.Warnf("monitor: publish event: %s", err)
		}
	}

	return &e, nil
}

func (m *Monitor) saveSnapshot(ctx context.Context, cur *frame.Frame, e Event) string {
	if m.store == nil {
		return ""
	}
	if !m.lastSnap.IsZero() && e.Time.Sub(m.lastSnap) < m.opts.Cooldown {
		return ""
	}

	var (
		data []byte
		err  error
	)
	if m.snapshot != nil {
		data, err = m.snapshot(ctx)
	} else {
		data, err = image.FrameToJPEG(cur, image.DefaultQuality)
	}
	if err != nil {
		logger.Errorf("monitor: snapshot: %s", err)
		return ""
	}
	saved, err := m.store.SaveEvent(data, e.Quantity, e.Time)
	if err != nil {
		logger.Errorf("monitor: save snapshot: %s", err)
		return ""
	}
	m.lastSnap = e.Time
	logger.Infof("monitor: motion %d, saved %s", e.Quantity, saved.File)

	return saved.File
}

func (m *Monitor) captureFailed(err error) {
	m.mu.Lock()
	m.stats.CaptureErrors++
	m.stats.LastError = err.Error()
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.CaptureError()
	}
}

func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// LatestDiff renders the difference image of the last compared pair, or nil
// before the first comparison.
func (m *Monitor) LatestDiff() (*frame.Frame, error) {
	m.mu.RLock()
	a, b := m.pairA, m.pairB
	m.mu.RUnlock()
	if a == nil || b == nil {
		return nil, nil
	}

	return difference.ImageFrame(a, b, m.diff.Tolerance())
}

// Subscribe returns a channel receiving every event. Events are dropped when
// the subscriber falls behind. The returned func unsubscribes. The channel is
// closed when Run returns, or immediately if it already has.
func (m *Monitor) Subscribe(buf int) (<-chan Event, func()) {
	ch := make(chan Event, max(buf, 1))

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

func (m *Monitor) broadcast(e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (m *Monitor) closeSubscribers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}

func (m *Monitor) setRunning(b bool) {
	m.mu.Lock()
	m.stats.Running = b
	m.mu.Unlock()
}
