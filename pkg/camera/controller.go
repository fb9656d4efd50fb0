package camera

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	frameTimeout  = 5 * time.Second
	startAttempts = 5
)

// Controller multiplexes one device between a long running stream (used by the
// motion monitor) and exclusive one-off jobs such as photos or recordings.
//
// The stream channel returned by StartStream stays open for the lifetime of
// the stream; while an exclusive job runs it simply receives no frames and is
// fed again once the stream has been resumed. StopStream closes it.
type Controller struct {
	mu sync.Mutex

	cam *Camera

	streamCh  chan []byte
	loopStop  chan struct{}
	srcUpdate chan (<-chan []byte)

	// requested and negotiated stream format, kept to resume after a job
	stream       Format
	streamWidth  int
	streamHeight int

	streaming bool
}

func NewController(cam *Camera) *Controller {
	return &Controller{cam: cam}
}

func (c *Controller) Camera() *Camera {
	return c.cam
}

// StartStream starts the device with f and returns the stream channel.
func (c *Controller) StartStream(f Format) (<-chan []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming {
		return nil, errors.New("stream already started")
	}

	frames, err := c.cam.StartWithRetry(f, startAttempts)
	if err != nil {
		return nil, err
	}
	w, h, err := c.cam.ActualFormat()
	if err != nil {
		_ = c.cam.Stop()
		return nil, err
	}

	if c.streamCh == nil {
		c.streamCh = make(chan []byte, 1)
		c.loopStop = make(chan struct{})
		c.srcUpdate = make(chan (<-chan []byte), 1)
		go c.streamLoop(c.streamCh, c.loopStop, c.srcUpdate)
	}
	c.stream = f
	c.streamWidth, c.streamHeight = w, h
	c.streaming = true

	c.srcUpdate <- frames

	return c.streamCh, nil
}

// StreamSize returns the negotiated size of the running stream.
func (c *Controller) StreamSize() (width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamWidth, c.streamHeight
}

func (c *Controller) StopStream() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.streaming && c.streamCh == nil {
		return nil
	}
	c.streaming = false
	// stop the device first so the loop stops receiving
	err := c.cam.Stop()
	if c.loopStop != nil {
		close(c.loopStop)
		c.loopStop = nil
	}
	// the loop closes streamCh
	c.srcUpdate = nil
	c.streamCh = nil

	return err
}

// Shot is one captured buffer and the size the driver delivered it in.
type Shot struct {
	Data   []byte
	Width  int
	Height int
}

// Capture grabs a single buffer in format f.
func (c *Controller) Capture(ctx context.Context, f Format) (*Shot, error) {
	var shot *Shot
	err := c.Exclusive(f, func(frames <-chan []byte, width, height int) error {
		data, err := nextFrame(ctx, frames, frameTimeout)
		if err != nil {
			return err
		}
		shot = &Shot{Data: data, Width: width, Height: height}
		return nil
	})

	return shot, err
}

// Exclusive pauses the stream, runs fn against a device opened with f and
// resumes the stream afterwards.
func (c *Controller) Exclusive(f Format, fn func(frames <-chan []byte, width, height int) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasStreaming := c.streaming
	if wasStreaming {
		c.streaming = false
		_ = c.cam.Stop()
	}

	err := c.runJob(f, fn)

	if wasStreaming {
		if e2 := c.resumeStream(); e2 != nil {
			logger.Warnf("failed to resume stream after capture: %v", e2)
		}
	}

	return err
}

func (c *Controller) runJob(f Format, fn func(frames <-chan []byte, width, height int) error) error {
	frames, err := c.cam.StartWithRetry(f, startAttempts)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.cam.Stop()
	}()

	w, h, err := c.cam.ActualFormat()
	if err != nil {
		return err
	}

	return fn(frames, w, h)
}

// resumeStream restarts the stream in its previous format. Caller holds mu.
func (c *Controller) resumeStream() error {
	// give the driver time to release the device
	time.Sleep(50 * time.Millisecond)
	fr, err := c.cam.StartWithRetry(c.stream, startAttempts)
	if err != nil {
		return err
	}
	c.streaming = true
	c.srcUpdate <- fr

	return nil
}

// streamLoop forwards frames of the current source to out. It keeps out open
// across source switches and only closes it on stop.
func (c *Controller) streamLoop(out chan []byte, stop <-chan struct{}, update <-chan (<-chan []byte)) {
	defer close(out)

	var current <-chan []byte
	for {
		if current == nil {
			select {
			case <-stop:
				return
			case ch := <-update:
				current = ch
			}
			continue
		}

		select {
		case <-stop:
			return
		case ch := <-update:
			current = ch
		case frame, ok := <-current:
			if !ok {
				// source ended, wait for the next one
				current = nil
				continue
			}
			if frame == nil {
				continue
			}
			// drop the frame if the consumer is slow
			select {
			case out <- append([]byte(nil), frame...):
			default:
			}
		}
	}
}

func nextFrame(ctx context.Context, frames <-chan []byte, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f, ok := <-frames:
		if !ok {
			return nil, errors.New("stream closed")
		}
		return append([]byte(nil), f...), nil
	case <-timer.C:
		return nil, errors.New("frame timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) Settings() Settings {
	return c.cam.Settings()
}

func (c *Controller) UpdateSettings(s Settings) error {
	return c.cam.UpdateSettings(s)
}
