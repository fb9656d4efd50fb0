package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"picam-motion/pkg/frame"
	"picam-motion/pkg/utils/image"
	"picam-motion/pkg/video"
)

const videoQuality = 85

// CaptureFrame grabs one RGB frame. The driver may align the size, so the
// returned frame can be slightly larger than requested.
func (c *Controller) CaptureFrame(ctx context.Context, width, height int) (*frame.Frame, error) {
	shot, err := c.Capture(ctx, RGB24(width, height))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	f, err := frame.FromRGB24(shot.Data, shot.Width, shot.Height)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	return f, nil
}

// CapturePhoto captures a frame and encodes it as JPEG with quality in [1,100].
func (c *Controller) CapturePhoto(ctx context.Context, width, height, quality int) ([]byte, error) {
	f, err := c.CaptureFrame(ctx, width, height)
	if err != nil {
		return nil, err
	}
	data, err := image.FrameToJPEG(f, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %w", ErrCapture, err)
	}

	return data, nil
}

// RecordVideo writes an MJPEG AVI of the given duration to path and returns the
// number of frames written. The parent directory of path must exist.
func (c *Controller) RecordVideo(ctx context.Context, path string, width, height int, duration time.Duration) (int, error) {
	if err := CheckTarget(path); err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", duration)
	}

	var cnt int
	err := c.Exclusive(JPEG(width, height), func(frames <-chan []byte, w, h int) (err error) {
		if e := c.cam.SetControlValue(ctrlJPEGQuality, videoQuality); e != nil {
			logger.Warnf("set jpeg quality: %s", e)
		}
		b, err := video.NewBuilder(path, w, h, c.cam.FPS())
		if err != nil {
			return err
		}
		defer func() {
			cnt = b.GetCnt()
			if e := b.Close(); e != nil && err == nil {
				err = e
			}
		}()

		return b.Record(ctx, frames, duration)
	})
	if err != nil {
		return cnt, fmt.Errorf("%w: record %s: %w", ErrCapture, path, err)
	}
	logger.Infof("recorded %d frames to %s", cnt, path)

	return cnt, nil
}

// CheckTarget verifies that the directory path will be written into exists.
func CheckTarget(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: directory %s does not exist", ErrInvalidPath, dir)
	}

	return nil
}

// ShotSource captures a fresh frame on every call, opening the device each
// time. It suits slow polling loops.
type ShotSource struct {
	ctl    *Controller
	width  int
	height int
}

func NewShotSource(ctl *Controller, width, height int) *ShotSource {
	return &ShotSource{ctl: ctl, width: width, height: height}
}

func (s *ShotSource) Capture(ctx context.Context) (*frame.Frame, error) {
	return s.ctl.CaptureFrame(ctx, s.width, s.height)
}

// StreamSource reads frames from the controller's RGB stream.
type StreamSource struct {
	ctl    *Controller
	format Format
	frames <-chan []byte
}

func NewStreamSource(ctl *Controller, width, height int) *StreamSource {
	return &StreamSource{ctl: ctl, format: RGB24(width, height)}
}

func (s *StreamSource) Start() error {
	frames, err := s.ctl.StartStream(s.format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCapture, err)
	}
	s.frames = frames

	return nil
}

func (s *StreamSource) Capture(ctx context.Context) (*frame.Frame, error) {
	if s.frames == nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, NotStartedErr)
	}
	data, err := nextFrame(ctx, s.frames, frameTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	w, h := s.ctl.StreamSize()
	f, err := frame.FromRGB24(data, w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapture, err)
	}

	return f, nil
}

func (s *StreamSource) Close() error {
	s.frames = nil
	return s.ctl.StopStream()
}
