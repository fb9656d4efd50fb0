package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultFPS    = 15
)

// Format is a requested stream configuration.
type Format struct {
	Width       int
	Height      int
	PixelFormat v4l2.FourCCType
}

func RGB24(width, height int) Format {
	return Format{Width: width, Height: height, PixelFormat: v4l2.PixelFmtRGB24}
}

func JPEG(width, height int) Format {
	return Format{Width: width, Height: height, PixelFormat: v4l2.PixelFmtJPEG}
}

// Camera owns one V4L2 device. Only one stream can be open at a time.
type Camera struct {
	devName string
	fps     int
	ctx     context.Context

	lock   sync.Mutex
	cancel context.CancelFunc
	camera *device.Device
	actual v4l2.PixFormat

	settings Settings
}

func New(ctx context.Context, devName string, fps int) *Camera {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Camera{ctx: ctx, devName: devName, fps: fps, settings: DefaultSettings()}
}

func (c *Camera) FPS() int {
	return c.fps
}

func (c *Camera) open(f Format) error {
	if c.camera != nil {
		return StartedErr
	}
	camera, err := device.Open(
		c.devName,
		device.WithBufferSize(1),
		device.WithFPS(uint32(c.fps)),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: f.PixelFormat,
			Width:       uint32(f.Width),
			Height:      uint32(f.Height),
			Field:       v4l2.FieldNone,
		}),
	)
	if err != nil {
		return err
	}
	c.camera = camera

	// the driver may align the requested size
	actual, err := v4l2.GetPixFormat(camera.Fd())
	if err != nil {
		_ = camera.Close()
		c.camera = nil
		return err
	}
	c.actual = actual

	return nil
}

// Start opens the device with f and returns its frame channel.
func (c *Camera) Start(f Format) (<-chan []byte, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	logger.Infof("start camera %s in %d*%d", c, f.Width, f.Height)
	err := c.open(f)
	if err != nil {
		return nil, err
	}

	newCtx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	if err = c.camera.Start(newCtx); err != nil {
		cancel()
		c.cancel = nil
		_ = c.camera.Close()
		c.camera = nil
		return nil, err
	}

	c.applySettings()

	return c.camera.GetOutput(), nil
}

// StartWithRetry retries Start while the driver reports EBUSY, which happens
// shortly after a previous stream was closed.
func (c *Camera) StartWithRetry(f Format, attempts int) (<-chan []byte, error) {
	var (
		fr  <-chan []byte
		err error
	)
	for i := 0; i < attempts; i++ {
		fr, err = c.Start(f)
		if err == nil {
			return fr, nil
		}
		if !isBusyErr(err) {
			break
		}
		logger.Warnf("camera busy, will retry %d/%d: %v", i+1, attempts, err)
		time.Sleep(150 * time.Millisecond)
	}
	return nil, err
}

// ActualFormat returns the size negotiated with the driver for the open stream.
func (c *Camera) ActualFormat() (width, height int, err error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera == nil {
		return 0, 0, NotStartedErr
	}
	return int(c.actual.Width), int(c.actual.Height), nil
}

func (c *Camera) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel != nil {
		// cancel first so the streaming goroutine stops the device before Close
		c.cancel()
		time.Sleep(100 * time.Millisecond)
		c.cancel = nil
	}
	if c.camera != nil {
		err := c.camera.Close()
		c.camera = nil
		return err
	}
	return nil
}

func (c *Camera) Settings() Settings {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.settings
}

// UpdateSettings stores s and applies it to the running stream, if any.
func (c *Camera) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.lock.Lock()
	defer c.lock.Unlock()

	c.settings = s
	c.applySettings()

	return nil
}

func (c *Camera) applySettings() {
	if c.camera == nil {
		return
	}
	for k, v := range c.settings.Controls() {
		if err := c.camera.SetControlValue(k, v); err != nil {
			logger.Warnf("set ctrl(%d) to %d, err: %s", k, v, err)
		}
	}
}

func (c *Camera) String() string {
	return fmt.Sprintf("%s@%dfps", c.devName, c.fps)
}

// SetControlValue applies a single control to the running stream.
func (c *Camera) SetControlValue(key v4l2.CtrlID, value v4l2.CtrlValue) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.camera == nil {
		return NotStartedErr
	}

	return c.camera.SetControlValue(key, value)
}
