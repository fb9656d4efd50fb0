// Package indicator drives an optional on/off hardware signal such as an LED.
//
// GPIO availability is checked once by Init and stored process-wide. When the
// check fails every call degrades to a no-op; callers never see an error.
package indicator

import (
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"go.uber.org/zap"

	"picam-motion/pkg/utils"
)

const DefaultPin = 17

type Indicator interface {
	Set(on bool)
}

// Nop is used when no indicator hardware is present.
type Nop struct{}

func (Nop) Set(bool) {}

// GPIO drives a single output pin.
type GPIO struct {
	lock sync.Mutex
	pin  rpio.Pin
	on   bool
}

func (g *GPIO) Set(on bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if on {
		g.pin.High()
	} else {
		g.pin.Low()
	}
	g.on = on
}

func (g *GPIO) State() bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.on
}

var (
	logger *zap.SugaredLogger

	// swapped in tests
	openGPIO  = rpio.Open
	closeGPIO = rpio.Close
	newOutput = func(pin int) Indicator {
		p := rpio.Pin(pin)
		p.Output()
		return &GPIO{pin: p}
	}

	once      sync.Once
	lock      sync.RWMutex
	available bool
	current   Indicator = Nop{}
	state     bool
)

func init() {
	logger = utils.GetLogger()
}

// Init opens GPIO memory and configures pin as output. Only the first call
// touches the hardware; later calls return the stored result.
func Init(pin int) bool {
	once.Do(func() {
		if err := openGPIO(); err != nil {
			logger.Infof("indicator: gpio unavailable, indicator disabled: %s", err)
			return
		}
		lock.Lock()
		available = true
		current = newOutput(pin)
		lock.Unlock()
		logger.Infof("indicator: using gpio pin %d", pin)
	})

	return Available()
}

func Available() bool {
	lock.RLock()
	defer lock.RUnlock()
	return available
}

// Set turns the indicator on or off. It is a no-op without hardware.
func Set(on bool) {
	lock.Lock()
	defer lock.Unlock()
	current.Set(on)
	state = on
}

func On() { Set(true) }

func Off() { Set(false) }

// State reports the last requested state, even when unavailable.
func State() bool {
	lock.RLock()
	defer lock.RUnlock()
	return state
}

// Default returns a handle that routes through the process-wide indicator.
func Default() Indicator {
	return global{}
}

type global struct{}

func (global) Set(on bool) { Set(on) }

// Close switches the indicator off and releases GPIO memory.
func Close() error {
	if !Available() {
		return nil
	}
	Off()
	return closeGPIO()
}
