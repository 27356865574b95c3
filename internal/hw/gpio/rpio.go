package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives Raspberry Pi pins through go-rpio. Output pins are the
// trigger side of a camera input line and idle Low; input pins read camera
// output lines and are pulled down so an unconnected line reads Low.
type RPiDriver struct {
	mu    sync.Mutex
	pins  map[int]rpio.Pin
	modes map[int]PinMode
}

// NewRPiDriver maps the GPIO registers. It needs /dev/gpiomem or root.
func NewRPiDriver() (*RPiDriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("gpio: open: %w (not a Raspberry Pi?)", err)
	}
	debug.Info("GPIO registers mapped (go-rpio)")
	return &RPiDriver{pins: map[int]rpio.Pin{}, modes: map[int]PinMode{}}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	r.mu.Lock()
	defer r.mu.Unlock()

	p := rpio.Pin(pin)
	switch mode {
	case Input:
		p.Input()
		p.PullDown()
	case Output:
		p.Output()
		p.Low()
	default:
		return fmt.Errorf("gpio: pin %d: unknown mode %d", pin, mode)
	}
	r.pins[pin] = p
	r.modes[pin] = mode
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok || r.modes[pin] != Output {
		return fmt.Errorf("gpio: pin %d is not set up as output", pin)
	}
	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pins[pin]
	if !ok {
		return Low, fmt.Errorf("gpio: pin %d is not set up", pin)
	}
	level := Level(p.Read() == rpio.High)
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

// Close drives trigger outputs Low, releases every pin to input and unmaps
// the registers.
func (r *RPiDriver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pin, p := range r.pins {
		if r.modes[pin] == Output {
			p.Low()
		}
		p.Input()
		debug.GPIO("Release", pin, Input)
	}
	r.pins = map[int]rpio.Pin{}
	r.modes = map[int]PinMode{}
	return rpio.Close()
}
