package emu

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/PylonGo/internal/native"
)

// wiring connects serial numbers to the most recently created emulated
// device carrying them, the way a signal generator is cabled to a camera.
var (
	wiringMu sync.Mutex
	wiring   = make(map[string]*device)
)

func wire(devices []*device) {
	wiringMu.Lock()
	defer wiringMu.Unlock()
	for _, d := range devices {
		wiring[d.serial] = d
	}
}

// DriveLine sets the level of an input line of the emulated device with the
// given serial number. An edge matching TriggerActivation fires a frame
// trigger when TriggerSource selects that line.
func DriveLine(serial, line string, high bool) error {
	wiringMu.Lock()
	d := wiring[serial]
	wiringMu.Unlock()
	if d == nil {
		return fmt.Errorf("no emulated device with serial number %q", serial)
	}
	return native.Try(func() { d.driveLine(line, high) })
}
