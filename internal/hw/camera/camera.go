package camera

import (
	"fmt"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/pylon"
)

// Trigger is the high-level interface used by the rest of the application.
// It fires one frame trigger, regardless of how it reaches the camera
// (TriggerSoftware command, GPIO pulse on an input line, etc.).
type Trigger interface {
	// Fire triggers a single frame.
	Fire() error
	// Close releases what the trigger holds. The camera stays armed.
	Close() error
}

// Source names accepted by Arm.
const (
	SourceSoftware = "Software"
)

// Arm switches the FrameStart trigger on and selects source, e.g. Software
// or Line1. The camera must be open and not grabbing.
func Arm(nm *pylon.NodeMap, source string) error {
	debug.Verbose("Trigger: arming FrameStart on %s", source)
	return setTrigger(nm, "On", source)
}

// Disarm switches the FrameStart trigger off so the camera free-runs.
func Disarm(nm *pylon.NodeMap) error {
	debug.Verbose("Trigger: disarming FrameStart")
	return setTrigger(nm, "Off", "")
}

func setTrigger(nm *pylon.NodeMap, mode, source string) error {
	values := [][2]string{{"TriggerSelector", "FrameStart"}, {"TriggerMode", mode}}
	if source != "" {
		values = append(values, [2]string{"TriggerSource", source})
	}
	for _, kv := range values {
		p, err := nm.Enum(kv[0])
		if err != nil {
			return fmt.Errorf("trigger: %w", err)
		}
		err = p.SetValue(kv[1])
		p.Release()
		if err != nil {
			return fmt.Errorf("trigger: set %s=%s: %w", kv[0], kv[1], err)
		}
	}
	return nil
}
