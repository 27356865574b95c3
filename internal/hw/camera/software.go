package camera

import (
	"fmt"

	"github.com/cjeanneret/PylonGo/internal/debug"
	"github.com/cjeanneret/PylonGo/pylon"
)

// SoftwareTrigger fires frames by executing the TriggerSoftware command.
type SoftwareTrigger struct {
	cmd   *pylon.CommandParameter
	fired int
}

// NewSoftwareTrigger resolves TriggerSoftware on the camera's device node
// map. Arm the camera with SourceSoftware before firing.
func NewSoftwareTrigger(nm *pylon.NodeMap) (*SoftwareTrigger, error) {
	cmd, err := nm.Command("TriggerSoftware")
	if err != nil {
		return nil, fmt.Errorf("software trigger: %w", err)
	}
	return &SoftwareTrigger{cmd: cmd}, nil
}

// Fire executes TriggerSoftware and waits for the device to accept it.
func (s *SoftwareTrigger) Fire() error {
	if err := s.cmd.Execute(true); err != nil {
		return fmt.Errorf("software trigger: %w", err)
	}
	s.fired++
	debug.Fire("software", s.fired)
	return nil
}

func (s *SoftwareTrigger) Close() error {
	return s.cmd.Release()
}
