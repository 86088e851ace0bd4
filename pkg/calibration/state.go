package calibration

import "time"

// stepState tracks RAMP/DWELL for a single step. DWELL latches: once the
// bath has reported stable the step never returns to RAMP.
type stepState struct {
	total      uint32
	dwelling   bool
	dwellStart time.Time
}

func newStepState(step Step) *stepState {
	return &stepState{total: step.DwellSeconds()}
}

// Advance feeds one tick. Completion is only evaluated on ticks after the
// one that entered DWELL, so a zero dwell finishes on the next tick.
func (s *stepState) Advance(stable bool, now time.Time) (phase Phase, elapsed uint32, done bool) {
	if !s.dwelling {
		if !stable {
			return PhaseRamp, 0, false
		}
		s.dwelling = true
		s.dwellStart = now
		return PhaseDwell, 0, false
	}

	if d := now.Sub(s.dwellStart); d > 0 {
		elapsed = uint32(d / time.Second)
	}
	return PhaseDwell, elapsed, elapsed >= s.total
}
