// Package calibration drives a bath through a sequence of setpoints while
// sampling the MU, and emits one Snapshot per control tick.
package calibration

import (
	"errors"
	"time"
)

var (
	// ErrRunActive is returned by Start while another run is in progress.
	ErrRunActive = errors.New("a calibration run is already active")
	// ErrNoSteps is returned by Start for an empty step list.
	ErrNoSteps = errors.New("calibration needs at least one step")
	// ErrStopped is returned by Start when Stop was called during setup.
	ErrStopped = errors.New("calibration stopped during setup")
)

// Phase of the current step.
type Phase string

const (
	PhaseRamp  Phase = "RAMPA"
	PhaseDwell Phase = "DWELL"
)

// Run outcomes reported by Status.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
)

// Units carried in every snapshot. Readings are never converted.
const (
	ReferenceUnit = "C"
	SensorUnit    = "K"
)

// Step is one setpoint of a run.
type Step struct {
	TargetValue  float32 `json:"target_value"`
	DwellMinutes uint32  `json:"dwell_minutes"`
}

// DwellSeconds returns the dwell duration in seconds.
func (s Step) DwellSeconds() uint32 {
	return s.DwellMinutes * 60
}

// Snapshot is the telemetry emitted once per tick. Both readings share
// the same Timestamp.
type Snapshot struct {
	RunID                string    `json:"run_id"`
	Timestamp            int64     `json:"timestamp"`
	ReferenceTemperature float32   `json:"reference_temperature"`
	ReferenceUnit        string    `json:"reference_unit"`
	SensorTemperatures   []float32 `json:"sensor_temperatures"`
	SensorUnit           string    `json:"sensor_unit"`
	InvalidSamples       int       `json:"invalid_samples"`
	IsStable             bool      `json:"is_stable"`
	StepIndex            int       `json:"step_index"`
	TotalSteps           int       `json:"total_steps"`
	ElapsedDwellSeconds  uint32    `json:"elapsed_dwell_seconds"`
	TotalDwellSeconds    uint32    `json:"total_dwell_seconds"`
	Phase                Phase     `json:"phase"`
}

// Time returns the snapshot timestamp as a time.Time.
func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Status describes the current or last run.
type Status struct {
	Running    bool       `json:"running"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    string     `json:"outcome,omitempty"`
	StepIndex  int        `json:"step_index"`
	TotalSteps int        `json:"total_steps"`
	Phase      Phase      `json:"phase,omitempty"`
	SensorUID  uint32     `json:"sensor_uid"`
}
