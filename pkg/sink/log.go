package sink

import (
	"github.com/sirupsen/logrus"

	"github.com/itohio/thermocal/pkg/calibration"
)

// Log writes one structured log line per snapshot.
type Log struct {
	log logrus.FieldLogger
}

func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (l *Log) Publish(s calibration.Snapshot) error {
	l.log.WithFields(logrus.Fields{
		"run_id":    s.RunID,
		"step":      s.StepIndex,
		"steps":     s.TotalSteps,
		"phase":     s.Phase,
		"reference": s.ReferenceTemperature,
		"stable":    s.IsStable,
		"elapsed":   s.ElapsedDwellSeconds,
		"dwell":     s.TotalDwellSeconds,
		"samples":   len(s.SensorTemperatures),
		"invalid":   s.InvalidSamples,
	}).Info("Snapshot")
	return nil
}

func (l *Log) Close() error { return nil }
