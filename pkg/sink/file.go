package sink

import (
	"encoding/json"
	"os"
	"sync"

	pkgerrors "github.com/pkg/errors"

	"github.com/itohio/thermocal/pkg/calibration"
)

// File appends snapshots to a JSON-lines file.
type File struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFile opens path for appending, creating it if needed.
func NewFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open snapshot file %s", path)
	}
	return &File{f: f, enc: json.NewEncoder(f)}, nil
}

func (s *File) Publish(snap calibration.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	return s.enc.Encode(snap)
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
