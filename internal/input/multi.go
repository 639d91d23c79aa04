// internal/input/multi.go
package input

import (
	"errors"

	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/utils"
)

// Multi merges several key sources into one.
type Multi struct {
	sources []interfaces.KeySource
}

// NewMulti skips nil sources.
func NewMulti(sources ...interfaces.KeySource) *Multi {
	m := &Multi{}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// Len is the number of merged sources.
func (m *Multi) Len() int { return len(m.sources) }

// StartListening starts every source. It fails only when none started.
func (m *Multi) StartListening(onKeyDown func(key string)) error {
	var errs []error
	for _, s := range m.sources {
		if err := s.StartListening(onKeyDown); err != nil {
			utils.Logger.Warnf("⚠️ Key source %T failed to start: %v", s, err)
			errs = append(errs, err)
		}
	}
	if len(m.sources) > 0 && len(errs) == len(m.sources) {
		return errors.Join(errs...)
	}
	return nil
}

func (m *Multi) StopListening() {
	for _, s := range m.sources {
		s.StopListening()
	}
}
