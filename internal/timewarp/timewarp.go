// Package timewarp provides the Clock abstraction used by the deadline
// machinery and a development-only virtual clock that can jump to an
// arbitrary moment and run faster than real time. The warp state is kept in
// a small JSON file so the serve process and the timewarp command agree on
// the current virtual time.
package timewarp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/infodesk/internal/workdays"
)

// Clock tells the current time. Production code uses Real; tests and the
// timewarp command substitute deterministic implementations.
type Clock interface {
	Now() time.Time
	Today() time.Time
}

// Real is the system clock.
type Real struct{}

func (Real) Now() time.Time   { return time.Now() }
func (Real) Today() time.Time { return workdays.DateOf(time.Now()) }

// Fixed always tells the same time. Test helper.
type Fixed struct{ At time.Time }

func (f Fixed) Now() time.Time   { return f.At }
func (f Fixed) Today() time.Time { return workdays.DateOf(f.At) }

// State is the persisted warp configuration.
type State struct {
	// WarpedFrom is the real moment the warp was set.
	WarpedFrom time.Time `json:"warped_from"`
	// WarpedTo is the virtual moment the clock was jumped to.
	WarpedTo time.Time `json:"warped_to"`
	// Speedup scales the passage of time; 1 runs at normal speed.
	Speedup float64 `json:"speedup"`
}

// Warped is a clock that reports virtual time derived from a State.
type Warped struct {
	state State
}

func (w Warped) Now() time.Time {
	elapsed := time.Since(w.state.WarpedFrom)
	scaled := time.Duration(float64(elapsed) * w.state.Speedup)
	return w.state.WarpedTo.Add(scaled)
}

func (w Warped) Today() time.Time { return workdays.DateOf(w.Now()) }

// Load returns the clock configured by the state file at path. A missing
// file means no warp is in effect and the real clock is returned.
func Load(path string) (Clock, error) {
	if path == "" {
		return Real{}, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Real{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read timewarp state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse timewarp state: %w", err)
	}
	if state.Speedup <= 0 {
		state.Speedup = 1
	}
	return Warped{state: state}, nil
}

// Set writes a warp state jumping the virtual clock to the given moment.
func Set(path string, jumpTo time.Time, speedup float64) error {
	if speedup <= 0 {
		speedup = 1
	}
	state := State{WarpedFrom: time.Now(), WarpedTo: jumpTo, Speedup: speedup}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write timewarp state: %w", err)
	}
	return nil
}

// Reset removes the warp state so the process falls back to real time.
func Reset(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
