// Package faults implements the worker's fault registry (spec.md
// §4.8): a discriminated set of delay/drop/corrupt/error/cpu_burn
// specs with probabilistic activation and TTL expiry.
package faults

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the fault spec union.
type Kind string

const (
	KindDelay   Kind = "delay"
	KindDrop    Kind = "drop"
	KindCorrupt Kind = "corrupt"
	KindError   Kind = "error"
	KindCPUBurn Kind = "cpu_burn"
)

// Spec is the discriminated, loosely-typed fault body (spec.md §6.1
// "Fault specs"). Only the fields relevant to Kind are populated;
// zero values fall back to the spec's stated defaults.
type Spec struct {
	Kind Kind `json:"kind"`

	// delay / cpu_burn
	DelayMs int `json:"delay_ms,omitempty"`
	BurnMs  int `json:"burn_ms,omitempty"`

	// drop
	Mode       string `json:"mode,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	SleepMs    int    `json:"sleep_ms,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	Probability float64  `json:"probability"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
}

// Fault is one registered fault record.
type Fault struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Spec      Spec       `json:"spec"`
}

// Registry holds an ordered list of fault records under its own
// mutex, independent from the worker's counters (spec.md §5).
type Registry struct {
	mu     sync.Mutex
	faults []*Fault
}

func New() *Registry {
	return &Registry{}
}

// Validate checks a spec's fields against the bounds spec.md §6.1
// states for its kind.
func Validate(s Spec) error {
	if s.Probability < 0 || s.Probability > 1 {
		return errors.New("probability must be in [0, 1]")
	}
	if s.DurationSec != nil && (*s.DurationSec < 0.1 || *s.DurationSec > 86400) {
		return errors.New("duration_sec must be in [0.1, 86400]")
	}

	switch s.Kind {
	case KindDelay:
		if s.DelayMs < 0 || s.DelayMs > 60000 {
			return errors.New("delay_ms must be in [0, 60000]")
		}
	case KindDrop:
		if s.Mode != "503" && s.Mode != "timeout" {
			return errors.New(`drop mode must be "503" or "timeout"`)
		}
		if s.StatusCode < 400 || s.StatusCode > 599 {
			return errors.New("status_code must be in [400, 599]")
		}
		if s.SleepMs < 1 || s.SleepMs > 600000 {
			return errors.New("sleep_ms must be in [1, 600000]")
		}
	case KindCorrupt:
		if s.Mode != "invalid_json" && s.Mode != "bad_fields" {
			return errors.New(`corrupt mode must be "invalid_json" or "bad_fields"`)
		}
	case KindError:
		if s.StatusCode < 100 || s.StatusCode > 599 {
			return errors.New("status_code must be a valid HTTP status")
		}
	case KindCPUBurn:
		if s.BurnMs < 0 {
			return errors.New("burn_ms must be >= 0")
		}
	default:
		return fmt.Errorf("unknown fault kind: %q", s.Kind)
	}
	return nil
}

// Add validates spec, assigns a fresh 12-hex id, and appends the fault.
func (r *Registry) Add(spec Spec) (*Fault, error) {
	if spec.Mode == "" {
		switch spec.Kind {
		case KindDrop:
			spec.Mode = "503"
		case KindCorrupt:
			spec.Mode = "invalid_json"
		}
	}
	if spec.Kind == KindDrop && spec.StatusCode == 0 {
		spec.StatusCode = 503
	}
	if spec.Kind == KindDrop && spec.SleepMs == 0 {
		spec.SleepMs = 5000
	}
	if spec.Kind == KindError && spec.StatusCode == 0 {
		spec.StatusCode = 500
	}
	if spec.Probability == 0 {
		spec.Probability = 1.0
	}

	if err := Validate(spec); err != nil {
		return nil, err
	}

	now := time.Now()
	var expires *time.Time
	if spec.DurationSec != nil {
		t := now.Add(time.Duration(*spec.DurationSec * float64(time.Second)))
		expires = &t
	}

	id, err := newFaultID()
	if err != nil {
		return nil, err
	}

	f := &Fault{ID: id, Kind: spec.Kind, CreatedAt: now, ExpiresAt: expires, Spec: spec}

	r.mu.Lock()
	r.faults = append(r.faults, f)
	r.mu.Unlock()

	return f, nil
}

// List purges expired faults then returns the survivors in insertion
// order.
func (r *Registry) List() []*Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpiredLocked(time.Now())
	out := make([]*Fault, len(r.faults))
	copy(out, r.faults)
	return out
}

// Delete removes the fault with the given id, reporting whether it
// existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, f := range r.faults {
		if f.ID == id {
			r.faults = append(r.faults[:i], r.faults[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every fault and returns how many were removed.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.faults)
	r.faults = nil
	return n
}

// SnapshotActive purges expired faults and returns a copy-by-value
// slice for the handler to evaluate against, so later Adds are
// invisible to a request already in flight (spec.md §4.8).
func (r *Registry) SnapshotActive() []Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpiredLocked(time.Now())
	out := make([]Fault, len(r.faults))
	for i, f := range r.faults {
		out[i] = *f
	}
	return out
}

func (r *Registry) purgeExpiredLocked(now time.Time) {
	kept := r.faults[:0]
	for _, f := range r.faults {
		if f.ExpiresAt == nil || f.ExpiresAt.After(now) {
			kept = append(kept, f)
		}
	}
	r.faults = kept
}

// newFaultID mirrors the original's uuid.uuid4().hex[:12]: a fresh
// UUID with hyphens stripped, truncated to 12 hex characters.
func newFaultID() (string, error) {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:12], nil
}

// ShouldTrigger implements spec.md §4.8's probabilistic activation:
// always true for p >= 1, always false for p <= 0, otherwise a
// uniform draw compared against p.
func ShouldTrigger(p float64) bool {
	if p >= 1.0 {
		return true
	}
	if p <= 0.0 {
		return false
	}
	return rand.Float64() < p
}
