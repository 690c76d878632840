// Package streaming composes the LB's periodic state snapshot and pushes
// it to subscribers over a WebSocket channel (spec.md §4.6).
package streaming

import (
	"time"

	"trafficshape/internal/lb/registry"
)

// WorkerView is one worker's projection in a state snapshot.
type WorkerView struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	Online          bool    `json:"online"`
	ReportedWeight  int     `json:"reported_weight"`
	ManualWeight    *int    `json:"manual_weight"`
	AutoWeight      *int    `json:"auto_weight"`
	EffectiveWeight int     `json:"effective_weight"`
	Assigned        int64   `json:"assigned"`
	AssignedPct     float64 `json:"assigned_pct"`
	OK              int64   `json:"ok"`
	Fail            int64   `json:"fail"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	LastError       *string `json:"last_error"`
	LastSeen        *int64  `json:"last_seen"`
}

// StatePayload is the body of spec.md §6.1's GET /state and the inner
// "payload" of each /stream frame.
type StatePayload struct {
	WeightMode    string       `json:"weight_mode"`
	TotalAssigned int64        `json:"total_assigned"`
	TotalOK       int64        `json:"total_ok"`
	TotalFail     int64        `json:"total_fail"`
	Workers       []WorkerView `json:"workers"`
}

// Frame is the pushed envelope over /stream.
type Frame struct {
	Type    string       `json:"type"`
	Ts      int64        `json:"ts"`
	Payload StatePayload `json:"payload"`
}

// Snapshot takes a consistent read of the registry under its selector
// mutex and releases it before any caller serialises or sends the result.
func Snapshot(reg *registry.Registry) StatePayload {
	reg.Mu.Lock()
	defer reg.Mu.Unlock()

	var totalAssigned, totalOK, totalFail int64
	for _, w := range reg.Workers {
		totalAssigned += w.Assigned
		totalOK += w.OK
		totalFail += w.Fail
	}

	views := make([]WorkerView, 0, len(reg.Workers))
	for _, w := range reg.Workers {
		var pct float64
		if totalAssigned > 0 {
			pct = float64(w.Assigned) / float64(totalAssigned) * 100
		}

		var lastErr *string
		if w.LastError != "" {
			e := w.LastError
			lastErr = &e
		}

		var lastSeen *int64
		if !w.LastSeen.IsZero() {
			ms := w.LastSeen.UnixMilli()
			lastSeen = &ms
		}

		views = append(views, WorkerView{
			ID:              w.ID,
			URL:             w.URL,
			Online:          w.Online,
			ReportedWeight:  w.ReportedWeight,
			ManualWeight:    w.ManualWeight,
			AutoWeight:      w.AutoWeight,
			EffectiveWeight: w.EffectiveWeight,
			Assigned:        w.Assigned,
			AssignedPct:     round3(pct),
			OK:              w.OK,
			Fail:            w.Fail,
			AvgLatencyMs:    round3(w.AvgLatencyMs),
			LastError:       lastErr,
			LastSeen:        lastSeen,
		})
	}

	return StatePayload{
		WeightMode:    string(reg.Mode),
		TotalAssigned: totalAssigned,
		TotalOK:       totalOK,
		TotalFail:     totalFail,
		Workers:       views,
	}
}

// NewFrame wraps a payload as a "state" frame stamped with the current
// time.
func NewFrame(payload StatePayload) Frame {
	return Frame{Type: "state", Ts: time.Now().UnixMilli(), Payload: payload}
}

func round3(f float64) float64 {
	const scale = 1000.0
	return float64(int64(f*scale+sign(f)*0.5)) / scale
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
