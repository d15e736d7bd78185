// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Engine counters fed by the reactor and socket paths.

package control

import "sync/atomic"

// Metrics aggregates engine-wide counters. All fields are safe for
// concurrent update.
type Metrics struct {
	Accepted    atomic.Int64
	Active      atomic.Int64
	BytesIn     atomic.Int64
	BytesOut    atomic.Int64
	Disconnects atomic.Int64
	Dropped     atomic.Int64 // commands dropped on a full op queue
}

// NewMetrics returns a zeroed registry.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot renders the counters for observability surfaces.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"accepted":    m.Accepted.Load(),
		"active":      m.Active.Load(),
		"bytes_in":    m.BytesIn.Load(),
		"bytes_out":   m.BytesOut.Load(),
		"disconnects": m.Disconnects.Load(),
		"dropped":     m.Dropped.Load(),
	}
}
