// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/xataio/mystream/pkg/cdc"
)

// State is the lifecycle state of a source pipeline.
type State string

const (
	StateStarting   State = "STARTING"
	StateStreaming  State = "STREAMING"
	StateRecovering State = "RECOVERING"
	StateStopped    State = "STOPPED"
)

// SourceStatus is a point in time view of a source pipeline.
type SourceStatus struct {
	SourceID      string        `json:"source_id"`
	State         State         `json:"state"`
	LastCommitted *cdc.Position `json:"last_committed,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	Transitions   uint64        `json:"transitions"`
	Batches       uint64        `json:"batches"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Failed reports whether the source stopped because of an error.
func (s SourceStatus) Failed() bool {
	return s.State == StateStopped && s.LastError != ""
}

type statusRegistry struct {
	sources *xsync.MapOf[string, SourceStatus]
	now     func() time.Time
	// onTransition is called with the new state of a source
	onTransition func(sourceID string, from, to State)
}

func newStatusRegistry(sourceIDs []string) *statusRegistry {
	r := &statusRegistry{
		sources:      xsync.NewMapOf[string, SourceStatus](),
		now:          time.Now,
		onTransition: func(string, State, State) {},
	}
	for _, id := range sourceIDs {
		r.sources.Store(id, SourceStatus{SourceID: id, State: StateStarting, UpdatedAt: r.now()})
	}
	return r
}

func (r *statusRegistry) transition(sourceID string, to State, err error) {
	var from State
	r.sources.Compute(sourceID, func(s SourceStatus, _ bool) (SourceStatus, bool) {
		from = s.State
		s.SourceID = sourceID
		if s.State != to {
			s.Transitions++
		}
		s.State = to
		switch {
		case err != nil:
			s.LastError = err.Error()
		case to == StateStreaming:
			s.LastError = ""
		}
		s.UpdatedAt = r.now()
		return s, false
	})
	if from != to {
		r.onTransition(sourceID, from, to)
	}
}

func (r *statusRegistry) committed(sourceID string, pos cdc.Position) {
	r.sources.Compute(sourceID, func(s SourceStatus, _ bool) (SourceStatus, bool) {
		s.SourceID = sourceID
		s.LastCommitted = &pos
		s.Batches++
		s.UpdatedAt = r.now()
		return s, false
	})
}

func (r *statusRegistry) get(sourceID string) (SourceStatus, bool) {
	return r.sources.Load(sourceID)
}

func (r *statusRegistry) list() []SourceStatus {
	statuses := make([]SourceStatus, 0, r.sources.Size())
	r.sources.Range(func(_ string, s SourceStatus) bool {
		statuses = append(statuses, s)
		return true
	})
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].SourceID < statuses[j].SourceID
	})
	return statuses
}
