// SPDX-License-Identifier: Apache-2.0

package router

import (
	"github.com/xataio/mystream/pkg/cdc"
)

// batch accumulates the events of one source, enforcing the strictly
// increasing order of their positions.
type batch struct {
	sourceID    string
	events      []*cdc.Event
	lastSeen    cdc.Position
	hasLastSeen bool
	dropped     int
}

type drainedBatch struct {
	sourceID string
	events   []*cdc.Event
	dropped  int
}

func (b *batch) add(event *cdc.Event) error {
	if event.SourceID != b.sourceID {
		b.dropped++
		return cdc.ErrUnknownSource
	}
	if b.hasLastSeen && !b.lastSeen.Less(event.Position) {
		b.dropped++
		return &cdc.OrderingViolationError{
			SourceID: b.sourceID,
			Last:     b.lastSeen,
			Got:      event.Position,
		}
	}
	b.lastSeen = event.Position
	b.hasLastSeen = true
	b.events = append(b.events, event)
	return nil
}

func (b *batch) size() int {
	return len(b.events)
}

func (b *batch) isEmpty() bool {
	return len(b.events) == 0
}

func (b *batch) drain() *drainedBatch {
	d := &drainedBatch{
		sourceID: b.sourceID,
		events:   b.events,
		dropped:  b.dropped,
	}
	b.events = nil
	b.dropped = 0
	return d
}
