// SPDX-License-Identifier: Apache-2.0

package cdc

import (
	"fmt"
	"time"
)

// Operation is the kind of row change captured from a source.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) IsValid() bool {
	switch o {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	default:
		return false
	}
}

// Event is a normalised row change. Events of a source are produced and
// consumed in strictly increasing Position order.
type Event struct {
	SourceID  string
	Operation Operation
	// Key is the stringified primary key, unique within the source.
	Key string
	// Fields holds the row image. Empty for deletes.
	Fields   map[string]any
	Position Position

	Schema     string
	Table      string
	CommitTime time.Time
}

func (e *Event) IsDelete() bool {
	return e.Operation == OperationDelete
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s/%s@%s", e.Operation, e.SourceID, e.Key, e.Position)
}

// MaxPosition returns the highest position of the events on input.
func MaxPosition(events []*Event) Position {
	var max Position
	for _, e := range events {
		if max.Less(e.Position) {
			max = e.Position
		}
	}
	return max
}
