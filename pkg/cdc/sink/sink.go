// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/xataio/mystream/pkg/cdc"
)

// Store writes documents to the unified index. Documents are versioned, a
// write with a version not greater than the stored one is not applied.
type Store interface {
	// EnsureIndex creates the index with its mappings if it does not exist.
	EnsureIndex(ctx context.Context) error
	// SendDocuments returns the documents that were not applied. A non nil
	// error means the whole request failed.
	SendDocuments(ctx context.Context, docs []Document) ([]DocumentError, error)
}

// Document is the indexed representation of a change event.
type Document struct {
	ID      string
	Fields  map[string]any
	Version int64
	Delete  bool
	// Event is the change the document was built from.
	Event *cdc.Event
}

type DocumentError struct {
	Document Document
	Severity Severity
	Error    string
}

type Severity uint

const (
	SeverityNone Severity = iota
	// SeverityStale marks a document already stored at an equal or newer
	// version.
	SeverityStale
	SeverityRetriable
	SeverityRejected
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityStale:
		return "STALE"
	case SeverityRetriable:
		return "RETRIABLE"
	case SeverityRejected:
		return "REJECTED"
	default:
		return ""
	}
}

const (
	SourceDBField = "source_db"
	PositionField = "_position"
)

// IDHasher returns the document id of a source row.
type IDHasher func(sourceID, key string) string

// DefaultIDHasher hashes the source id and the row key together, so equal
// keys of different sources never share a document.
func DefaultIDHasher() IDHasher {
	return func(sourceID, key string) string {
		hash := sha256.Sum256([]byte(sourceID + "/" + key))
		return hex.EncodeToString(hash[:])
	}
}

var errEmptyKey = errors.New("event has an empty key")

// NewDocument builds the document for the event on input. Fields of inserts
// and updates are copied and tagged with the source and the position.
func NewDocument(event *cdc.Event, hasher IDHasher) (Document, error) {
	if event.Key == "" {
		return Document{}, errEmptyKey
	}
	doc := Document{
		ID:      hasher(event.SourceID, event.Key),
		Version: event.Position.Version(),
		Delete:  event.IsDelete(),
		Event:   event,
	}
	if doc.Delete {
		return doc, nil
	}

	doc.Fields = make(map[string]any, len(event.Fields)+2)
	for k, v := range event.Fields {
		doc.Fields[k] = v
	}
	doc.Fields[SourceDBField] = event.SourceID
	doc.Fields[PositionField] = doc.Version
	return doc, nil
}
