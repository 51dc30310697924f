// SPDX-License-Identifier: Apache-2.0

package store

import (
	"net/http"

	"github.com/xataio/mystream/internal/searchstore"
	"github.com/xataio/mystream/pkg/cdc/sink"
)

// adapter converts sink documents from and to bulk items of the index.
type adapter struct {
	indexName string
}

func newAdapter(indexName string) *adapter {
	return &adapter{indexName: indexName}
}

func (a *adapter) documentToBulkItem(doc sink.Document) searchstore.BulkItem {
	item := searchstore.BulkItem{
		Doc: doc.Fields,
	}
	bulkIndex := &searchstore.BulkIndex{
		Index:       a.indexName,
		ID:          doc.ID,
		Version:     searchstore.Ptr(doc.Version),
		VersionType: searchstore.VersionTypeExternal,
	}
	if doc.Delete {
		item.Delete = bulkIndex
	} else {
		item.Index = bulkIndex
	}
	return item
}

func (a *adapter) bulkItemToDocumentError(item searchstore.BulkItem) sink.DocumentError {
	docErr := sink.DocumentError{
		Document: sink.Document{
			Fields: item.Doc,
		},
		Error: string(item.Error),
	}
	bulkIndex := item.Index
	if item.Delete != nil {
		bulkIndex = item.Delete
		docErr.Document.Delete = true
	}
	if bulkIndex != nil {
		docErr.Document.ID = bulkIndex.ID
		if bulkIndex.Version != nil {
			docErr.Document.Version = *bulkIndex.Version
		}
	}

	docErr.Severity = a.parseSeverity(item)
	if itemErr := searchstore.ParseItemError(item.Error); itemErr != nil {
		docErr.Error = itemErr.Type + ": " + itemErr.Reason
	}
	return docErr
}

func (a *adapter) parseSeverity(item searchstore.BulkItem) sink.Severity {
	switch item.Status {
	case http.StatusConflict:
		// the stored document has an equal or newer version
		return sink.SeverityStale
	case http.StatusNotFound:
		if item.Delete != nil {
			return sink.SeverityStale
		}
		// the index is gone, writes succeed again once it is recreated
		return sink.SeverityRetriable
	case http.StatusBadRequest:
		// mapping conflict or invalid document
		return sink.SeverityRejected
	default:
		if searchstore.IsRetryableStatus(item.Status) {
			return sink.SeverityRetriable
		}
		return sink.SeverityRejected
	}
}
