// SPDX-License-Identifier: Apache-2.0

package opensearch

import (
	"github.com/xataio/mystream/internal/searchstore"
)

type Mapper struct{}

const (
	// Lucene's term byte-length limit is 32766. UTF-8 characters may take up
	// to 4 bytes, so keywords are capped at 32766 / 4.
	termByteLengthLimit = 8191

	// deletes are kept as versioned tombstones for this long, an older write
	// arriving within that window is rejected as a conflict
	gcDeletes = "24h"
)

func NewMapper() *Mapper {
	return &Mapper{}
}

func (m *Mapper) GetDefaultIndexSettings() map[string]any {
	return map[string]any{
		"number_of_shards":                 1,
		"number_of_replicas":               1,
		"index.mapping.total_fields.limit": 2000,
		"index.gc_deletes":                 gcDeletes,
	}
}

func (m *Mapper) FieldMapping(fieldType searchstore.Type) (map[string]any, error) {
	switch fieldType {
	case searchstore.LongType:
		return map[string]any{"type": "long"}, nil
	case searchstore.BoolType:
		return map[string]any{"type": "boolean"}, nil
	case searchstore.TextType:
		return map[string]any{"type": "text"}, nil
	case searchstore.KeywordType:
		return map[string]any{
			"type":         "keyword",
			"ignore_above": termByteLengthLimit,
		}, nil
	case searchstore.DateTimeType:
		return map[string]any{
			"type":   "date",
			"format": "strict_date_optional_time||epoch_millis",
		}, nil
	default:
		return nil, searchstore.ErrUnsupportedSearchFieldType
	}
}
