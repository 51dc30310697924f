// SPDX-License-Identifier: Apache-2.0

package searchstore

import "fmt"

type Mapper interface {
	GetDefaultIndexSettings() map[string]any
	FieldMapping(Type) (map[string]any, error)
}

type Type uint

const (
	KeywordType Type = iota
	TextType
	LongType
	BoolType
	DateTimeType
)

// IndexBody builds the index creation body for the fields on input, using
// the settings and field mappings of the mapper. Dynamic mapping is left
// enabled so columns without an explicit type are still indexed.
func IndexBody(mapper Mapper, fields map[string]Type) (map[string]any, error) {
	properties := make(map[string]any, len(fields))
	for name, fieldType := range fields {
		mapping, err := mapper.FieldMapping(fieldType)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		properties[name] = mapping
	}

	return map[string]any{
		"settings": mapper.GetDefaultIndexSettings(),
		"mappings": map[string]any{
			"properties": properties,
		},
	}, nil
}
