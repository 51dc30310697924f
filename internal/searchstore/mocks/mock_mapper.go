// SPDX-License-Identifier: Apache-2.0

package mocks

import "github.com/xataio/mystream/internal/searchstore"

type Mapper struct {
	GetDefaultIndexSettingsFn func() map[string]any
	FieldMappingFn            func(searchstore.Type) (map[string]any, error)
}

func (m *Mapper) GetDefaultIndexSettings() map[string]any {
	if m.GetDefaultIndexSettingsFn == nil {
		return map[string]any{}
	}
	return m.GetDefaultIndexSettingsFn()
}

func (m *Mapper) FieldMapping(t searchstore.Type) (map[string]any, error) {
	if m.FieldMappingFn == nil {
		return map[string]any{}, nil
	}
	return m.FieldMappingFn(t)
}
