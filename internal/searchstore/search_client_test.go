// SPDX-License-Identifier: Apache-2.0

package searchstore

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeBulkItems(t *testing.T) {
	t.Parallel()

	items := []BulkItem{
		{
			Index: &BulkIndex{Index: "users", ID: "a", Version: Ptr(int64(10)), VersionType: VersionTypeExternal},
			Doc:   map[string]any{"username": "alice"},
		},
		{
			Delete: &BulkIndex{Index: "users", ID: "b", Version: Ptr(int64(11)), VersionType: VersionTypeExternal},
		},
	}

	buf := &bytes.Buffer{}
	err := EncodeBulkItems(buf, items)
	require.NoError(t, err)

	want := `{"index":{"_index":"users","_id":"a","version":10,"version_type":"external"}}
{"username":"alice"}
{"delete":{"_index":"users","_id":"b","version":11,"version_type":"external"}}
`
	require.Equal(t, want, buf.String())
}

func TestVerifyResponse(t *testing.T) {
	t.Parallel()

	newItems := func() []BulkItem {
		return []BulkItem{
			{Index: &BulkIndex{ID: "a"}},
			{Index: &BulkIndex{ID: "b"}},
			{Delete: &BulkIndex{ID: "c"}},
			{Delete: &BulkIndex{ID: "d"}},
		}
	}

	tests := []struct {
		name string
		body string

		wantFailedIDs []string
		wantStatus    []int
		wantErr       bool
	}{
		{
			name:          "no errors",
			body:          `{"errors":false,"items":[]}`,
			wantFailedIDs: []string{},
		},
		{
			name: "conflict and rejection",
			body: `{"errors":true,"items":[
				{"index":{"status":409,"error":{"type":"version_conflict_engine_exception","reason":"conflict"}}},
				{"index":{"status":201,"result":"created"}},
				{"delete":{"status":404,"result":"not_found"}},
				{"delete":{"status":400,"error":{"type":"illegal_argument_exception","reason":"bad"}}}
			]}`,
			wantFailedIDs: []string{"a", "d"},
			wantStatus:    []int{409, 400},
		},
		{
			name:    "invalid body",
			body:    `{`,
			wantErr: true,
		},
		{
			name:    "item count mismatch",
			body:    `{"errors":true,"items":[{"index":{"status":500}}]}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			failed, err := VerifyResponse([]byte(tc.body), newItems())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			ids := make([]string, 0, len(failed))
			for i, f := range failed {
				if f.Index != nil {
					ids = append(ids, f.Index.ID)
				} else {
					ids = append(ids, f.Delete.ID)
				}
				require.Equal(t, tc.wantStatus[i], f.Status)
			}
			require.Equal(t, tc.wantFailedIDs, ids)
		})
	}
}

func TestParseItemError(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseItemError(nil))

	itemErr := ParseItemError(json.RawMessage(`{"type":"version_conflict_engine_exception","reason":"[a]: version conflict"}`))
	require.NotNil(t, itemErr)
	require.Equal(t, VersionConflictException, itemErr.Type)
	require.Equal(t, "[a]: version conflict", itemErr.Reason)

	itemErr = ParseItemError(json.RawMessage(`not json`))
	require.Equal(t, "not json", itemErr.Reason)
}

func TestIndexBody(t *testing.T) {
	t.Parallel()

	body, err := IndexBody(&testMapper{}, map[string]Type{
		"username":  KeywordType,
		"_position": LongType,
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"settings": map[string]any{"number_of_shards": 1},
		"mappings": map[string]any{
			"properties": map[string]any{
				"username":  map[string]any{"type": "keyword"},
				"_position": map[string]any{"type": "long"},
			},
		},
	}, body)

	_, err = IndexBody(&testMapper{}, map[string]Type{"flag": BoolType})
	require.ErrorIs(t, err, ErrUnsupportedSearchFieldType)
}

type testMapper struct{}

func (m *testMapper) GetDefaultIndexSettings() map[string]any {
	return map[string]any{"number_of_shards": 1}
}

func (m *testMapper) FieldMapping(t Type) (map[string]any, error) {
	switch t {
	case KeywordType:
		return map[string]any{"type": "keyword"}, nil
	case LongType:
		return map[string]any{"type": "long"}, nil
	default:
		return nil, ErrUnsupportedSearchFieldType
	}
}
