// SPDX-License-Identifier: Apache-2.0

package json

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshal_SortedKeys(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"username":  "alice",
		"id":        42,
		"source_db": "space_cloud_default",
	}

	want := `{"id":42,"source_db":"space_cloud_default","username":"alice"}`
	for range 10 {
		b, err := Marshal(doc)
		require.NoError(t, err)
		require.JSONEq(t, want, string(b))
		require.Equal(t, want, string(b))
	}
}

func TestUnmarshal_IntegerPrecision(t *testing.T) {
	t.Parallel()

	var doc map[string]any
	require.NoError(t, Unmarshal([]byte(`{"_position":9007199254740993}`), &doc))
	require.Equal(t, int64(9007199254740993), doc["_position"])

	require.Error(t, Unmarshal([]byte(`{"id":`), &doc))
}
