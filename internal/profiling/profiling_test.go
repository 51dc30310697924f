// SPDX-License-Identifier: Apache-2.0

package profiling

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMux(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newMux())
	defer server.Close()

	tests := []struct {
		path       string
		wantStatus int
	}{
		{path: "/debug/pprof/", wantStatus: http.StatusOK},
		{path: "/debug/pprof/cmdline", wantStatus: http.StatusOK},
		{path: "/status", wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		res, err := http.Get(server.URL + tc.path)
		require.NoError(t, err)
		res.Body.Close()
		require.Equal(t, tc.wantStatus, res.StatusCode, tc.path)
	}
}
