// SPDX-License-Identifier: Apache-2.0

package profiling

import (
	"errors"
	"log"
	"net/http"
	"net/http/pprof"
	"time"
)

// StartProfilingServer serves the /debug/pprof endpoints on address in the
// background, on a dedicated mux so nothing else registered on the default
// mux is exposed. The caller closes the returned server.
func StartProfilingServer(address string) *http.Server {
	srv := &http.Server{
		Addr:              address,
		Handler:           newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("profiling server on %s stopped: %v", address, err)
		}
	}()

	return srv
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
