// SPDX-License-Identifier: Apache-2.0

package http

import (
	"context"
)

// Server is the subset of the echo server used by the process, so it can be
// replaced in tests.
type Server interface {
	Start(address string) error
	Shutdown(context.Context) error
}
