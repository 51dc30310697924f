// SPDX-License-Identifier: Apache-2.0

package postgres

import "embed"

// FS holds the migrations of the checkpoint store schema.
//
//go:embed *.sql
var FS embed.FS
