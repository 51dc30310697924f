// SPDX-License-Identifier: Apache-2.0

package json

import (
	"github.com/bytedance/sonic"
)

// api sorts map keys so equal documents and quarantine records always encode
// to the same bytes. Decoded numbers keep their integer precision.
var api = sonic.Config{
	SortMapKeys:    true,
	CopyString:     true,
	ValidateString: true,
	UseInt64:       true,
}.Froze()

func Unmarshal(b []byte, v any) error {
	return api.Unmarshal(b, v)
}

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}
