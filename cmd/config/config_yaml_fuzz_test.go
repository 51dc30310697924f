// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"testing"

	"github.com/spf13/viper"
)

var config, _ = os.ReadFile("test/test_config.yaml")

func FuzzToStreamConfig(f *testing.F) {
	f.Add(config)
	// Seed with edge cases
	f.Add([]byte(`{}`))
	f.Add([]byte(`sources: []`))
	f.Add([]byte(`sink: {}`))
	f.Add([]byte(`sources: [{mysql: {port: 99999999999}}]`))
	f.Add([]byte(`sources: [{mysql: {server_id: -5}}]`))
	f.Add([]byte(`batch: {max_retries: -1}`))
	f.Add([]byte(`retries: {recovery: {exponential: {max_retries: -3}}}`))
	f.Add([]byte(`sources: !!str invalid_sources_type`))
	f.Add([]byte(`sink: [1, 2, 3]`))
	f.Add([]byte(`checkpoint: {postgres: {url: !!binary "SGVsbG8="}}`))
	f.Add([]byte(`instrumentation: {traces: {sample_ratio: !!str "half"}}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("yaml config parsing panicked: %v", r)
			}
		}()

		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return
		}

		yamlConfig, err := unmarshalYAMLConfig(v)
		if err != nil {
			return
		}

		if _, err := yamlConfig.toStreamConfig(); err != nil {
			t.Logf("Expected error: %v", err)
		}
		if _, err := yamlConfig.Instrumentation.toOtelConfig(); err != nil {
			t.Logf("Expected error: %v", err)
		}
	})
}
