// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/xataio/mystream/pkg/otel"
	"github.com/xataio/mystream/pkg/stream"
)

var errInvalidSampleRatioValue = errors.New("sample ratio must be between 0.0 and 1.0")

func Load() error {
	return LoadFile(viper.GetString("config"))
}

func LoadFile(file string) error {
	if file == "" {
		return nil
	}
	viper.SetConfigFile(file)
	viper.SetConfigType(filepath.Ext(file)[1:])
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

func ParseStreamConfig() (*stream.Config, error) {
	if isYAMLConfig() {
		yamlCfg, err := unmarshalYAMLConfig(viper.GetViper())
		if err != nil {
			return nil, err
		}
		return yamlCfg.toStreamConfig()
	}
	return envConfigToStreamConfig()
}

func ParseInstrumentationConfig() (*otel.Config, error) {
	if isYAMLConfig() {
		yamlCfg, err := unmarshalYAMLConfig(viper.GetViper())
		if err != nil {
			return nil, err
		}
		return yamlCfg.Instrumentation.toOtelConfig()
	}
	return envToOtelConfig()
}

func isYAMLConfig() bool {
	switch filepath.Ext(viper.GetViper().ConfigFileUsed()) {
	case ".yml", ".yaml":
		return true
	default:
		return false
	}
}

func unmarshalYAMLConfig(v *viper.Viper) (*YAMLConfig, error) {
	yamlCfg := &YAMLConfig{}
	if err := v.Unmarshal(yamlCfg); err != nil {
		return nil, fmt.Errorf("unmarshaling yaml config: %w", err)
	}
	return yamlCfg, nil
}
