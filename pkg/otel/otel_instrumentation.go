// SPDX-License-Identifier: Apache-2.0

package otel

type InstrumentationProvider interface {
	NewInstrumentation(name string) *Instrumentation
	Close() error
}

type noopProvider struct{}

func (p *noopProvider) NewInstrumentation(string) *Instrumentation { return nil }
func (p *noopProvider) Close() error                              { return nil }

// NewInstrumentationProvider returns a provider exporting the configured
// signals. Without metrics nor traces it returns a provider whose
// instrumentation is disabled.
func NewInstrumentationProvider(cfg *Config) (InstrumentationProvider, error) {
	if !cfg.enabled() {
		return &noopProvider{}, nil
	}
	return NewProvider(cfg)
}
