// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
)

type TLSConfig struct {
	Enabled bool
	// CaCertFile is the path to the PEM encoded CA certificate. The system
	// pool is used when empty.
	CaCertFile     string
	ClientCertFile string
	ClientKeyFile  string
}

var errInvalidCaCert = errors.New("no certificates found in CA file")

// newTLSConfig builds a tls.Config using the CA and client certificates
// defined in configuration.
func newTLSConfig(config *TLSConfig) (*tls.Config, error) {
	tlsConfig := tls.Config{MinVersion: tls.VersionTLS12}

	if config.ClientCertFile != "" && config.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(config.ClientCertFile, config.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if config.CaCertFile != "" {
		pem, err := os.ReadFile(config.CaCertFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errInvalidCaCert
		}
		tlsConfig.RootCAs = pool
	}

	return &tlsConfig, nil
}

func buildTLSDialer(config *TLSConfig, timeout time.Duration) (*kafka.Dialer, error) {
	tlsConfig, err := newTLSConfig(config)
	if err != nil {
		return nil, fmt.Errorf("loading TLS configuration: %w", err)
	}

	return &kafka.Dialer{
		Timeout:   timeout,
		DualStack: true,
		TLS:       tlsConfig,
	}, nil
}
