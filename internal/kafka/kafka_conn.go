// SPDX-License-Identifier: Apache-2.0

package kafka

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

type ConnConfig struct {
	Servers []string
	Topic   TopicConfig
	TLS     *TLSConfig
}

type TopicConfig struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	AutoCreate        bool
}

const defaultDialTimeout = 10 * time.Second

func (t TopicConfig) numPartitions() int {
	return max(t.NumPartitions, 1)
}

func (t TopicConfig) replicationFactor() int {
	return max(t.ReplicationFactor, 1)
}

var errNoServers = errors.New("no kafka servers provided")

// withConnection runs the operation on input against the cluster controller,
// closing the connections afterwards.
func withConnection(cfg *ConnConfig, op func(conn *kafka.Conn) error) error {
	if len(cfg.Servers) == 0 {
		return errNoServers
	}

	dialer, err := buildDialer(cfg.TLS)
	if err != nil {
		return err
	}

	conn, err := dialer.Dial("tcp", cfg.Servers[0])
	if err != nil {
		return fmt.Errorf("dialing kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("getting kafka controller: %w", err)
	}

	controllerConn, err := dialer.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dialing kafka controller: %w", err)
	}
	defer controllerConn.Close()

	return op(controllerConn)
}

func buildDialer(tlsConfig *TLSConfig) (*kafka.Dialer, error) {
	if tlsConfig != nil && tlsConfig.Enabled {
		return buildTLSDialer(tlsConfig, defaultDialTimeout)
	}
	return &kafka.Dialer{
		Timeout:   defaultDialTimeout,
		DualStack: true,
	}, nil
}
