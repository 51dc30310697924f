// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	binlog "github.com/go-mysql-org/go-mysql/replication"

	mysqllib "github.com/xataio/mystream/internal/mysql"
)

type binlogStreamer interface {
	GetEvent(ctx context.Context) (*binlog.BinlogEvent, error)
}

type binlogSyncer interface {
	StartSync(pos gomysql.Position) (binlogStreamer, error)
	Close()
}

type syncerBuilder func(cfg binlog.BinlogSyncerConfig) binlogSyncer

type metadataQuerier interface {
	BinaryLogs(ctx context.Context) ([]mysqllib.BinaryLog, error)
	BinlogStatus(ctx context.Context) (*mysqllib.BinlogStatus, error)
	BinlogFormat(ctx context.Context) (string, error)
	TableMetadata(ctx context.Context, schema, table string) (*mysqllib.TableMetadata, error)
	Close() error
}

type syncer struct {
	*binlog.BinlogSyncer
}

func newSyncer(cfg binlog.BinlogSyncerConfig) binlogSyncer {
	return &syncer{BinlogSyncer: binlog.NewBinlogSyncer(cfg)}
}

func (s *syncer) StartSync(pos gomysql.Position) (binlogStreamer, error) {
	return s.BinlogSyncer.StartSync(pos)
}
