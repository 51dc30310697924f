// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"errors"
	"sync"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	binlog "github.com/go-mysql-org/go-mysql/replication"

	mysqllib "github.com/xataio/mystream/internal/mysql"
)

var errEndOfEvents = errors.New("no more events")

type mockStreamer struct {
	mu     sync.Mutex
	events []*binlog.BinlogEvent
}

func (m *mockStreamer) GetEvent(ctx context.Context) (*binlog.BinlogEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil, errEndOfEvents
	}
	ev := m.events[0]
	m.events = m.events[1:]
	return ev, nil
}

type mockSyncer struct {
	startSyncFn func(gomysql.Position) (binlogStreamer, error)
	closeCalls  int
}

func (m *mockSyncer) StartSync(pos gomysql.Position) (binlogStreamer, error) {
	return m.startSyncFn(pos)
}

func (m *mockSyncer) Close() {
	m.closeCalls++
}

type mockQuerier struct {
	binaryLogsFn    func(context.Context) ([]mysqllib.BinaryLog, error)
	binlogStatusFn  func(context.Context) (*mysqllib.BinlogStatus, error)
	binlogFormatFn  func(context.Context) (string, error)
	tableMetadataFn func(ctx context.Context, schema, table string) (*mysqllib.TableMetadata, error)
	tableCalls      int
}

func (m *mockQuerier) BinaryLogs(ctx context.Context) ([]mysqllib.BinaryLog, error) {
	return m.binaryLogsFn(ctx)
}

func (m *mockQuerier) BinlogStatus(ctx context.Context) (*mysqllib.BinlogStatus, error) {
	return m.binlogStatusFn(ctx)
}

func (m *mockQuerier) BinlogFormat(ctx context.Context) (string, error) {
	if m.binlogFormatFn == nil {
		return "ROW", nil
	}
	return m.binlogFormatFn(ctx)
}

func (m *mockQuerier) TableMetadata(ctx context.Context, schema, table string) (*mysqllib.TableMetadata, error) {
	m.tableCalls++
	return m.tableMetadataFn(ctx, schema, table)
}

func (m *mockQuerier) Close() error { return nil }

var testUserTable = &mysqllib.TableMetadata{
	Schema:     "space_cloud_tenant1",
	Table:      "t_user",
	Columns:    []string{"id", "username", "email", "phone"},
	PrimaryKey: []string{"id"},
}

func newTestQuerier() *mockQuerier {
	return &mockQuerier{
		binaryLogsFn: func(context.Context) ([]mysqllib.BinaryLog, error) {
			return []mysqllib.BinaryLog{
				{Name: "mysql-bin.000001", Size: 1000},
				{Name: "mysql-bin.000002", Size: 500},
			}, nil
		},
		binlogStatusFn: func(context.Context) (*mysqllib.BinlogStatus, error) {
			return &mysqllib.BinlogStatus{File: "mysql-bin.000002", Position: 500}, nil
		},
		tableMetadataFn: func(_ context.Context, schema, table string) (*mysqllib.TableMetadata, error) {
			return testUserTable, nil
		},
	}
}

func rotateEvent(file string, pos uint64) *binlog.BinlogEvent {
	return &binlog.BinlogEvent{
		Header: &binlog.EventHeader{EventType: binlog.ROTATE_EVENT},
		Event:  &binlog.RotateEvent{Position: pos, NextLogName: []byte(file)},
	}
}

func queryEvent(query string, logPos uint32) *binlog.BinlogEvent {
	return &binlog.BinlogEvent{
		Header: &binlog.EventHeader{EventType: binlog.QUERY_EVENT, LogPos: logPos, EventSize: 20},
		Event:  &binlog.QueryEvent{Query: []byte(query)},
	}
}

func xidEvent(logPos uint32) *binlog.BinlogEvent {
	return &binlog.BinlogEvent{
		Header: &binlog.EventHeader{EventType: binlog.XID_EVENT, LogPos: logPos, EventSize: 31},
		Event:  &binlog.XIDEvent{},
	}
}

func rowsEvent(t binlog.EventType, schema string, logPos, size uint32, rows ...[]any) *binlog.BinlogEvent {
	return &binlog.BinlogEvent{
		Header: &binlog.EventHeader{EventType: t, LogPos: logPos, EventSize: size, Timestamp: 1700000000},
		Event: &binlog.RowsEvent{
			Table: &binlog.TableMapEvent{
				Schema:      []byte(schema),
				Table:       []byte("t_user"),
				ColumnCount: 4,
			},
			Rows: rows,
		},
	}
}
