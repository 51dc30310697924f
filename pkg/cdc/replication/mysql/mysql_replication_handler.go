// SPDX-License-Identifier: Apache-2.0

package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
	binlog "github.com/go-mysql-org/go-mysql/replication"
	lru "github.com/hashicorp/golang-lru/v2"

	mysqllib "github.com/xataio/mystream/internal/mysql"
	"github.com/xataio/mystream/pkg/cdc"
	"github.com/xataio/mystream/pkg/cdc/replication"
	loglib "github.com/xataio/mystream/pkg/log"
)

// Handler streams the row changes of one MySQL database from the server
// binary log.
type Handler struct {
	logger    loglib.Logger
	cfg       *Config
	syncerCfg binlog.BinlogSyncerConfig
	newSyncer syncerBuilder
	querier   metadataQuerier
	tables    *lru.Cache[string, *mysqllib.TableMetadata]

	mu       sync.Mutex
	syncer   binlogSyncer
	streamer binlogStreamer
	closed   bool

	// replication cursor, only used by the goroutine receiving messages
	file     string
	txOffset uint64
	pending  []*replication.Message
	// skipUntil drops the rows of a replayed transaction up to and including
	// the position on resume
	skipUntil     *cdc.Position
	start         *cdc.Position
	startSkip     *cdc.Position
	lastDelivered *cdc.Position

	progressMu sync.RWMutex
	progress   streamProgress
}

type streamProgress struct {
	file   string
	offset uint64
}

type Option func(*Handler)

// binary log files start with a 4 byte magic number
const binlogHeaderSize = 4

var errUnsupportedBinlogFormat = errors.New("binary log format must be ROW")

func NewHandler(ctx context.Context, cfg *Config, opts ...Option) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	querier, err := mysqllib.NewConn(ctx, &cfg.Conn)
	if err != nil {
		return nil, mapMetadataError(err)
	}

	h, err := newHandler(cfg, querier, newSyncer, opts...)
	if err != nil {
		querier.Close()
		return nil, err
	}
	return h, nil
}

func newHandler(cfg *Config, querier metadataQuerier, builder syncerBuilder, opts ...Option) (*Handler, error) {
	tables, err := lru.New[string, *mysqllib.TableMetadata](cfg.metadataCacheSize())
	if err != nil {
		return nil, fmt.Errorf("creating table metadata cache: %w", err)
	}

	h := &Handler{
		logger:    loglib.NewNoopLogger(),
		cfg:       cfg,
		newSyncer: builder,
		querier:   querier,
		tables:    tables,
		syncerCfg: binlog.BinlogSyncerConfig{
			ServerID:        cfg.ServerID,
			Flavor:          cfg.flavor(),
			Host:            cfg.Conn.Host,
			Port:            cfg.Conn.Port,
			User:            cfg.Conn.User,
			Password:        cfg.Conn.Password,
			HeartbeatPeriod: cfg.heartbeatPeriod(),
			ReadTimeout:     cfg.readTimeout(),
			ParseTime:       true,
		},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

func WithLogger(l loglib.Logger) Option {
	return func(h *Handler) {
		h.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "mysql_replication_handler",
			"schema":           h.cfg.Schema,
		})
	}
}

// StartReplication starts streaming right after the position on input. The
// binary log is read from the beginning of the position's transaction, so the
// table maps preceding its rows are available, and the rows already
// delivered are skipped.
func (h *Handler) StartReplication(ctx context.Context, from *cdc.Position) error {
	format, err := h.querier.BinlogFormat(ctx)
	if err != nil {
		return mapMetadataError(err)
	}
	if format != "ROW" {
		return fmt.Errorf("%w: %w, got %s", cdc.ErrInvalidConfig, errUnsupportedBinlogFormat, format)
	}

	if from == nil {
		start, err := h.initialPosition(ctx)
		if err != nil {
			return err
		}
		h.start, h.startSkip = start, nil
		return h.startSync(start, nil)
	}

	if err := from.Validate(); err != nil {
		return fmt.Errorf("%w: resume position: %w", cdc.ErrInvalidConfig, err)
	}
	resume := *from
	h.start, h.startSkip = &resume, &resume
	return h.startSync(&resume, &resume)
}

func (h *Handler) ReceiveMessage(ctx context.Context) (*replication.Message, error) {
	for {
		if len(h.pending) > 0 {
			msg := h.pending[0]
			h.pending = h.pending[1:]
			pos := msg.Position
			h.lastDelivered = &pos
			return msg, nil
		}

		streamer, err := h.getStreamer()
		if err != nil {
			return nil, err
		}

		ev, err := streamer.GetEvent(ctx)
		if err != nil {
			return nil, h.mapStreamError(err)
		}

		if err := h.handleEvent(ctx, ev); err != nil {
			return nil, err
		}
	}
}

// ResetConnection closes the current binary log connection and opens a new
// one, resuming right after the last delivered message.
func (h *Handler) ResetConnection(ctx context.Context) error {
	h.closeSyncer()
	h.pending = nil

	switch {
	case h.lastDelivered != nil:
		resume := *h.lastDelivered
		return h.startSync(&resume, &resume)
	case h.start != nil:
		return h.startSync(h.start, h.startSkip)
	default:
		return h.StartReplication(ctx, nil)
	}
}

// GetReplicationLag returns the number of binary log bytes written by the
// server that haven't been streamed yet.
func (h *Handler) GetReplicationLag(ctx context.Context) (int64, error) {
	logs, err := h.querier.BinaryLogs(ctx)
	if err != nil {
		return 0, mapMetadataError(err)
	}

	h.progressMu.RLock()
	progress := h.progress
	h.progressMu.RUnlock()

	return replicationLag(logs, progress), nil
}

func (h *Handler) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	h.closeSyncer()
	return h.querier.Close()
}

func (h *Handler) initialPosition(ctx context.Context) (*cdc.Position, error) {
	switch h.cfg.startPosition() {
	case StartPositionLatest:
		status, err := h.querier.BinlogStatus(ctx)
		if err != nil {
			return nil, mapMetadataError(err)
		}
		return &cdc.Position{File: status.File, Offset: status.Position, TxOffset: status.Position}, nil
	default:
		logs, err := h.querier.BinaryLogs(ctx)
		if err != nil {
			return nil, mapMetadataError(err)
		}
		return &cdc.Position{File: logs[0].Name, Offset: binlogHeaderSize, TxOffset: binlogHeaderSize}, nil
	}
}

func (h *Handler) startSync(from, skipUntil *cdc.Position) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return replication.ErrStreamClosed
	}

	syncer := h.newSyncer(h.syncerCfg)
	streamer, err := syncer.StartSync(gomysql.Position{
		Name: from.File,
		Pos:  uint32(from.TxOffset),
	})
	if err != nil {
		syncer.Close()
		return fmt.Errorf("%w: starting binlog sync at %s: %w", cdc.ErrTransientConnection, from, err)
	}

	h.syncer = syncer
	h.streamer = streamer
	h.file = from.File
	h.txOffset = from.TxOffset
	h.skipUntil = skipUntil
	h.setProgress(from.File, from.TxOffset)

	fields := loglib.Fields{
		"file":   from.File,
		"offset": from.TxOffset,
	}
	if skipUntil != nil {
		fields["skip_until"] = skipUntil.String()
	}
	h.logger.Info("binlog replication started", fields)
	return nil
}

func (h *Handler) getStreamer() (binlogStreamer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, replication.ErrStreamClosed
	}
	if h.streamer == nil {
		return nil, fmt.Errorf("%w: replication not started", cdc.ErrTransientConnection)
	}
	return h.streamer, nil
}

func (h *Handler) closeSyncer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.syncer != nil {
		h.syncer.Close()
	}
	h.syncer = nil
	h.streamer = nil
}

func (h *Handler) handleEvent(ctx context.Context, ev *binlog.BinlogEvent) error {
	switch e := ev.Event.(type) {
	case *binlog.RotateEvent:
		h.file = string(e.NextLogName)
		h.txOffset = e.Position
		h.setProgress(h.file, e.Position)
		return nil
	case *binlog.XIDEvent:
		h.txOffset = uint64(ev.Header.LogPos)
	case *binlog.QueryEvent:
		query := strings.ToUpper(strings.TrimSpace(string(e.Query)))
		if query == "BEGIN" {
			break
		}
		// a COMMIT query ends a transaction on non transactional tables,
		// anything else is a DDL statement which is a transaction of its own
		h.txOffset = uint64(ev.Header.LogPos)
		if query != "COMMIT" {
			h.tables.Purge()
		}
	case *binlog.RowsEvent:
		if err := h.handleRows(ctx, ev.Header, e); err != nil {
			return err
		}
	}

	if ev.Header != nil && ev.Header.LogPos > 0 {
		h.setProgress(h.file, uint64(ev.Header.LogPos))
	}
	return nil
}

func (h *Handler) handleRows(ctx context.Context, header *binlog.EventHeader, e *binlog.RowsEvent) error {
	if e.Table == nil || string(e.Table.Schema) != h.cfg.Schema {
		return nil
	}

	op, ok := rowsOperation(header.EventType)
	if !ok {
		return nil
	}

	md, err := h.tableMetadata(ctx, e.Table)
	if err != nil {
		return err
	}

	eventStart := uint64(header.LogPos) - uint64(header.EventSize)
	serverTime := time.Unix(int64(header.Timestamp), 0).UTC()
	enqueue := func(rowIdx int, op cdc.Operation, row []any) {
		pos := cdc.Position{
			File:     h.file,
			TxOffset: h.txOffset,
			Offset:   eventStart + uint64(rowIdx),
		}
		if h.skipUntil != nil {
			if !h.skipUntil.Less(pos) {
				return
			}
			h.skipUntil = nil
		}
		h.pending = append(h.pending, &replication.Message{
			Position:   pos,
			Schema:     md.Schema,
			Table:      md.Table,
			Operation:  op,
			Row:        rowImage(md, row),
			PrimaryKey: md.PrimaryKey,
			ServerTime: serverTime,
		})
	}

	if op != cdc.OperationUpdate {
		for i, row := range e.Rows {
			enqueue(i, op, row)
		}
		return nil
	}

	// update rows come in before/after image pairs
	for i := 0; i+1 < len(e.Rows); i += 2 {
		before, after := e.Rows[i], e.Rows[i+1]
		if primaryKeyChanged(md, before, after) {
			enqueue(i, cdc.OperationDelete, before)
		}
		enqueue(i+1, cdc.OperationUpdate, after)
	}
	return nil
}

func (h *Handler) tableMetadata(ctx context.Context, tme *binlog.TableMapEvent) (*mysqllib.TableMetadata, error) {
	schema, table := string(tme.Schema), string(tme.Table)
	key := schema + "." + table
	if md, found := h.tables.Get(key); found && len(md.Columns) == int(tme.ColumnCount) {
		return md, nil
	}

	md := tableMetadataFromMap(tme)
	if md == nil {
		var err error
		md, err = h.querier.TableMetadata(ctx, schema, table)
		if err != nil {
			return nil, mapMetadataError(err)
		}
	}

	if len(md.Columns) != int(tme.ColumnCount) {
		h.logger.Warn(nil, "table definition differs from binary log row image", loglib.Fields{
			"table":          key,
			"columns":        len(md.Columns),
			"binlog_columns": tme.ColumnCount,
		})
	}

	h.tables.Add(key, md)
	return md, nil
}

func (h *Handler) setProgress(file string, offset uint64) {
	h.progressMu.Lock()
	defer h.progressMu.Unlock()
	h.progress = streamProgress{file: file, offset: offset}
}

func (h *Handler) mapStreamError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, binlog.ErrSyncClosed):
		h.mu.Lock()
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return replication.ErrStreamClosed
		}
	}
	return fmt.Errorf("%w: reading binlog event: %w", cdc.ErrTransientConnection, err)
}

// tableMetadataFromMap uses the column names shipped with the table map
// event when the server runs with binlog_row_metadata=FULL.
func tableMetadataFromMap(tme *binlog.TableMapEvent) *mysqllib.TableMetadata {
	columns := tme.ColumnNameString()
	if len(columns) == 0 || len(tme.PrimaryKey) == 0 {
		return nil
	}

	md := &mysqllib.TableMetadata{
		Schema:  string(tme.Schema),
		Table:   string(tme.Table),
		Columns: columns,
	}
	for _, idx := range tme.PrimaryKey {
		if int(idx) < len(columns) {
			md.PrimaryKey = append(md.PrimaryKey, columns[idx])
		}
	}
	return md
}

func rowsOperation(t binlog.EventType) (cdc.Operation, bool) {
	switch t {
	case binlog.WRITE_ROWS_EVENTv0, binlog.WRITE_ROWS_EVENTv1, binlog.WRITE_ROWS_EVENTv2:
		return cdc.OperationInsert, true
	case binlog.UPDATE_ROWS_EVENTv0, binlog.UPDATE_ROWS_EVENTv1, binlog.UPDATE_ROWS_EVENTv2:
		return cdc.OperationUpdate, true
	case binlog.DELETE_ROWS_EVENTv0, binlog.DELETE_ROWS_EVENTv1, binlog.DELETE_ROWS_EVENTv2:
		return cdc.OperationDelete, true
	default:
		return "", false
	}
}

func rowImage(md *mysqllib.TableMetadata, row []any) map[string]any {
	image := make(map[string]any, len(md.Columns))
	for i, value := range row {
		if i >= len(md.Columns) {
			break
		}
		image[md.Columns[i]] = value
	}
	return image
}

func primaryKeyChanged(md *mysqllib.TableMetadata, before, after []any) bool {
	for _, col := range md.PrimaryKey {
		idx := columnIndex(md, col)
		if idx < 0 || idx >= len(before) || idx >= len(after) {
			continue
		}
		if fmt.Sprint(before[idx]) != fmt.Sprint(after[idx]) {
			return true
		}
	}
	return false
}

func columnIndex(md *mysqllib.TableMetadata, col string) int {
	for i, c := range md.Columns {
		if c == col {
			return i
		}
	}
	return -1
}

func replicationLag(logs []mysqllib.BinaryLog, progress streamProgress) int64 {
	var lag uint64
	current := cdc.Position{File: progress.file}
	for _, l := range logs {
		cmp := cdc.Position{File: l.Name}.Compare(current)
		switch {
		case cmp > 0:
			lag += l.Size
		case cmp == 0 && l.Size > progress.offset:
			lag += l.Size - progress.offset
		}
	}
	return int64(lag)
}

func mapMetadataError(err error) error {
	var accessErr *mysqllib.AccessError
	var unknownErr *mysqllib.UnknownObjectError
	switch {
	case errors.As(err, &accessErr), errors.As(err, &unknownErr), errors.Is(err, mysqllib.ErrNoBinaryLogs):
		return fmt.Errorf("%w: %w", cdc.ErrInvalidConfig, err)
	case mysqllib.IsTransient(err):
		return fmt.Errorf("%w: %w", cdc.ErrTransientConnection, err)
	default:
		return err
	}
}
