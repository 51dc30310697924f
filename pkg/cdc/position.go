// SPDX-License-Identifier: Apache-2.0

package cdc

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Position identifies a row change inside a source's binlog.
//
// Offset is the start offset of the rows event plus the index of the row
// within it. A row takes at least one byte of its event, so offsets are
// strictly increasing within a file. TxOffset is the offset of the first
// event of the enclosing transaction, where replication can be restarted
// without losing the table map that precedes the rows.
type Position struct {
	File     string `json:"file" msgpack:"file"`
	TxOffset uint64 `json:"tx_offset" msgpack:"tx_offset"`
	Offset   uint64 `json:"offset" msgpack:"offset"`
}

const (
	offsetBits = 40
	maxOffset  = 1<<offsetBits - 1
	// keeps the packed version within a positive int64
	maxFileIndex = 1<<(63-offsetBits) - 1
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	errPositionFormat  = fmt.Errorf("%w: expected <file>:<offset>/<tx offset>", ErrInvalidPosition)
)

func (p Position) IsZero() bool {
	return p.File == "" && p.Offset == 0 && p.TxOffset == 0
}

// FileIndex is the numeric extension of the binlog file name, such as 42 for
// mysql-bin.000042.
func (p Position) FileIndex() uint64 {
	ext := strings.TrimPrefix(filepath.Ext(p.File), ".")
	idx, err := strconv.ParseUint(ext, 10, 64)
	if err != nil {
		return 0
	}
	return idx
}

// Compare returns -1, 0 or 1 if p is respectively before, equal to or after
// other.
func (p Position) Compare(other Position) int {
	pi, oi := p.FileIndex(), other.FileIndex()
	switch {
	case pi < oi:
		return -1
	case pi > oi:
		return 1
	case p.Offset < other.Offset:
		return -1
	case p.Offset > other.Offset:
		return 1
	default:
		return 0
	}
}

func (p Position) Less(other Position) bool {
	return p.Compare(other) < 0
}

// Version packs the position into a positive int64 that preserves its
// ordering. It is used as the external document version in the search
// index.
func (p Position) Version() int64 {
	return int64(p.FileIndex()<<offsetBits | p.Offset&maxOffset)
}

func (p Position) Validate() error {
	if p.File == "" {
		return fmt.Errorf("%w: missing binlog file", ErrInvalidPosition)
	}
	if p.FileIndex() > maxFileIndex {
		return fmt.Errorf("%w: binlog file index of %q out of range", ErrInvalidPosition, p.File)
	}
	if p.Offset > maxOffset {
		return fmt.Errorf("%w: offset %d out of range", ErrInvalidPosition, p.Offset)
	}
	if p.TxOffset > p.Offset {
		return fmt.Errorf("%w: transaction offset %d after offset %d", ErrInvalidPosition, p.TxOffset, p.Offset)
	}
	return nil
}

func (p Position) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d/%d", p.File, p.Offset, p.TxOffset)
}

// ParsePosition parses the output of Position.String.
func ParsePosition(s string) (Position, error) {
	if s == "" {
		return Position{}, nil
	}
	sep := strings.LastIndexByte(s, ':')
	if sep <= 0 {
		return Position{}, errPositionFormat
	}
	offsets := strings.SplitN(s[sep+1:], "/", 2)
	if len(offsets) != 2 {
		return Position{}, errPositionFormat
	}
	offset, err := strconv.ParseUint(offsets[0], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", errPositionFormat, err)
	}
	txOffset, err := strconv.ParseUint(offsets[1], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %w", errPositionFormat, err)
	}
	p := Position{File: s[:sep], Offset: offset, TxOffset: txOffset}
	return p, p.Validate()
}
