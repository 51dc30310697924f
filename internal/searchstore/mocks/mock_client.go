// SPDX-License-Identifier: Apache-2.0

package mocks

import (
	"context"
	"sync/atomic"

	"github.com/xataio/mystream/internal/searchstore"
)

type Client struct {
	CountFn           func(ctx context.Context, index string) (int, error)
	CreateIndexFn     func(ctx context.Context, index string, body map[string]any) error
	GetDocumentFn     func(ctx context.Context, index, id string) (*searchstore.Document, error)
	IndexExistsFn     func(ctx context.Context, index string) (bool, error)
	RefreshIndexFn    func(ctx context.Context, index string) error
	SendBulkRequestFn func(ctx context.Context, i uint64, items []searchstore.BulkItem) ([]searchstore.BulkItem, error)
	GetMapperFn       func() searchstore.Mapper
	bulkCalls         atomic.Uint64
}

func (m *Client) Count(ctx context.Context, index string) (int, error) {
	return m.CountFn(ctx, index)
}

func (m *Client) CreateIndex(ctx context.Context, index string, body map[string]any) error {
	return m.CreateIndexFn(ctx, index, body)
}

func (m *Client) GetDocument(ctx context.Context, index, id string) (*searchstore.Document, error) {
	return m.GetDocumentFn(ctx, index, id)
}

func (m *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	return m.IndexExistsFn(ctx, index)
}

func (m *Client) RefreshIndex(ctx context.Context, index string) error {
	return m.RefreshIndexFn(ctx, index)
}

func (m *Client) SendBulkRequest(ctx context.Context, items []searchstore.BulkItem) ([]searchstore.BulkItem, error) {
	return m.SendBulkRequestFn(ctx, m.bulkCalls.Add(1), items)
}

func (m *Client) GetMapper() searchstore.Mapper {
	if m.GetMapperFn == nil {
		return &Mapper{}
	}
	return m.GetMapperFn()
}

func (m *Client) GetBulkCalls() uint64 {
	return m.bulkCalls.Load()
}
